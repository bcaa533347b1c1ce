package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeoh/margins/backend"
)

// stubService records calls and plays back scripted responses.
type stubService struct {
	mu    sync.Mutex
	calls []string

	snap      *backend.PageSnapshot
	loadErr   error
	postErr   error
	replyErr  error
	reactErr  error
	rating    *backend.RatingState
	ratingErr error
	submitted *backend.RatingScores
	submitRes *backend.RatingState
	submitErr error
}

func (s *stubService) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubService) LoadPage(_ context.Context, _ backend.PageRef, page int) (*backend.PageSnapshot, error) {
	s.record(fmt.Sprintf("load:%d", page))
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.snap, nil
}

func (s *stubService) PostComment(_ context.Context, _ backend.PageRef, text string) error {
	s.record("post:" + text)
	return s.postErr
}

func (s *stubService) PostReply(_ context.Context, parentID int64, text string) error {
	s.record(fmt.Sprintf("reply:%d:%s", parentID, text))
	return s.replyErr
}

func (s *stubService) React(_ context.Context, commentID int64, kind backend.ReactionKind) error {
	s.record(fmt.Sprintf("react:%d:%s", commentID, kind))
	return s.reactErr
}

func (s *stubService) LoadRating(_ context.Context, _ int64) (*backend.RatingState, error) {
	s.record("loadRating")
	if s.ratingErr != nil {
		return nil, s.ratingErr
	}
	return s.rating, nil
}

func (s *stubService) SubmitRating(_ context.Context, _ int64, scores backend.RatingScores) (*backend.RatingState, error) {
	s.record("submitRating")
	s.mu.Lock()
	s.submitted = &scores
	s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.submitRes, nil
}

func testRef() backend.PageRef {
	return backend.PageRef{Type: backend.PageNovel, ID: 3}
}

func testSnap(current int, pages int, viewer string, comments ...backend.Comment) *backend.PageSnapshot {
	nums := make([]int, 0, pages)
	for i := 1; i <= pages; i++ {
		nums = append(nums, i)
	}
	if comments == nil {
		comments = []backend.Comment{}
	}
	return &backend.PageSnapshot{
		Comments:    comments,
		PageNumbers: nums,
		CurrentPage: current,
		Viewer:      viewer,
	}
}

func comment(id int64, body string, replies ...backend.Comment) backend.Comment {
	return backend.Comment{
		ID:      id,
		User:    fmt.Sprintf("user%d", id),
		Date:    "Jan 2, 2026",
		Body:    body,
		Replies: replies,
	}
}

// loadedPanel returns a panel with the given snapshot already applied.
func loadedPanel(t *testing.T, svc *stubService, snap *backend.PageSnapshot) *CommentsPanel {
	t.Helper()
	cp := NewCommentsPanel(svc, testRef(), zerolog.Nop())
	cp.applySnapshot(snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: snap})
	require.True(t, cp.Loaded())
	return cp
}

// run executes a command synchronously and returns its message.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	return cmd()
}

func TestSelectPageUnknownIsInert(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(2, 3, "ana", comment(1, "hi")))

	require.Nil(t, cp.SelectPage(9))
	require.Nil(t, cp.SelectPage(0))
	assert.Empty(t, svc.Calls())
	assert.Equal(t, 2, cp.Snapshot().CurrentPage)
}

func TestSelectPageKnownLoads(t *testing.T) {
	svc := &stubService{snap: testSnap(3, 3, "ana")}
	cp := loadedPanel(t, svc, testSnap(2, 3, "ana"))

	msg := run(t, cp.SelectPage(3))
	cp.Update(msg)

	assert.Equal(t, []string{"load:3"}, svc.Calls())
	assert.Equal(t, 3, cp.Snapshot().CurrentPage)
}

func TestSubmitTopLevelBlankNeverCallsService(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana"))

	cp.draft = ""
	require.Nil(t, cp.SubmitTopLevel())

	cp.draft = "   "
	require.Nil(t, cp.SubmitTopLevel())

	assert.Empty(t, svc.Calls())
}

func TestSubmitTopLevelWithoutViewerIsInert(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, ""))

	cp.draft = "hello there"
	require.Nil(t, cp.SubmitTopLevel())
	assert.Empty(t, svc.Calls())
	assert.Equal(t, "hello there", cp.draft)
}

func TestSubmitTopLevelPostsThenReloads(t *testing.T) {
	svc := &stubService{snap: testSnap(1, 1, "ana", comment(1, "hello"))}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana"))
	cp.draft = "hello"

	posted := run(t, cp.SubmitTopLevel())
	reload := cp.Update(posted)
	require.NotNil(t, reload)
	cp.Update(reload())

	assert.Equal(t, []string{"post:hello", "load:1"}, svc.Calls())
	assert.Empty(t, cp.draft, "successful reload clears the compose draft")
	assert.Len(t, cp.Snapshot().Comments, 1)
}

func TestSubmitTopLevelFailureKeepsDraft(t *testing.T) {
	svc := &stubService{postErr: fmt.Errorf("boom")}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana"))
	cp.draft = "hello"

	posted := run(t, cp.SubmitTopLevel())
	require.Nil(t, cp.Update(posted), "no reload after a failed post")
	assert.Equal(t, "hello", cp.draft)
}

func TestReplySuccessClearsEphemeralState(t *testing.T) {
	svc := &stubService{snap: testSnap(1, 1, "ana", comment(7, "parent"))}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(7, "parent")))

	ui := cp.node(7)
	ui.replyFormOpen = true
	ui.replyDraft = "hello"

	sent := run(t, cp.SubmitReply(7))
	reload := cp.Update(sent)
	require.NotNil(t, reload)
	cp.Update(reload())

	assert.Equal(t, []string{"reply:7:hello", "load:1"}, svc.Calls())
	assert.Empty(t, cp.node(7).replyDraft)
	assert.False(t, cp.node(7).replyFormOpen)
}

func TestReplyFailureLeavesFormOpen(t *testing.T) {
	svc := &stubService{replyErr: fmt.Errorf("boom")}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(7, "parent")))

	ui := cp.node(7)
	ui.replyFormOpen = true
	ui.replyDraft = "hello"

	sent := run(t, cp.SubmitReply(7))
	require.Nil(t, cp.Update(sent), "no reload after a failed reply")

	assert.True(t, cp.node(7).replyFormOpen, "form stays open for a retry")
	assert.Equal(t, "hello", cp.node(7).replyDraft)
}

func TestReplyBlankOrAnonymousIsInert(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "", comment(7, "parent")))

	cp.node(7).replyDraft = "hello"
	require.Nil(t, cp.SubmitReply(7), "anonymous viewer")

	cp.applySnapshot(snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: testSnap(1, 1, "ana", comment(7, "parent"))})
	cp.node(7).replyDraft = "   "
	require.Nil(t, cp.SubmitReply(7), "blank draft")

	assert.Empty(t, svc.Calls())
}

func TestReactReloadsEvenWhenReactionFails(t *testing.T) {
	svc := &stubService{
		reactErr: fmt.Errorf("boom"),
		snap:     testSnap(1, 1, "ana", comment(5, "hi")),
	}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(5, "hi")))

	reacted := run(t, cp.React(5, backend.ReactionLike))
	reload := cp.Update(reacted)
	require.NotNil(t, reload, "reload fires regardless of the reaction outcome")
	cp.Update(reload())

	assert.Equal(t, []string{"react:5:like", "load:1"}, svc.Calls())
}

func TestReactWithoutViewerIsInert(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "", comment(5, "hi")))

	require.Nil(t, cp.React(5, backend.ReactionDislike))
	assert.Empty(t, svc.Calls())
}

func TestFailedLoadKeepsStaleSnapshot(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(2, 3, "ana", comment(1, "keep me")))

	cp.applySnapshot(snapshotMsg{epoch: cp.epoch, ref: cp.ref, err: fmt.Errorf("boom")})

	assert.Equal(t, 2, cp.Snapshot().CurrentPage)
	require.Len(t, cp.Snapshot().Comments, 1)
	assert.Equal(t, "keep me", cp.Snapshot().Comments[0].Body)
}

func TestStaleEpochSnapshotIsDropped(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(1, "old page")))

	oldEpoch, oldRef := cp.epoch, cp.ref
	cp.Reset(backend.PageRef{Type: backend.PageChapter, ID: 9})

	cp.applySnapshot(snapshotMsg{epoch: oldEpoch, ref: oldRef, snap: testSnap(1, 1, "ana", comment(1, "old page"))})

	assert.False(t, cp.Loaded(), "response for the old target must be a no-op")
	assert.Empty(t, cp.Snapshot().Comments)
}

// Two overlapping reloads: whichever response is applied last wins, even if
// it was issued first. The panel deliberately does not order reloads; the
// snapshot-replace model makes the race benign.
func TestLastAppliedReloadWins(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 2, "ana"))

	first := snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: testSnap(1, 2, "ana", comment(1, "first"))}
	second := snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: testSnap(2, 2, "ana", comment(2, "second"))}

	cp.applySnapshot(first)
	cp.applySnapshot(second)
	assert.Equal(t, "second", cp.Snapshot().Comments[0].Body)

	cp.applySnapshot(second)
	cp.applySnapshot(first)
	assert.Equal(t, "first", cp.Snapshot().Comments[0].Body)
}

func TestSnapshotInvariantCurrentPageIsListed(t *testing.T) {
	for pages := 1; pages <= 4; pages++ {
		for current := 1; current <= pages; current++ {
			snap := testSnap(current, pages, "ana")
			assert.True(t, snap.HasPage(snap.CurrentPage),
				"currentPage %d must be in pageNumbers %v", current, snap.PageNumbers)
		}
	}
}

func TestEphemeralStatePrunedToSurvivors(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(1, "a"), comment(2, "b")))

	cp.node(1).repliesExpanded = true
	cp.node(2).replyDraft = "draft for a goner"

	cp.applySnapshot(snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: testSnap(1, 1, "ana", comment(1, "a"))})

	assert.True(t, cp.nodes[1].repliesExpanded, "surviving id keeps its state")
	assert.NotContains(t, cp.nodes, int64(2), "vanished id is pruned")
}

func TestVisibleRowsRecurseAtEveryDepth(t *testing.T) {
	// depth-5 chain: 1 -> 2 -> 3 -> 4 -> 5
	tree := comment(1, "level1",
		comment(2, "level2",
			comment(3, "level3",
				comment(4, "level4",
					comment(5, "level5")))))
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", tree))

	assert.Len(t, cp.visibleRows(), 1, "collapsed tree shows the root only")

	for id := int64(1); id <= 4; id++ {
		cp.node(id).repliesExpanded = true
	}

	rows := cp.visibleRows()
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, i, row.depth)
		assert.Equal(t, fmt.Sprintf("level%d", i+1), row.c.Body)
	}

	view := cp.View(80, 40, true)
	for i := 1; i <= 5; i++ {
		assert.Contains(t, view, fmt.Sprintf("level%d", i))
	}
}

func TestBodyRendersOneParagraphPerLine(t *testing.T) {
	c := comment(1, "line1\n\nline2")
	paras := c.Paragraphs()
	require.Equal(t, []string{"line1", "", "line2"}, paras)

	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", c))

	lines := cp.renderRow(commentRow{c: &cp.snap.Comments[0]}, 80, false)
	// header + three paragraphs, the middle one an empty line
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "line1")
	assert.Equal(t, "", lines[2])
	assert.Contains(t, lines[3], "line2")
}

func TestCollapsedNodeShowsReplyCount(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(1, 1, "ana", comment(1, "root", comment(2, "child"), comment(3, "child"))))

	view := cp.View(80, 30, true)
	assert.Contains(t, view, "Show Replies(2)")
	assert.NotContains(t, view, "child")

	cp.node(1).repliesExpanded = true
	view = cp.View(80, 30, true)
	assert.Contains(t, view, "Hide Replies")
	assert.Contains(t, view, "child")
}

func TestPagerListsAllPagesAndMarksCurrent(t *testing.T) {
	svc := &stubService{}
	cp := loadedPanel(t, svc, testSnap(2, 3, "ana"))

	pager := cp.viewPager(80)
	for _, want := range []string{"1", "[2]", "3"} {
		assert.Contains(t, stripANSI(pager), want)
	}

	cp.applySnapshot(snapshotMsg{epoch: cp.epoch, ref: cp.ref, snap: testSnap(1, 1, "ana")})
	assert.Empty(t, cp.viewPager(80), "single page renders no pager")
}

// stripANSI removes styling escape codes so assertions can match plain text.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"

	"github.com/kyeoh/margins/backend"
)

const requestTimeout = 10 * time.Second

// Comments panel messages. Every async result carries the epoch (and, for
// snapshots, the page ref) it was issued under so responses resolving into a
// retargeted or torn-down panel are dropped instead of applied.
type (
	snapshotMsg struct {
		epoch int
		ref   backend.PageRef
		snap  *backend.PageSnapshot
		err   error
	}
	commentPostedMsg struct {
		epoch int
		err   error
	}
	replyPostedMsg struct {
		epoch int
		id    int64
		err   error
	}
	reactedMsg struct {
		epoch int
		kind  backend.ReactionKind
		err   error
	}
)

// nodeUI is the ephemeral per-comment UI state. It lives in a side table
// keyed by comment id, not in the snapshot, so a wholesale reload keeps open
// forms and drafts for comments that survive it and drops the rest.
type nodeUI struct {
	repliesExpanded bool
	replyFormOpen   bool
	replyDraft      string
}

// commentRow is one visible line-block in the flattened tree.
type commentRow struct {
	c     *backend.Comment
	depth int
}

// CommentsPanel owns the paginated comment tree for one content page. The
// server's snapshot is the single source of truth: every mutation (post,
// reply, like, dislike) is followed by a full reload, and the response
// replaces the panel's state wholesale.
type CommentsPanel struct {
	svc backend.Service
	log zerolog.Logger

	ref   backend.PageRef
	epoch int

	snap   backend.PageSnapshot
	loaded bool
	notice string

	// Top-level compose draft. Cleared by every successful reload, matching
	// the server-echo lifecycle of the snapshot itself.
	draft string

	nodes map[int64]*nodeUI

	cursor     int
	scrollLine int

	editing   bool
	editingID int64 // 0 while composing a top-level comment
	input     textarea.Model
}

// NewCommentsPanel creates a panel for the given content page. Nothing is
// fetched until the first Load command runs.
func NewCommentsPanel(svc backend.Service, ref backend.PageRef, log zerolog.Logger) *CommentsPanel {
	ta := textarea.New()
	ta.Placeholder = "Write something..."
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.CharLimit = 0

	return &CommentsPanel{
		svc:   svc,
		log:   log.With().Str("panel", "comments").Logger(),
		ref:   ref,
		nodes: make(map[int64]*nodeUI),
		input: ta,
	}
}

// Ref returns the content page this panel is attached to.
func (cp *CommentsPanel) Ref() backend.PageRef { return cp.ref }

// Snapshot returns the last successfully loaded page.
func (cp *CommentsPanel) Snapshot() backend.PageSnapshot { return cp.snap }

// Loaded reports whether at least one snapshot has been applied.
func (cp *CommentsPanel) Loaded() bool { return cp.loaded }

// Reset retargets the panel at a different content page. The epoch bump
// makes any still-in-flight response for the old target a no-op.
func (cp *CommentsPanel) Reset(ref backend.PageRef) {
	cp.epoch++
	cp.ref = ref
	cp.snap = backend.PageSnapshot{}
	cp.loaded = false
	cp.notice = ""
	cp.draft = ""
	cp.nodes = make(map[int64]*nodeUI)
	cp.cursor = 0
	cp.scrollLine = 0
	cp.editing = false
	cp.editingID = 0
	cp.input.Reset()
	cp.input.Blur()
}

// Load issues a fetch for the given page of the panel's content page.
func (cp *CommentsPanel) Load(page int) tea.Cmd {
	epoch, ref, svc := cp.epoch, cp.ref, cp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		snap, err := svc.LoadPage(ctx, ref, page)
		return snapshotMsg{epoch: epoch, ref: ref, snap: snap, err: err}
	}
}

// Reload refetches the current page.
func (cp *CommentsPanel) Reload() tea.Cmd {
	return cp.Load(cp.currentPage())
}

func (cp *CommentsPanel) currentPage() int {
	if cp.snap.CurrentPage > 0 {
		return cp.snap.CurrentPage
	}
	return 1
}

// SelectPage navigates to page n. Unknown page numbers are inert.
func (cp *CommentsPanel) SelectPage(n int) tea.Cmd {
	if !cp.snap.HasPage(n) {
		return nil
	}
	return cp.Load(n)
}

// SubmitTopLevel posts the top-level compose draft. A blank draft or a
// missing viewer makes it inert; neither issues a request. The viewer check
// is a UX convenience only, the server enforces authorization itself.
func (cp *CommentsPanel) SubmitTopLevel() tea.Cmd {
	text := cp.draft
	if strings.TrimSpace(text) == "" || !cp.snap.LoggedIn() {
		return nil
	}

	epoch, ref, svc := cp.epoch, cp.ref, cp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := svc.PostComment(ctx, ref, text)
		return commentPostedMsg{epoch: epoch, err: err}
	}
}

// SubmitReply posts the reply draft held for the given comment. Inert when
// the draft is blank or there is no viewer.
func (cp *CommentsPanel) SubmitReply(id int64) tea.Cmd {
	ui, ok := cp.nodes[id]
	if !ok {
		return nil
	}
	text := ui.replyDraft
	if strings.TrimSpace(text) == "" || !cp.snap.LoggedIn() {
		return nil
	}

	epoch, svc := cp.epoch, cp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := svc.PostReply(ctx, id, text)
		return replyPostedMsg{epoch: epoch, id: id, err: err}
	}
}

// React sends a like or dislike for the given comment. Inert without a
// viewer. The reaction is a server-side toggle, so the panel issues the
// same request every time and reloads regardless of the outcome.
func (cp *CommentsPanel) React(id int64, kind backend.ReactionKind) tea.Cmd {
	if !cp.snap.LoggedIn() {
		return nil
	}

	epoch, svc := cp.epoch, cp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := svc.React(ctx, id, kind)
		return reactedMsg{epoch: epoch, kind: kind, err: err}
	}
}

// node returns the ephemeral UI state for a comment id, creating it lazily.
func (cp *CommentsPanel) node(id int64) *nodeUI {
	ui, ok := cp.nodes[id]
	if !ok {
		ui = &nodeUI{}
		cp.nodes[id] = ui
	}
	return ui
}

// visibleRows flattens the tree depth-first. A node's replies are visible
// only while that node is expanded; the same rule applies at every depth.
func (cp *CommentsPanel) visibleRows() []commentRow {
	var rows []commentRow

	var walk func(c *backend.Comment, depth int)
	walk = func(c *backend.Comment, depth int) {
		rows = append(rows, commentRow{c: c, depth: depth})
		if ui, ok := cp.nodes[c.ID]; ok && ui.repliesExpanded {
			for i := range c.Replies {
				walk(&c.Replies[i], depth+1)
			}
		}
	}

	for i := range cp.snap.Comments {
		walk(&cp.snap.Comments[i], 0)
	}
	return rows
}

func (cp *CommentsPanel) cursorRow() (commentRow, bool) {
	rows := cp.visibleRows()
	if cp.cursor < 0 || cp.cursor >= len(rows) {
		return commentRow{}, false
	}
	return rows[cp.cursor], true
}

func (cp *CommentsPanel) clampCursor() {
	n := len(cp.visibleRows())
	if cp.cursor >= n {
		cp.cursor = n - 1
	}
	if cp.cursor < 0 {
		cp.cursor = 0
	}
}

// Update handles panel messages and, while the panel has focus, key input.
func (cp *CommentsPanel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case snapshotMsg:
		return cp.applySnapshot(msg)

	case commentPostedMsg:
		if msg.epoch != cp.epoch {
			return nil
		}
		if msg.err != nil {
			// Draft stays so the viewer can retry.
			cp.log.Error().Err(msg.err).Msg("post comment failed")
			cp.notice = "comment not posted"
			return nil
		}
		return cp.Reload()

	case replyPostedMsg:
		if msg.epoch != cp.epoch {
			return nil
		}
		if msg.err != nil {
			// Form stays open with the draft intact.
			cp.log.Error().Err(msg.err).Int64("comment", msg.id).Msg("post reply failed")
			cp.notice = "reply not posted"
			return nil
		}
		if ui, ok := cp.nodes[msg.id]; ok {
			ui.replyDraft = ""
			ui.replyFormOpen = false
		}
		return cp.Reload()

	case reactedMsg:
		if msg.epoch != cp.epoch {
			return nil
		}
		if msg.err != nil {
			cp.log.Error().Err(msg.err).Str("kind", string(msg.kind)).Msg("reaction failed")
		}
		// Reload either way; the snapshot is the only state that counts.
		return cp.Reload()

	case tea.KeyMsg:
		if cp.editing {
			return cp.updateEditing(msg)
		}
		return cp.updateBrowsing(msg)
	}

	return nil
}

// applySnapshot replaces the panel's state with a fresh server snapshot.
// Responses from an older epoch or for a different page ref are dropped, and
// a failed load keeps the stale snapshot on screen.
func (cp *CommentsPanel) applySnapshot(msg snapshotMsg) tea.Cmd {
	if msg.epoch != cp.epoch || msg.ref != cp.ref {
		cp.log.Debug().Str("ref", msg.ref.String()).Msg("dropping stale snapshot")
		return nil
	}
	if msg.err != nil {
		cp.log.Error().Err(msg.err).Msg("load page failed")
		cp.notice = "couldn't refresh comments"
		return nil
	}

	cp.snap = *msg.snap
	cp.loaded = true
	cp.notice = ""
	cp.draft = ""
	cp.pruneNodes()
	cp.clampCursor()

	if cp.editing && cp.editingID != 0 {
		if _, ok := cp.nodes[cp.editingID]; !ok {
			// The comment being replied to is gone from this page.
			cp.editing = false
			cp.editingID = 0
			cp.input.Blur()
		}
	}
	return nil
}

// pruneNodes drops ephemeral state for comment ids that no longer exist in
// the snapshot. Surviving ids keep their expanded/draft state across the
// reload.
func (cp *CommentsPanel) pruneNodes() {
	alive := make(map[int64]bool)

	var walk func(c *backend.Comment)
	walk = func(c *backend.Comment) {
		alive[c.ID] = true
		for i := range c.Replies {
			walk(&c.Replies[i])
		}
	}
	for i := range cp.snap.Comments {
		walk(&cp.snap.Comments[i])
	}

	for id := range cp.nodes {
		if !alive[id] {
			delete(cp.nodes, id)
		}
	}
}

func (cp *CommentsPanel) updateBrowsing(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j", "down":
		cp.cursor++
		cp.clampCursor()

	case "k", "up":
		cp.cursor--
		cp.clampCursor()

	case "]", "right":
		return cp.SelectPage(cp.currentPage() + 1)

	case "[", "left":
		return cp.SelectPage(cp.currentPage() - 1)

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		return cp.SelectPage(int(msg.String()[0] - '0'))

	case "x", "enter":
		if row, ok := cp.cursorRow(); ok && len(row.c.Replies) > 0 {
			ui := cp.node(row.c.ID)
			ui.repliesExpanded = !ui.repliesExpanded
			cp.clampCursor()
		}

	case "l":
		if row, ok := cp.cursorRow(); ok {
			return cp.React(row.c.ID, backend.ReactionLike)
		}

	case "d":
		if row, ok := cp.cursorRow(); ok {
			return cp.React(row.c.ID, backend.ReactionDislike)
		}

	case "r":
		if row, ok := cp.cursorRow(); ok {
			ui := cp.node(row.c.ID)
			if ui.replyFormOpen {
				// Close keeps the draft, same as reopening the form later.
				ui.replyFormOpen = false
				return nil
			}
			ui.replyFormOpen = true
			return cp.startEditing(row.c.ID, ui.replyDraft)
		}

	case "c":
		return cp.startEditing(0, cp.draft)

	case "R":
		return cp.Reload()
	}

	return nil
}

func (cp *CommentsPanel) startEditing(id int64, draft string) tea.Cmd {
	cp.editing = true
	cp.editingID = id
	cp.input.SetValue(draft)
	return cp.input.Focus()
}

func (cp *CommentsPanel) updateEditing(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		cp.saveDraft()
		cp.editing = false
		cp.input.Blur()
		return nil

	case "ctrl+s":
		cp.saveDraft()
		id := cp.editingID
		cp.editing = false
		cp.input.Blur()
		if id == 0 {
			return cp.SubmitTopLevel()
		}
		return cp.SubmitReply(id)
	}

	var cmd tea.Cmd
	cp.input, cmd = cp.input.Update(msg)
	return cmd
}

func (cp *CommentsPanel) saveDraft() {
	if cp.editingID == 0 {
		cp.draft = cp.input.Value()
		return
	}
	cp.node(cp.editingID).replyDraft = cp.input.Value()
}

// View renders the panel into the given box.
func (cp *CommentsPanel) View(width, height int, focused bool) string {
	var b strings.Builder

	header := titleStyle.Render(fmt.Sprintf("Comments (%d)", len(cp.snap.Comments)))
	if cp.notice != "" {
		header += "  " + noticeStyle.Render(cp.notice)
	}
	b.WriteString(header + "\n")

	b.WriteString(cp.viewCompose(width) + "\n")

	chrome := strings.Count(b.String(), "\n") + 2 // header+compose above, pager+hints below
	avail := height - chrome
	if avail < 1 {
		avail = 1
	}
	b.WriteString(cp.viewList(width, avail, focused))

	b.WriteString(cp.viewPager(width) + "\n")
	if cp.editing {
		b.WriteString(navStyle.Render("ctrl+s: submit  esc: done typing"))
	} else {
		b.WriteString(navStyle.Render("j/k: move  l/d: like/dislike  r: reply  x: replies  c: comment  [/]: page"))
	}

	return b.String()
}

func (cp *CommentsPanel) viewCompose(width int) string {
	if cp.editing && cp.editingID == 0 {
		cp.input.SetWidth(min(width-2, 72))
		return cp.input.View()
	}
	if strings.TrimSpace(cp.draft) != "" {
		return bodyStyle.Render(truncate(cp.draft, width-10)) + dateStyle.Render("  (draft)")
	}
	return navStyle.Render("c: add a comment")
}

// viewList renders the visible rows, keeping the cursor row inside a window
// of avail terminal lines.
func (cp *CommentsPanel) viewList(width, avail int, focused bool) string {
	rows := cp.visibleRows()
	if len(rows) == 0 {
		pad := strings.Repeat("\n", avail)
		if cp.loaded {
			return navStyle.Render("No comments yet.") + pad
		}
		return navStyle.Render("Loading comments...") + pad
	}

	blocks := make([][]string, len(rows))
	cursorStart, cursorEnd, total := 0, 0, 0
	for i, row := range rows {
		blocks[i] = cp.renderRow(row, width, focused && i == cp.cursor)
		if i == cp.cursor {
			cursorStart = total
			cursorEnd = total + len(blocks[i])
		}
		total += len(blocks[i])
	}

	var lines []string
	for _, block := range blocks {
		lines = append(lines, block...)
	}

	if cursorStart < cp.scrollLine {
		cp.scrollLine = cursorStart
	}
	if cursorEnd > cp.scrollLine+avail {
		cp.scrollLine = cursorEnd - avail
	}
	if cp.scrollLine > len(lines)-avail {
		cp.scrollLine = len(lines) - avail
	}
	if cp.scrollLine < 0 {
		cp.scrollLine = 0
	}

	end := min(cp.scrollLine+avail, len(lines))
	window := lines[cp.scrollLine:end]

	var b strings.Builder
	for _, line := range window {
		b.WriteString(line + "\n")
	}
	for i := len(window); i < avail; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

// renderRow renders one comment. The shape is identical at every depth; only
// the indent changes.
func (cp *CommentsPanel) renderRow(row commentRow, width int, selected bool) []string {
	indent := strings.Repeat("  ", row.depth)
	marker := "  "
	if selected {
		marker = cursorStyle.Render("> ")
	}

	c := row.c
	ui := cp.nodes[c.ID]

	like := reactionStyle
	if c.Liked {
		like = reactedStyle
	}
	dislike := reactionStyle
	if c.Disliked {
		dislike = reactedStyle
	}

	head := marker + indent +
		usernameStyle.Render("@"+c.User) + dateStyle.Render(" · "+c.Date) + "  " +
		like.Render(fmt.Sprintf("▲ %d", c.LikeCount)) + reactionStyle.Render(" · ") +
		dislike.Render(fmt.Sprintf("▼ %d", c.DislikeCount))

	lines := []string{head}

	bodyIndent := "  " + indent
	bodyWidth := width - runewidth.StringWidth(bodyIndent) - 2
	if bodyWidth < 8 {
		bodyWidth = 8
	}
	for _, para := range c.Paragraphs() {
		if para == "" {
			lines = append(lines, "")
			continue
		}
		for _, wrapped := range wrapByWidth(para, bodyWidth) {
			lines = append(lines, bodyIndent+bodyStyle.Render(wrapped))
		}
	}

	if len(c.Replies) > 0 {
		label := fmt.Sprintf("Show Replies(%d)", len(c.Replies))
		if ui != nil && ui.repliesExpanded {
			label = "Hide Replies"
		}
		lines = append(lines, bodyIndent+affordanceStyle.Render(label))
	}

	if ui != nil && ui.replyFormOpen {
		if cp.editing && cp.editingID == c.ID {
			cp.input.SetWidth(min(bodyWidth, 72))
			for _, tl := range strings.Split(cp.input.View(), "\n") {
				lines = append(lines, bodyIndent+tl)
			}
		} else {
			draft := ui.replyDraft
			if strings.TrimSpace(draft) == "" {
				draft = navStyle.Render("(empty reply)")
			} else {
				draft = bodyStyle.Render(truncate(draft, bodyWidth))
			}
			lines = append(lines, bodyIndent+dateStyle.Render("reply: ")+draft)
		}
	}

	return lines
}

func (cp *CommentsPanel) viewPager(width int) string {
	if len(cp.snap.PageNumbers) < 2 {
		return ""
	}

	parts := make([]string, 0, len(cp.snap.PageNumbers))
	for _, p := range cp.snap.PageNumbers {
		label := fmt.Sprintf("%d", p)
		if p == cp.snap.CurrentPage {
			parts = append(parts, currentPageStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, pageStyle.Render(label))
		}
	}
	return truncate(strings.Join(parts, " "), width)
}

// wrapByWidth wraps text into lines no wider than w terminal cells.
func wrapByWidth(text string, w int) []string {
	if w < 1 {
		return []string{text}
	}

	var lines []string
	var line strings.Builder
	lineW := 0

	for _, word := range strings.Fields(text) {
		ww := runewidth.StringWidth(word)
		if lineW > 0 && lineW+1+ww > w {
			lines = append(lines, line.String())
			line.Reset()
			lineW = 0
		}
		if lineW > 0 {
			line.WriteString(" ")
			lineW++
		}
		line.WriteString(word)
		lineW += ww
	}
	if line.Len() > 0 || len(lines) == 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func truncate(s string, w int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, max(w, 1), "...")
}

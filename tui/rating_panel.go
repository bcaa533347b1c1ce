package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/kyeoh/margins/backend"
)

// Rating panel messages.
type (
	ratingMsg struct {
		epoch int
		state *backend.RatingState
		err   error
	}
	ratingSubmittedMsg struct {
		epoch int
		state *backend.RatingState
		err   error
	}
)

const ratingAxes = 4

var axisNames = [ratingAxes]string{"Story", "Writing", "World", "Characters"}

// RatingPanel owns the four-axis rating state for one item. Unlike the
// comments panel it never reloads after a mutation: the submit response
// already carries the new aggregate and replaces the state wholesale.
//
// Once the server says the viewer has rated, the form is gone for good;
// re-rating is not supported.
type RatingPanel struct {
	svc backend.Service
	log zerolog.Logger

	itemID int64
	epoch  int

	state  backend.RatingState
	loaded bool

	formOpen bool
	scores   [ratingAxes]int
	field    int
}

// NewRatingPanel creates a panel for the given item. Scores start at the
// form's midpoint, matching the input widget defaults.
func NewRatingPanel(svc backend.Service, itemID int64, log zerolog.Logger) *RatingPanel {
	return &RatingPanel{
		svc:    svc,
		log:    log.With().Str("panel", "rating").Logger(),
		itemID: itemID,
		scores: [ratingAxes]int{5, 5, 5, 5},
	}
}

// State returns the current rating aggregate.
func (rp *RatingPanel) State() backend.RatingState { return rp.state }

// Loaded reports whether the server state has arrived at least once.
func (rp *RatingPanel) Loaded() bool { return rp.loaded }

// Reset retargets the panel at a different item.
func (rp *RatingPanel) Reset(itemID int64) {
	rp.epoch++
	rp.itemID = itemID
	rp.state = backend.RatingState{}
	rp.loaded = false
	rp.formOpen = false
	rp.scores = [ratingAxes]int{5, 5, 5, 5}
	rp.field = 0
}

// Load fetches the current rating state for the item.
func (rp *RatingPanel) Load() tea.Cmd {
	epoch, itemID, svc := rp.epoch, rp.itemID, rp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		state, err := svc.LoadRating(ctx, itemID)
		return ratingMsg{epoch: epoch, state: state, err: err}
	}
}

// Submit sends the form's scores. Inert once the viewer already has a
// rating on file; there is no client-side re-rating path.
func (rp *RatingPanel) Submit() tea.Cmd {
	if rp.state.HasRated {
		return nil
	}

	scores := backend.RatingScores{
		Story:      rp.scores[0],
		Writing:    rp.scores[1],
		World:      rp.scores[2],
		Characters: rp.scores[3],
	}

	epoch, itemID, svc := rp.epoch, rp.itemID, rp.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		state, err := svc.SubmitRating(ctx, itemID, scores)
		return ratingSubmittedMsg{epoch: epoch, state: state, err: err}
	}
}

// Update handles panel messages and, while the panel has focus, key input.
func (rp *RatingPanel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ratingMsg:
		if msg.epoch != rp.epoch {
			return nil
		}
		if msg.err != nil {
			// Keep whatever we had; zeros read as "unrated" on screen.
			rp.log.Error().Err(msg.err).Msg("load rating failed")
			return nil
		}
		rp.state = *msg.state
		rp.loaded = true

	case ratingSubmittedMsg:
		if msg.epoch != rp.epoch {
			return nil
		}
		if msg.err != nil {
			// Form stays available for a retry.
			rp.log.Error().Err(msg.err).Msg("submit rating failed")
			return nil
		}
		rp.state = *msg.state
		rp.loaded = true
		rp.formOpen = false

	case tea.KeyMsg:
		return rp.updateKeys(msg)
	}

	return nil
}

func (rp *RatingPanel) updateKeys(msg tea.KeyMsg) tea.Cmd {
	if rp.state.HasRated {
		return nil
	}

	switch msg.String() {
	case "o":
		rp.formOpen = !rp.formOpen

	case "j", "down":
		if rp.formOpen {
			rp.field = (rp.field + 1) % ratingAxes
		}

	case "k", "up":
		if rp.formOpen {
			rp.field = (rp.field + ratingAxes - 1) % ratingAxes
		}

	case "h", "left":
		if rp.formOpen && rp.scores[rp.field] > 1 {
			rp.scores[rp.field]--
		}

	case "l", "right":
		if rp.formOpen && rp.scores[rp.field] < 10 {
			rp.scores[rp.field]++
		}

	case "enter":
		if rp.formOpen {
			return rp.Submit()
		}
	}

	return nil
}

// View renders the rating card.
func (rp *RatingPanel) View(width int, focused bool) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Rating") + "\n")

	for i, name := range axisNames {
		score := rp.axisScore(i)
		b.WriteString("  " + stars(score) + fmt.Sprintf(" %2d ", score) + dateStyle.Render(name) + "\n")
	}

	b.WriteString("  " + averageStyle.Render(fmt.Sprintf("%.1f", rp.state.Average)) +
		dateStyle.Render(fmt.Sprintf("  %d ratings", rp.state.Count)) + "\n")

	if rp.state.HasRated {
		return b.String() + navStyle.Render("  You rated this.")
	}

	if !rp.formOpen {
		return b.String() + affordanceStyle.Render("  o: rate this")
	}

	b.WriteString("\n")
	for i, name := range axisNames {
		marker := "  "
		style := dateStyle
		if focused && i == rp.field {
			marker = cursorStyle.Render("> ")
			style = fieldSelectedStyle
		}
		b.WriteString(marker + style.Render(fmt.Sprintf("%-10s", name)) + stars(rp.scores[i]) +
			fmt.Sprintf(" %2d", rp.scores[i]) + "\n")
	}
	b.WriteString(navStyle.Render("  h/l: adjust  j/k: field  enter: rate  o: close"))

	return b.String()
}

// axisScore is the display value for one axis, like the star widget: the
// aggregate per-axis mean, zero until known.
func (rp *RatingPanel) axisScore(i int) int {
	switch i {
	case 0:
		return rp.state.Story
	case 1:
		return rp.state.Writing
	case 2:
		return rp.state.World
	default:
		return rp.state.Characters
	}
}

func stars(score int) string {
	checked := max(min(score, 10), 0)
	return starCheckedStyle.Render(strings.Repeat("★", checked)) +
		starStyle.Render(strings.Repeat("☆", 10-checked))
}

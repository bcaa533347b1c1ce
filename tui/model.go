package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/kyeoh/margins/backend"
)

// state represents the app state
type state int

const (
	stateLoading state = iota
	stateBrowsing
	stateError
)

// focusArea is which panel key input goes to.
type focusArea int

const (
	focusComments focusArea = iota
	focusRating
)

// Model is the Bubble Tea model. It owns the two panels and routes their
// messages; the panels own all widget state themselves.
type Model struct {
	state state

	comments *CommentsPanel
	rating   *RatingPanel
	focus    focusArea

	width   int
	height  int
	spinner spinner.Model
	err     error

	title string
	log   zerolog.Logger
}

// NewModel creates the TUI model for one content page.
func NewModel(svc backend.Service, ref backend.PageRef, log zerolog.Logger) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		state:    stateLoading,
		comments: NewCommentsPanel(svc, ref, log),
		rating:   NewRatingPanel(svc, ref.ID, log),
		spinner:  s,
		title:    ref.String(),
		log:      log,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.comments.Load(1),
		m.rating.Load(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		cmd := m.comments.Update(msg)
		if m.state == stateLoading {
			if m.comments.Loaded() {
				m.state = stateBrowsing
			} else if msg.err != nil {
				m.state = stateError
				m.err = msg.err
			}
		}
		return m, cmd

	case commentPostedMsg, replyPostedMsg, reactedMsg:
		return m, m.comments.Update(msg)

	case ratingMsg, ratingSubmittedMsg:
		return m, m.rating.Update(msg)
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While a compose form has focus, everything except ctrl+c is typing.
	if m.state == stateBrowsing && m.comments.editing {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, m.comments.Update(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.state == stateBrowsing {
			if m.focus == focusComments {
				m.focus = focusRating
			} else {
				m.focus = focusComments
			}
		}
		return m, nil

	case "r":
		if m.state == stateError {
			m.state = stateLoading
			m.err = nil
			return m, tea.Batch(m.comments.Load(1), m.rating.Load())
		}
	}

	if m.state != stateBrowsing {
		return m, nil
	}
	if m.focus == focusRating {
		return m, m.rating.Update(msg)
	}
	return m, m.comments.Update(msg)
}

// View renders the UI
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return m.viewLoading()
	case stateError:
		return m.viewError()
	case stateBrowsing:
		return m.viewBrowsing()
	default:
		return ""
	}
}

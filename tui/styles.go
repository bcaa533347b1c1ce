package tui

import "github.com/charmbracelet/lipgloss"

var (
	usernameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	navStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	reactionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	reactedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	affordanceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	pageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	currentPageStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	starCheckedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("220"))

	starStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	averageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	fieldSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))
)

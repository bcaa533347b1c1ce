package tui

import "strings"

func (m Model) viewBrowsing() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	viewer := m.comments.Snapshot().Viewer
	who := navStyle.Render("read-only (no viewer)")
	if viewer != "" {
		who = navStyle.Render("signed in as ") + usernameStyle.Render("@"+viewer)
	}
	b.WriteString(titleStyle.Render("margins · "+m.title) + "  " + who + "\n\n")

	ratingView := m.rating.View(m.width, m.focus == focusRating)
	b.WriteString(ratingView + "\n\n")

	// Header (2) + rating card + blank (1) already used
	used := 2 + strings.Count(ratingView, "\n") + 2
	commentsHeight := m.height - used - 1
	if commentsHeight < 6 {
		commentsHeight = 6
	}
	b.WriteString(m.comments.View(m.width, commentsHeight, m.focus == focusComments) + "\n")

	b.WriteString(navStyle.Render("tab: switch panel  q: quit"))
	return b.String()
}

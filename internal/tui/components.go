package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderTabs draws the view switcher with the active view highlighted.
func renderTabs(active View) string {
	tabs := make([]string, 0, len(viewNames))
	for i, name := range viewNames {
		if View(i) == active {
			tabs = append(tabs, ActiveTabStyle.Render(name))
		} else {
			tabs = append(tabs, TabStyle.Render(name))
		}
	}
	return strings.Join(tabs, " ")
}

// renderCentered centers the provided content within the given width/height box.
func renderCentered(width, height int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}

func renderMuted(text string) string {
	return HintStyle.Render(text)
}

func renderStatus(kind StatusKind, text string) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[StatusInfo]
	}
	return style.Render(text)
}

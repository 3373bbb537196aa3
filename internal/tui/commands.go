package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type snapshotMsg struct{ snap Snapshot }

type tickMsg time.Time

type healthResetMsg struct{}

type reportRenderedMsg struct {
	content string
	err     error
}

func (a *App) refresh() tea.Cmd {
	src := a.source
	return func() tea.Msg {
		return snapshotMsg{snap: src.Snapshot()}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) resetHealth() tea.Cmd {
	src := a.source
	return func() tea.Msg {
		src.ResetProviders()
		return healthResetMsg{}
	}
}

func (a *App) renderReport() tea.Cmd {
	markdown := BuildReport(a.snapshot)
	r, err := a.getRenderer()
	return func() tea.Msg {
		if err != nil {
			return reportRenderedMsg{err: err}
		}
		out, err := r.Render(markdown)
		return reportRenderedMsg{content: out, err: err}
	}
}

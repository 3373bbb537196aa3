package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	NextView    key.Binding
	PrevView    key.Binding
	JumpView    key.Binding
	Report      key.Binding
	Back        key.Binding
	Refresh     key.Binding
	ResetHealth key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		NextView:    key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next view")),
		PrevView:    key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev view")),
		JumpView:    key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "jump to view")),
		Report:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "report")),
		Back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Refresh:     key.NewBinding(key.WithKeys("ctrl+r", "f5"), key.WithHelp("ctrl+r", "refresh")),
		ResetHealth: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset providers")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextView, k.ResetHealth, k.Report, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextView, k.PrevView, k.JumpView},
		{k.Report, k.Back, k.Refresh},
		{k.ResetHealth, k.Help, k.Quit},
	}
}

type KeyHandler struct {
	app  *App
	keys keyMap
}

func NewKeyHandler(app *App) *KeyHandler {
	return &KeyHandler{app: app, keys: defaultKeyMap()}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app

	switch {
	case key.Matches(msg, kh.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, kh.keys.ResetHealth):
		a.setStatus(StatusInfo, MsgRefreshing)
		return a, a.resetHealth()

	case key.Matches(msg, kh.keys.Refresh):
		a.setStatus(StatusInfo, MsgRefreshing)
		return a, a.refresh()

	case key.Matches(msg, kh.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil

	case key.Matches(msg, kh.keys.NextView):
		return kh.switchTo(a.view.next())

	case key.Matches(msg, kh.keys.PrevView):
		return kh.switchTo(a.view.prev())

	case key.Matches(msg, kh.keys.JumpView):
		return kh.switchTo(View(msg.String()[0] - '1'))

	case key.Matches(msg, kh.keys.Report):
		return kh.switchTo(ViewReport)

	case key.Matches(msg, kh.keys.Back):
		if a.view == ViewReport {
			return kh.switchTo(a.previousView)
		}
		return a, nil
	}

	return kh.delegate(msg)
}

func (kh *KeyHandler) switchTo(v View) (tea.Model, tea.Cmd) {
	a := kh.app
	a.setView(v)
	if v == ViewReport {
		a.setStatus(StatusInfo, MsgRenderingView)
		return a, a.renderReport()
	}
	return a, nil
}

// delegate passes navigation keys to the visible component.
func (kh *KeyHandler) delegate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	var cmd tea.Cmd
	switch a.view {
	case ViewIdentities:
		a.identities, cmd = a.identities.Update(msg)
	case ViewProviders:
		a.providers, cmd = a.providers.Update(msg)
	case ViewPosts:
		a.posts, cmd = a.posts.Update(msg)
	case ViewReport:
		a.report, cmd = a.report.Update(msg)
	}
	return a, cmd
}

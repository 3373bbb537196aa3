// Package tui is the live monitor dashboard and the markdown status report.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefresh is how often the monitor re-reads state.
const DefaultRefresh = 2 * time.Second

// Options tune the monitor.
type Options struct {
	Refresh time.Duration
	// GlamourStyle forces a glamour style ("dark", "light", "notty");
	// empty detects it from the terminal.
	GlamourStyle string
}

type App struct {
	source     Source
	keyHandler *KeyHandler
	opts       Options

	identities table.Model
	providers  table.Model
	posts      table.Model
	report     viewport.Model
	help       help.Model

	view         View
	previousView View
	snapshot     Snapshot
	status       string
	statusKind   StatusKind
	width        int
	height       int

	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
}

func NewApp(src Source, opts Options) *App {
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(BlueHourColor).Bold(true)
	styles.Selected = SelectedRowStyle

	newTable := func(cols []table.Column, focused bool) table.Model {
		t := table.New(table.WithColumns(cols), table.WithFocused(focused))
		t.SetStyles(styles)
		return t
	}

	app := &App{
		source:     src,
		opts:       opts,
		identities: newTable(identityColumns, true),
		providers:  newTable(providerColumns, false),
		posts:      newTable(postColumns, false),
		report:     viewport.New(0, 0),
		help:       help.New(),
		view:       ViewIdentities,
		status:     MsgRefreshing,
	}
	app.keyHandler = NewKeyHandler(app)
	return app
}

// Run shows the monitor until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, opts Options) error {
	_, err := tea.NewProgram(NewApp(src, opts), tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	w := wrapWidth(a.width)
	if a.glamourRenderer == nil || abs(a.rendererWidth-w) > 10 {
		r, err := newRenderer(a.width, a.opts.GlamourStyle)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = w
	}
	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.refresh(), a.tick())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		if a.view == ViewReport {
			return a, a.renderReport()
		}
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case snapshotMsg:
		a.applySnapshot(msg.snap)
		if a.view == ViewReport {
			return a, a.renderReport()
		}
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.refresh(), a.tick())

	case healthResetMsg:
		a.setStatus(StatusSuccess, MsgHealthReset)
		return a, a.refresh()

	case reportRenderedMsg:
		if msg.err != nil {
			a.setStatus(StatusError, wrapErr("rendering report", msg.err).Error())
			return a, nil
		}
		offset := a.report.YOffset
		a.report.SetContent(msg.content)
		a.report.SetYOffset(offset)
		return a, nil
	}
	return a, nil
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	a.help.Width = width

	bodyHeight := max(height-5, 3)
	for _, t := range []*table.Model{&a.identities, &a.providers, &a.posts} {
		t.SetWidth(width)
		t.SetHeight(bodyHeight)
	}
	a.report.Width = width
	a.report.Height = bodyHeight
}

func (a *App) applySnapshot(snap Snapshot) {
	a.snapshot = snap
	a.identities.SetRows(identityRows(snap))
	a.providers.SetRows(providerRows(snap))
	a.posts.SetRows(postRows(snap))

	if snap.Err != nil {
		a.setStatus(StatusWarn, oneLine(snap.Err.Error()))
		return
	}
	if a.statusKind == StatusSuccess && a.status == MsgHealthReset {
		// keep the confirmation visible for one refresh
		a.statusKind = StatusInfo
		return
	}
	available := 0
	for _, p := range snap.Providers {
		if p.Available {
			available++
		}
	}
	a.setStatus(StatusInfo, MsgRefreshSummary(len(snap.Identities), available, len(snap.Providers), snap.Taken))
}

func (a *App) setStatus(kind StatusKind, text string) {
	a.statusKind = kind
	a.status = text
}

// setView switches views and moves focus to the visible table.
func (a *App) setView(v View) {
	if v == a.view {
		return
	}
	a.previousView = a.view
	a.view = v

	a.identities.Blur()
	a.providers.Blur()
	a.posts.Blur()
	switch v {
	case ViewIdentities:
		a.identities.Focus()
	case ViewProviders:
		a.providers.Focus()
	case ViewPosts:
		a.posts.Focus()
	}
}

func (a *App) View() string {
	var body string
	bodyHeight := max(a.height-5, 3)

	switch a.view {
	case ViewIdentities:
		if len(a.snapshot.Identities) == 0 {
			body = renderCentered(a.width, bodyHeight, GetCompactBanner(MsgNoIdentities))
		} else {
			body = a.identities.View()
		}
	case ViewProviders:
		body = a.providers.View()
	case ViewPosts:
		if len(a.snapshot.Posts) == 0 {
			body = renderCentered(a.width, bodyHeight, renderMuted(MsgNoPostsYet))
		} else {
			body = a.posts.View()
		}
	case ViewReport:
		body = a.report.View()
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, LogoStyle.Render(CompactLogo), " ", renderTabs(a.view))
	status := StatusBarStyle.Render(renderStatus(a.statusKind, truncateEnd(a.status, max(a.width-2, 10))))

	return strings.Join([]string{
		header,
		ContentWrapper(a.width, bodyHeight).Render(body),
		status,
		a.help.View(a.keyHandler.keys),
	}, "\n")
}

var identityColumns = []table.Column{
	{Title: "Identity", Width: 24},
	{Title: "Local", Width: 6},
	{Title: "Slots", Width: 20},
	{Title: "Today", Width: 5},
	{Title: "Total", Width: 6},
	{Title: "Next slot", Width: 17},
	{Title: "Due", Width: 4},
}

var providerColumns = []table.Column{
	{Title: "Provider", Width: 14},
	{Title: "Weight", Width: 6},
	{Title: "State", Width: 6},
	{Title: "Errors", Width: 6},
	{Title: "Limited", Width: 7},
	{Title: "Last success", Width: 17},
	{Title: "Hold", Width: 8},
}

var postColumns = []table.Column{
	{Title: "Published", Width: 17},
	{Title: "Identity", Width: 18},
	{Title: "Topic", Width: 16},
	{Title: "Content", Width: 18},
	{Title: "Caption", Width: 40},
}

func identityRows(snap Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Identities))
	for _, st := range snap.Identities {
		rows = append(rows, table.Row{
			st.Identity,
			st.LocalTime.Format("15:04"),
			strings.Join(st.Slots, " "),
			fmt.Sprint(st.TodayPosts),
			fmt.Sprint(st.TotalPosts),
			formatSlot(st.NextSlot.Date, st.NextSlot.Label),
			yesNo(st.CanPostNow),
		})
	}
	return rows
}

func providerRows(snap Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Providers))
	for _, p := range snap.Providers {
		state := "ok"
		if !p.Available {
			state = "down"
		}
		hold := "-"
		if rem := p.HoldUntil.Sub(snap.Taken); !p.HoldUntil.IsZero() && rem > 0 {
			hold = rem.Round(time.Second).String()
		}
		rows = append(rows, table.Row{
			p.Name,
			fmt.Sprintf("%.2f", p.Weight),
			state,
			fmt.Sprint(p.Errors),
			yesNo(p.RateLimited),
			formatTime(p.LastSuccess),
			hold,
		})
	}
	return rows
}

func postRows(snap Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Posts))
	for _, p := range snap.Posts {
		rows = append(rows, table.Row{
			formatTime(p.PublishedAt),
			p.Identity,
			p.Topic,
			truncateMiddle(p.Provider+":"+p.ContentID, 18),
			truncateEnd(oneLine(p.Caption), 40),
		})
	}
	return rows
}

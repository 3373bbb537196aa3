package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

const reportTimeLayout = "2006-01-02 15:04"

// BuildReport renders a snapshot as markdown.
func BuildReport(snap Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s status\n\n", AppName)
	fmt.Fprintf(&b, "_Generated %s_\n\n", snap.Taken.Format(reportTimeLayout+" MST"))

	b.WriteString("## Identities\n\n")
	if len(snap.Identities) == 0 {
		b.WriteString("No identities configured.\n\n")
	} else {
		b.WriteString("| Identity | Local time | Slots | Today | Total | Next slot | Can post |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, st := range snap.Identities {
			fmt.Fprintf(&b, "| %s | %s (%s) | %s | %d | %d | %s | %s |\n",
				st.Identity,
				st.LocalTime.Format("15:04"), st.Timezone,
				strings.Join(st.Slots, ", "),
				st.TodayPosts, st.TotalPosts,
				formatSlot(st.NextSlot.Date, st.NextSlot.Label),
				yesNo(st.CanPostNow))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Providers\n\n")
	if len(snap.Providers) == 0 {
		b.WriteString("No providers registered.\n\n")
	} else {
		b.WriteString("| Provider | Weight | Available | Errors | Rate limited | Last success |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		var available []string
		for _, p := range snap.Providers {
			fmt.Fprintf(&b, "| %s | %.2f | %s | %d | %s | %s |\n",
				p.Name, p.Weight, yesNo(p.Available), p.Errors, yesNo(p.RateLimited), formatTime(p.LastSuccess))
			if p.Available {
				available = append(available, p.Name)
			}
		}
		if len(available) == 0 {
			b.WriteString("\n**Available:** none (the next fetch resets all providers)\n\n")
		} else {
			fmt.Fprintf(&b, "\n**Available:** %s\n\n", strings.Join(available, ", "))
		}
	}

	if len(snap.Posts) > 0 {
		b.WriteString("## Recent posts\n\n")
		for _, p := range snap.Posts {
			fmt.Fprintf(&b, "- **%s** `%s` %s via %s:%s",
				formatTime(p.PublishedAt), p.Identity, p.Topic, p.Provider, p.ContentID)
			if p.Caption != "" {
				fmt.Fprintf(&b, ": %s", truncateEnd(oneLine(p.Caption), 80))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if snap.Err != nil {
		fmt.Fprintf(&b, "> **Errors:** %s\n", oneLine(snap.Err.Error()))
	}
	return b.String()
}

// RenderReport renders markdown for a terminal of the given width. An empty
// style picks one from the terminal background.
func RenderReport(markdown string, width int, style string) (string, error) {
	r, err := newRenderer(width, style)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

func newRenderer(width int, style string) (*glamour.TermRenderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wrapWidth(width))}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	return glamour.NewTermRenderer(opts...)
}

// wrapWidth keeps rendered text readable on very wide and very narrow
// terminals.
func wrapWidth(width int) int {
	w := (width * 9) / 10
	if w > 120 {
		w = 120
	}
	if w < 40 {
		w = 40
	}
	if width > 0 && width < 50 {
		w = max(width-4, 20)
	}
	return w
}

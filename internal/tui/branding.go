package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const AppName = "lensbot"

// LogoLines is the block-letter logo shown in the banner and empty views.
var LogoLines = []string{
	"██      ███████ ███    ██ ███████ ██████   ██████  ████████",
	"██      ██      ████   ██ ██      ██   ██ ██    ██    ██",
	"██      █████   ██ ██  ██ ███████ ██████  ██    ██    ██",
	"██      ██      ██  ██ ██      ██ ██   ██ ██    ██    ██",
	"███████ ███████ ██   ████ ███████ ██████   ██████     ██",
}

const CompactLogo = "lensbot ›"

// Palette runs from golden hour to blue hour.
var (
	GoldenColor   = lipgloss.Color("#F4A259")
	AmberColor    = lipgloss.Color("#F7C873")
	DuskColor     = lipgloss.Color("#BC4B51")
	BlueHourColor = lipgloss.Color("#5B8E7D")
	NightColor    = lipgloss.Color("#1B2430")
	MutedColor    = lipgloss.Color("#8D99AE")

	WarnColor    = lipgloss.Color("#F7C873")
	ErrorColor   = lipgloss.Color("#E5484D")
	SuccessColor = lipgloss.Color("#46A758")
)

// bannerGradient colors the banner top to bottom.
var bannerGradient = []lipgloss.Color{AmberColor, GoldenColor, DuskColor, BlueHourColor, BlueHourColor, MutedColor}

var (
	LogoStyle = lipgloss.NewStyle().Foreground(GoldenColor).Bold(true)

	TabStyle       = lipgloss.NewStyle().Foreground(MutedColor).Padding(0, 1)
	ActiveTabStyle = TabStyle.Foreground(NightColor).Background(GoldenColor).Bold(true)

	SelectedRowStyle = lipgloss.NewStyle().Foreground(NightColor).Background(AmberColor)

	StatusBarStyle = lipgloss.NewStyle().Padding(0, 1)
	HintStyle      = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
)

// statusStyles maps a status severity to its rendering.
var statusStyles = map[StatusKind]lipgloss.Style{
	StatusInfo:    lipgloss.NewStyle().Foreground(MutedColor),
	StatusSuccess: lipgloss.NewStyle().Foreground(SuccessColor),
	StatusWarn:    lipgloss.NewStyle().Foreground(WarnColor),
	StatusError:   lipgloss.NewStyle().Foreground(ErrorColor).Bold(true),
}

// ContentWrapper pins the body to a fixed box so the status line never moves.
func ContentWrapper(width, height int) lipgloss.Style {
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height)
}

// GetCompactBanner is the logo with a hint underneath, for empty views.
func GetCompactBanner(message string) string {
	logo := LogoStyle.Render(strings.Join(LogoLines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Center, logo, "", HintStyle.Render(message))
}

// Banner returns the startup banner with a version tagline.
func Banner(version string) string {
	tagline := "Photo posting bot"
	if version != "" && version != "dev" {
		if !strings.HasPrefix(strings.ToLower(version), "v") {
			version = "v" + version
		}
		tagline += " " + version
	}

	rendered := make([]string, 0, len(LogoLines)+2)
	for i, line := range LogoLines {
		rendered = append(rendered, lipgloss.NewStyle().Foreground(bannerGradient[i]).Bold(true).Render(line))
	}
	rendered = append(rendered, "", lipgloss.NewStyle().Foreground(bannerGradient[len(LogoLines)]).Render(tagline))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BlueHourColor).
		Padding(1, 3).
		MarginTop(1).
		Render(lipgloss.JoinVertical(lipgloss.Center, rendered...))
}

func ShowBanner(version string) {
	fmt.Println(Banner(version))
}

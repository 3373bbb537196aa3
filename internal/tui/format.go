package tui

import (
	"fmt"
	"strings"
	"time"
)

func wrapErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// truncateEnd cuts s to limit runes, ending in an ellipsis when shortened.
func truncateEnd(s string, limit int) string {
	r := []rune(s)
	switch {
	case limit <= 0:
		return ""
	case len(r) <= limit:
		return s
	case limit == 1:
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// truncateMiddle cuts s to limit runes, keeping both ends.
func truncateMiddle(s string, limit int) string {
	r := []rune(s)
	switch {
	case limit <= 0:
		return ""
	case len(r) <= limit:
		return s
	case limit == 1:
		return "…"
	}
	left := (limit - 1) / 2
	right := limit - 1 - left
	return string(r[:left]) + "…" + string(r[len(r)-right:])
}

func formatSlot(date, label string) string {
	if date == "" {
		return "none"
	}
	return date + " " + label
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(reportTimeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

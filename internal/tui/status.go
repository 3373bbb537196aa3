package tui

import (
	"fmt"
	"time"
)

// StatusKind is the severity of the status line.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

// Canonical short status messages used across the monitor.
const (
	MsgRefreshing    = "Refreshing…"
	MsgHealthReset   = "Provider health reset"
	MsgNoIdentities  = "No identities configured"
	MsgNoPostsYet    = "No posts yet"
	MsgRenderingView = "Rendering report…"
)

func MsgRefreshSummary(identities, available, providers int, at time.Time) string {
	return fmt.Sprintf("%d identities • %d/%d providers available • updated %s",
		identities, available, providers, at.Format("15:04:05"))
}

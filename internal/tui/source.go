package tui

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/health"
	"github.com/pders01/lensbot/internal/schedule"
	"github.com/pders01/lensbot/internal/storage"
)

// Snapshot is everything the monitor and the status report show.
type Snapshot struct {
	Taken      time.Time
	Identities []schedule.Stats
	Providers  []health.Status
	Posts      []*storage.PostRecord
	Err        error
}

// Source produces snapshots and carries out operator actions.
type Source interface {
	Snapshot() Snapshot
	ResetProviders()
}

type ScheduleView interface {
	Identities() []string
	Stats(id string) (schedule.Stats, error)
}

type HealthView interface {
	Snapshot() []health.Status
	ResetAll()
}

type PostLister interface {
	GetPosts(identity string, limit int) ([]*storage.PostRecord, error)
}

// TrackerSource reads live state from the running components.
type TrackerSource struct {
	Schedule  ScheduleView
	Health    HealthView
	Posts     PostLister // optional
	Clock     clockwork.Clock
	PostLimit int
}

func (s *TrackerSource) Snapshot() Snapshot {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	snap := Snapshot{Taken: clock.Now()}

	var errs []error
	for _, id := range s.Schedule.Identities() {
		st, err := s.Schedule.Stats(id)
		if err != nil {
			errs = append(errs, wrapErr(id, err))
			continue
		}
		snap.Identities = append(snap.Identities, st)
	}
	if s.Health != nil {
		snap.Providers = s.Health.Snapshot()
	}
	if s.Posts != nil {
		limit := s.PostLimit
		if limit <= 0 {
			limit = 20
		}
		posts, err := s.Posts.GetPosts("", limit)
		if err != nil {
			errs = append(errs, wrapErr("loading posts", err))
		}
		snap.Posts = posts
	}
	snap.Err = errors.Join(errs...)
	return snap
}

func (s *TrackerSource) ResetProviders() {
	if s.Health != nil {
		s.Health.ResetAll()
	}
}

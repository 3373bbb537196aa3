package sourcing

import (
	"context"
	"fmt"

	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/dedup"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/provider"
)

// DefaultOversample is how many candidates each provider page asks for
// per wanted candidate, leaving room for the identity filter.
const DefaultOversample = 3

// Sourcer narrows pool results to what one identity has never posted.
type Sourcer struct {
	pool       *Pool
	tracker    *dedup.Tracker
	oversample int
	metrics    *metrics.Metrics
}

func NewSourcer(pool *Pool, tracker *dedup.Tracker, oversample int, m *metrics.Metrics) *Sourcer {
	if oversample <= 0 {
		oversample = DefaultOversample
	}
	return &Sourcer{pool: pool, tracker: tracker, oversample: oversample, metrics: m}
}

// Select returns up to count candidates identity has not used. Only those
// are claimed globally. If nothing came back because the identity had used
// everything offered, its usage is reset once and the fetch repeated, so a
// small inventory cycles instead of stalling.
func (s *Sourcer) Select(ctx context.Context, identity, topic string, count int, preferred string) ([]provider.Candidate, error) {
	scope := dedup.IdentityScope(identity)
	dropped := false
	keep := func(cs []provider.Candidate) ([]provider.Candidate, error) {
		fresh, err := s.tracker.UnusedSubset(scope, cs)
		if err != nil {
			return nil, fmt.Errorf("filtering for %s: %w", identity, err)
		}
		if len(fresh) < len(cs) {
			dropped = true
		}
		return fresh, nil
	}

	got, err := s.pool.FetchFor(ctx, topic, count, preferred, s.oversample, keep)
	if err != nil {
		return nil, err
	}
	if len(got) > 0 || !dropped {
		return got, nil
	}

	debuglog.WithFields(debuglog.Fields{"identity": identity}).
		Infof("every candidate offered was already used, resetting usage")
	if err := s.tracker.ResetScope(scope); err != nil {
		return nil, err
	}
	s.metrics.IdentityReset(identity)
	return s.pool.FetchFor(ctx, topic, count, preferred, s.oversample, keep)
}

// Commit records that identity published cs.
func (s *Sourcer) Commit(identity string, cs ...provider.Candidate) error {
	return s.tracker.MarkUsed(dedup.IdentityScope(identity), cs...)
}

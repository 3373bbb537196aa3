// Package sourcing picks content from the provider pool for a topic while
// tolerating provider outages and rate limits.
package sourcing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/dedup"
	"github.com/pders01/lensbot/internal/health"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/provider"
)

const (
	DefaultMaxAttempts = 6
	DefaultMaxPage     = 5
	DefaultMaxPerPage  = 20
	DefaultBackoffCap  = 300 * time.Second
)

// PoolOptions tunes a Pool. Zero values take the defaults above.
type PoolOptions struct {
	MaxAttempts int
	MaxPage     int
	MaxPerPage  int
	BackoffCap  time.Duration
	// Rand drives provider and page selection. Seed it in tests.
	Rand    *rand.Rand
	Metrics *metrics.Metrics
}

// Pool fetches fresh candidates from weighted providers. It is safe for
// concurrent use by every identity's runner.
type Pool struct {
	providers *provider.Registry
	health    *health.Registry
	tracker   *dedup.Tracker
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	opts      PoolOptions

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewPool(providers *provider.Registry, h *health.Registry, tracker *dedup.Tracker, clock clockwork.Clock, opts PoolOptions) *Pool {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxPage <= 0 {
		opts.MaxPage = DefaultMaxPage
	}
	if opts.MaxPerPage <= 0 {
		opts.MaxPerPage = DefaultMaxPerPage
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Pool{
		providers: providers,
		health:    h,
		tracker:   tracker,
		clock:     clock,
		metrics:   opts.Metrics,
		opts:      opts,
		rng:       rng,
	}
}

// Filter narrows a provider page before any of it is claimed.
type Filter func([]provider.Candidate) ([]provider.Candidate, error)

// Fetch returns up to count candidates for topic that no identity received
// within the global retention window. A short or empty result is not an
// error; the caller decides what to do with it.
func (p *Pool) Fetch(ctx context.Context, topic string, count int, preferred string) []provider.Candidate {
	out, _ := p.FetchFor(ctx, topic, count, preferred, 2, nil)
	return out
}

// FetchFor is Fetch with keep applied to every page ahead of the global
// claim, so candidates keep drops stay free for other identities. Each page
// asks for oversample times the number still needed. An error from keep
// ends the fetch.
func (p *Pool) FetchFor(ctx context.Context, topic string, count int, preferred string, oversample int, keep Filter) ([]provider.Candidate, error) {
	var out []provider.Candidate
	oversample = max(oversample, 1)
	attempts := 0
	log := debuglog.WithFields(debuglog.Fields{"topic": topic})

	for attempts < p.opts.MaxAttempts && len(out) < count {
		if ctx.Err() != nil {
			break
		}
		attempts++

		name := p.pick(preferred)
		prov, ok := p.providers.Get(name)
		if !ok {
			log.Errorf("no providers configured")
			break
		}
		plog := log.With("provider", name)

		if err := p.waitForHold(ctx, name); err != nil {
			break
		}

		needed := count - len(out)
		perPage := min(needed*oversample, p.opts.MaxPerPage)
		page := 1 + p.intN(p.opts.MaxPage)

		res := p.query(ctx, prov, topic, perPage, page)
		switch res.Failure {
		case provider.FailureNone:
			p.health.RecordSuccess(name, p.clock.Now())
			kept := res.Candidates
			if keep != nil {
				var err error
				if kept, err = keep(kept); err != nil {
					p.metrics.ObserveFetchAttempts(attempts)
					return out, err
				}
			}
			fresh := p.tracker.ClaimUnused(kept, needed)
			out = append(out, fresh...)
			plog.Debugf("attempt %d: %d returned, %d kept, %d fresh", attempts, len(res.Candidates), len(kept), len(fresh))
		case provider.FailureRateLimited:
			n := p.health.RecordFailure(name, true)
			wait := p.backoff(n, res.RetryAfter)
			p.health.Hold(name, p.clock.Now().Add(wait))
			plog.Warnf("rate limited (%d consecutive), holding for %s", n, wait)
		case provider.FailureTransient:
			n := p.health.RecordFailure(name, false)
			plog.Warnf("transient failure (%d consecutive): %v", n, res.Err)
		case provider.FailureThrottled:
			plog.Debugf("local quota exhausted, skipping")
		}
		p.metrics.SetProviderAvailable(name, p.health.IsAvailable(name))
	}

	p.metrics.ObserveFetchAttempts(attempts)
	if len(out) < count {
		log.Infof("fetched %d of %d candidates in %d attempts", len(out), count, attempts)
	}
	return out, nil
}

// query runs Search and falls back to Listing on the same provider when
// Search fails transiently or comes back empty.
func (p *Pool) query(ctx context.Context, prov provider.Provider, topic string, perPage, page int) provider.Result {
	res := prov.Search(ctx, topic, perPage, page)
	p.metrics.ProviderCall(prov.Name(), "search", res.Failure.String())

	fallback := res.Failure == provider.FailureTransient || (res.OK() && len(res.Candidates) == 0)
	if !fallback || ctx.Err() != nil {
		return res
	}

	listing := prov.Listing(ctx, topic, perPage, page)
	p.metrics.ProviderCall(prov.Name(), "listing", listing.Failure.String())
	return listing
}

// pick chooses a provider by static weight among the available ones. When
// none is available every provider is reset and considered again. Providers
// still inside a backoff hold are passed over while any other is ready; if
// all are held the one whose hold ends first is returned.
func (p *Pool) pick(preferred string) string {
	available := p.health.Available()
	if len(available) == 0 {
		debuglog.Warnf("no provider available, resetting provider health")
		p.health.ResetAll()
		available = p.health.Available()
	}
	if len(available) == 0 {
		return ""
	}

	ready, soonest := p.ready(available)
	if len(ready) == 0 {
		return soonest
	}
	available = ready

	if preferred != "" {
		for _, name := range available {
			if name == preferred {
				return name
			}
		}
	}

	return p.weighted(available)
}

// ready splits names into those free to query now and, among the held
// ones, the name whose hold expires first.
func (p *Pool) ready(names []string) ([]string, string) {
	now := p.clock.Now()
	var (
		out     []string
		soonest string
		least   time.Duration
	)
	for _, name := range names {
		d := p.health.HoldRemaining(name, now)
		if d <= 0 {
			out = append(out, name)
			continue
		}
		if soonest == "" || d < least {
			soonest, least = name, d
		}
	}
	return out, soonest
}

func (p *Pool) weighted(names []string) string {
	total := 0.0
	for _, name := range names {
		total += max(p.providers.Weight(name), 0)
	}

	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	if total <= 0 {
		return names[p.rng.IntN(len(names))]
	}
	r := p.rng.Float64() * total
	for _, name := range names {
		r -= max(p.providers.Weight(name), 0)
		if r < 0 {
			return name
		}
	}
	return names[len(names)-1]
}

func (p *Pool) intN(n int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.IntN(n)
}

// backoff is min(2^n seconds, cap), stretched to the provider's own
// Retry-After when that is longer but never past the cap.
func (p *Pool) backoff(consecutive int, retryAfter time.Duration) time.Duration {
	wait := p.opts.BackoffCap
	if consecutive < 32 {
		if d := time.Duration(1<<uint(consecutive)) * time.Second; d < wait {
			wait = d
		}
	}
	if retryAfter > wait {
		wait = min(retryAfter, p.opts.BackoffCap)
	}
	return wait
}

func (p *Pool) waitForHold(ctx context.Context, name string) error {
	d := p.health.HoldRemaining(name, p.clock.Now())
	if d <= 0 {
		return nil
	}
	debuglog.WithFields(debuglog.Fields{"provider": name}).Debugf("waiting %s for backoff", d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

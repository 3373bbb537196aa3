// Package health tracks the availability of media providers. State is held
// in atomics because every identity's runner reads it on every attempt.
package health

import (
	"sort"
	"sync/atomic"
	"time"
)

// DefaultErrorThreshold is the number of consecutive errors a provider may
// accumulate before it is considered unavailable.
const DefaultErrorThreshold = 5

type providerState struct {
	name        string
	weight      float64
	errors      atomic.Int64
	rateLimited atomic.Bool
	lastSuccess atomic.Int64 // unix nanos, 0 when never
	holdUntil   atomic.Int64 // unix nanos, 0 when no hold
}

// Status is a point-in-time view of one provider.
type Status struct {
	Name        string
	Weight      float64
	Errors      int
	RateLimited bool
	Available   bool
	LastSuccess time.Time
	HoldUntil   time.Time
}

// Registry holds health for a fixed set of providers. The set is decided at
// construction; names outside it are ignored.
type Registry struct {
	threshold int64
	order     []string
	providers map[string]*providerState
}

// Provider describes a registry member.
type Provider struct {
	Name   string
	Weight float64
}

func NewRegistry(threshold int, providers ...Provider) *Registry {
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	r := &Registry{
		threshold: int64(threshold),
		providers: make(map[string]*providerState, len(providers)),
	}
	for _, p := range providers {
		if _, dup := r.providers[p.Name]; dup {
			continue
		}
		r.providers[p.Name] = &providerState{name: p.Name, weight: p.Weight}
		r.order = append(r.order, p.Name)
	}
	return r
}

// RecordSuccess clears the error count and stamps the last success. A
// rate-limit flag stays set until ResetAll.
func (r *Registry) RecordSuccess(name string, at time.Time) {
	p, ok := r.providers[name]
	if !ok {
		return
	}
	p.errors.Store(0)
	p.lastSuccess.Store(at.UnixNano())
}

// RecordFailure increments the consecutive error count and returns it.
func (r *Registry) RecordFailure(name string, isRateLimit bool) int {
	p, ok := r.providers[name]
	if !ok {
		return 0
	}
	n := p.errors.Add(1)
	if isRateLimit {
		p.rateLimited.Store(true)
	}
	return int(n)
}

// IsAvailable is false for unknown names, rate-limited providers and
// providers past the error threshold.
func (r *Registry) IsAvailable(name string) bool {
	p, ok := r.providers[name]
	if !ok {
		return false
	}
	return r.available(p)
}

func (r *Registry) available(p *providerState) bool {
	return !p.rateLimited.Load() && p.errors.Load() <= r.threshold
}

// ResetAll clears every error count and rate-limit flag. Pending backoff
// holds survive so a reset never hammers a provider that asked us to wait.
func (r *Registry) ResetAll() {
	for _, p := range r.providers {
		p.errors.Store(0)
		p.rateLimited.Store(false)
	}
}

// Hold marks name as not to be queried before until.
func (r *Registry) Hold(name string, until time.Time) {
	if p, ok := r.providers[name]; ok {
		p.holdUntil.Store(until.UnixNano())
	}
}

// HoldRemaining returns how long callers must wait before querying name.
func (r *Registry) HoldRemaining(name string, now time.Time) time.Duration {
	p, ok := r.providers[name]
	if !ok {
		return 0
	}
	until := p.holdUntil.Load()
	if until == 0 {
		return 0
	}
	if d := time.Duration(until - now.UnixNano()); d > 0 {
		return d
	}
	return 0
}

// Available returns the currently available providers in registration order.
func (r *Registry) Available() []string {
	var out []string
	for _, name := range r.order {
		if r.available(r.providers[name]) {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Weight returns the static weight of name.
func (r *Registry) Weight(name string) float64 {
	if p, ok := r.providers[name]; ok {
		return p.weight
	}
	return 0
}

// Snapshot returns every provider's status sorted by name.
func (r *Registry) Snapshot() []Status {
	out := make([]Status, 0, len(r.providers))
	for _, p := range r.providers {
		s := Status{
			Name:        p.name,
			Weight:      p.weight,
			Errors:      int(p.errors.Load()),
			RateLimited: p.rateLimited.Load(),
			Available:   r.available(p),
		}
		if ns := p.lastSuccess.Load(); ns != 0 {
			s.LastSuccess = time.Unix(0, ns)
		}
		if ns := p.holdUntil.Load(); ns != 0 {
			s.HoldUntil = time.Unix(0, ns)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

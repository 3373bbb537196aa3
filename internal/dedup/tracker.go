// Package dedup remembers which candidates were already used, both across
// every identity for a bounded window and per identity for good.
package dedup

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/provider"
)

// DefaultGlobalRetention bounds how long a candidate stays blocked for
// every identity.
const DefaultGlobalRetention = 24 * time.Hour

// Scope selects which usage set an operation applies to.
type Scope string

// GlobalScope is shared by all identities and lives in memory only.
const GlobalScope Scope = "global"

const identityPrefix = "identity:"

// IdentityScope is the persistent usage set of one identity.
func IdentityScope(id string) Scope {
	return Scope(identityPrefix + id)
}

// Identity returns the identity of an identity scope.
func (s Scope) Identity() (string, bool) {
	id, ok := strings.CutPrefix(string(s), identityPrefix)
	return id, ok && id != ""
}

// UsageStore persists identity-scoped usage.
type UsageStore interface {
	IsUsed(identity, key string) (bool, error)
	MarkUsed(identity string, at time.Time, keys ...string) error
	ResetUsage(identity string) error
	UsageCount(identity string) (int, error)
}

// Tracker answers "was this candidate used" for a scope. A candidate counts
// as used if either its provider:id key or its asset URL was recorded.
type Tracker struct {
	store     UsageStore
	clock     clockwork.Clock
	retention time.Duration

	mu     sync.Mutex
	global map[string]time.Time
}

func NewTracker(store UsageStore, clock clockwork.Clock, retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultGlobalRetention
	}
	return &Tracker{
		store:     store,
		clock:     clock,
		retention: retention,
		global:    make(map[string]time.Time),
	}
}

func candidateKeys(c provider.Candidate) []string {
	if c.URL == "" {
		return []string{c.Key()}
	}
	return []string{c.Key(), c.URL}
}

// purgeLocked drops global entries older than the retention window.
func (t *Tracker) purgeLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for k, at := range t.global {
		if at.Before(cutoff) {
			delete(t.global, k)
		}
	}
}

func (t *Tracker) IsUsed(scope Scope, c provider.Candidate) (bool, error) {
	if scope == GlobalScope {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.purgeLocked(t.clock.Now())
		return t.usedGlobalLocked(c), nil
	}

	identity, ok := scope.Identity()
	if !ok {
		return false, fmt.Errorf("invalid scope %q", scope)
	}
	for _, k := range candidateKeys(c) {
		used, err := t.store.IsUsed(identity, k)
		if err != nil {
			return false, fmt.Errorf("checking usage for %s: %w", identity, err)
		}
		if used {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tracker) usedGlobalLocked(c provider.Candidate) bool {
	for _, k := range candidateKeys(c) {
		if _, ok := t.global[k]; ok {
			return true
		}
	}
	return false
}

// MarkUsed records candidates in scope.
func (t *Tracker) MarkUsed(scope Scope, cs ...provider.Candidate) error {
	now := t.clock.Now()
	if scope == GlobalScope {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, c := range cs {
			for _, k := range candidateKeys(c) {
				t.global[k] = now
			}
		}
		return nil
	}

	identity, ok := scope.Identity()
	if !ok {
		return fmt.Errorf("invalid scope %q", scope)
	}
	var keys []string
	for _, c := range cs {
		keys = append(keys, candidateKeys(c)...)
	}
	if err := t.store.MarkUsed(identity, now, keys...); err != nil {
		return fmt.Errorf("marking usage for %s: %w", identity, err)
	}
	return nil
}

// UnusedSubset returns the candidates not used in scope, keeping order and
// dropping duplicates within cs.
func (t *Tracker) UnusedSubset(scope Scope, cs []provider.Candidate) ([]provider.Candidate, error) {
	seen := make(map[string]bool, len(cs)*2)
	out := make([]provider.Candidate, 0, len(cs))
	for _, c := range cs {
		keys := candidateKeys(c)
		dup := false
		for _, k := range keys {
			if seen[k] {
				dup = true
			}
		}
		if dup {
			continue
		}
		used, err := t.IsUsed(scope, c)
		if err != nil {
			return nil, err
		}
		if used {
			continue
		}
		for _, k := range keys {
			seen[k] = true
		}
		out = append(out, c)
	}
	return out, nil
}

// ClaimUnused atomically filters cs against the global scope and marks up
// to limit survivors (all of them when limit <= 0), so two identities
// sourcing at once never receive the same candidate.
func (t *Tracker) ClaimUnused(cs []provider.Candidate, limit int) []provider.Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.purgeLocked(now)

	out := make([]provider.Candidate, 0, len(cs))
	for _, c := range cs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t.usedGlobalLocked(c) {
			continue
		}
		for _, k := range candidateKeys(c) {
			t.global[k] = now
		}
		out = append(out, c)
	}
	return out
}

// ResetScope clears a scope.
func (t *Tracker) ResetScope(scope Scope) error {
	if scope == GlobalScope {
		t.mu.Lock()
		t.global = make(map[string]time.Time)
		t.mu.Unlock()
		return nil
	}
	identity, ok := scope.Identity()
	if !ok {
		return fmt.Errorf("invalid scope %q", scope)
	}
	if err := t.store.ResetUsage(identity); err != nil {
		return fmt.Errorf("resetting usage for %s: %w", identity, err)
	}
	return nil
}

// Stats returns the number of live global keys.
func (t *Tracker) Stats() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked(t.clock.Now())
	return len(t.global)
}

// UsedCount returns the number of keys recorded for identity.
func (t *Tracker) UsedCount(identity string) (int, error) {
	return t.store.UsageCount(identity)
}

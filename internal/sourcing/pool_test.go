package sourcing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lensbot/internal/dedup"
	"github.com/pders01/lensbot/internal/health"
	"github.com/pders01/lensbot/internal/provider"
	"github.com/pders01/lensbot/internal/storage"
)

// fakeProvider serves a fixed inventory unless a script overrides a call.
type fakeProvider struct {
	name      string
	inventory []provider.Candidate

	mu       sync.Mutex
	searches int
	listings int
	search   func(call int) provider.Result
	listing  func(call int) provider.Result
}

func newFake(name string, n int) *fakeProvider {
	f := &fakeProvider{name: name}
	for i := 1; i <= n; i++ {
		f.inventory = append(f.inventory, provider.Candidate{
			Provider: name,
			ID:       fmt.Sprint(i),
			URL:      fmt.Sprintf("https://cdn.example.org/%s/%d.jpg", name, i),
		})
	}
	return f
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ string, perPage, _ int) provider.Result {
	f.mu.Lock()
	f.searches++
	call, script := f.searches, f.search
	f.mu.Unlock()
	if script != nil {
		return script(call)
	}
	return f.page(perPage)
}

func (f *fakeProvider) Listing(_ context.Context, _ string, perPage, _ int) provider.Result {
	f.mu.Lock()
	f.listings++
	call, script := f.listings, f.listing
	f.mu.Unlock()
	if script != nil {
		return script(call)
	}
	return f.page(perPage)
}

func (f *fakeProvider) page(perPage int) provider.Result {
	cs := append([]provider.Candidate(nil), f.inventory...)
	if len(cs) > perPage {
		cs = cs[:perPage]
	}
	return provider.Result{Candidates: cs}
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches, f.listings
}

type poolFixture struct {
	pool    *Pool
	health  *health.Registry
	tracker *dedup.Tracker
	clock   *clockwork.FakeClock
}

type weighted struct {
	p      provider.Provider
	weight float64
}

func newPoolFixture(t *testing.T, providers ...weighted) *poolFixture {
	t.Helper()

	reg := provider.NewRegistry()
	for _, w := range providers {
		require.NoError(t, reg.Register(w.p, w.weight))
	}

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "pool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	h := health.NewRegistry(0, reg.HealthMembers()...)
	tracker := dedup.NewTracker(store, clock, 0)
	pool := NewPool(reg, h, tracker, clock, PoolOptions{Rand: rand.New(rand.NewPCG(1, 2))})

	return &poolFixture{pool: pool, health: h, tracker: tracker, clock: clock}
}

func TestPool_WeightedConvergence(t *testing.T) {
	fx := newPoolFixture(t,
		weighted{newFake("A", 1), 0.65},
		weighted{newFake("B", 1), 0.35},
	)

	counts := map[string]int{}
	const picks = 10000
	for i := 0; i < picks; i++ {
		counts[fx.pool.pick("")]++
	}

	assert.InDelta(t, 0.65, float64(counts["A"])/picks, 0.02)
	assert.InDelta(t, 0.35, float64(counts["B"])/picks, 0.02)
}

func TestPool_ZeroWeightsPickUniformly(t *testing.T) {
	fx := newPoolFixture(t,
		weighted{newFake("A", 1), 0},
		weighted{newFake("B", 1), 0},
	)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[fx.pool.pick("")]++
	}
	assert.Greater(t, counts["A"], 800)
	assert.Greater(t, counts["B"], 800)
}

func TestPool_PreferredHonoredWhenAvailable(t *testing.T) {
	fx := newPoolFixture(t,
		weighted{newFake("A", 1), 0.99},
		weighted{newFake("B", 1), 0.01},
	)

	for i := 0; i < 50; i++ {
		assert.Equal(t, "B", fx.pool.pick("B"))
	}

	for i := 0; i < 10; i++ {
		fx.health.RecordFailure("B", false)
	}
	assert.Equal(t, "A", fx.pool.pick("B"))
}

func TestPool_FailOpen(t *testing.T) {
	a := newFake("A", 10)
	b := newFake("B", 10)
	fx := newPoolFixture(t, weighted{a, 0.5}, weighted{b, 0.5})

	fx.health.RecordFailure("A", true)
	fx.health.RecordFailure("B", true)
	require.Empty(t, fx.health.Available())

	got := fx.pool.Fetch(context.Background(), "nature", 1, "")

	require.Len(t, got, 1)
	as, _ := a.calls()
	bs, _ := b.calls()
	assert.Equal(t, 1, as+bs, "exactly one provider queried")
	assert.Len(t, fx.health.Available(), 2)
}

func TestPool_FailOpenSkipsHeldProvider(t *testing.T) {
	a := newFake("A", 10)
	a.search = func(int) provider.Result {
		return provider.Result{Failure: provider.FailureRateLimited, RetryAfter: 300 * time.Second, Err: errors.New("429")}
	}
	b := newFake("B", 10)
	fx := newPoolFixture(t, weighted{a, 0.5}, weighted{b, 0.5})

	// A asks for the full cap; B answers the rest of that fetch.
	first := fx.pool.Fetch(context.Background(), "nature", 1, "A")
	require.Len(t, first, 1)
	assert.Equal(t, 5*time.Minute, fx.health.HoldRemaining("A", fx.clock.Now()))

	for i := 0; i <= health.DefaultErrorThreshold; i++ {
		fx.health.RecordFailure("B", false)
	}
	require.Empty(t, fx.health.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	got := fx.pool.Fetch(ctx, "nature", 1, "A")

	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Provider)
	as, _ := a.calls()
	assert.Equal(t, 1, as, "held provider is not queried again")
	assert.Equal(t, 5*time.Minute, fx.health.HoldRemaining("A", fx.clock.Now()))
}

func TestPool_PickPrefersUnheld(t *testing.T) {
	fx := newPoolFixture(t,
		weighted{newFake("A", 1), 0.99},
		weighted{newFake("B", 1), 0.01},
	)
	now := fx.clock.Now()
	fx.health.Hold("A", now.Add(time.Minute))

	for i := 0; i < 50; i++ {
		assert.Equal(t, "B", fx.pool.pick("A"))
	}

	fx.health.Hold("B", now.Add(2*time.Minute))
	assert.Equal(t, "A", fx.pool.pick("B"), "all held: the shortest hold wins")
}

func TestPool_DedupAgainstSmallInventory(t *testing.T) {
	a := newFake("A", 3)
	fx := newPoolFixture(t, weighted{a, 1})

	got := fx.pool.Fetch(context.Background(), "nature", 5, "")

	require.Len(t, got, 3)
	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Key()], "repeat %s", c.Key())
		seen[c.Key()] = true
	}
	searches, _ := a.calls()
	assert.Equal(t, DefaultMaxAttempts, searches)

	// Globally used now, so a second fetch inside the window finds nothing.
	assert.Empty(t, fx.pool.Fetch(context.Background(), "nature", 1, ""))
}

func TestPool_FallsBackToListing(t *testing.T) {
	a := newFake("A", 4)
	a.search = func(int) provider.Result {
		return provider.Result{Failure: provider.FailureTransient, Err: errors.New("boom")}
	}
	fx := newPoolFixture(t, weighted{a, 1})

	got := fx.pool.Fetch(context.Background(), "nature", 2, "")

	assert.Len(t, got, 2)
	searches, listings := a.calls()
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, listings)
	assert.Zero(t, fx.health.Snapshot()[0].Errors, "listing success clears the failure")
}

func TestPool_EmptySearchFallsBackToListing(t *testing.T) {
	a := newFake("A", 4)
	a.search = func(int) provider.Result { return provider.Result{} }
	fx := newPoolFixture(t, weighted{a, 1})

	got := fx.pool.Fetch(context.Background(), "nature", 1, "")
	assert.Len(t, got, 1)
	_, listings := a.calls()
	assert.Equal(t, 1, listings)
}

func TestPool_AttemptCap(t *testing.T) {
	a := newFake("A", 0)
	fail := func(int) provider.Result {
		return provider.Result{Failure: provider.FailureTransient, Err: errors.New("down")}
	}
	a.search, a.listing = fail, fail
	fx := newPoolFixture(t, weighted{a, 1})

	got := fx.pool.Fetch(context.Background(), "nature", 3, "")

	assert.Empty(t, got)
	searches, listings := a.calls()
	assert.Equal(t, DefaultMaxAttempts, searches)
	assert.Equal(t, DefaultMaxAttempts, listings)
}

func TestPool_RateLimitHoldsBeforeRetry(t *testing.T) {
	a := newFake("A", 5)
	a.search = func(call int) provider.Result {
		if call == 1 {
			return provider.Result{Failure: provider.FailureRateLimited, Err: errors.New("429")}
		}
		return a.page(10)
	}
	fx := newPoolFixture(t, weighted{a, 1})

	done := make(chan []provider.Candidate, 1)
	go func() {
		done <- fx.pool.Fetch(context.Background(), "nature", 1, "")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fx.clock.BlockUntilContext(ctx, 1))

	// One consecutive failure: 2^1 seconds.
	assert.Equal(t, 2*time.Second, fx.health.HoldRemaining("A", fx.clock.Now()))
	_, listings := a.calls()
	assert.Zero(t, listings, "rate limits never fall back on the same provider")

	fx.clock.Advance(2 * time.Second)

	select {
	case got := <-done:
		assert.Len(t, got, 1)
	case <-ctx.Done():
		t.Fatal("fetch did not resume after the hold")
	}
	assert.True(t, fx.health.IsAvailable("A"))
}

func TestPool_CancelDuringHold(t *testing.T) {
	a := newFake("A", 5)
	fx := newPoolFixture(t, weighted{a, 1})
	fx.health.Hold("A", fx.clock.Now().Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []provider.Candidate, 1)
	go func() { done <- fx.pool.Fetch(ctx, "nature", 1, "") }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case got := <-done:
		assert.Empty(t, got)
	case <-waitCtx.Done():
		t.Fatal("fetch ignored cancellation")
	}
	searches, _ := a.calls()
	assert.Zero(t, searches)
}

func TestPool_ThrottleCarriesNoPenalty(t *testing.T) {
	a := newFake("A", 0)
	a.search = func(int) provider.Result { return provider.Result{Failure: provider.FailureThrottled} }
	fx := newPoolFixture(t, weighted{a, 1})

	assert.Empty(t, fx.pool.Fetch(context.Background(), "nature", 1, ""))
	assert.Zero(t, fx.health.Snapshot()[0].Errors)
	_, listings := a.calls()
	assert.Zero(t, listings)
}

func TestPool_Backoff(t *testing.T) {
	fx := newPoolFixture(t, weighted{newFake("A", 0), 1})

	assert.Equal(t, 2*time.Second, fx.pool.backoff(1, 0))
	assert.Equal(t, 32*time.Second, fx.pool.backoff(5, 0))
	assert.Equal(t, 300*time.Second, fx.pool.backoff(9, 0))
	assert.Equal(t, 300*time.Second, fx.pool.backoff(64, 0))
	assert.Equal(t, 30*time.Second, fx.pool.backoff(1, 30*time.Second), "Retry-After stretches the wait")
	assert.Equal(t, 300*time.Second, fx.pool.backoff(1, time.Hour), "but never past the cap")
}

// Package orchestrator drives the posting cycle of every identity.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/caption"
	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/provider"
	"github.com/pders01/lensbot/internal/publish"
	"github.com/pders01/lensbot/internal/schedule"
	"github.com/pders01/lensbot/internal/search"
	"github.com/pders01/lensbot/internal/storage"
)

const (
	DefaultPollInterval   = 5 * time.Minute
	DefaultSourceTimeout  = 2 * time.Minute
	DefaultCaptionTimeout = 30 * time.Second

	// defaultTopic is used when an identity has no topics configured.
	defaultTopic = "photography"
)

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomeNoContent     Outcome = "no_content"
	OutcomeCaptionFailed Outcome = "caption_failed"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomePosted        Outcome = "posted"
	// OutcomeError covers schedule lookups that failed and recovered panics.
	OutcomeError Outcome = "error"
)

// Schedule is the part of the schedule tracker a runner needs.
type Schedule interface {
	Due(identity string) (schedule.Slot, bool, error)
	MarkSlot(identity string, slot schedule.Slot) error
}

// slotWaker is implemented by schedules that know when an identity's next
// slot window opens. Runners holding one wake for the window instead of
// sleeping a full interval past it.
type slotWaker interface {
	NextCheck(identity string) (time.Time, error)
}

// ContentSource selects unused content for an identity and records what
// was published.
type ContentSource interface {
	Select(ctx context.Context, identity, topic string, count int, preferred string) ([]provider.Candidate, error)
	Commit(identity string, cs ...provider.Candidate) error
}

// PostLog appends confirmed posts to history.
type PostLog interface {
	SavePost(post *storage.PostRecord) error
}

// Timing bounds one runner's loop and its blocking calls.
type Timing struct {
	Interval       time.Duration
	SourceTimeout  time.Duration
	CaptionTimeout time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.Interval <= 0 {
		t.Interval = DefaultPollInterval
	}
	if t.SourceTimeout <= 0 {
		t.SourceTimeout = DefaultSourceTimeout
	}
	if t.CaptionTimeout <= 0 {
		t.CaptionTimeout = DefaultCaptionTimeout
	}
	return t
}

// TimingFromConfig reads the orchestrator section.
func TimingFromConfig(c config.OrchestratorConfig) Timing {
	return Timing{
		Interval:       c.PollInterval,
		SourceTimeout:  c.SourceTimeout,
		CaptionTimeout: c.CaptionTimeout,
	}
}

// Deps are the collaborators shared by every runner. Posts, Index and
// Metrics may be nil. Rand, when set, only seeds each runner's own source
// and is read once by NewRunner.
type Deps struct {
	Schedule  Schedule
	Content   ContentSource
	Captioner caption.Captioner
	Publisher publish.Publisher
	Posts     PostLog
	Index     search.PostListener
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Rand      *rand.Rand
}

// Runner posts for a single identity.
type Runner struct {
	identity config.IdentityConfig
	timing   Timing
	deps     Deps
	log      *debuglog.FieldLogger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRunner(identity config.IdentityConfig, timing Timing, deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	seed1, seed2 := rand.Uint64(), rand.Uint64()
	if deps.Rand != nil {
		seed1, seed2 = deps.Rand.Uint64(), deps.Rand.Uint64()
		deps.Rand = nil
	}
	return &Runner{
		identity: identity,
		timing:   timing.withDefaults(),
		deps:     deps,
		log:      debuglog.WithFields(debuglog.Fields{"identity": identity.ID}),
		rng:      rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Identity returns the identity this runner posts for.
func (r *Runner) Identity() string {
	return r.identity.ID
}

// Run cycles until ctx is cancelled. A failed cycle is logged and the
// loop waits for the next interval, or less when a slot window opens
// sooner.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infof("runner started, polling every %s", r.timing.Interval)
	for {
		outcome, err := r.safeCycle(ctx)
		switch {
		case err != nil:
			r.log.With("outcome", string(outcome)).Warnf("cycle failed: %v", err)
		case outcome != OutcomeSkipped:
			r.log.With("outcome", string(outcome)).Infof("cycle finished")
		}

		select {
		case <-ctx.Done():
			r.log.Infof("runner stopped")
			return nil
		case <-r.deps.Clock.After(r.nextWait()):
		}
	}
}

// nextWait is the poll interval, shortened to the next slot check the
// schedule asks for.
func (r *Runner) nextWait() time.Duration {
	wait := r.timing.Interval
	w, ok := r.deps.Schedule.(slotWaker)
	if !ok {
		return wait
	}
	at, err := w.NextCheck(r.identity.ID)
	if err != nil {
		r.log.Debugf("next slot check unknown, polling in %s: %v", wait, err)
		return wait
	}
	if d := at.Sub(r.deps.Clock.Now()); d > 0 && d < wait {
		wait = d
	}
	return wait
}

func (r *Runner) safeCycle(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome, err = OutcomeError, fmt.Errorf("cycle panicked: %v", p)
			r.deps.Metrics.Cycle(r.identity.ID, string(outcome))
		}
	}()
	return r.RunCycle(ctx)
}

// RunCycle runs one posting attempt: check the schedule, source content,
// caption, publish, and on confirmed success mark the slot. Any failure
// before the publish is confirmed leaves the slot open.
func (r *Runner) RunCycle(ctx context.Context) (Outcome, error) {
	outcome, err := r.runCycle(ctx)
	r.deps.Metrics.Cycle(r.identity.ID, string(outcome))
	return outcome, err
}

func (r *Runner) runCycle(ctx context.Context) (Outcome, error) {
	id := r.identity.ID

	slot, due, err := r.deps.Schedule.Due(id)
	if err != nil {
		return OutcomeError, fmt.Errorf("checking schedule: %w", err)
	}
	if !due {
		return OutcomeSkipped, nil
	}

	log := r.log.With("slot", slot.Label).With("date", slot.Date)
	topic := r.pickTopic()
	log = log.With("topic", topic)
	log.Infof("slot due, sourcing content")

	srcCtx, cancel := context.WithTimeout(ctx, r.timing.SourceTimeout)
	candidates, err := r.deps.Content.Select(srcCtx, id, topic, 1, r.identity.PreferredProvider)
	cancel()
	if err != nil {
		return OutcomeNoContent, fmt.Errorf("sourcing %q: %w", topic, err)
	}
	if len(candidates) == 0 {
		return OutcomeNoContent, fmt.Errorf("no content available for %q", topic)
	}
	c := candidates[0]
	log = log.With("provider", c.Provider).With("content", c.ID)

	capCtx, cancel := context.WithTimeout(ctx, r.timing.CaptionTimeout)
	text, err := r.deps.Captioner.Caption(capCtx, c, topic)
	cancel()
	if err != nil {
		return OutcomeCaptionFailed, fmt.Errorf("captioning %s: %w", c.Key(), err)
	}

	start := r.deps.Clock.Now()
	receipt, err := r.deps.Publisher.Publish(ctx, publish.Post{
		Identity: publish.Identity{
			Username:    id,
			DisplayName: r.identity.DisplayName,
			Avatar:      r.identity.Avatar,
			Bio:         r.identity.Bio,
			BotType:     r.identity.BotType,
			Folder:      r.identity.Folder,
		},
		Content:   text,
		Topic:     topic,
		Candidate: c,
	})
	elapsed := r.deps.Clock.Since(start)
	if err != nil {
		r.deps.Metrics.ObservePublish("failed", elapsed)
		return OutcomePublishFailed, fmt.Errorf("publishing %s: %w", c.Key(), err)
	}
	r.deps.Metrics.ObservePublish("ok", elapsed)

	if err := r.deps.Schedule.MarkSlot(id, slot); err != nil {
		// The post is live; the slot may be retried within its window.
		log.Errorf("published %s but could not mark slot: %v", receipt.ID, err)
	}
	r.bookkeep(log, slot, topic, text, c, receipt)

	log.Infof("posted %s", receipt.ID)
	return OutcomePosted, nil
}

// bookkeep records a confirmed post. Failures are logged only.
func (r *Runner) bookkeep(log *debuglog.FieldLogger, slot schedule.Slot, topic, text string, c provider.Candidate, receipt publish.Receipt) {
	id := r.identity.ID
	now := r.deps.Clock.Now()

	if err := r.deps.Content.Commit(id, c); err != nil {
		log.Warnf("recording usage: %v", err)
	}

	post := &storage.PostRecord{
		ID:           uuid.NewString(),
		Identity:     id,
		Date:         slot.Date,
		Slot:         slot.Label,
		Topic:        topic,
		Provider:     c.Provider,
		ContentID:    c.ID,
		AssetURL:     c.URL,
		Photographer: c.Photographer,
		Caption:      text,
		BackendID:    receipt.ID,
		PublishedAt:  now,
	}
	if r.deps.Posts != nil {
		if err := r.deps.Posts.SavePost(post); err != nil {
			log.Warnf("saving post history: %v", err)
		}
	}
	if r.deps.Index != nil {
		r.deps.Index.OnPostPublished(post)
	}
	r.deps.Metrics.Posted(id, now)
}

func (r *Runner) pickTopic() string {
	topics := r.identity.Topics
	if len(topics) == 0 {
		return defaultTopic
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return topics[r.rng.IntN(len(topics))]
}

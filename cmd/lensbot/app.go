package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/dedup"
	"github.com/pders01/lensbot/internal/health"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/provider"
	"github.com/pders01/lensbot/internal/schedule"
	"github.com/pders01/lensbot/internal/sourcing"
	"github.com/pders01/lensbot/internal/storage"
	"github.com/pders01/lensbot/internal/validation"
)

// components are the long-lived pieces every subcommand builds on.
type components struct {
	cfg       *config.Config
	clock     clockwork.Clock
	store     *storage.Store
	providers *provider.Registry
	health    *health.Registry
	usage     *dedup.Tracker
	schedule  *schedule.Tracker
}

func openComponents(cfg *config.Config) (*components, error) {
	dbPath, err := validation.StatePaths{}.EnsureParent(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}
	store, err := storage.NewStoreWithTimeout(dbPath, cfg.Database.Timeout)
	if err != nil {
		return nil, err
	}

	providers, err := provider.FromConfig(cfg.Providers, cfg.Network)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()
	c := &components{
		cfg:       cfg,
		clock:     clock,
		store:     store,
		providers: providers,
		health:    health.NewRegistry(cfg.Sourcing.ErrorThreshold, providers.HealthMembers()...),
		usage:     dedup.NewTracker(store, clock, cfg.Sourcing.GlobalRetention),
		schedule:  schedule.NewTracker(store, clock, cfg.Schedule.Tolerance, cfg.Schedule.RetentionDays),
	}
	for _, ic := range cfg.Identities {
		if err := c.schedule.Register(ic.ID, ic.Slots, ic.Timezone); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *components) pool(m *metrics.Metrics) *sourcing.Pool {
	s := c.cfg.Sourcing
	return sourcing.NewPool(c.providers, c.health, c.usage, c.clock, sourcing.PoolOptions{
		MaxAttempts: s.MaxAttempts,
		MaxPage:     s.MaxPage,
		MaxPerPage:  s.MaxPerPage,
		BackoffCap:  s.BackoffCap,
		Metrics:     m,
	})
}

func (c *components) identity(id string) (config.IdentityConfig, error) {
	ic, ok := c.cfg.Identity(id)
	if !ok {
		return config.IdentityConfig{}, fmt.Errorf("%w: %s", schedule.ErrUnknownIdentity, id)
	}
	return ic, nil
}

func (c *components) Close() error {
	return c.store.Close()
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/pders01/lensbot/internal/debuglog"
)

// Pruner drops schedule history past retention.
type Pruner interface {
	Prune() (int, error)
}

// HealthResetter clears provider health penalties.
type HealthResetter interface {
	ResetAll()
}

// MaintenanceOptions configures the periodic jobs. An empty spec disables
// its job.
type MaintenanceOptions struct {
	PruneSpec       string
	HealthResetSpec string
	Schedule        Pruner
	Health          HealthResetter
}

// Maintenance runs periodic housekeeping on a cron schedule.
type Maintenance struct {
	cron   *cron.Cron
	opts   MaintenanceOptions
	log    *debuglog.FieldLogger
	jobIDs []cron.EntryID
}

// NewMaintenance parses the job specs. Invalid specs fail here rather than
// at run time.
func NewMaintenance(opts MaintenanceOptions) (*Maintenance, error) {
	log := debuglog.WithFields(debuglog.Fields{"component": "maintenance"})
	logger := cron.PrintfLogger(log)
	m := &Maintenance{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		opts: opts,
		log:  log,
	}

	if opts.PruneSpec != "" && opts.Schedule != nil {
		id, err := m.cron.AddFunc(opts.PruneSpec, func() { _, _ = m.Prune() })
		if err != nil {
			return nil, fmt.Errorf("prune schedule %q: %w", opts.PruneSpec, err)
		}
		m.jobIDs = append(m.jobIDs, id)
	}
	if opts.HealthResetSpec != "" && opts.Health != nil {
		id, err := m.cron.AddFunc(opts.HealthResetSpec, m.ResetHealth)
		if err != nil {
			return nil, fmt.Errorf("health reset schedule %q: %w", opts.HealthResetSpec, err)
		}
		m.jobIDs = append(m.jobIDs, id)
	}
	return m, nil
}

// Jobs reports how many jobs are scheduled.
func (m *Maintenance) Jobs() int {
	return len(m.jobIDs)
}

// Prune drops expired schedule history.
func (m *Maintenance) Prune() (int, error) {
	n, err := m.opts.Schedule.Prune()
	if err != nil {
		m.log.Errorf("pruning schedule history: %v", err)
		return 0, err
	}
	if n > 0 {
		m.log.Infof("pruned %d expired schedule dates", n)
	}
	return n, nil
}

// ResetHealth clears every provider's penalties.
func (m *Maintenance) ResetHealth() {
	m.opts.Health.ResetAll()
	m.log.Infof("provider health reset")
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (m *Maintenance) Run(ctx context.Context) error {
	m.cron.Start()
	<-ctx.Done()
	<-m.cron.Stop().Done()
	return nil
}

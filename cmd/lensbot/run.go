package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/lensbot/internal/caption"
	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/orchestrator"
	"github.com/pders01/lensbot/internal/publish"
	"github.com/pders01/lensbot/internal/search"
	"github.com/pders01/lensbot/internal/sourcing"
	"github.com/pders01/lensbot/internal/tui"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var monitor, quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured identity until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if monitor && opts.logStderr {
				return errors.New("--monitor and --log-stderr both need the terminal")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			index, err := search.Open(c.store, opts.cfg.Database.SearchIndex)
			if err != nil {
				return err
			}
			defer index.Close()

			sup, err := buildSupervisor(c, metrics.New(), index)
			if err != nil {
				return err
			}

			if !monitor {
				if !quiet {
					tui.ShowBanner(Version)
				}
				return sup.Run(ctx)
			}
			return runWithMonitor(ctx, sup, c)
		},
	}

	cmd.Flags().BoolVar(&monitor, "monitor", false, "Show the live monitor while running")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip startup banner")
	return cmd
}

// buildSupervisor wires one runner per identity plus the maintenance jobs
// and, when configured, the metrics endpoint.
func buildSupervisor(c *components, m *metrics.Metrics, index search.Searcher) (*orchestrator.Supervisor, error) {
	cfg := c.cfg

	captioner, err := caption.NewTemplateCaptioner(cfg.Captions.Templates, nil)
	if err != nil {
		return nil, err
	}
	publisher := publish.NewHTTPPublisher(publish.HTTPOptions{
		BaseURL:         cfg.Publisher.BaseURL,
		Path:            cfg.Publisher.Path,
		APIKey:          cfg.Publisher.APIKey,
		Timeout:         cfg.Publisher.Timeout,
		BreakerFailures: cfg.Publisher.BreakerFailures,
		BreakerWindow:   cfg.Publisher.BreakerWindow,
		BreakerDelay:    cfg.Publisher.BreakerDelay,
	})
	listener, _ := index.(search.PostListener)

	deps := orchestrator.Deps{
		Schedule:  c.schedule,
		Content:   sourcing.NewSourcer(c.pool(m), c.usage, cfg.Sourcing.Oversample, m),
		Captioner: captioner,
		Publisher: publisher,
		Posts:     c.store,
		Index:     listener,
		Metrics:   m,
		Clock:     c.clock,
	}
	timing := orchestrator.TimingFromConfig(cfg.Orchestrator)

	sup := orchestrator.NewSupervisor()
	for _, ic := range cfg.Identities {
		if err := sup.Add(orchestrator.NewRunner(ic, timing, deps)); err != nil {
			return nil, err
		}
	}

	maint, err := orchestrator.NewMaintenance(orchestrator.MaintenanceOptions{
		PruneSpec:       cfg.Schedule.PruneCron,
		HealthResetSpec: cfg.Schedule.HealthResetCron,
		Schedule:        c.schedule,
		Health:          c.health,
	})
	if err != nil {
		return nil, err
	}
	sup.AddService(maint)

	if addr := cfg.Metrics.Addr; addr != "" {
		sup.AddService(orchestrator.ServiceFunc(func(ctx context.Context) error {
			debuglog.Infof("serving metrics on %s", addr)
			return m.Serve(ctx, addr)
		}))
	}
	return sup, nil
}

// runWithMonitor runs the supervisor behind the monitor. Quitting the
// monitor stops the runners.
func runWithMonitor(ctx context.Context, sup *orchestrator.Supervisor, c *components) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src := &tui.TrackerSource{
		Schedule: c.schedule,
		Health:   c.health,
		Posts:    c.store,
		Clock:    c.clock,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, src, tui.Options{})
	})
	return g.Wait()
}

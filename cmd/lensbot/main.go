package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	logStderr  bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "lensbot",
		Short:         "Post photos for many bot identities on a daily schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = debuglog.Close()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to database file (overrides config)")
	root.PersistentFlags().BoolVar(&opts.logStderr, "log-stderr", false, "Write logs to stderr instead of the log file")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newSampleCmd(opts))
	root.AddCommand(newUsageCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// skipsConfig reports whether cmd works without a loaded configuration.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["config"] == "skip" || c.Name() == "help" || c.Name() == "completion" {
			return true
		}
	}
	return false
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := debuglog.ParseLogLevel(cfg.Logging.Level)
	if o.logStderr {
		debuglog.SetupWriter(level, os.Stderr)
	} else if err := debuglog.Setup(level, cfg.Logging.File); err != nil {
		return err
	}

	o.cfg = cfg
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

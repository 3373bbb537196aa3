package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{"config": "skip"},
	}

	var (
		path  string
		force bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".config", "lensbot", "config.toml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	generate.Flags().StringVar(&path, "path", "", "Where to write the file (default ~/.config/lensbot/config.toml)")
	generate.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cfgCmd.AddCommand(generate)
	return cfgCmd
}

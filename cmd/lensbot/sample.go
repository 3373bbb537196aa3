package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/media"
)

func newSampleCmd(opts *rootOptions) *cobra.Command {
	var (
		count     int
		preferred string
		open      bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sample <topic>",
		Short: "Fetch candidates for a topic without posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--count must be positive")
			}
			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if preferred != "" {
				if _, ok := c.providers.Get(preferred); !ok {
					return fmt.Errorf("unknown provider %q", preferred)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			candidates := c.pool(nil).Fetch(ctx, args[0], count, preferred)
			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintf(out, "No candidates for %q\n", args[0])
				return nil
			}
			for i, cand := range candidates {
				fmt.Fprintf(out, "%d. %s %dx%d", i+1, cand.Key(), cand.Width, cand.Height)
				if cand.Photographer != "" {
					fmt.Fprintf(out, " by %s", cand.Photographer)
				}
				fmt.Fprintf(out, "\n   %s\n", cand.URL)
				if cand.Description != "" {
					fmt.Fprintf(out, "   %s\n", cand.Description)
				}
			}

			if open {
				return media.NewLauncher(opts.cfg.Media).Open(candidates[0].URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of candidates to fetch")
	cmd.Flags().StringVar(&preferred, "provider", "", "Prefer this provider when it is available")
	cmd.Flags().BoolVar(&open, "open", false, "Open the first candidate in an image viewer")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}

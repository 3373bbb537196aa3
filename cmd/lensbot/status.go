package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/tui"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		plain bool
		width int
		style string
		posts int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print schedule, provider and recent post status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			src := &tui.TrackerSource{
				Schedule:  c.schedule,
				Health:    c.health,
				Posts:     c.store,
				Clock:     c.clock,
				PostLimit: posts,
			}
			report := tui.BuildReport(src.Snapshot())
			if plain {
				_, err := fmt.Fprint(cmd.OutOrStdout(), report)
				return err
			}

			out, err := tui.RenderReport(report, width, style)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print the raw markdown report")
	cmd.Flags().IntVar(&width, "width", 100, "Terminal width used for wrapping")
	cmd.Flags().StringVar(&style, "style", "", "Glamour style (dark, light, notty); detected when empty")
	cmd.Flags().IntVar(&posts, "posts", 10, "Number of recent posts to include")
	return cmd
}

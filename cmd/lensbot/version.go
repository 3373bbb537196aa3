package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/tui"
)

func newVersionCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintln(out, tui.Banner(Version))
			}
			fmt.Fprintf(out, "lensbot %s\n", Version)
			fmt.Fprintln(out, "github.com/pders01/lensbot")
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip the banner")
	return cmd
}

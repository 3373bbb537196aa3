package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/dedup"
)

func newUsageCmd(opts *rootOptions) *cobra.Command {
	usage := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and reset per-identity content usage",
	}

	usage.AddCommand(&cobra.Command{
		Use:   "show [identity]",
		Short: "Show how many assets each identity has used",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ids := c.schedule.Identities()
			if len(args) == 1 {
				if _, err := c.identity(args[0]); err != nil {
					return err
				}
				ids = args
			}
			for _, id := range ids {
				n, err := c.usage.UsedCount(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", id, n)
			}
			return nil
		},
	})

	usage.AddCommand(&cobra.Command{
		Use:   "reset <identity>",
		Short: "Forget which assets an identity has already posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			id := args[0]
			if _, err := c.identity(id); err != nil {
				return err
			}
			n, err := c.usage.UsedCount(id)
			if err != nil {
				return err
			}
			if err := c.usage.ResetScope(dedup.IdentityScope(id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset usage for %s (%d entries cleared)\n", id, n)
			return nil
		},
	})
	return usage
}

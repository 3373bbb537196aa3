package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/lensbot/internal/search"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	history := &cobra.Command{
		Use:   "history",
		Short: "Browse published post history",
	}

	var (
		identity string
		limit    int
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search published posts by topic, caption or photographer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if identity != "" {
				if _, err := c.identity(identity); err != nil {
					return err
				}
			}

			index, err := search.Open(c.store, opts.cfg.Database.SearchIndex)
			if err != nil {
				return err
			}
			defer index.Close()

			query := strings.Join(args, " ")
			var results []*search.Result
			if identity != "" {
				results, err = index.SearchIdentity(identity, query, limit)
			} else {
				results, err = index.Search(query, limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No posts match %q\n", query)
				return nil
			}
			for _, r := range results {
				p := r.Post
				fmt.Fprintf(out, "%s  %-20s %-14s %s:%s\n",
					p.PublishedAt.Format("2006-01-02 15:04"), p.Identity, p.Topic, p.Provider, p.ContentID)
				for _, m := range r.Matches {
					fmt.Fprintf(out, "    %s: %s\n", m.Field, m.Text)
				}
			}
			return nil
		},
	}
	searchCmd.Flags().StringVar(&identity, "identity", "", "Only search this identity's posts")
	searchCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	history.AddCommand(searchCmd)
	return history
}

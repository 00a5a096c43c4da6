package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/spf13/cobra"
)

func leadsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Inspect stored leads",
	}
	cmd.AddCommand(leadsListCmd(opts))
	return cmd
}

func leadsListCmd(opts *rootOptions) *cobra.Command {
	var (
		targetID      int64
		since         time.Duration
		limit, offset int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStoreOnly(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := storage.LeadFilter{TargetID: targetID, Limit: limit, Offset: offset}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			leads, err := store.QueryLeads(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(opts.stdout, leads)
			}
			return writeLeads(opts.stdout, leads)
		},
	}

	fl := cmd.Flags()
	fl.Int64Var(&targetID, "target", 0, "only leads of this target id")
	fl.DurationVar(&since, "since", 0, "only leads created within this window, e.g. 24h")
	fl.IntVar(&limit, "limit", 0, "maximum rows, 0 means all")
	fl.IntVar(&offset, "offset", 0, "rows to skip")
	fl.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeLeads(w io.Writer, leads []*storage.Lead) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTARGET\tTITLE\tLINK")
	for _, l := range leads {
		title, _ := l.Data["title"].(string)
		link, _ := l.Data["link"].(string)
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", l.ID, l.TargetID, truncate(title, 50), link)
	}
	return tw.Flush()
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/spf13/cobra"
)

// openStoreOnly loads configuration and opens just the store, for admin
// commands that never touch a provider.
func (o *rootOptions) openStoreOnly(cmd *cobra.Command) (storage.Backend, error) {
	cfg, _, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return store, nil
}

func targetsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage lead generation targets",
	}
	cmd.AddCommand(targetsAddCmd(opts), targetsListCmd(opts))
	return cmd
}

func targetsAddCmd(opts *rootOptions) *cobra.Command {
	var name, criteria string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a pending target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return &config.Error{Problems: []string{"--name is required"}}
			}
			if _, err := storage.ParseCriteria(criteria); err != nil {
				return &config.Error{Problems: []string{err.Error()}}
			}

			store, err := opts.openStoreOnly(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.AddTarget(cmd.Context(), &storage.Target{Name: name, Criteria: criteria})
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "target name")
	cmd.Flags().StringVar(&criteria, "criteria", "", "criteria as JSON, YAML or free text")
	return cmd
}

func targetsListCmd(opts *rootOptions) *cobra.Command {
	var (
		pending       bool
		limit, offset int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStoreOnly(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := storage.TargetFilter{Limit: limit, Offset: offset}
			if pending {
				processed := false
				filter.Processed = &processed
			}
			targets, err := store.QueryTargets(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(opts.stdout, targets)
			}
			return writeTargets(opts.stdout, targets)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&pending, "pending", false, "only unprocessed targets")
	fl.IntVar(&limit, "limit", 0, "maximum rows, 0 means all")
	fl.IntVar(&offset, "offset", 0, "rows to skip")
	fl.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeTargets(w io.Writer, targets []*storage.Target) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROCESSED\tCREATED\tCRITERIA")
	for _, t := range targets {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", t.ID, t.Name, t.Processed, t.CreatedAt.Format(time.RFC3339), truncate(t.Criteria, 60))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

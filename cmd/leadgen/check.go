package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/FranksOps/leadgen/internal/querygen"
	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/FranksOps/leadgen/pkg/redact"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// checkCriteria and checkTarget are sent to the model during check. They are
// never stored.
var (
	checkCriteria = storage.Criteria{"industry": "software", "location": "Berlin"}
	checkTarget   = &storage.Target{Name: "connectivity check", Criteria: checkCriteria.String()}
)

type healthCheck struct {
	name string
	fn   func(context.Context) (string, error)
}

func modelCheck(name string, gen querygen.Generator) healthCheck {
	return healthCheck{name: name, fn: func(ctx context.Context) (string, error) {
		q, err := gen.Generate(ctx, querygen.Input{Target: checkTarget, Criteria: checkCriteria})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("query %q", q), nil
	}}
}

func checkCmd(opts *rootOptions) *cobra.Command {
	var withSearch bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the store and model provider are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			d, err := buildDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			checks := []healthCheck{
				{name: "store (" + cfg.StoreBackend + ")", fn: func(ctx context.Context) (string, error) {
					pending, err := d.store.FetchPending(ctx)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%d pending targets", len(pending)), nil
				}},
				modelCheck("model ("+cfg.ModelProvider+")", d.gen),
			}
			if withSearch {
				checks = append(checks, healthCheck{name: "search (" + d.search.Name() + ")", fn: func(ctx context.Context) (string, error) {
					results, err := d.search.Search(ctx, "software companies in Berlin", 1)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%d results", len(results)), nil
				}})
			}

			return runChecks(ctx, opts.stdout, checks, cfg.Secrets())
		},
	}

	cmd.Flags().BoolVar(&withSearch, "search", false, "also run one search query")
	return cmd
}

// runChecks runs every check concurrently and prints one line per check in
// the order given. A failing check does not cancel the others.
func runChecks(ctx context.Context, w io.Writer, checks []healthCheck, secrets []string) error {
	type line struct {
		detail string
		err    error
	}
	lines := make([]line, len(checks))

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed int
	)
	for i, c := range checks {
		g.Go(func() error {
			detail, err := c.fn(ctx)
			lines[i] = line{detail: detail, err: err}
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range checks {
		if lines[i].err != nil {
			fmt.Fprintf(w, "FAIL %-24s %s\n", c.name, redact.Secrets(lines[i].err.Error(), secrets...))
			continue
		}
		fmt.Fprintf(w, "OK   %-24s %s\n", c.name, lines[i].detail)
	}

	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d checks failed", failed, len(checks))}
	}
	return nil
}

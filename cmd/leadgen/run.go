package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/metrics"
	"github.com/FranksOps/leadgen/internal/pipeline"
	"github.com/FranksOps/leadgen/internal/report"
	"github.com/spf13/cobra"
)

func runCmd(opts *rootOptions) *cobra.Command {
	var (
		format     string
		reportFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every pending target once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return &config.Error{Problems: []string{err.Error()}}
			}

			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if cfg.MetricsPort > 0 {
				srv := metrics.Start(cfg.MetricsPort, logger)
				defer func() {
					if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
						logger.Warn("metrics server shutdown", "error", err)
					}
				}()
			}

			d, err := buildDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := d.Close(); err != nil {
					logger.Warn("close collaborators", "error", err)
				}
			}()

			p := &pipeline.Pipeline{
				Targets:     d.store,
				Leads:       d.store,
				Queries:     d.gen,
				Search:      d.search,
				SearchLimit: cfg.SearchLimit,
				Attempts:    d.tracker,
				MaxAttempts: cfg.MaxAttempts,
				Metrics:     metrics.Prometheus{},
				Logger:      logger,
				Secrets:     cfg.Secrets(),
			}

			summary, runErr := p.Run(ctx)
			if summary != nil {
				if err := writeReport(opts.stdout, reportFile, f, summary); err != nil {
					return errors.Join(runErr, err)
				}
			}
			return runErr
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&format, "format", "text", "summary format: text, json or html")
	fl.StringVar(&reportFile, "report-file", "", "write the summary here instead of stdout")
	fl.String("model-provider", "", "openai or gemini (MODEL_PROVIDER)")
	fl.String("search-provider", "", "serper, brave, gemini, openai or duckduckgo (SEARCH_PROVIDER)")
	fl.Int("search-limit", 0, "results requested per query (SEARCH_LIMIT)")
	fl.Int("max-retries", 0, "retries for transient model and search failures (MAX_RETRIES)")
	fl.Int("max-attempts", 0, "skip targets after this many consecutive failed runs, 0 disables, needs REDIS_ADDR (MAX_ATTEMPTS)")
	fl.Int("metrics-port", 0, "serve /metrics on this port during the run (METRICS_PORT)")
	fl.String("tls-fingerprint", "", "TLS profile for the duckduckgo provider (TLS_FINGERPRINT)")
	fl.String("proxy-urls", "", "comma separated proxies for the duckduckgo provider (PROXY_URLS)")
	return cmd
}

func writeReport(stdout io.Writer, path string, f report.Format, summary *pipeline.Summary) error {
	if path == "" {
		return report.Write(stdout, f, summary)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(out, f, summary); err != nil {
		_ = out.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return out.Close()
}

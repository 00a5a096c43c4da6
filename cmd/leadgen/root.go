package main

import (
	"io"
	"log/slog"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "leadgen",
		Short:         "Generate leads for pending targets using a language model and web search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "dotenv file to read before the environment")
	pf.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	pf.String("log-format", "", "text or json (LOG_FORMAT)")
	pf.String("store-backend", "", "supabase, postgres, sqlite or json (STORE_BACKEND)")

	root.AddCommand(
		runCmd(opts),
		checkCmd(opts),
		migrateCmd(opts),
		targetsCmd(opts),
		leadsCmd(opts),
	)
	return root
}

// load reads configuration with cmd's flags bound over the environment and
// builds the logger. Logs go to stderr so stdout stays clean for reports.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.envFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(o.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, &config.Error{Problems: []string{err.Error()}}
	}
	return cfg, logger, nil
}

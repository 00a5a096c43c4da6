// Command leadgen runs the lead generation job and its admin tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/pkg/redact"
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit status: 2 for configuration
// problems, 1 for anything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *config.Error
	if errors.As(err, &ce) {
		return 2
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "leadgen:", redact.Secrets(err.Error()))
	}
	stop()
	os.Exit(exitCode(err))
}

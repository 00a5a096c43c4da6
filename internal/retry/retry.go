// Package retry runs a call with a per-attempt timeout and exponential
// backoff between attempts that failed transiently.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient wraps err as a *TransientError, passing nil through.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Policy controls attempts and pacing. The zero value makes a single attempt
// with no timeout.
type Policy struct {
	MaxRetries     int
	RequestTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	JitterFrac     float64
}

// DefaultPolicy mirrors the CLI defaults.
func DefaultPolicy() Policy {
	return Policy{
		RequestTimeout: 30 * time.Second,
		BackoffInitial: 500 * time.Millisecond,
		BackoffMax:     10 * time.Second,
		JitterFrac:     0.2,
	}
}

// Do calls fn up to 1+MaxRetries times. Only transient failures are retried;
// the last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var last T
	var lastErr error
	attempts := 1 + max(p.MaxRetries, 0)
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if p.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, p.RequestTimeout)
		}
		res, err := fn(reqCtx)
		if cancel != nil {
			cancel()
		}
		last = res
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return last, ctx.Err()
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts-1 {
			return last, err
		}

		t := time.NewTimer(Backoff(p.BackoffInitial, p.BackoffMax, p.JitterFrac, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return last, ctx.Err()
		}
	}
	return last, lastErr
}

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}

// Backoff returns the sleep before retry number attempt+1: initial doubled
// per attempt, capped at max, then scaled by +/- jitterFrac.
func Backoff(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}

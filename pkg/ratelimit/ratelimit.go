package ratelimit

import (
	"context"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound calls per host with optional jitter on top of the
// token bucket. It is safe for concurrent use by multiple goroutines.
// A nil *Limiter never blocks.
type Limiter struct {
	mu     sync.Mutex
	hosts  map[string]*rate.Limiter
	limit  rate.Limit
	burst  int
	jitter float64 // 0.0 to 1.0
}

// NewLimiter creates a limiter allowing rps requests per second to each host.
// Jitter adds up to jitter*interval of random extra delay after each token.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	l := &Limiter{
		hosts:  make(map[string]*rate.Limiter),
		limit:  rate.Inf,
		burst:  1,
		jitter: jitter,
	}
	if rps > 0 {
		l.limit = rate.Limit(rps)
	}
	return l
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.hosts[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.hosts[host] = lim
	return lim
}

// Wait blocks on the shared bucket used for calls without a host.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.wait(ctx, "_")
}

// WaitURL blocks until a request to raw's host may proceed, or until ctx is
// canceled.
func (l *Limiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return l.wait(ctx, "_")
	}
	return l.wait(ctx, u.Host)
}

func (l *Limiter) wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.limit == rate.Inf {
		return nil
	}

	if err := l.limiterFor(host).Wait(ctx); err != nil {
		return err
	}

	if l.jitter > 0 {
		interval := time.Duration(float64(time.Second) / float64(l.limit))
		extra := time.Duration(float64(interval) * l.jitter * rand.Float64())
		if extra > 0 {
			t := time.NewTimer(extra)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

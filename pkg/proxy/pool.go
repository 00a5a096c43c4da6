// Package proxy rotates outbound HTTP proxies and benches the ones that keep
// failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never issued.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type endpoint struct {
	url        *url.URL
	key        string
	failures   int
	successes  int
	benchedTil time.Time
}

// Stats is a point-in-time view of one proxy.
type Stats struct {
	URL       string
	Successes int
	Failures  int
	Benched   bool
}

// Pool hands out proxies round robin. A proxy that fails MaxFailures times in
// a row is benched for Cooldown.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

type Config struct {
	MaxFailures int
	Cooldown    time.Duration
}

// NewPool returns an empty pool. Zero config values default to 3 failures
// and a five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// AddList adds proxies from a comma or whitespace separated list, as found in
// an environment variable.
func (p *Pool) AddList(list string) error {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	return p.Add(fields...)
}

// LoadFile adds one proxy per line from path. Blank lines and lines starting
// with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer f.Close()
	return p.load(f)
}

func (p *Pool) load(r io.Reader) error {
	var raws []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}
	return p.Add(raws...)
}

// Add parses and appends proxies. A missing scheme means http. Duplicates
// are ignored.
func (p *Pool) Add(raws ...string) error {
	parsed := make([]*endpoint, 0, len(raws))
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("proxy: unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: missing host in %q", raw)
		}
		parsed = append(parsed, &endpoint{url: u, key: u.String()})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range parsed {
		if p.find(ep.key) == nil {
			p.endpoints = append(p.endpoints, ep)
		}
	}
	return nil
}

// Next returns the next proxy that is not benched, or nil when the pool is
// empty or every proxy is cooling down. A nil pool returns nil.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range len(p.endpoints) {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)
		if now.Before(ep.benchedTil) {
			continue
		}
		if !ep.benchedTil.IsZero() {
			ep.benchedTil = time.Time{}
			ep.failures = 0
		}
		// copy so callers cannot mutate pool state
		u := *ep.url
		return &u
	}
	return nil
}

// Report records the outcome of a request made through u. A nil err counts
// as a success and clears one failure.
func (p *Pool) Report(u *url.URL, err error) error {
	if u == nil {
		return errors.New("proxy: nil url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(u.String())
	if ep == nil {
		return ErrUnknownProxy
	}
	if err == nil {
		ep.successes++
		if ep.failures > 0 {
			ep.failures--
		}
		return nil
	}
	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.benchedTil = p.now().Add(p.cooldown)
	}
	return nil
}

// Stats returns a snapshot of every proxy in insertion order.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	out := make([]Stats, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, Stats{
			URL:       ep.key,
			Successes: ep.successes,
			Failures:  ep.failures,
			Benched:   now.Before(ep.benchedTil),
		})
	}
	return out
}

// must be called with mu held
func (p *Pool) find(key string) *endpoint {
	for _, ep := range p.endpoints {
		if ep.key == key {
			return ep
		}
	}
	return nil
}

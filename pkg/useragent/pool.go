// Package useragent rotates browser User-Agent strings.
package useragent

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// Browsers is a set of current desktop User-Agents.
var Browsers = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:143.0) Gecko/20100101 Firefox/143.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:143.0) Gecko/20100101 Firefox/143.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/26.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36 Edg/140.0.0.0",
}

// Pool is safe for concurrent use.
type Pool struct {
	agents []string
	random bool
	n      atomic.Uint64
}

// NewPool returns a pool over agents, or over Browsers when agents is empty.
// When random is false Next walks the list in order.
func NewPool(agents []string, random bool) *Pool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, Browsers...)
	}
	return &Pool{agents: cleaned, random: random}
}

// Next returns the next User-Agent. A nil pool returns "".
func (p *Pool) Next() string {
	if p == nil || len(p.agents) == 0 {
		return ""
	}
	if p.random {
		return p.agents[rand.IntN(len(p.agents))]
	}
	i := p.n.Add(1) - 1
	return p.agents[i%uint64(len(p.agents))]
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.agents)
}

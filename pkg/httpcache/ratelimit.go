package httpcache

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Pacer spaces requests to one host at least a minimum delay apart. Each call
// to Wait reserves the next free slot for its host, so concurrent callers are
// released one delay apart in arrival order.
type Pacer struct {
	next    map[string]time.Time // earliest start of the next request, per host
	perHost map[string]time.Duration
	delay   time.Duration
	mu      sync.Mutex
}

// NewPacer creates a Pacer. perHost overrides delay for the named hosts; a
// zero or negative delay disables pacing for that host.
func NewPacer(delay time.Duration, perHost map[string]time.Duration) *Pacer {
	hosts := make(map[string]time.Duration, len(perHost))
	for h, d := range perHost {
		hosts[strings.ToLower(h)] = d
	}
	return &Pacer{
		next:    make(map[string]time.Time),
		perHost: hosts,
		delay:   delay,
	}
}

// Delay returns the minimum spacing applied to host.
func (p *Pacer) Delay(host string) time.Duration {
	if d, ok := p.perHost[strings.ToLower(host)]; ok {
		return d
	}
	return p.delay
}

// Wait blocks until a request to rawURL's host may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	delay := p.Delay(host)
	if delay <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	start := p.next[host]
	if start.Before(now) {
		start = now
	}
	p.next[host] = start.Add(delay)
	p.mu.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

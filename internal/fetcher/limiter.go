package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateSettings applies a token bucket per host.
type RateSettings struct {
	Requests int
	Window   time.Duration
}

// HostLimiter spaces out fetches against the same host, combining a fixed
// per-host delay with an optional token-bucket rate limit. It keeps
// metadata extraction polite toward arbitrary external sites.
type HostLimiter struct {
	delay       time.Duration
	rateCfg     RateSettings
	rateEnabled bool

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter builds a limiter; zero delay and an empty rate config
// produce a no-op limiter.
func NewHostLimiter(delay time.Duration, rateCfg RateSettings) *HostLimiter {
	l := &HostLimiter{delay: delay, rateCfg: rateCfg}
	if delay > 0 {
		l.last = make(map[string]time.Time)
	}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		l.rateEnabled = true
		l.limiters = make(map[string]*rate.Limiter)
	}
	return l
}

// Wait blocks until politeness constraints for the host are satisfied or
// the context is cancelled.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}
	if l.delay <= 0 && !l.rateEnabled {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter

	l.mu.Lock()
	if l.delay > 0 {
		if last, ok := l.last[host]; ok {
			if rest := time.Until(last.Add(l.delay)); rest > 0 {
				sleep = rest
			}
		}
	}
	if l.rateEnabled {
		limiter = l.hostLimiterLocked(host)
	}
	l.mu.Unlock()

	if sleep > 0 {
		if err := sleepCtx(ctx, sleep); err != nil {
			return err
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if l.last != nil {
		l.mu.Lock()
		l.last[host] = time.Now()
		l.mu.Unlock()
	}
	return nil
}

func (l *HostLimiter) hostLimiterLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval := l.rateCfg.Window / time.Duration(l.rateCfg.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	burst := l.rateCfg.Requests
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(interval), burst)
	l.limiters[host] = limiter
	return limiter
}

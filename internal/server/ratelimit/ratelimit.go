// Package ratelimit provides per-client, per-endpoint request limiting for the HTTP API.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration // How long an unused client limiter is kept
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// visitor tracks the limiter and last access time for one client+endpoint key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages rate limiting for multiple clients.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   *Config
	now      func() time.Time

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
	stopOnce      sync.Once
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    600,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
			Whitelist:       make(map[string]bool),
			Blacklist:       make(map[string]bool),
		}
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = time.Hour
	}

	l := &Limiter{
		visitors: make(map[string]*visitor),
		config:   config,
		now:      time.Now,
	}

	// Start cleanup goroutine if enabled
	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupTicker = time.NewTicker(config.CleanupInterval)
		l.cleanupStop = make(chan struct{})
		go l.cleanup()
	}

	return l
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	ec := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if ec == nil {
		ec = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}

	// Unlimited endpoint (e.g., health check)
	if ec.Limit <= 0 || ec.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	limiter := l.getLimiter(clientID+":"+endpoint+":"+method, ec, now)

	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	allowed := reservation.OK() && delay == 0
	if !allowed {
		reservation.CancelAt(now)
	}

	tokens := limiter.TokensAt(now)
	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: max(int(tokens), 0),
		ResetTime: now,
	}
	if missing := float64(limiter.Burst()) - tokens; missing > 0 {
		info.ResetTime = now.Add(time.Duration(missing / float64(limiter.Limit()) * float64(time.Second)))
	}
	if !allowed {
		info.RetryAfter = delay
	}
	return allowed, info
}

// getLimiter gets or creates the limiter for key. Refill rate is limit per window.
func (l *Limiter) getLimiter(key string, ec *EndpointConfig, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}

	burst := ec.Burst
	if burst <= 0 {
		burst = ec.Limit
	}
	limiter := rate.NewLimiter(rate.Limit(float64(ec.Limit)/ec.Window.Seconds()), burst)
	l.visitors[key] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

// cleanup removes idle limiters until Stop is called.
func (l *Limiter) cleanup() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanupVisitors()
		case <-l.cleanupStop:
			return
		}
	}
}

// cleanupVisitors removes limiters that have not been used within IdleTTL.
func (l *Limiter) cleanupVisitors() int {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupTicker != nil {
			l.cleanupTicker.Stop()
		}
		if l.cleanupStop != nil {
			close(l.cleanupStop)
		}
	})
}

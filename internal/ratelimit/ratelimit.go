// Package ratelimit implements a per-process fixed-window limiter keyed by
// user and operation. State is in memory only and resets on restart.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

// Limit is the allowance for one operation
type Limit struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type key struct {
	userID    string
	operation string
}

type entry struct {
	count   int
	resetAt time.Time
}

// Config holds limiter configuration
type Config struct {
	Cleanup time.Duration // sweep interval for expired windows (default 1 minute)
	Now     func() time.Time
}

// Limiter counts calls per (user, operation) window
type Limiter struct {
	mu       sync.Mutex
	entries  map[key]*entry
	cleanup  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts its sweep goroutine. Call Stop to release it.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if cfg.Cleanup <= 0 {
		cfg.Cleanup = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Limiter{
		entries:  make(map[key]*entry),
		cleanup:  cfg.Cleanup,
		now:      cfg.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// CheckLimit records one call for (userID, operation). Once more than max
// calls land in the current window it returns *domain.RateLimitedError with
// the time left until the window resets.
func (l *Limiter) CheckLimit(userID, operation string, max int, window time.Duration) error {
	if max <= 0 || window <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{userID: userID, operation: operation}

	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		l.entries[k] = &entry{count: 1, resetAt: now.Add(window)}
		return nil
	}

	e.count++
	if e.count > max {
		resetIn := e.resetAt.Sub(now)
		l.logger.Warn("Rate limit exceeded",
			slog.String("user_id", userID),
			slog.String("operation", operation),
			slog.Int("count", e.count),
			slog.Duration("reset_in", resetIn),
		)
		return &domain.RateLimitedError{Operation: operation, ResetIn: resetIn}
	}

	return nil
}

// Check applies a configured Limit
func (l *Limiter) Check(userID, operation string, limit Limit) error {
	return l.CheckLimit(userID, operation, limit.Max, limit.Window)
}

// Len returns the number of live windows
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stop stops the sweep goroutine
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupExpired()
		case <-l.stopChan:
			return
		}
	}
}

func (l *Limiter) cleanupExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("Expired rate limit windows removed",
			slog.Int("removed", removed),
			slog.Int("remaining", len(l.entries)),
		)
	}
}

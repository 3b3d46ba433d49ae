// Package ratelimit throttles repeated failed access attempts per
// client. State lives in the database so blocks survive restarts.
package ratelimit

import (
	"log/slog"
	"time"

	"quickaccess/internal/config"
	"quickaccess/internal/db"
)

// Limiter applies the configured attempt window and block duration on
// top of the persistent per-client records.
type Limiter struct {
	db          db.Service
	logger      *slog.Logger
	maxAttempts int
	window      time.Duration
	block       time.Duration
}

// NewLimiter creates a Limiter from the rate-limit configuration.
func NewLimiter(dbService db.Service, cfg config.RateLimitConfig, logger *slog.Logger) *Limiter {
	return &Limiter{
		db:          dbService,
		logger:      logger.With("component", "ratelimit"),
		maxAttempts: cfg.MaxAttempts,
		window:      time.Duration(cfg.WindowMinutes) * time.Minute,
		block:       time.Duration(cfg.BlockMinutes) * time.Minute,
	}
}

// IsBlocked reports whether the client is currently blocked. Reads fail
// closed: if the record cannot be loaded the client is treated as
// blocked, since an unreadable store must not bypass abuse protection.
func (l *Limiter) IsBlocked(clientKey string, now time.Time) bool {
	rec, err := l.db.GetRateLimit(clientKey)
	if err != nil {
		l.logger.Error("Rate limit state unreadable, failing closed", "client", clientKey, "error", err)
		return true
	}
	return rec != nil && rec.Blocked(now)
}

// TimeRemaining returns how long the client stays blocked, or zero.
func (l *Limiter) TimeRemaining(clientKey string, now time.Time) time.Duration {
	rec, err := l.db.GetRateLimit(clientKey)
	if err != nil || rec == nil || rec.BlockedUntil == nil {
		return 0
	}
	remaining := rec.BlockedUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordAttempt registers the outcome of one access attempt. A success
// deletes the client's record entirely; a failure counts toward the
// block threshold within the current window. Writes fail open: a
// storage error is logged but never blocks the response to the user.
func (l *Limiter) RecordAttempt(clientKey string, success bool) {
	if success {
		if err := l.db.ClearRateLimit(clientKey); err != nil {
			l.logger.Error("Failed to clear rate limit record", "client", clientKey, "error", err)
		}
		return
	}

	blocked, err := l.db.RecordRateLimitFailure(clientKey, l.maxAttempts, l.window, l.block)
	if err != nil {
		l.logger.Error("Failed to record attempt", "client", clientKey, "error", err)
		return
	}
	if blocked {
		l.logger.Warn("Client blocked after repeated failures",
			"client", clientKey,
			"max_attempts", l.maxAttempts,
			"block_duration", l.block,
		)
	}
}

// Sweep garbage-collects stale trackers. Run out-of-band by the
// scheduler, never on the request path.
func (l *Limiter) Sweep() (int64, error) {
	return l.db.SweepRateLimits(l.window)
}

// Package scheduler runs the periodic maintenance that must stay off
// the request path: rate-limit sweeps and audit-log retention pruning.
package scheduler

import (
	"log/slog"
	"time"

	"quickaccess/internal/audit"
	"quickaccess/internal/config"
	"quickaccess/internal/ratelimit"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron instance and the maintenance jobs.
type Scheduler struct {
	c         *cron.Cron
	limiter   *ratelimit.Limiter
	audit     *audit.Recorder
	retention time.Duration
	interval  string
	logger    *slog.Logger
}

// New creates a Scheduler from the configuration.
func New(limiter *ratelimit.Limiter, recorder *audit.Recorder, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		c:         cron.New(),
		limiter:   limiter,
		audit:     recorder,
		retention: time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour,
		interval:  cfg.Scheduler.MaintenanceInterval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers the maintenance job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.interval, s.RunMaintenance); err != nil {
		return err
	}
	s.c.Start()
	return nil
}

// Stop halts the cron loop.
func (s *Scheduler) Stop() {
	s.c.Stop()
}

// RunMaintenance sweeps stale rate-limit records and prunes audit
// entries past the retention period. Exported so operators and tests
// can trigger a run directly.
func (s *Scheduler) RunMaintenance() {
	swept, err := s.limiter.Sweep()
	if err != nil {
		s.logger.Error("Rate limit sweep failed", "error", err)
	} else if swept > 0 {
		s.logger.Info("Swept stale rate limit records", "count", swept)
	}

	purged, err := s.audit.Purge(s.retention)
	if err != nil {
		s.logger.Error("Audit log purge failed", "error", err)
	} else if purged > 0 {
		s.logger.Info("Purged old audit log entries", "count", purged)
	}
}

package scheduler

import (
	"testing"
	"time"

	"quickaccess/internal/audit"
	"quickaccess/internal/config"
	"quickaccess/internal/db"
	"quickaccess/internal/logger"
	"quickaccess/internal/model"
	"quickaccess/internal/ratelimit"

	"github.com/stretchr/testify/assert"
)

func setupScheduler(t *testing.T, interval string) (*Scheduler, db.Service) {
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}

	log := logger.New(false)
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{MaxAttempts: 5, WindowMinutes: 15, BlockMinutes: 60},
		Logging:   config.LoggingConfig{RetentionDays: 1},
		Scheduler: config.SchedulerConfig{MaintenanceInterval: interval},
	}

	limiter := ratelimit.NewLimiter(service, cfg.RateLimit, log)
	recorder := audit.NewRecorder(service, true, log)
	return New(limiter, recorder, cfg, log), service
}

func TestRunMaintenance(t *testing.T) {
	sched, service := setupScheduler(t, "@hourly")

	// Stale rate-limit record, past its window and never blocked.
	service.GetDB().Create(&model.RateLimitRecord{
		ClientKey:   "stale",
		Attempts:    2,
		WindowStart: time.Now().Add(-2 * time.Hour),
	})

	// Audit entry past the 1-day retention, plus a fresh one.
	old := model.AuditLogEntry{ClientKey: "1.1.1.1", Status: model.AuditStatusDenied}
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	service.GetDB().Create(&old)
	service.GetDB().Create(&model.AuditLogEntry{ClientKey: "2.2.2.2", Status: model.AuditStatusSuccess})

	sched.RunMaintenance()

	rec, err := service.GetRateLimit("stale")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	_, total, err := service.ListAuditLogs(db.AuditListOptions{})
	assert.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestRunMaintenanceIsIdempotent(t *testing.T) {
	sched, service := setupScheduler(t, "@hourly")

	sched.RunMaintenance()
	sched.RunMaintenance()

	_, total, err := service.ListAuditLogs(db.AuditListOptions{})
	assert.NoError(t, err)
	assert.Zero(t, total)
}

func TestStartRejectsBadInterval(t *testing.T) {
	sched, _ := setupScheduler(t, "not a cron spec")
	assert.Error(t, sched.Start())
}

func TestStartAndStop(t *testing.T) {
	sched, _ := setupScheduler(t, "@hourly")
	assert.NoError(t, sched.Start())
	sched.Stop()
}

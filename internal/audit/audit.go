// Package audit writes the append-only access log. Writes are
// best-effort: a failed insert is logged and swallowed, it never
// affects the response to the user.
package audit

import (
	"log/slog"
	"time"

	"quickaccess/internal/db"
	"quickaccess/internal/model"
)

// Recorder appends audit entries when logging is enabled.
type Recorder struct {
	db      db.Service
	logger  *slog.Logger
	enabled bool
}

// NewRecorder creates a Recorder. When enabled is false, Record is a
// no-op.
func NewRecorder(dbService db.Service, enabled bool, logger *slog.Logger) *Recorder {
	return &Recorder{
		db:      dbService,
		logger:  logger.With("component", "audit"),
		enabled: enabled,
	}
}

// Record appends one dispatch outcome.
func (r *Recorder) Record(linkID, userID *uint, clientKey, userAgent, status, message string) {
	if !r.enabled {
		return
	}
	entry := &model.AuditLogEntry{
		LinkID:    linkID,
		UserID:    userID,
		ClientKey: clientKey,
		UserAgent: userAgent,
		Status:    status,
		Message:   message,
	}
	if err := r.db.AppendAuditLog(entry); err != nil {
		r.logger.Error("Failed to write audit log entry", "status", status, "error", err)
	}
}

// Purge deletes entries older than the retention period.
func (r *Recorder) Purge(retention time.Duration) (int64, error) {
	return r.db.PurgeAuditLogs(retention)
}

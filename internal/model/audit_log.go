package model

import "gorm.io/gorm"

// Audit log entry statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusDenied  = "denied"
	AuditStatusInvalid = "invalid"
)

// AuditLogEntry is an append-only record of one dispatch outcome.
// LinkID is nullable so entries survive link deletion.
type AuditLogEntry struct {
	gorm.Model
	LinkID    *uint  `gorm:"index" json:"link_id"`
	UserID    *uint  `json:"user_id"`
	ClientKey string `gorm:"type:varchar(64);not null" json:"client_key"`
	UserAgent string `gorm:"type:varchar(512)" json:"user_agent"`
	Status    string `gorm:"type:varchar(20);index;not null" json:"status"`
	Message   string `gorm:"type:varchar(512)" json:"message"`
}

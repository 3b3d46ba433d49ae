package model

import (
	"time"

	"gorm.io/gorm"
)

// RateLimitRecord tracks failed access attempts for a single client.
// There is at most one record per client key.
type RateLimitRecord struct {
	gorm.Model
	ClientKey    string     `gorm:"type:varchar(64);uniqueIndex;not null"`
	Attempts     int        `gorm:"default:0;not null"`
	WindowStart  time.Time  `gorm:"not null"`
	BlockedUntil *time.Time `gorm:"default:null"`
}

// Blocked reports whether the client is blocked at the given time.
func (r *RateLimitRecord) Blocked(now time.Time) bool {
	return r.BlockedUntil != nil && r.BlockedUntil.After(now)
}

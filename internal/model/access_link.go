package model

import (
	"time"

	"gorm.io/gorm"
)

// AccessLink maps a short slug to the user it signs in. Visiting the
// slug's URL establishes a session for that user, subject to the
// active flag, expiry and the usage limit.
type AccessLink struct {
	gorm.Model
	Slug        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	UserID      uint       `gorm:"not null" json:"user_id"`
	RedirectURL string     `gorm:"type:varchar(2048)" json:"redirect_url"`
	MaxUses     int        `gorm:"default:0;not null" json:"max_uses"`
	CurrentUses int        `gorm:"default:0;not null" json:"current_uses"`
	ExpiresAt   *time.Time `gorm:"default:null" json:"expires_at"`
	Active      bool       `gorm:"default:true;not null" json:"active"`
}

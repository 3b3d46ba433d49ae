package model

import "gorm.io/gorm"

// User is the identity record an access link points at. The link
// engine only references users; account management lives elsewhere.
type User struct {
	gorm.Model
	Username    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email       string `gorm:"type:varchar(255)" json:"email"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
}

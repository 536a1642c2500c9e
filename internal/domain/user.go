// Package domain defines the persistent data model shared by the chat core
// and its external collaborators (the auth, room and file services own most
// of these tables; the chat core mostly reads them).
package domain

import "time"

// User mirrors the account record owned by the auth service. The chat core
// never mutates users; it reads them for profile lookups.
type User struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Email           string    `gorm:"uniqueIndex;size:191;not null"`
	Username        string    `gorm:"size:191;not null"`
	PasswordHash    string    `gorm:"column:password_hash;type:text;not null"`
	ProfileImageURL string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	IsActive        bool      `gorm:"not null;default:true"`
}

// Profile is the narrow read view the chat core needs when rendering member
// lists and message frames.
type Profile struct {
	UserID    string
	Username  string
	Email     string
	AvatarURL string
}

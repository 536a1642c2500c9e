package domain

import "time"

// Room is a named chat channel. Rooms are created and mutated by the room
// service; the chat core only checks existence and reads metadata.
type Room struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"size:191;not null"`
	Description string    `gorm:"type:text"`
	CreatorID   string    `gorm:"index;size:36;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	IsPrivate   bool      `gorm:"not null;default:false"`
}

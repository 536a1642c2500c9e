package domain

import "time"

// Membership authorizes a user to join and read a room. The chat core reads
// it during join validation and touches LastReadAt on successful joins.
type Membership struct {
	ID         string     `gorm:"primaryKey;size:36"`
	RoomID     string     `gorm:"uniqueIndex:idx_room_user;size:36;not null"`
	UserID     string     `gorm:"uniqueIndex:idx_room_user;index;size:36;not null"`
	JoinedAt   time.Time  `gorm:"autoCreateTime"`
	IsAdmin    bool       `gorm:"not null;default:false"`
	LastReadAt *time.Time
}

// TableName keeps the table name shared with the room service.
func (Membership) TableName() string { return "room_users" }

// Member is the (user, role) pair returned by membership listings.
type Member struct {
	UserID  string
	IsAdmin bool
}

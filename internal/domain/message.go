package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is one persisted chat message. Created exactly once per accepted
// inbound frame, immediately before fan-out, and immutable afterwards.
// UserID is nullable because accounts may be deleted after the fact while
// the username snapshot stays readable.
type Message struct {
	ID           string    `gorm:"primaryKey;size:36"`
	RoomID       string    `gorm:"index:idx_room_time;size:36;not null"`
	UserID       *string   `gorm:"size:36"`
	Username     string    `gorm:"size:191;not null"`
	Text         string    `gorm:"type:text;not null"`
	Timestamp    time.Time `gorm:"index:idx_room_time;not null"`
	ConnectionID string    `gorm:"column:socket_id;size:36"`
	FileInfo     string    `gorm:"type:text"` // raw JSON attachment descriptor, empty when absent
}

// FileInfo describes an uploaded attachment as produced by the file service.
type FileInfo struct {
	FileName    string `json:"fileName"`
	FileURL     string `json:"fileUrl"`
	FileSize    int64  `json:"fileSize,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// ParseFileInfo decodes the raw attachment descriptor, returning nil when the
// message carries no attachment.
func (m *Message) ParseFileInfo() (*FileInfo, error) {
	if m.FileInfo == "" || m.FileInfo == "null" {
		return nil, nil
	}
	var fi FileInfo
	if err := json.Unmarshal([]byte(m.FileInfo), &fi); err != nil {
		return nil, fmt.Errorf("unmarshal file info for message %s: %w", m.ID, err)
	}
	return &fi, nil
}

// SetFileInfo stores the raw descriptor bytes. Callers pass the client's
// fileInfo payload through untouched so the file service stays the single
// authority on its shape.
func (m *Message) SetFileInfo(raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		m.FileInfo = ""
		return
	}
	m.FileInfo = string(raw)
}

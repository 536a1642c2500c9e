// Package dto holds the wire shapes of the room streaming protocol and of
// the plain history/presence endpoints.
package dto

import "encoding/json"

// Frame type tags. Unrecognized inbound tags are ignored by the session so
// newer clients can speak to older servers.
const (
	FrameJoin             = "join"
	FrameMessage          = "message"
	FramePreviousMessages = "previousMessages"
	FrameRoomMembers      = "roomMembers"
	FrameError            = "error"
)

// InboundFrame is the superset of fields a client may send. Type selects
// which of them are meaningful.
type InboundFrame struct {
	Type     string          `json:"type"`
	UserID   string          `json:"user_id,omitempty"`
	Username string          `json:"username,omitempty"`
	Text     string          `json:"text,omitempty"`
	FileInfo json.RawMessage `json:"fileInfo,omitempty"`
}

// MessageView is one message as rendered to clients, both in history replay
// and in live fan-out. Timestamp is RFC 3339 in UTC.
type MessageView struct {
	Type            string          `json:"type,omitempty"`
	ID              string          `json:"id"`
	UserID          *string         `json:"user_id"`
	Username        string          `json:"username"`
	Text            string          `json:"text"`
	Timestamp       string          `json:"timestamp"`
	SocketID        string          `json:"socketId"`
	FileInfo        json.RawMessage `json:"fileInfo,omitempty"`
	ProfileImageURL string          `json:"profile_image_url,omitempty"`
}

// MemberView is one room member with their live online flag.
type MemberView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	IsOnline bool   `json:"is_online"`
}

// PreviousMessagesFrame replays recent history to a freshly joined client.
type PreviousMessagesFrame struct {
	Type     string        `json:"type"`
	Messages []MessageView `json:"messages"`
}

// RoomMembersFrame carries the membership-with-online-status list.
type RoomMembersFrame struct {
	Type    string       `json:"type"`
	Members []MemberView `json:"members"`
}

// ErrorFrame reports a terminal or per-message error to one client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OnlineUser is one entry of the administrative online summary.
type OnlineUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Rooms    []string `json:"rooms"`
}

func NewPreviousMessages(messages []MessageView) PreviousMessagesFrame {
	if messages == nil {
		messages = []MessageView{}
	}
	return PreviousMessagesFrame{Type: FramePreviousMessages, Messages: messages}
}

func NewRoomMembers(members []MemberView) RoomMembersFrame {
	if members == nil {
		members = []MemberView{}
	}
	return RoomMembersFrame{Type: FrameRoomMembers, Members: members}
}

func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

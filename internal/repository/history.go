package repository

import (
	"context"
	"time"

	"github.com/wookja-0/messenger-service/internal/domain"
)

// HistoryRepository is the chat core's view of the relational store: the
// persisted message log plus the room and membership records needed to
// authorize joins. One implementation call is always safe to issue from
// multiple session goroutines concurrently.
type HistoryRepository interface {
	// RoomExists reports whether the room id refers to a known room.
	RoomExists(ctx context.Context, roomID string) (bool, error)

	// GetMembership returns the membership record for (roomID, userID), or
	// ErrMembershipNotFound when the user is not a member.
	GetMembership(ctx context.Context, roomID, userID string) (*domain.Membership, error)

	// TouchLastRead updates last_read_at for (roomID, userID).
	TouchLastRead(ctx context.Context, roomID, userID string, at time.Time) error

	// InsertMessage persists a new message. A zero ID or Timestamp is
	// assigned by the repository before the row is written.
	InsertMessage(ctx context.Context, msg *domain.Message) error

	// ListRecentMessages returns the most recent limit messages of the room
	// in ascending timestamp order.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	// ListMembers returns every membership of the room.
	ListMembers(ctx context.Context, roomID string) ([]domain.Member, error)

	// GetUserProfile returns the display profile of a user, or
	// ErrUserNotFound.
	GetUserProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

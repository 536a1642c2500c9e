package repository

import (
	"context"
	"time"
)

// PresenceStore tracks which users are currently connected to which rooms in
// a shared set store so multiple gateway instances see the same view.
// Entries carry a sliding expiry refreshed on every Add; a process that dies
// without Remove self-heals once the expiry lapses. Presence is advisory:
// callers treat store failures as "no presence tracked", never as session
// failures.
type PresenceStore interface {
	// Add marks the user online in the room and refreshes the expiry of
	// both the room index and the reverse user index.
	Add(ctx context.Context, roomID, userID string) error

	// Remove deletes the user from the room index and the room from the
	// user index, keeping the two in lockstep.
	Remove(ctx context.Context, roomID, userID string) error

	// MembersOfRoom returns the set of user ids online in the room.
	MembersOfRoom(ctx context.Context, roomID string) (map[string]struct{}, error)

	// RoomsOfUser returns the rooms the user is currently online in.
	RoomsOfUser(ctx context.Context, userID string) ([]string, error)

	// OnlineUserIDs enumerates every user with a live presence record.
	OnlineUserIDs(ctx context.Context) ([]string, error)
}

// RateLimiter is the optional fixed-window rate limit check backed by the
// same store. Remaining is how many requests are left in the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

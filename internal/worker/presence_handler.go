package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/wookja-0/messenger-service/internal/hub"
	"github.com/wookja-0/messenger-service/internal/repository"
)

// PresenceRefreshHandler re-adds a presence record for every live session,
// which refreshes the 1-hour sliding expiry on both presence indexes. A
// session that died uncleanly is absent from the hub and simply ages out.
type PresenceRefreshHandler struct {
	registry *hub.Hub
	presence repository.PresenceStore
}

// NewPresenceRefreshHandler creates a PresenceRefreshHandler.
func NewPresenceRefreshHandler(registry *hub.Hub, presence repository.PresenceStore) *PresenceRefreshHandler {
	if registry == nil {
		panic("Hub cannot be nil for PresenceRefreshHandler")
	}
	if presence == nil {
		panic("PresenceStore cannot be nil for PresenceRefreshHandler")
	}
	return &PresenceRefreshHandler{registry: registry, presence: presence}
}

// ProcessTask handles one presence:refresh tick. Presence is advisory, so
// individual store failures are logged and the task still succeeds.
func (h *PresenceRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	sessions := h.registry.ActiveSessions()

	type pair struct{ roomID, userID string }
	seen := make(map[pair]struct{}, len(sessions))
	refreshed, failed := 0, 0

	for _, session := range sessions {
		if session.UserID == "" {
			continue
		}
		key := pair{session.RoomID, session.UserID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := h.presence.Add(ctx, session.RoomID, session.UserID); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": session.RoomID,
				"user_id": session.UserID,
			}).WithError(err).Warn("Presence refresh failed for session")
			failed++
			continue
		}
		refreshed++
	}

	logrus.WithFields(logrus.Fields{
		"refreshed": refreshed,
		"failed":    failed,
	}).Debug("Presence refresh tick complete")
	return nil
}

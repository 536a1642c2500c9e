// Package websocket upgrades inbound streaming connections and hands them to
// the session protocol.
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wookja-0/messenger-service/internal/hub"
)

// Handler accepts connections on /ws/:roomId. Room existence and membership
// are validated by the session protocol once the join frame arrives; the
// handler only needs the verified token identity from the auth middleware.
type Handler struct {
	upgrader websocket.Upgrader
	registry *hub.Hub
	sessions hub.SessionHandler
}

// NewHandler creates a websocket Handler.
func NewHandler(registry *hub.Hub, sessions hub.SessionHandler) *Handler {
	if registry == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	if sessions == nil {
		panic("SessionHandler cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers enforce the token on the request; cross-origin
			// upgrades are allowed the same way the other services allow
			// cross-origin API calls.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: registry,
		sessions: sessions,
	}
}

// HandleConnection handles GET /ws/:roomId.
func (h *Handler) HandleConnection(c *gin.Context) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userID, ok := userIDAny.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room id is required"})
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logCtx.WithError(err).Error("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.registry, conn, h.sessions, uuid.NewString(), roomID, userID)
	logCtx.WithField("conn_id", client.ID()).Info("Connection upgraded, starting session")
	client.Run()
}

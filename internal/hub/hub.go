// Package hub owns the in-process connection registry: which live
// connections belong to which room, and the session identity attached to
// each connection. It is constructed once at startup and handed to every
// session; there is no package-level state.
package hub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionInfo is a read-only snapshot of one live, joined session.
type SessionInfo struct {
	ConnID string
	RoomID string
	UserID string
}

// Hub maps rooms to their live connections and connections to their session
// identity. The two maps are mutated together under one lock so a connection
// id is either present in both or in neither.
type Hub struct {
	mu sync.RWMutex
	// room id -> connection id -> client
	rooms map[string]map[string]*Client
	// connection id -> client, the session table
	sessions map[string]*Client
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		sessions: make(map[string]*Client),
	}
}

// Register adds the client under its room bucket, creating the bucket if
// absent, and records its session entry.
func (h *Hub) Register(c *Client) {
	if c == nil {
		logrus.Error("hub: attempted to register a nil client")
		return
	}
	h.mu.Lock()
	bucket, ok := h.rooms[c.RoomID()]
	if !ok {
		bucket = make(map[string]*Client)
		h.rooms[c.RoomID()] = bucket
	}
	bucket[c.ID()] = c
	h.sessions[c.ID()] = c
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": c.RoomID(),
		"user_id": c.UserID(),
		"conn_id": c.ID(),
	}).Info("Client registered to hub")
}

// Unregister removes the connection from its room bucket and from the
// session table. An already-removed connection is a no-op, so teardown is
// safe to run more than once. Empty buckets are deleted for memory hygiene.
func (h *Hub) Unregister(roomID, connID string) {
	h.mu.Lock()
	if bucket, ok := h.rooms[roomID]; ok {
		delete(bucket, connID)
		if len(bucket) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.sessions, connID)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": connID,
	}).Debug("Client unregistered from hub")
}

// Broadcast sends payload to every connection registered under roomID at the
// time of the call, except excludeConnID (pass "" to include everyone). The
// recipient set is snapshotted under the read lock and the lock released
// before any send, so concurrent register/unregister calls never observe a
// torn bucket and no I/O happens under the lock. A recipient whose send
// buffer is unavailable does not abort delivery to the rest; it is torn down
// after the pass completes.
func (h *Hub) Broadcast(roomID string, payload []byte, excludeConnID string) {
	h.mu.RLock()
	bucket := h.rooms[roomID]
	recipients := make([]*Client, 0, len(bucket))
	for connID, client := range bucket {
		if connID == excludeConnID {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	var failed []*Client
	for _, client := range recipients {
		if !client.trySend(payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": client.UserID(),
			"conn_id": client.ID(),
		}).Warn("Broadcast send failed, tearing down recipient")
		// Teardown runs repository calls; keep it off the broadcaster's
		// goroutine.
		go client.Teardown()
	}
}

// Contains reports whether the connection is currently registered under the
// room.
func (h *Hub) Contains(roomID, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bucket, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = bucket[connID]
	return ok
}

// RoomSize returns the number of live connections in the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ActiveSessions snapshots every joined session, for the presence refresh
// worker and the online invariants.
func (h *Hub) ActiveSessions() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]SessionInfo, 0, len(h.sessions))
	for connID, client := range h.sessions {
		sessions = append(sessions, SessionInfo{
			ConnID: connID,
			RoomID: client.RoomID(),
			UserID: client.UserID(),
		})
	}
	return sessions
}

// Package tasks defines the asynq task types exchanged between the gateway
// and the worker.
package tasks

import "encoding/json"

const (
	// TypePresenceRefresh re-asserts presence for every live session so the
	// sliding expiry never lapses under a long-lived quiet connection.
	TypePresenceRefresh = "presence:refresh"
)

// PresenceRefreshPayload is currently empty; the worker reads the live
// session set from the hub when the task runs, not from the payload.
type PresenceRefreshPayload struct{}

// NewPresenceRefreshTask builds the payload for a presence refresh task.
func NewPresenceRefreshTask() ([]byte, error) {
	return json.Marshal(PresenceRefreshPayload{})
}

package service

import "errors"

// Session and query errors. The messages double as the protocol error tokens
// emitted in error frames, so they stay short and stable.
var (
	ErrRoomNotFound = errors.New("room_not_found")
	ErrForbidden    = errors.New("forbidden")
	ErrProtocol     = errors.New("protocol_error")
	ErrPersistence  = errors.New("persistence_failure")
	ErrInternal     = errors.New("internal_error")
)

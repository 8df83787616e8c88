package room

import "errors"

// Typed failures surfaced to callers for user-facing handling. The
// gateway maps each to a status code; an embedded caller checks them
// with errors.Is.
var (
	ErrAuthenticationRequired = errors.New("room: authentication required")
	ErrNotFound               = errors.New("room: not found")
	ErrWrongPassword          = errors.New("room: wrong password")
	ErrRoomFull               = errors.New("room: room full")
	ErrStoreUnavailable       = errors.New("room: store unavailable")
	ErrInvalidConfig          = errors.New("room: invalid room config")
)

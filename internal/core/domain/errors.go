package domain

import "errors"

var (
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomAlreadyExists  = errors.New("room already exists")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPersistence marks the durable store as unavailable. It is fatal to
	// the specific append call and is the only error class escalated as a
	// system-health signal; it never crashes other rooms.
	ErrPersistence = errors.New("durable store unavailable")

	// ErrTransport marks a failed outbound delivery. It tears the connection
	// down; the client reconnects and resumes.
	ErrTransport = errors.New("transport failure")
)

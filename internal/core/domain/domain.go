package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the persistent identity behind a connection.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is a named channel with an append-only, sequenced message log.
type Room struct {
	ID        uuid.UUID
	Name      string
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// AttachmentRef points at a blob already uploaded to external object
// storage. Only the reference travels with the message.
type AttachmentRef struct {
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is immutable once its sequence number is assigned. Seq is unique
// and strictly increasing within a room, starting at 1, with no gaps.
type Message struct {
	ID         uuid.UUID
	RoomID     uuid.UUID
	SenderID   uuid.UUID
	Seq        int64
	Payload    string
	Attachment *AttachmentRef
	CreatedAt  time.Time
}

// ConnState is the lifecycle of a single websocket connection.
//
//	Connecting -> Authenticated -> Subscribed -> Draining -> Closed
//
// Abrupt network loss goes Subscribed -> Closed directly; the client is
// expected to reconnect and resume with its last-seen seq per room.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateSubscribed
	StateDraining
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

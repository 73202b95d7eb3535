package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository handles the persistent identity.
type UserRepository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// RoomRepository handles room lifecycle and the membership table backing
// the join ACL check.
type RoomRepository interface {
	CreateRoom(ctx context.Context, r *Room) error
	GetRoomByID(ctx context.Context, roomID uuid.UUID) (*Room, error)
	AddMember(ctx context.Context, roomID, userID uuid.UUID) error
	// IsMember is the boolean ACL contract consulted on every join.
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// MessageRepository is the append-only durable log.
type MessageRepository interface {
	// AppendWithSeq persists msg with seq = current max + 1 in one atomic
	// transaction and returns the assigned seq. The counter is derived from
	// persisted state: a failed insert consumes no sequence number. Callers
	// must hold the room's ordering section.
	AppendWithSeq(ctx context.Context, msg *Message) (int64, error)
	// RangeAfter returns up to limit messages with seq > sinceSeq, ascending.
	RangeAfter(ctx context.Context, roomID uuid.UUID, sinceSeq int64, limit int) ([]Message, error)
}

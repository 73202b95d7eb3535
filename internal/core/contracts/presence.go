package contracts

import (
	"context"
	"time"
)

// PresenceStore tracks which users are online per room (ZSET per room).
type PresenceStore interface {
	// UpdateOnlineStatus refreshes the TTL-based membership of a user.
	UpdateOnlineStatus(ctx context.Context, roomID, userID string, ttl time.Duration) error
	// GetOnlineUsers returns user ids seen within the liveness window.
	GetOnlineUsers(ctx context.Context, roomID string) ([]string, error)
	// RemoveUser drops a user from the room's online set.
	RemoveUser(ctx context.Context, roomID, userID string) error
	// ClearRoom deletes the whole online set.
	ClearRoom(ctx context.Context, roomID string) error
}

package contracts

import (
	"context"
	"livechat/internal/core/domain"
	"time"
)

// Registry is the process-wide connection table plus the per-room
// subscription sets. It is created at startup, injected into services and
// torn down on shutdown; nothing reaches it as ambient global state.
type Registry interface {
	// Register adds a connection. Enforces the per-user connection cap by
	// evicting that user's oldest connection when exceeded.
	Register(c Client) error
	// Unregister removes the connection and every room subscription it
	// holds. Idempotent: unregistering an unknown id is a no-op.
	Unregister(connID string)
	// Lookup returns the connection or domain.ErrConnectionNotFound.
	Lookup(connID string) (Client, error)
	// ConnectionsFor returns all live connections of one user.
	ConnectionsFor(userID string) []Client

	// Join subscribes the connection to a room. The subscription set is
	// mutated under the registry lock so it never dangles on either side.
	Join(connID, roomID string) error
	// Leave is idempotent; leaving a room never joined is a no-op.
	Leave(connID, roomID string)
	// Subscribers snapshots the live subscription set of a room.
	Subscribers(roomID string) []Client

	// Broadcast enqueues the message onto every subscribed connection's
	// outbound queue, skipping any whose queue is full.
	Broadcast(ctx context.Context, roomID string, msg domain.ChatMessage)
	// BroadcastPresence pushes a presence event to a room's subscribers.
	BroadcastPresence(ctx context.Context, roomID string, ev domain.PresenceEvent)
	// SendAck targets one connection with a persisted-confirmation.
	SendAck(ctx context.Context, connID string, ack domain.AckMessage)

	// DrainAll flips every connection to draining and flushes outbound
	// queues; part of graceful shutdown.
	DrainAll()
	Close()
}

// Client is the minimal surface the registry needs from one websocket
// connection.
type Client interface {
	ID() string
	UserID() string
	// TrySend enqueues without blocking; false means the outbound queue is
	// full and the caller should treat this delivery as dropped.
	TrySend(data []byte) bool
	// TrySendRoom enqueues a sequenced room frame. Each room's delivery is
	// kept strictly increasing per connection: a frame at or below the
	// room's watermark was already enqueued through another path and is
	// suppressed (reported as delivered). False still means a full queue.
	TrySendRoom(roomID string, seq int64, data []byte) bool
	// Drain stops inbound processing, flushes the outbound queue, then
	// closes the transport.
	Drain()
	Close()
	State() domain.ConnState
	LastActive() time.Time
}

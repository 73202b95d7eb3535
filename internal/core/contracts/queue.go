package contracts

import "context"

// MessageQueue is the per-room stream carrying already-sequenced messages
// from the ingest path to the room's dispatch worker. Entries are appended
// in seq order and consumed by exactly one worker per room, which preserves
// the ordering guarantee end to end.
type MessageQueue interface {
	// PublishToStream appends a sequenced message to the room's stream.
	PublishToStream(ctx context.Context, roomID string, payload []byte) error
	// SubscribeToStream runs the reliable consumer loop for one room.
	SubscribeToStream(ctx context.Context, roomID, group string, handler func(ctx context.Context, messageID string, data []byte) error) error
	// AcknowledgeMessage confirms a fully dispatched entry.
	AcknowledgeMessage(ctx context.Context, roomID, group, msgID string) error
	// DeleteMessage removes a dispatched entry from the stream.
	DeleteMessage(ctx context.Context, roomID, msgID string) error
	// DeleteStream removes the room's stream entirely.
	DeleteStream(ctx context.Context, roomID string) error
}

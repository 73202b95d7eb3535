package contracts

import "context"

// AsyncWorker is the per-room dispatch loop: it consumes the room stream
// serially and fans each message out to the local subscribers.
type AsyncWorker interface {
	// Run starts the consumer loop for one room; returns when ctx ends.
	Run(ctx context.Context, roomID string) error
	// ProcessMessage dispatches one stream entry, then acks and deletes it.
	ProcessMessage(ctx context.Context, msgID string, raw []byte) error
}

package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"
)

// RoomWorker is the broadcast dispatcher for one room: a single consumer
// draining the room's stream in order and fanning each message out to the
// live subscription set. One worker per room is what keeps delivery order
// identical to sequence order for every subscriber.
type RoomWorker struct {
	log      *slog.Logger
	queue    contracts.MessageQueue
	registry contracts.Registry
	group    string
}

var _ contracts.AsyncWorker = (*RoomWorker)(nil)

func NewRoomWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	registry contracts.Registry,
	group string,
) *RoomWorker {
	return &RoomWorker{
		log:      log,
		queue:    queue,
		registry: registry,
		group:    group,
	}
}

func (w *RoomWorker) Run(ctx context.Context, roomID string) error {
	w.log.InfoContext(ctx, "worker - run - consuming room stream", "room_id", roomID, "group", w.group)
	return w.queue.SubscribeToStream(ctx, roomID, w.group, w.ProcessMessage)
}

func (w *RoomWorker) ProcessMessage(ctx context.Context, msgID string, raw []byte) error {
	var msg domain.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.log.Error("worker - process message - bad payload", "message_id", msgID)
		return err
	}
	w.registry.Broadcast(ctx, msg.RoomID, msg)

	if err := w.queue.AcknowledgeMessage(ctx, msg.RoomID, w.group, msgID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - ack failed", "message_id", msgID, "err", err)
		return err
	}
	// Dispatched and acked; trim the stream. Failure here is cosmetic.
	if err := w.queue.DeleteMessage(ctx, msg.RoomID, msgID); err != nil {
		w.log.WarnContext(ctx, "worker - process message - delete failed", "message_id", msgID, "err", err)
	}
	return nil
}

package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisMessageQueue carries sequenced messages through one stream per
// room. Producers append under the room's ordering section, so stream
// order equals seq order; a single consumer per room keeps it that way.
type RedisMessageQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisMessageQueue(log *slog.Logger, rdb *redis.Client) *RedisMessageQueue {
	return &RedisMessageQueue{log: log, rdb: rdb}
}

func (q *RedisMessageQueue) streamKey(roomID string) string {
	return "stream:" + roomID
}

func (q *RedisMessageQueue) PublishToStream(ctx context.Context, roomID string, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey(roomID),
		MaxLen: 1000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

func (q *RedisMessageQueue) SubscribeToStream(
	ctx context.Context,
	roomID string,
	group string,
	handler func(ctx context.Context, messageID string, data []byte) error,
) error {
	topic := q.streamKey(roomID)
	err := q.rdb.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	consumerName := uuid.NewString()
	q.reclaimPending(ctx, topic, group, consumerName, handler)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumerName,
				Streams:  []string{topic, ">"},
				Count:    16,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					q.log.Error("queue - stream read failed", "stream", topic, "err", err)
				}
				continue
			}
			for _, stream := range res {
				for _, msg := range stream.Messages {
					raw, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
						q.log.Error("queue - handler failed", "stream", topic, "message_id", msg.ID, "err", err)
					}
				}
			}
		}
	}
}

// reclaimPending takes over entries a previous consumer read but never
// acked, so a worker crash mid-dispatch does not strand them. The old
// consumer is always gone before a new one starts (one worker per room),
// so no minimum idle time is required.
func (q *RedisMessageQueue) reclaimPending(
	ctx context.Context,
	topic, group, consumerName string,
	handler func(ctx context.Context, messageID string, data []byte) error,
) {
	start := "0-0"
	for {
		msgs, next, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   topic,
			Group:    group,
			Consumer: consumerName,
			MinIdle:  0,
			Start:    start,
			Count:    64,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				q.log.Error("queue - pending reclaim failed", "stream", topic, "err", err)
			}
			return
		}
		for _, msg := range msgs {
			raw, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
				q.log.Error("queue - handler failed", "stream", topic, "message_id", msg.ID, "err", err)
			}
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (q *RedisMessageQueue) AcknowledgeMessage(ctx context.Context, roomID, group, msgID string) error {
	return q.rdb.XAck(ctx, q.streamKey(roomID), group, msgID).Err()
}

func (q *RedisMessageQueue) DeleteMessage(ctx context.Context, roomID, msgID string) error {
	return q.rdb.XDel(ctx, q.streamKey(roomID), msgID).Err()
}

func (q *RedisMessageQueue) DeleteStream(ctx context.Context, roomID string) error {
	return q.rdb.Del(ctx, q.streamKey(roomID)).Err()
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"
	"livechat/internal/platform/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("livechat-core")

// Sequencer assigns each accepted message its per-room sequence number and
// persists it before anything else sees it. Concurrent appends to the same
// room are serialized by a per-room mutex; appends to different rooms
// proceed independently. The stream publish happens inside the critical
// section so stream order always matches seq order.
type Sequencer struct {
	repo      domain.MessageRepository
	queue     contracts.MessageQueue
	txManager Transactor
	log       *slog.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*sync.Mutex
}

func NewSequencer(
	log *slog.Logger,
	repo domain.MessageRepository,
	queue contracts.MessageQueue,
	txManager Transactor,
) *Sequencer {
	return &Sequencer{
		log:       log,
		repo:      repo,
		queue:     queue,
		txManager: txManager,
		rooms:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Sequencer) roomLock(roomID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.rooms[roomID] = l
	}
	return l
}

// Append durably sequences one message and publishes it to the room
// stream. On persistence failure no sequence number is consumed and the
// error wraps domain.ErrPersistence; the caller owns any retry policy.
func (s *Sequencer) Append(
	ctx context.Context,
	roomID, senderID uuid.UUID,
	payload string,
	attachment *domain.AttachmentRef,
) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Sequencer.Append", trace.WithAttributes(
		attribute.String("room_id", roomID.String()),
		attribute.String("sender_id", senderID.String()),
	))
	defer span.End()

	msg := &domain.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   senderID,
		Payload:    payload,
		Attachment: attachment,
		CreatedAt:  time.Now().UTC(),
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	var seq int64
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		seq, txErr = s.repo.AppendWithSeq(txCtx, msg)
		return txErr
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		if !isDomainErr(err) {
			metrics.PersistenceFailures.Inc()
			err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		s.log.ErrorContext(ctx, "sequencer - append - persist failed", "room_id", roomID, "err", err)
		return nil, err
	}
	msg.Seq = seq
	metrics.MessagesSequenced.WithLabelValues(roomID.String()).Inc()

	// Publish while still holding the room section. A publish failure
	// leaves the message durable but undelivered; subscribers heal via
	// backfill, so it is logged and not returned to the sender.
	raw, _ := json.Marshal(domain.ChatMessageFrom(msg))
	if err := s.queue.PublishToStream(ctx, roomID.String(), raw); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "sequencer - append - stream publish failed", "room_id", roomID, "seq", seq, "err", err)
	}

	span.SetAttributes(attribute.Int64("seq", seq))
	s.log.InfoContext(ctx, "sequencer - append - message sequenced", "room_id", roomID, "seq", seq)
	return msg, nil
}

// ForgetRoom releases the room's lock entry once the room has no more
// traffic; called when the last subscriber leaves.
func (s *Sequencer) ForgetRoom(roomID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func isDomainErr(err error) bool {
	for _, d := range []error{domain.ErrRoomNotFound, domain.ErrInvalidRoomID, domain.ErrInvalidUserID} {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

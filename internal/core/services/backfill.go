package services

import (
	"context"
	"log/slog"

	"livechat/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backfill serves the gap of missed messages after reconnect. Reads go
// straight to the durable log, never through the broadcast path, so a
// long-disconnected client can page through its gap without holding
// anything else up.
type Backfill struct {
	repo     domain.MessageRepository
	pageSize int
	log      *slog.Logger
}

func NewBackfill(log *slog.Logger, repo domain.MessageRepository, pageSize int) *Backfill {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Backfill{log: log, repo: repo, pageSize: pageSize}
}

func (b *Backfill) PageSize() int { return b.pageSize }

// Page returns up to one page of messages with seq > sinceSeq, ascending.
// The caller re-invokes with the last seq of the returned page to
// continue; an empty page means the client is caught up.
func (b *Backfill) Page(
	ctx context.Context,
	roomID uuid.UUID,
	sinceSeq int64,
	limit int,
) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Backfill.Page", trace.WithAttributes(
		attribute.String("room_id", roomID.String()),
		attribute.Int64("since_seq", sinceSeq),
	))
	defer span.End()

	if limit <= 0 || limit > b.pageSize {
		limit = b.pageSize
	}
	if sinceSeq < 0 {
		sinceSeq = 0
	}
	msgs, err := b.repo.RangeAfter(ctx, roomID, sinceSeq, limit)
	if err != nil {
		span.RecordError(err)
		b.log.ErrorContext(ctx, "backfill - page - range read failed", "room_id", roomID, "since_seq", sinceSeq, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(msgs)))
	return msgs, nil
}

package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const presenceTTL = 90 * time.Second

// RoomService owns join/leave semantics: the ACL check, the subscription
// mutation on the registry, presence fan-out and the resume replay a
// client declares on join.
type RoomService struct {
	roomRepo domain.RoomRepository
	registry contracts.Registry
	presence contracts.PresenceStore
	backfill *Backfill
	log      *slog.Logger
}

func NewRoomService(
	log *slog.Logger,
	roomRepo domain.RoomRepository,
	registry contracts.Registry,
	presence contracts.PresenceStore,
	backfill *Backfill,
) *RoomService {
	return &RoomService{
		log:      log,
		roomRepo: roomRepo,
		registry: registry,
		presence: presence,
		backfill: backfill,
	}
}

// Join authorizes the connection against the membership table, replays
// any gap the client declared and then subscribes it. Replay runs before
// the subscription is installed so live dispatch cannot overtake the older
// replayed frames; one more page afterwards covers messages appended
// mid-replay, and the client's per-room watermark suppresses anything the
// live path already enqueued.
func (s *RoomService) Join(
	ctx context.Context,
	c contracts.Client,
	roomID string,
	resumeFrom *int64,
) error {
	ctx, span := tracer.Start(ctx, "RoomService.Join", trace.WithAttributes(
		attribute.String("room_id", roomID),
		attribute.String("user_id", c.UserID()),
	))
	defer span.End()

	rid, err := uuid.Parse(roomID)
	if err != nil {
		span.RecordError(err)
		return domain.ErrInvalidRoomID
	}
	if _, err := s.roomRepo.GetRoomByID(ctx, rid); err != nil {
		span.RecordError(err)
		return err
	}
	uid, err := uuid.Parse(c.UserID())
	if err != nil {
		span.RecordError(err)
		return domain.ErrInvalidUserID
	}
	ok, err := s.roomRepo.IsMember(ctx, rid, uid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acl check failed")
		s.log.ErrorContext(ctx, "rooms - join - acl check failed", "room_id", roomID, "user_id", c.UserID(), "err", err)
		return err
	}
	if !ok {
		span.SetStatus(codes.Error, "permission denied")
		return domain.ErrPermissionDenied
	}

	var cursor int64
	if resumeFrom != nil {
		cursor = s.replayGap(ctx, c, rid, *resumeFrom)
	}

	if err := s.registry.Join(c.ID(), roomID); err != nil {
		span.RecordError(err)
		return err
	}
	if resumeFrom != nil {
		// Catch up on anything sequenced while the first replay ran.
		s.replayGap(ctx, c, rid, cursor)
	}

	if err := s.presence.UpdateOnlineStatus(ctx, roomID, c.UserID(), presenceTTL); err != nil {
		// Presence is advisory; the subscription stands.
		s.log.WarnContext(ctx, "rooms - join - presence update failed", "room_id", roomID, "user_id", c.UserID(), "err", err)
	}
	s.publishPresence(ctx, roomID)
	s.log.InfoContext(ctx, "rooms - join - subscribed", "room_id", roomID, "conn_id", c.ID(), "user_id", c.UserID())
	return nil
}

// Leave is idempotent; a second leave of the same room is a no-op.
// Presence is per room: the user goes offline in this room only once no
// connection of theirs remains subscribed to it.
func (s *RoomService) Leave(ctx context.Context, c contracts.Client, roomID string) {
	s.registry.Leave(c.ID(), roomID)
	stillHere := false
	for _, sub := range s.registry.Subscribers(roomID) {
		if sub.UserID() == c.UserID() {
			stillHere = true
			break
		}
	}
	if !stillHere {
		if err := s.presence.RemoveUser(ctx, roomID, c.UserID()); err != nil {
			s.log.WarnContext(ctx, "rooms - leave - presence remove failed", "room_id", roomID, "user_id", c.UserID(), "err", err)
		}
	}
	s.publishPresence(ctx, roomID)
	s.log.InfoContext(ctx, "rooms - leave - unsubscribed", "room_id", roomID, "conn_id", c.ID())
}

// replayGap pages the missed messages straight onto the joining
// connection's queue and returns the last seq it delivered. If the queue
// fills mid-replay, replay stops; the client detects the remaining gap
// from seq numbers and re-resumes.
func (s *RoomService) replayGap(ctx context.Context, c contracts.Client, roomID uuid.UUID, sinceSeq int64) int64 {
	cursor := sinceSeq
	for {
		page, err := s.backfill.Page(ctx, roomID, cursor, 0)
		if err != nil {
			s.log.ErrorContext(ctx, "rooms - replay - backfill page failed", "room_id", roomID, "since_seq", cursor, "err", err)
			return cursor
		}
		if len(page) == 0 {
			return cursor
		}
		for i := range page {
			raw, _ := json.Marshal(domain.ChatMessageFrom(&page[i]))
			if !c.TrySendRoom(roomID.String(), page[i].Seq, raw) {
				s.log.WarnContext(ctx, "rooms - replay - client queue full", "room_id", roomID, "conn_id", c.ID(), "seq", page[i].Seq)
				return cursor
			}
			cursor = page[i].Seq
		}
		if len(page) < s.backfill.PageSize() {
			return cursor
		}
	}
}

func (s *RoomService) publishPresence(ctx context.Context, roomID string) {
	online, err := s.presence.GetOnlineUsers(ctx, roomID)
	if err != nil {
		s.log.WarnContext(ctx, "rooms - presence - read online set failed", "room_id", roomID, "err", err)
		return
	}
	s.registry.BroadcastPresence(ctx, roomID, domain.PresenceEvent{
		Type:   domain.TypePresence,
		RoomID: roomID,
		Online: online,
	})
}

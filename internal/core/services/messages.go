package services

import (
	"context"
	"log/slog"
	"time"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"

	"github.com/google/uuid"
)

// MessageService is the inbound send path: governor admission first, then
// the sequencer, then the persisted ack back to the sender. The broadcast
// itself rides the room stream and is the worker's job.
type MessageService struct {
	governor  *Governor
	sequencer *Sequencer
	registry  contracts.Registry
	log       *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	governor *Governor,
	sequencer *Sequencer,
	registry contracts.Registry,
) *MessageService {
	return &MessageService{
		log:       log,
		governor:  governor,
		sequencer: sequencer,
		registry:  registry,
	}
}

// HandleSend validates and sequences one send frame. A throttled attempt
// returns domain.ErrRateLimited before any sequence number is consumed.
func (s *MessageService) HandleSend(
	ctx context.Context,
	c contracts.Client,
	frame domain.ClientFrame,
) (*domain.Message, error) {
	if err := s.governor.Admit(c.ID()); err != nil {
		s.log.WarnContext(ctx, "messages - send - throttled", "conn_id", c.ID(), "room_id", frame.RoomID)
		return nil, err
	}
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return nil, domain.ErrInvalidRoomID
	}
	senderID, err := uuid.Parse(c.UserID())
	if err != nil {
		return nil, domain.ErrInvalidUserID
	}

	msg, err := s.sequencer.Append(ctx, roomID, senderID, frame.Payload, frame.Attachment)
	if err != nil {
		return nil, err
	}

	s.registry.SendAck(ctx, c.ID(), domain.AckMessage{
		Type:        domain.TypeAck,
		ClientMsgID: frame.ClientMsgID,
		Status:      domain.AckPersisted,
		Seq:         msg.Seq,
		Timestamp:   time.Now().UTC(),
	})
	return msg, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"livechat/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendWithSeq inserts the message with seq = max(seq)+1 for its room in
// a single statement, joined against rooms so an unknown room yields no
// row. The caller holds the room's ordering section and wraps this in a
// transaction; on rollback no sequence number is consumed because the
// counter is derived from the persisted rows themselves.
func (r *MessageRepo) AppendWithSeq(
	ctx context.Context,
	msg *domain.Message,
) (int64, error) {
	if msg.RoomID == uuid.Nil {
		return 0, domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)

	var attURL, attType sql.NullString
	var attSize sql.NullInt64
	if msg.Attachment != nil {
		attURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
		attType = sql.NullString{String: msg.Attachment.ContentType, Valid: msg.Attachment.ContentType != ""}
		attSize = sql.NullInt64{Int64: msg.Attachment.Size, Valid: true}
	}

	var seq int64
	err := exec.QueryRowContext(ctx, `
        INSERT INTO messages (
            id, room_id, sender_id, seq, payload,
            attachment_url, attachment_size, attachment_content_type, created_at
        )
        SELECT $1, r.id, $3,
               COALESCE((SELECT MAX(m.seq) FROM messages m WHERE m.room_id = r.id), 0) + 1,
               $4, $5, $6, $7, $8
        FROM rooms r
        WHERE r.id = $2
        RETURNING seq
    `,
		msg.ID,
		msg.RoomID,
		msg.SenderID,
		msg.Payload,
		attURL,
		attSize,
		attType,
		msg.CreatedAt,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrRoomNotFound
		}
		return 0, err
	}
	return seq, nil
}

// RangeAfter reads the gap seq > sinceSeq in ascending order, capped at
// limit. Serves backfill only; the live path never reads from here.
func (r *MessageRepo) RangeAfter(
	ctx context.Context,
	roomID uuid.UUID,
	sinceSeq int64,
	limit int,
) ([]domain.Message, error) {
	if roomID == uuid.Nil {
		return nil, domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, room_id, sender_id, seq, payload,
		       attachment_url, attachment_size, attachment_content_type, created_at
		FROM messages
		WHERE room_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, roomID, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var attURL, attType sql.NullString
		var attSize sql.NullInt64
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.Seq,
			&m.Payload,
			&attURL,
			&attSize,
			&attType,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if attURL.Valid {
			m.Attachment = &domain.AttachmentRef{
				URL:         attURL.String,
				Size:        attSize.Int64,
				ContentType: attType.String,
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

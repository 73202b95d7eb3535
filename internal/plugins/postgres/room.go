package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"livechat/internal/core/domain"

	"github.com/google/uuid"
)

type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) CreateRoom(ctx context.Context, room *domain.Room) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
        INSERT INTO rooms (id, name, created_by, created_at)
        VALUES ($1, $2, $3, $4)
    `, room.ID, room.Name, room.CreatedBy, room.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return domain.ErrRoomAlreadyExists
	}
	return err
}

func (r *RoomRepo) GetRoomByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	if roomID == uuid.Nil {
		return nil, domain.ErrInvalidRoomID
	}
	exec := GetExecutor(ctx, r.db)
	var room domain.Room
	err := exec.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms
		WHERE id = $1
	`, roomID).Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
        INSERT INTO room_members (room_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, roomID, userID)
	return err
}

func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	exec := GetExecutor(ctx, r.db)
	var exists bool
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_members
			WHERE room_id = $1 AND user_id = $2
		)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/lib/pq"
)

type chatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) database.ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	return r.getRoom(ctx, `WHERE id = $1`, roomID)
}

func (r *chatRepository) GetRoomByBooking(ctx context.Context, bookingID string) (*entity.ChatRoom, error) {
	return r.getRoom(ctx, `WHERE booking_id = $1`, bookingID)
}

func (r *chatRepository) getRoom(ctx context.Context, where string, arg string) (*entity.ChatRoom, error) {
	query := `SELECT id, booking_id, customer_id, provider_id, created_at FROM chat_rooms ` + where

	var room entity.ChatRoom
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.BookingID,
		&room.CustomerID,
		&room.ProviderID,
		&room.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat room: %w", err)
	}
	return &room, nil
}

// InsertMessage relies on the partial unique index on dedup_key
func (r *chatRepository) InsertMessage(ctx context.Context, msg *entity.ChatMessage) (bool, error) {
	query := `
		INSERT INTO chat_messages (
			id, room_id, sender_id, sender_type, content, is_system_message, dedup_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`
	var dedupKey sql.NullString
	if msg.DedupKey != "" {
		dedupKey = sql.NullString{String: msg.DedupKey, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.RoomID,
		msg.SenderID,
		msg.SenderType,
		msg.Content,
		msg.IsSystemMessage,
		dedupKey,
		msg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return affectedOne(res)
}

// ListMessages returns the latest messages of a room in chronological order
func (r *chatRepository) ListMessages(ctx context.Context, roomID string, limit int) ([]*entity.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_id, sender_type, content, is_system_message, created_at
		FROM (
			SELECT * FROM chat_messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2
		) latest
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*entity.ChatMessage
	for rows.Next() {
		var m entity.ChatMessage
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.SenderType,
			&m.Content,
			&m.IsSystemMessage,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	return messages, nil
}

func (r *chatRepository) InsertViolation(ctx context.Context, v *entity.ChatViolation) error {
	types := make([]string, len(v.Types))
	for i, t := range v.Types {
		types[i] = string(t)
	}

	query := `
		INSERT INTO chat_violations (
			id, room_id, sender_id, violation_types, sanitized_content, violation_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.RoomID,
		v.SenderID,
		pq.Array(types),
		v.SanitizedContent,
		v.ViolationNumber,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat violation: %w", err)
	}
	return nil
}

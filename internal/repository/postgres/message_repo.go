package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/duet/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	if msg.Payload == nil {
		return domain.ErrEmptyPayload
	}

	// timestamptz keeps microseconds; round up so CreatedAt never precedes the call.
	now := time.Now().UTC()
	createdAt := now.Truncate(time.Microsecond)
	if createdAt.Before(now) {
		createdAt = createdAt.Add(time.Microsecond)
	}
	id := domain.NewMessageID(createdAt)

	rec := msg.ToRecord()
	var name, url, mediaType *string
	if rec.Attachment != nil {
		name, url, mediaType = &rec.Attachment.FileName, &rec.Attachment.URL, &rec.Attachment.MediaType
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, body, attachment_name, attachment_url, attachment_media_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.pool.Exec(ctx, query,
		id, msg.SenderID, msg.ReceiverID, rec.Body, name, url, mediaType, createdAt,
	); err != nil {
		return err
	}

	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (r *MessageRepo) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, attachment_name, attachment_url, attachment_media_type, created_at
		FROM messages
		WHERE LEAST(sender_id, receiver_id) = LEAST($1::text, $2::text)
			AND GREATEST(sender_id, receiver_id) = GREATEST($1::text, $2::text)
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var rec domain.Record
		var name, url, mediaType *string
		if err := rows.Scan(
			&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Body,
			&name, &url, &mediaType, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if url != nil {
			rec.Attachment = &domain.Attachment{URL: *url}
			if name != nil {
				rec.Attachment.FileName = *name
			}
			if mediaType != nil {
				rec.Attachment.MediaType = *mediaType
			}
		}
		msg, err := rec.ToMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

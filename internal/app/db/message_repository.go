package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

const messageColumns = `id::text, sender_id::text, receiver_id::text, text, image, created_at, updated_at`

// MessageRepository implements message.Store on PostgreSQL.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns a repository backed by pool.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

var _ message.Store = (*MessageRepository)(nil)

func scanMessage(row pgx.Row) (message.Message, error) {
	var m message.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Save inserts d and returns the stored row once the insert has committed.
// An unknown sender or receiver yields user.ErrNotFound.
func (r *MessageRepository) Save(ctx context.Context, d message.Draft) (message.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, receiver_id, text, image)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+messageColumns,
		d.SenderID, d.ReceiverID, d.Text, d.Image,
	))
	if err != nil {
		if IsForeignKeyViolation(err) || IsInvalidInput(err) {
			return message.Message{}, fmt.Errorf("save message: %w", user.ErrNotFound)
		}
		return message.Message{}, fmt.Errorf("save message: %w", err)
	}
	return m, nil
}

// FindConversation returns the messages exchanged between a and b in either
// direction, oldest first.
func (r *MessageRepository) FindConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, id`,
		a, b,
	)
	if err != nil {
		if IsInvalidInput(err) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Message, error) {
		return scanMessage(row)
	})
	if err != nil {
		if IsInvalidInput(err) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return msgs, nil
}

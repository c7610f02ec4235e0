package repositories

import (
	"context"
	"time"

	"connectsprobot/internal/models"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Append(ctx context.Context, conversationID uuid.UUID, sender models.SenderRole, body, kind string, originID *int64) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
	// PurgeOlderThan deletes messages past the retention window and returns
	// how many were removed.
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

type messageRepo struct {
	db Database
}

func NewMessageRepo(db Database) MessageRepository {
	return &messageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender, body, kind, origin_id, created_at`

func (r *messageRepo) Append(ctx context.Context, conversationID uuid.UUID, sender models.SenderRole, body, kind string, originID *int64) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, conversation_id, sender, body, kind, origin_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns
	msg := &models.Message{}
	err := r.db.QueryRow(ctx, query, uuid.New(), conversationID, sender, body, kind, originID).
		Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Body, &msg.Kind, &msg.OriginID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Body, &msg.Kind, &msg.OriginID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *messageRepo) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

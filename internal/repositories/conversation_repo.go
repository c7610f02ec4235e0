package repositories

import (
	"context"
	"errors"
	"time"

	"connectsprobot/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ConversationRepository interface {
	// GetOrCreate is an atomic upsert on the (user_id, owner_id) pairing key.
	// Concurrent first contacts converge on a single row; the conflict path
	// only refreshes last_message.
	GetOrCreate(ctx context.Context, userID, ownerID int64) (*models.Conversation, error)
	// TryConsumeDailyQuota performs the lazy date reset and the increment in
	// one statement: if the stored date is stale the counter restarts at 1,
	// otherwise it increments only while below the cap. Returns the counter
	// value after the call and whether the message was admitted.
	TryConsumeDailyQuota(ctx context.Context, userID, ownerID int64, cap int, today time.Time) (int, bool, error)
	// SetForwardRef records the transport message id of the copy forwarded
	// to the owner, so a later reply can be correlated back to the user.
	SetForwardRef(ctx context.Context, id uuid.UUID, forwardID int64) error
	// GetByForwardRef returns (nil, nil) when no conversation matches.
	GetByForwardRef(ctx context.Context, ownerID, forwardID int64) (*models.Conversation, error)
}

type conversationRepo struct {
	db Database
}

func NewConversationRepo(db Database) ConversationRepository {
	return &conversationRepo{db: db}
}

const conversationColumns = `id, user_id, owner_id, message_count_today, last_message_date, last_message, last_forward_id, created_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(&conv.ID, &conv.UserID, &conv.OwnerID, &conv.MessageCountToday,
		&conv.LastMessageDate, &conv.LastMessage, &conv.LastForwardID, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) GetOrCreate(ctx context.Context, userID, ownerID int64) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (id, user_id, owner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, owner_id) DO UPDATE SET
			last_message = NOW()
		RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRow(ctx, query, uuid.New(), userID, ownerID))
}

func (r *conversationRepo) TryConsumeDailyQuota(ctx context.Context, userID, ownerID int64, cap int, today time.Time) (int, bool, error) {
	query := `
		UPDATE conversations SET
			message_count_today = CASE WHEN last_message_date = $4 THEN message_count_today + 1 ELSE 1 END,
			last_message_date = $4,
			last_message = NOW()
		WHERE user_id = $1 AND owner_id = $2
		  AND (last_message_date <> $4 OR message_count_today < $3)
		RETURNING message_count_today`
	day := today.Format(time.DateOnly)
	var count int
	err := r.db.QueryRow(ctx, query, userID, ownerID, cap, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		// Guard predicate rejected the row: the cap is already reached.
		return cap, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (r *conversationRepo) SetForwardRef(ctx context.Context, id uuid.UUID, forwardID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET last_forward_id = $2 WHERE id = $1`, id, forwardID)
	return err
}

func (r *conversationRepo) GetByForwardRef(ctx context.Context, ownerID, forwardID int64) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE owner_id = $1 AND last_forward_id = $2`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, ownerID, forwardID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

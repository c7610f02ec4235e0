package repositories

import (
	"context"

	"connectsprobot/internal/models"
)

type UserRepository interface {
	// Upsert creates the user on first contact and refreshes the profile
	// and last-active timestamp on every subsequent one.
	Upsert(ctx context.Context, telegramID int64, username, firstName *string) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	// ListTelegramIDs returns every known user id, for broadcasts.
	ListTelegramIDs(ctx context.Context) ([]int64, error)
}

type userRepo struct {
	db Database
}

func NewUserRepo(db Database) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `telegram_id, username, first_name, created_at, last_active`

func (r *userRepo) Upsert(ctx context.Context, telegramID int64, username, firstName *string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_active = NOW()
		RETURNING ` + userColumns
	user := &models.User{}
	err := r.db.QueryRow(ctx, query, telegramID, username, firstName).
		Scan(&user.TelegramID, &user.Username, &user.FirstName, &user.CreatedAt, &user.LastActive)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user := &models.User{}
	err := r.db.QueryRow(ctx, query, telegramID).
		Scan(&user.TelegramID, &user.Username, &user.FirstName, &user.CreatedAt, &user.LastActive)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT telegram_id FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package repositories

import (
	"context"
	"errors"

	"connectsprobot/internal/models"

	"github.com/jackc/pgx/v5"
)

// OwnerUpdate is a partial field delta; nil fields are left untouched.
type OwnerUpdate struct {
	BusinessName   *string
	Category       *string
	Bio            *string
	LogoFileID     *string
	LogoObject     *string
	BotToken       *string
	BotUsername    *string
	OnboardingStep *models.OnboardingStep
}

// OwnerStats aggregates per-owner activity for the admin surface.
type OwnerStats struct {
	TotalUsers    int64 `json:"total_users"`
	TotalMessages int64 `json:"total_messages"`
}

type OwnerRepository interface {
	// GetByTelegramID returns (nil, nil) when the owner does not exist.
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Owner, error)
	// Register creates the owner or switches its mode; an existing trial
	// start is preserved so re-registration never restarts the clock.
	Register(ctx context.Context, telegramID int64, username *string, mode models.OwnerMode) (*models.Owner, error)
	Update(ctx context.Context, telegramID int64, delta OwnerUpdate) (*models.Owner, error)
	List(ctx context.Context) ([]*models.Owner, error)
	// ListActiveDedicated returns owners eligible for a dedicated instance:
	// dedicated mode, active, credential present, trial not expired.
	ListActiveDedicated(ctx context.Context) ([]*models.Owner, error)
	// MarkTrialExpired flips the one-way expiry flag and reports whether
	// this call was the fresh transition.
	MarkTrialExpired(ctx context.Context, telegramID int64) (bool, error)
	SetActive(ctx context.Context, telegramID int64, active bool) error
	Stats(ctx context.Context, telegramID int64) (*OwnerStats, error)
	ListTelegramIDs(ctx context.Context) ([]int64, error)
	// ListDedicatedAudience returns ids of users who have conversed with
	// dedicated-mode owners, for targeted broadcasts.
	ListDedicatedAudience(ctx context.Context) ([]int64, error)
}

type ownerRepo struct {
	db Database
}

func NewOwnerRepo(db Database) OwnerRepository {
	return &ownerRepo{db: db}
}

const ownerColumns = `telegram_id, username, business_name, category, bio, logo_file_id, logo_object,
			mode, bot_token, bot_username, trial_start, trial_expired, is_active, onboarding_step, created_at`

func scanOwner(row pgx.Row) (*models.Owner, error) {
	owner := &models.Owner{}
	err := row.Scan(&owner.TelegramID, &owner.Username, &owner.BusinessName, &owner.Category,
		&owner.Bio, &owner.LogoFileID, &owner.LogoObject, &owner.Mode, &owner.BotToken,
		&owner.BotUsername, &owner.TrialStart, &owner.TrialExpired, &owner.IsActive,
		&owner.OnboardingStep, &owner.CreatedAt)
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *ownerRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE telegram_id = $1`
	owner, err := scanOwner(r.db.QueryRow(ctx, query, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *ownerRepo) Register(ctx context.Context, telegramID int64, username *string, mode models.OwnerMode) (*models.Owner, error) {
	query := `
		INSERT INTO owners (telegram_id, username, mode, trial_start)
		VALUES ($1, $2, $3, CASE WHEN $3 = 'dedicated' THEN NOW() END)
		ON CONFLICT (telegram_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			onboarding_step = 'name',
			trial_start = COALESCE(owners.trial_start, EXCLUDED.trial_start)
		RETURNING ` + ownerColumns
	return scanOwner(r.db.QueryRow(ctx, query, telegramID, username, mode))
}

func (r *ownerRepo) Update(ctx context.Context, telegramID int64, delta OwnerUpdate) (*models.Owner, error) {
	query := `
		UPDATE owners SET
			business_name = COALESCE($2, business_name),
			category = COALESCE($3, category),
			bio = COALESCE($4, bio),
			logo_file_id = COALESCE($5, logo_file_id),
			logo_object = COALESCE($6, logo_object),
			bot_token = COALESCE($7, bot_token),
			bot_username = COALESCE($8, bot_username),
			onboarding_step = COALESCE($9, onboarding_step)
		WHERE telegram_id = $1
		RETURNING ` + ownerColumns
	owner, err := scanOwner(r.db.QueryRow(ctx, query, telegramID,
		delta.BusinessName, delta.Category, delta.Bio, delta.LogoFileID,
		delta.LogoObject, delta.BotToken, delta.BotUsername, delta.OnboardingStep))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *ownerRepo) List(ctx context.Context) ([]*models.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners ORDER BY created_at DESC`
	return r.queryOwners(ctx, query)
}

func (r *ownerRepo) ListActiveDedicated(ctx context.Context) ([]*models.Owner, error) {
	query := `
		SELECT ` + ownerColumns + `
		FROM owners
		WHERE mode = 'dedicated'
		  AND bot_token IS NOT NULL
		  AND is_active = TRUE
		  AND trial_expired = FALSE`
	return r.queryOwners(ctx, query)
}

func (r *ownerRepo) queryOwners(ctx context.Context, query string, args ...any) ([]*models.Owner, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []*models.Owner
	for rows.Next() {
		owner, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (r *ownerRepo) MarkTrialExpired(ctx context.Context, telegramID int64) (bool, error) {
	query := `UPDATE owners SET trial_expired = TRUE WHERE telegram_id = $1 AND trial_expired = FALSE`
	tag, err := r.db.Exec(ctx, query, telegramID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ownerRepo) SetActive(ctx context.Context, telegramID int64, active bool) error {
	_, err := r.db.Exec(ctx, `UPDATE owners SET is_active = $2 WHERE telegram_id = $1`, telegramID, active)
	return err
}

func (r *ownerRepo) Stats(ctx context.Context, telegramID int64) (*OwnerStats, error) {
	stats := &OwnerStats{}
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM conversations WHERE owner_id = $1`, telegramID).
		Scan(&stats.TotalUsers)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN conversations c ON m.conversation_id = c.id
		WHERE c.owner_id = $1`, telegramID).
		Scan(&stats.TotalMessages)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *ownerRepo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT telegram_id FROM owners`)
}

func (r *ownerRepo) ListDedicatedAudience(ctx context.Context) ([]int64, error) {
	return r.queryIDs(ctx, `
		SELECT DISTINCT c.user_id FROM conversations c
		JOIN owners o ON c.owner_id = o.telegram_id
		WHERE o.mode = 'dedicated'`)
}

func (r *ownerRepo) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.db.Query(ctx, query)
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

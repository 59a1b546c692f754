package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
)

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) database.AccountRepository {
	return &accountRepository{db: db}
}

// Get returns a zero account for users that never had one stored
func (r *accountRepository) Get(ctx context.Context, userID string) (*entity.Account, error) {
	query := `
		SELECT user_id, telegram_id, violation_count, restricted, restriction_reason,
			restricted_at, rating_sum, review_count, updated_at
		FROM accounts
		WHERE user_id = $1
	`

	var account entity.Account
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&account.UserID,
		&account.TelegramID,
		&account.ViolationCount,
		&account.Restricted,
		&account.RestrictionReason,
		&account.RestrictedAt,
		&account.RatingSum,
		&account.ReviewCount,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return &entity.Account{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) SetTelegramID(ctx context.Context, userID, telegramID string, at time.Time) error {
	query := `
		INSERT INTO accounts (user_id, telegram_id, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, userID, telegramID, at); err != nil {
		return fmt.Errorf("failed to update telegram ID: %w", err)
	}
	return nil
}

func (r *accountRepository) IncrementViolations(ctx context.Context, userID string, at time.Time) (int, error) {
	query := `
		INSERT INTO accounts (user_id, violation_count, updated_at) VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET violation_count = accounts.violation_count + 1, updated_at = EXCLUDED.updated_at
		RETURNING violation_count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, at).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment violations: %w", err)
	}
	return count, nil
}

func (r *accountRepository) Restrict(ctx context.Context, userID, reason string, at time.Time) (bool, error) {
	query := `
		INSERT INTO accounts (user_id, restricted, restriction_reason, restricted_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET restricted = TRUE, restriction_reason = EXCLUDED.restriction_reason,
			restricted_at = EXCLUDED.restricted_at, updated_at = EXCLUDED.updated_at
		WHERE accounts.restricted = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID, reason, at)
	if err != nil {
		return false, fmt.Errorf("failed to restrict account: %w", err)
	}
	return affectedOne(res)
}

func (r *accountRepository) ClearRestriction(ctx context.Context, userID, reason string, resetViolations bool, at time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET restricted = FALSE, restriction_reason = '', restricted_at = NULL,
			violation_count = CASE WHEN $3::boolean THEN 0 ELSE violation_count END,
			updated_at = $4
		WHERE user_id = $1 AND restricted = TRUE
			AND ($2::text = '' OR restriction_reason = $2::text)
	`
	res, err := r.db.ExecContext(ctx, query, userID, reason, resetViolations, at)
	if err != nil {
		return false, fmt.Errorf("failed to clear restriction: %w", err)
	}
	return affectedOne(res)
}

func (r *accountRepository) AddRating(ctx context.Context, userID string, rating int, at time.Time) error {
	query := `
		INSERT INTO accounts (user_id, rating_sum, review_count, updated_at) VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET rating_sum = accounts.rating_sum + EXCLUDED.rating_sum,
			review_count = accounts.review_count + 1,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, userID, rating, at); err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

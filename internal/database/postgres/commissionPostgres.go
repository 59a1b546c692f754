package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
)

const commissionColumns = `
	booking_id, provider_id, commission_rate, amount_due, reactivation_fee,
	completed_at, due_at, state, reminder_stage, proof_url, paid_at, overdue_at, updated_at`

type commissionRepository struct {
	db *sql.DB
}

func NewCommissionRepository(db *sql.DB) database.CommissionRepository {
	return &commissionRepository{db: db}
}

func scanCommission(row rowScanner) (*entity.CommissionRecord, error) {
	var (
		c     entity.CommissionRecord
		stage string
	)
	err := row.Scan(
		&c.BookingID,
		&c.ProviderID,
		&c.Rate,
		&c.AmountDue,
		&c.ReactivationFee,
		&c.CompletedAt,
		&c.DueAt,
		&c.State,
		&stage,
		&c.ProofURL,
		&c.PaidAt,
		&c.OverdueAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ReminderStage = entity.ParseReminderStage(stage)
	return &c, nil
}

// insertCommission is idempotent per booking.
func insertCommission(ctx context.Context, q txQueryer, rec *entity.CommissionRecord) error {
	query := `
		INSERT INTO commission_records (
			booking_id, provider_id, commission_rate, amount_due, reactivation_fee,
			completed_at, due_at, state, reminder_stage, paid_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (booking_id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query,
		rec.BookingID,
		rec.ProviderID,
		rec.Rate,
		rec.AmountDue,
		rec.ReactivationFee,
		rec.CompletedAt,
		rec.DueAt,
		rec.State,
		rec.ReminderStage.String(),
		rec.PaidAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commission record: %w", err)
	}
	return nil
}

func (r *commissionRepository) GetByBookingID(ctx context.Context, bookingID string) (*entity.CommissionRecord, error) {
	query := `SELECT ` + commissionColumns + ` FROM commission_records WHERE booking_id = $1`

	rec, err := scanCommission(r.db.QueryRowContext(ctx, query, bookingID))
	if err == sql.ErrNoRows {
		return nil, entity.ErrCommissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission record: %w", err)
	}
	return rec, nil
}

func (r *commissionRepository) ListByState(ctx context.Context, state entity.CommissionState, limit int) ([]*entity.CommissionRecord, error) {
	query := `SELECT ` + commissionColumns + ` FROM commission_records WHERE state = $1 ORDER BY due_at LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission records: %w", err)
	}
	defer rows.Close()

	var records []*entity.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commission record: %w", err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commission records: %w", err)
	}
	return records, nil
}

func (r *commissionRepository) AdvanceStage(ctx context.Context, bookingID string, from, to entity.ReminderStage, at time.Time) (bool, error) {
	query := `
		UPDATE commission_records
		SET reminder_stage = $3, updated_at = $4
		WHERE booking_id = $1 AND state = 'pending' AND reminder_stage = $2
	`
	res, err := r.db.ExecContext(ctx, query, bookingID, from.String(), to.String(), at)
	if err != nil {
		return false, fmt.Errorf("failed to advance reminder stage: %w", err)
	}
	return affectedOne(res)
}

func (r *commissionRepository) MarkOverdue(ctx context.Context, bookingID string, fee decimal.Decimal, at time.Time) (bool, error) {
	query := `
		UPDATE commission_records
		SET state = 'overdue', reminder_stage = 'overdue', reactivation_fee = $2,
			overdue_at = $3, updated_at = $3
		WHERE booking_id = $1 AND state = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, bookingID, fee, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark commission overdue: %w", err)
	}
	return affectedOne(res)
}

// MarkPaid settles the record under a row lock so the previous state is exact.
func (r *commissionRepository) MarkPaid(ctx context.Context, bookingID, proofURL string, at time.Time) (*entity.CommissionRecord, entity.CommissionState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous entity.CommissionState
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM commission_records WHERE booking_id = $1 FOR UPDATE`, bookingID,
	).Scan(&previous)
	if err == sql.ErrNoRows {
		return nil, "", entity.ErrCommissionNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to lock commission record: %w", err)
	}
	if previous == entity.CommissionPaid {
		return nil, previous, entity.ErrCommissionSettled
	}

	query := `
		UPDATE commission_records
		SET state = 'paid', proof_url = $2, paid_at = $3, updated_at = $3
		WHERE booking_id = $1
		RETURNING ` + commissionColumns
	rec, err := scanCommission(tx.QueryRowContext(ctx, query, bookingID, proofURL, at))
	if err != nil {
		return nil, "", fmt.Errorf("failed to mark commission paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, previous, nil
}

func (r *commissionRepository) CountOverdueByProvider(ctx context.Context, providerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM commission_records WHERE provider_id = $1 AND state = 'overdue'`
	if err := r.db.QueryRowContext(ctx, query, providerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count overdue commissions: %w", err)
	}
	return count, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
)

const discountColumns = `
	code, review_id, provider_id, customer_id, percentage, valid_until,
	used, used_booking_id, used_at, created_at`

type discountRepository struct {
	db *sql.DB
}

func NewDiscountRepository(db *sql.DB) database.DiscountRepository {
	return &discountRepository{db: db}
}

func scanDiscount(row rowScanner) (*entity.DiscountCode, error) {
	var d entity.DiscountCode
	err := row.Scan(
		&d.Code,
		&d.ReviewID,
		&d.ProviderID,
		&d.CustomerID,
		&d.Percentage,
		&d.ValidUntil,
		&d.Used,
		&d.UsedBookingID,
		&d.UsedAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateIfAbsent is guarded by the unique review_id column
func (r *discountRepository) CreateIfAbsent(ctx context.Context, code *entity.DiscountCode) (bool, error) {
	query := `
		INSERT INTO discount_codes (
			code, review_id, provider_id, customer_id, percentage, valid_until, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (review_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		code.Code,
		code.ReviewID,
		code.ProviderID,
		code.CustomerID,
		code.Percentage,
		code.ValidUntil,
		code.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create discount code: %w", err)
	}
	return affectedOne(res)
}

func (r *discountRepository) GetByCode(ctx context.Context, code string) (*entity.DiscountCode, error) {
	return getDiscount(ctx, r.db, code, false)
}

func getDiscount(ctx context.Context, q queryer, code string, forUpdate bool) (*entity.DiscountCode, error) {
	query := `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	d, err := scanDiscount(q.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, entity.ErrDiscountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}
	return d, nil
}

// Redeem locks the code and the booking, validates, and applies both updates
func (r *discountRepository) Redeem(ctx context.Context, code, bookingID string, at time.Time) (*entity.Redemption, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	discount, err := getDiscount(ctx, tx, code, true)
	if err != nil {
		return nil, err
	}
	booking, err := getBooking(ctx, tx, bookingID, true)
	if err != nil {
		return nil, err
	}

	if err := discount.CheckRedeemable(booking, at); err != nil {
		return nil, err
	}
	discount.Redeem(booking, at)

	query := `UPDATE discount_codes SET used = TRUE, used_booking_id = $2, used_at = $3 WHERE code = $1`
	if _, err := tx.ExecContext(ctx, query, discount.Code, booking.ID, at); err != nil {
		return nil, fmt.Errorf("failed to mark discount code used: %w", err)
	}

	query = `
		UPDATE bookings
		SET price = $2, discount_code = $3, discount_percentage = $4, updated_at = $5
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, query, booking.ID, booking.Price, booking.DiscountCode, booking.DiscountPercentage, at)
	if err != nil {
		return nil, fmt.Errorf("failed to apply discount to booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &entity.Redemption{Code: discount, Booking: booking}, nil
}

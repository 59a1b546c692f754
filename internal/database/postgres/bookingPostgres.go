package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/lib/pq"
)

const bookingColumns = `
	id, customer_id, customer_name, customer_phone, provider_id, provider_type,
	provider_tier, service_type, service_duration, price, discount_code,
	discount_percentage, status, decline_reason, created_at, response_deadline,
	responded_at, started_at, completed_at, payment_confirmed_at, updated_at`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) database.BookingRepository {
	return &bookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.CustomerName,
		&b.CustomerPhone,
		&b.ProviderID,
		&b.ProviderType,
		&b.ProviderTier,
		&b.ServiceType,
		&b.ServiceDuration,
		&b.Price,
		&b.DiscountCode,
		&b.DiscountPercentage,
		&b.Status,
		&b.DeclineReason,
		&b.CreatedAt,
		&b.ResponseDeadline,
		&b.RespondedAt,
		&b.StartedAt,
		&b.CompletedAt,
		&b.PaymentConfirmedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// activeBookingConflict matches the partial unique index
// idx_bookings_active_pair: one active booking per customer and provider.
const activeBookingConflict = `ON CONFLICT (customer_id, provider_id)
		WHERE status IN ('pending', 'accepted', 'in_progress') DO NOTHING`

// Create stores the booking and its chat room in one transaction
func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking, room *entity.ChatRoom) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bookings (
			id, customer_id, customer_name, customer_phone, provider_id, provider_type,
			provider_tier, service_type, service_duration, price, discount_code,
			discount_percentage, status, decline_reason, created_at, response_deadline,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		` + activeBookingConflict
	res, err := tx.ExecContext(ctx, query,
		booking.ID,
		booking.CustomerID,
		booking.CustomerName,
		booking.CustomerPhone,
		booking.ProviderID,
		booking.ProviderType,
		booking.ProviderTier,
		booking.ServiceType,
		booking.ServiceDuration,
		booking.Price,
		booking.DiscountCode,
		booking.DiscountPercentage,
		booking.Status,
		booking.DeclineReason,
		booking.CreatedAt,
		booking.ResponseDeadline,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	if inserted == 0 {
		return entity.ErrDuplicateBooking
	}

	query = `INSERT INTO chat_rooms (id, booking_id, customer_id, provider_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = tx.ExecContext(ctx, query, room.ID, room.BookingID, room.CustomerID, room.ProviderID, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getBooking(ctx context.Context, q queryer, id string, forUpdate bool) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	booking, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) GetByProvider(ctx context.Context, providerID string, limit int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, providerID, limit)
}

func (r *bookingRepository) GetByCustomer(ctx context.Context, customerID string, limit int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, customerID, limit)
}

func (r *bookingRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'pending' AND response_deadline < $1
		ORDER BY response_deadline
		LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// stampColumn is the timestamp column set when a booking enters status.
func stampColumn(status entity.BookingStatus) string {
	switch status {
	case entity.BookingStatusAccepted, entity.BookingStatusDeclined:
		return "responded_at"
	case entity.BookingStatusInProgress:
		return "started_at"
	case entity.BookingStatusCompleted:
		return "completed_at"
	case entity.BookingStatusPaymentConfirmed:
		return "payment_confirmed_at"
	}
	return ""
}

// transitionQuery builds the compare-and-set update for t.
// $1 id, $2 new status, $3 timestamp, $4 allowed sources, $5 decline reason.
func transitionQuery(t entity.Transition) string {
	set := []string{"status = $2", "updated_at = $3"}
	if col := stampColumn(t.To); col != "" {
		set = append(set, col+" = $3")
	}
	if t.To == entity.BookingStatusDeclined {
		set = append(set, "decline_reason = $5")
	}

	where := "id = $1 AND status = ANY($4)"
	switch t.Guard {
	case entity.WithinResponseWindow:
		where += " AND response_deadline >= $3"
	case entity.AfterResponseWindow:
		where += " AND response_deadline < $3"
	}

	return `UPDATE bookings SET ` + strings.Join(set, ", ") + ` WHERE ` + where + ` RETURNING ` + bookingColumns
}

func transitionArgs(t entity.Transition) []interface{} {
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}
	args := []interface{}{t.BookingID, t.To, t.At, pq.Array(from)}
	if t.To == entity.BookingStatusDeclined {
		args = append(args, t.Reason)
	}
	return args
}

type txQueryer interface {
	queryer
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func applyTransition(ctx context.Context, q txQueryer, t entity.Transition) (*entity.Booking, error) {
	booking, err := scanBooking(q.QueryRowContext(ctx, transitionQuery(t), transitionArgs(t)...))
	if err == nil {
		return booking, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	// Nothing matched: report why.
	current, err := getBooking(ctx, q, t.BookingID, false)
	if err != nil {
		return nil, err
	}
	if err := t.Check(current); err != nil {
		return nil, err
	}
	return nil, entity.ErrInvalidTransition
}

func (r *bookingRepository) Transition(ctx context.Context, t entity.Transition) (*entity.Booking, error) {
	return applyTransition(ctx, r.db, t)
}

// Complete moves the booking to completed and creates its commission record.
func (r *bookingRepository) Complete(ctx context.Context, t entity.Transition, build func(*entity.Booking) *entity.CommissionRecord) (*entity.Booking, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := applyTransition(ctx, tx, t)
	if err != nil {
		return nil, err
	}

	if rec := build(booking); rec != nil {
		if err := insertCommission(ctx, tx, rec); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

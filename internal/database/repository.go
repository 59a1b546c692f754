package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
)

// Every write that protects a business invariant is a conditional write:
// it either applies completely or reports why it did not. Callers never
// read, decide and then write unconditionally.

type BookingRepository interface {
	// Create stores a pending booking together with its chat room.
	Create(ctx context.Context, booking *entity.Booking, room *entity.ChatRoom) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	GetByProvider(ctx context.Context, providerID string, limit int) ([]*entity.Booking, error)
	GetByCustomer(ctx context.Context, customerID string, limit int) ([]*entity.Booking, error)

	// Transition updates the status only if the current status is one of
	// t.From and the deadline guard holds. It returns the updated booking.
	Transition(ctx context.Context, t entity.Transition) (*entity.Booking, error)

	// Complete performs the transition to completed and inserts the
	// commission record built from the updated booking, in one write.
	Complete(ctx context.Context, t entity.Transition, build func(*entity.Booking) *entity.CommissionRecord) (*entity.Booking, error)

	// ListOverduePending returns pending bookings whose response deadline is before now.
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*entity.Booking, error)
}

type CommissionRepository interface {
	GetByBookingID(ctx context.Context, bookingID string) (*entity.CommissionRecord, error)
	ListByState(ctx context.Context, state entity.CommissionState, limit int) ([]*entity.CommissionRecord, error)

	// AdvanceStage moves reminder_stage from -> to for a pending record.
	// false means another caller already moved it.
	AdvanceStage(ctx context.Context, bookingID string, from, to entity.ReminderStage, at time.Time) (bool, error)

	// MarkOverdue moves a pending record to overdue and applies the fee.
	MarkOverdue(ctx context.Context, bookingID string, fee decimal.Decimal, at time.Time) (bool, error)

	// MarkPaid settles a pending or overdue record and returns the state it had.
	MarkPaid(ctx context.Context, bookingID, proofURL string, at time.Time) (*entity.CommissionRecord, entity.CommissionState, error)

	CountOverdueByProvider(ctx context.Context, providerID string) (int, error)
}

type AccountRepository interface {
	// Get returns a zero account for unknown users.
	Get(ctx context.Context, userID string) (*entity.Account, error)
	SetTelegramID(ctx context.Context, userID, telegramID string, at time.Time) error

	// IncrementViolations atomically adds one violation and returns the new count.
	IncrementViolations(ctx context.Context, userID string, at time.Time) (int, error)

	// Restrict flags the account. false means it was already restricted.
	Restrict(ctx context.Context, userID, reason string, at time.Time) (bool, error)

	// ClearRestriction lifts the restriction. A non-empty reason only lifts
	// a restriction imposed for that reason.
	ClearRestriction(ctx context.Context, userID, reason string, resetViolations bool, at time.Time) (bool, error)

	AddRating(ctx context.Context, userID string, rating int, at time.Time) error
}

type ChatRepository interface {
	GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error)
	GetRoomByBooking(ctx context.Context, bookingID string) (*entity.ChatRoom, error)

	// InsertMessage stores a message. A message with a dedup key is stored
	// at most once; false means the key was already taken.
	InsertMessage(ctx context.Context, msg *entity.ChatMessage) (bool, error)
	ListMessages(ctx context.Context, roomID string, limit int) ([]*entity.ChatMessage, error)

	InsertViolation(ctx context.Context, v *entity.ChatViolation) error
}

type ReviewRepository interface {
	// CreateIfAbsent stores the review unless the booking already has one.
	CreateIfAbsent(ctx context.Context, review *entity.Review) (bool, error)
	GetByID(ctx context.Context, id string) (*entity.Review, error)
	GetByBookingID(ctx context.Context, bookingID string) (*entity.Review, error)

	CreateLinkIfAbsent(ctx context.Context, link *entity.ReviewLink) (bool, error)
	GetLink(ctx context.Context, token string) (*entity.ReviewLink, error)
}

type DiscountRepository interface {
	// CreateIfAbsent stores the code unless the review already has one.
	CreateIfAbsent(ctx context.Context, code *entity.DiscountCode) (bool, error)
	GetByCode(ctx context.Context, code string) (*entity.DiscountCode, error)

	// Redeem marks the code used and applies it to the booking in one write.
	Redeem(ctx context.Context, code, bookingID string, at time.Time) (*entity.Redemption, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Notification, error)
}

// Store bundles the repositories behind one connection handle.
type Store struct {
	Bookings      BookingRepository
	Commissions   CommissionRepository
	Accounts      AccountRepository
	Chat          ChatRepository
	Reviews       ReviewRepository
	Discounts     DiscountRepository
	Notifications NotificationRepository
}

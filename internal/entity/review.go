package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Review struct {
	ID         string    `json:"id" db:"id"`
	BookingID  string    `json:"booking_id" db:"booking_id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Rating     int       `json:"rating" db:"rating"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReviewLink is the single-use link sent to the customer after payment.
type ReviewLink struct {
	Token     string    `json:"token" db:"token"`
	BookingID string    `json:"booking_id" db:"booking_id"`
	URL       string    `json:"url" db:"-"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type DiscountCode struct {
	Code          string     `json:"code" db:"code"`
	ReviewID      string     `json:"review_id" db:"review_id"`
	ProviderID    string     `json:"provider_id" db:"provider_id"`
	CustomerID    string     `json:"customer_id" db:"customer_id"`
	Percentage    int        `json:"percentage" db:"percentage"`
	ValidUntil    time.Time  `json:"valid_until" db:"valid_until"`
	Used          bool       `json:"used" db:"used"`
	UsedBookingID string     `json:"used_booking_id,omitempty" db:"used_booking_id"`
	UsedAt        *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// CheckRedeemable validates the code against the booking it is applied to.
func (d *DiscountCode) CheckRedeemable(b *Booking, now time.Time) error {
	if d.Used {
		return ErrDiscountUsed
	}
	if now.After(d.ValidUntil) {
		return ErrDiscountExpired
	}
	if d.ProviderID != b.ProviderID {
		return ErrDiscountWrongOwner
	}
	if b.DiscountCode != "" {
		return ErrBookingDiscountUsed
	}
	switch b.Status {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusInProgress:
		return nil
	}
	return ErrDiscountNotAllowed.WithMessage("discount cannot be applied to a %s booking", b.Status)
}

// ApplyTo returns the discounted price rounded to whole rupiah.
func (d *DiscountCode) ApplyTo(price decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(int64(100 - d.Percentage)).Div(decimal.NewFromInt(100))
	return price.Mul(factor).Round(0)
}

// Redeem marks the code used for b and applies the discount to it.
func (d *DiscountCode) Redeem(b *Booking, at time.Time) {
	d.Used = true
	d.UsedBookingID = b.ID
	d.UsedAt = &at
	b.Price = d.ApplyTo(b.Price)
	b.DiscountCode = d.Code
	b.DiscountPercentage = d.Percentage
	b.UpdatedAt = at
}

// Redemption is the outcome of a successful discount redemption.
type Redemption struct {
	Code    *DiscountCode `json:"code"`
	Booking *Booking      `json:"booking"`
}

type NotificationType string

const (
	NotifyBookingRequest    NotificationType = "BOOKING_REQUEST"
	NotifyBookingAccepted   NotificationType = "BOOKING_ACCEPTED"
	NotifyBookingDeclined   NotificationType = "BOOKING_DECLINED"
	NotifyBookingExpired    NotificationType = "BOOKING_EXPIRED"
	NotifyCommissionStage   NotificationType = "COMMISSION_STAGE"
	NotifyCommissionBlocked NotificationType = "COMMISSION_BLOCKED"
	NotifyCommissionPaid    NotificationType = "COMMISSION_PAID"
	NotifyAccountRestricted NotificationType = "ACCOUNT_RESTRICTED"
	NotifyChatMessage       NotificationType = "CHAT_MESSAGE"
	NotifyReviewRequest     NotificationType = "REVIEW_REQUEST"
	NotifyDiscountIssued    NotificationType = "DISCOUNT_ISSUED"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	BookingID string           `json:"booking_id,omitempty" db:"booking_id"`
	Payload   interface{}      `json:"payload,omitempty" db:"-"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

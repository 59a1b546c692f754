package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending          BookingStatus = "pending"
	BookingStatusAccepted         BookingStatus = "accepted"
	BookingStatusInProgress       BookingStatus = "in_progress"
	BookingStatusCompleted        BookingStatus = "completed"
	BookingStatusPaymentConfirmed BookingStatus = "payment_confirmed"
	BookingStatusDeclined         BookingStatus = "declined"
	BookingStatusExpired          BookingStatus = "expired"
)

type ProviderType string

const (
	ProviderTherapist ProviderType = "therapist"
	ProviderPlace     ProviderType = "place"
)

func (t ProviderType) Valid() bool {
	return t == ProviderTherapist || t == ProviderPlace
}

type ProviderTier string

const (
	TierPro  ProviderTier = "pro"
	TierPlus ProviderTier = "plus"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// transitions lists, for every status, the statuses it may move to.
var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusAccepted, BookingStatusDeclined, BookingStatusExpired},
	BookingStatusAccepted:   {BookingStatusInProgress, BookingStatusCompleted},
	BookingStatusInProgress: {BookingStatusCompleted},
	BookingStatusCompleted:  {BookingStatusPaymentConfirmed},
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that has an edge into to.
func SourcesOf(to BookingStatus) []BookingStatus {
	var out []BookingStatus
	for _, from := range []BookingStatus{
		BookingStatusPending, BookingStatusAccepted, BookingStatusInProgress, BookingStatusCompleted,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ActiveStatuses are the statuses in which a customer+provider pair may
// hold only one booking.
var ActiveStatuses = []BookingStatus{BookingStatusPending, BookingStatusAccepted, BookingStatusInProgress}

func (s BookingStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Reviewable is true once the service has been delivered.
func (s BookingStatus) Reviewable() bool {
	return s == BookingStatusCompleted || s == BookingStatusPaymentConfirmed
}

type Booking struct {
	ID                 string          `json:"id" db:"id"`
	CustomerID         string          `json:"customer_id" db:"customer_id"`
	CustomerName       string          `json:"customer_name" db:"customer_name"`
	CustomerPhone      string          `json:"customer_phone,omitempty" db:"customer_phone"`
	ProviderID         string          `json:"provider_id" db:"provider_id"`
	ProviderType       ProviderType    `json:"provider_type" db:"provider_type"`
	ProviderTier       ProviderTier    `json:"provider_tier" db:"provider_tier"`
	ServiceType        string          `json:"service_type,omitempty" db:"service_type"`
	ServiceDuration    int             `json:"service_duration" db:"service_duration"`
	Price              decimal.Decimal `json:"price" db:"price"`
	DiscountCode       string          `json:"discount_code,omitempty" db:"discount_code"`
	DiscountPercentage int             `json:"discount_percentage,omitempty" db:"discount_percentage"`
	Status             BookingStatus   `json:"status" db:"status"`
	DeclineReason      string          `json:"decline_reason,omitempty" db:"decline_reason"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	ResponseDeadline   time.Time       `json:"response_deadline" db:"response_deadline"`
	RespondedAt        *time.Time      `json:"responded_at,omitempty" db:"responded_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	PaymentConfirmedAt *time.Time      `json:"payment_confirmed_at,omitempty" db:"payment_confirmed_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// ApplyTransition stamps the timestamp that belongs to the new status.
func (b *Booking) ApplyTransition(to BookingStatus, at time.Time) {
	b.Status = to
	b.UpdatedAt = at
	switch to {
	case BookingStatusAccepted, BookingStatusDeclined:
		b.RespondedAt = &at
	case BookingStatusInProgress:
		b.StartedAt = &at
	case BookingStatusCompleted:
		b.CompletedAt = &at
	case BookingStatusPaymentConfirmed:
		b.PaymentConfirmedAt = &at
	}
}

// ResponseOverdue reports whether the provider missed the response deadline.
func (b *Booking) ResponseOverdue(now time.Time) bool {
	return b.Status == BookingStatusPending && now.After(b.ResponseDeadline)
}

// DeadlineGuard ties a transition to the response deadline.
type DeadlineGuard int

const (
	NoDeadlineGuard DeadlineGuard = iota
	// WithinResponseWindow requires response_deadline >= At.
	WithinResponseWindow
	// AfterResponseWindow requires response_deadline < At.
	AfterResponseWindow
)

// Transition describes a conditional status update.
type Transition struct {
	BookingID string
	From      []BookingStatus
	To        BookingStatus
	At        time.Time
	Guard     DeadlineGuard
	Reason    string
}

// Check returns the error a store reports when the transition does not apply to b.
func (t Transition) Check(b *Booking) error {
	allowed := false
	for _, s := range t.From {
		if b.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition.WithMessage("cannot move booking from %s to %s", b.Status, t.To)
	}
	switch t.Guard {
	case WithinResponseWindow:
		if t.At.After(b.ResponseDeadline) {
			return ErrResponseWindowClosed
		}
	case AfterResponseWindow:
		if !t.At.After(b.ResponseDeadline) {
			return ErrInvalidTransition.WithMessage("response deadline has not passed yet")
		}
	}
	return nil
}

// Apply stamps the transition on b, recording the decline reason when given.
func (t Transition) Apply(b *Booking) {
	b.ApplyTransition(t.To, t.At)
	if t.To == BookingStatusDeclined {
		b.DeclineReason = t.Reason
	}
}

type ChatRoom struct {
	ID         string    `json:"id" db:"id"`
	BookingID  string    `json:"booking_id" db:"booking_id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (r *ChatRoom) HasMember(userID string) bool {
	return userID != "" && (userID == r.CustomerID || userID == r.ProviderID)
}

package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
)

// Clock returns the current time. Services never call time.Now directly.
type Clock func() time.Time

// BookingService управляет жизненным циклом бронирования
type BookingService interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error)
	// GetBooking expires an overdue pending booking before returning it.
	GetBooking(ctx context.Context, id string) (*entity.Booking, error)
	RespondToBooking(ctx context.Context, id string, req *RespondRequest) (*entity.Booking, error)
	StartService(ctx context.Context, id string) (*entity.Booking, error)
	MarkCompleted(ctx context.Context, id string) (*entity.Booking, error)
	ConfirmPaymentReceived(ctx context.Context, id string) (*PaymentConfirmation, error)
	// ListBookings returns the newest bookings of a customer or a provider.
	ListBookings(ctx context.Context, userID string, role BookingRole, limit int) ([]*entity.Booking, error)

	// Операции истечения срока
	ExpireIfOverdue(ctx context.Context, id string) (*entity.Booking, bool, error)
	ExpireOverdueBookings(ctx context.Context) (int, error)
}

// BookingRole selects which side of the booking a listing is for.
type BookingRole string

const (
	RoleCustomer BookingRole = "customer"
	RoleProvider BookingRole = "provider"
)

type CommissionService interface {
	Check(ctx context.Context, bookingID string) (*entity.CommissionStatus, error)
	SweepCommissions(ctx context.Context) (int, error)
	SubmitPaymentProof(ctx context.Context, bookingID, proofURL string) (*entity.CommissionRecord, error)
	// ScheduleChecks publishes one delayed check per escalation stage.
	ScheduleChecks(ctx context.Context, rec *entity.CommissionRecord)
}

type ChatService interface {
	SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.ChatMessage, error)
	// PostSystemMessage stores at most one message per dedup key. The bool is
	// false when the key was already used.
	PostSystemMessage(ctx context.Context, roomID, dedupKey, content string) (*entity.ChatMessage, bool, error)
	ListMessages(ctx context.Context, roomID, userID string, limit int) ([]*entity.ChatMessage, error)
	ClearRestriction(ctx context.Context, userID string) (bool, error)
}

type ReviewService interface {
	SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*entity.Review, error)
	ResolveReviewLink(ctx context.Context, token string) (*entity.ReviewLink, error)
	IssueDiscount(ctx context.Context, req *IssueDiscountRequest) (*entity.DiscountCode, error)
	RedeemDiscountCode(ctx context.Context, code, bookingID string) (*entity.Redemption, error)
	GetDiscountCode(ctx context.Context, code string) (*entity.DiscountCode, error)
	// CreateReviewLink is idempotent per booking.
	CreateReviewLink(ctx context.Context, booking *entity.Booking) (*entity.ReviewLink, error)
}

// Notifier records a notification and hands it to delivery. Failures are
// logged and never returned: a notification never undoes a state change.
type Notifier interface {
	Notify(ctx context.Context, n *entity.Notification)
}

// Deliverer pushes a stored notification to the user.
type Deliverer interface {
	Deliver(ctx context.Context, n *entity.Notification) error
}

// Pusher sends realtime events to connected users.
type Pusher interface {
	SendToUser(userID, event string, payload interface{})
}

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task представляет задачу для очереди
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
	Attempts   int                    `json:"attempts"`
}

// Константы типов задач
const (
	TaskTypeExpireBooking       = "expire_booking"
	TaskTypeCheckCommission     = "check_commission"
	TaskTypeDeliverNotification = "deliver_notification"
)

type CreateBookingRequest struct {
	CustomerID      string              `json:"customer_id"`
	CustomerName    string              `json:"customer_name"`
	CustomerPhone   string              `json:"customer_phone"`
	ProviderID      string              `json:"provider_id"`
	ProviderType    entity.ProviderType `json:"provider_type"`
	ProviderTier    entity.ProviderTier `json:"provider_tier"`
	ServiceType     string              `json:"service_type"`
	ServiceDuration int                 `json:"service_duration"`
	Price           decimal.Decimal     `json:"price"`
}

type RespondRequest struct {
	Decision entity.Decision `json:"decision"`
	Reason   string          `json:"reason"`
}

type PaymentConfirmation struct {
	Booking       *entity.Booking     `json:"booking"`
	ReviewLink    *entity.ReviewLink  `json:"review_link"`
	SystemMessage *entity.ChatMessage `json:"system_message,omitempty"`
}

type SendMessageRequest struct {
	RoomID     string            `json:"room_id"`
	SenderID   string            `json:"sender_id"`
	SenderType entity.SenderType `json:"sender_type"`
	Content    string            `json:"content"`
}

type SubmitReviewRequest struct {
	BookingID string `json:"booking_id"`
	// CustomerID is optional. When set it must own the booking.
	CustomerID string `json:"customer_id"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
}

type IssueDiscountRequest struct {
	ReviewID   string `json:"review_id"`
	Percentage int    `json:"percentage"`
	ValidDays  int    `json:"valid_days"`
}

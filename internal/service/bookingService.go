package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type bookingService struct {
	bookingRepo    database.BookingRepository
	accountRepo    database.AccountRepository
	chatRepo       database.ChatRepository
	chat           ChatService
	reviews        ReviewService
	commissions    CommissionService
	notifier       Notifier
	queue          TaskPublisher
	responseWindow time.Duration
	schedule       Schedule
	rates          Rates
	batchSize      int
	now            Clock
}

// NewBookingService создает новый экземпляр BookingService
func NewBookingService(
	store *database.Store,
	chat ChatService,
	reviews ReviewService,
	commissions CommissionService,
	notifier Notifier,
	queue TaskPublisher,
	responseWindow time.Duration,
	schedule Schedule,
	rates Rates,
	batchSize int,
	clock Clock,
) BookingService {
	return &bookingService{
		bookingRepo:    store.Bookings,
		accountRepo:    store.Accounts,
		chatRepo:       store.Chat,
		chat:           chat,
		reviews:        reviews,
		commissions:    commissions,
		notifier:       notifier,
		queue:          queue,
		responseWindow: responseWindow,
		schedule:       schedule,
		rates:          rates,
		batchSize:      batchSize,
		now:            clock,
	}
}

func (s *bookingService) validateCreate(req *CreateBookingRequest) error {
	switch {
	case strings.TrimSpace(req.CustomerID) == "":
		return entity.Validation("customer_id is required")
	case strings.TrimSpace(req.CustomerName) == "":
		return entity.Validation("customer_name is required")
	case strings.TrimSpace(req.ProviderID) == "":
		return entity.Validation("provider_id is required")
	case !req.ProviderType.Valid():
		return entity.Validation("provider_type must be therapist or place")
	case req.ServiceDuration <= 0:
		return entity.Validation("service_duration must be positive")
	case !req.Price.IsPositive():
		return entity.Validation("price must be positive")
	}
	if _, ok := s.rates[req.ProviderTier]; !ok {
		return entity.Validation("unknown provider_tier %q", req.ProviderTier)
	}
	return nil
}

// CreateBooking создает бронирование в статусе pending вместе с чатом
func (s *bookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error) {
	if req.ProviderTier == "" {
		req.ProviderTier = entity.TierPro
	}
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	provider, err := s.accountRepo.Get(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider account: %w", err)
	}
	if provider.Restricted {
		return nil, entity.ErrProviderRestricted
	}

	now := s.now()
	booking := &entity.Booking{
		ID:               uuid.NewString(),
		CustomerID:       req.CustomerID,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		ProviderID:       req.ProviderID,
		ProviderType:     req.ProviderType,
		ProviderTier:     req.ProviderTier,
		ServiceType:      req.ServiceType,
		ServiceDuration:  req.ServiceDuration,
		Price:            req.Price.Round(0),
		Status:           entity.BookingStatusPending,
		CreatedAt:        now,
		ResponseDeadline: now.Add(s.responseWindow),
		UpdatedAt:        now,
	}
	room := &entity.ChatRoom{
		ID:         uuid.NewString(),
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		ProviderID: booking.ProviderID,
		CreatedAt:  now,
	}

	err = s.bookingRepo.Create(ctx, booking, room)
	if errors.Is(err, entity.ErrDuplicateBooking) && s.releaseStaleBooking(ctx, booking) {
		err = s.bookingRepo.Create(ctx, booking, room)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"customer_id": booking.CustomerID,
		"provider_id": booking.ProviderID,
		"deadline":    booking.ResponseDeadline.Format(time.RFC3339),
	}).Info("booking created")

	s.scheduleExpiry(ctx, booking)

	s.notifier.Notify(ctx, &entity.Notification{
		UserID: booking.ProviderID,
		Type:   entity.NotifyBookingRequest,
		Title:  "New booking request",
		Message: fmt.Sprintf("%s requested %d minutes of %s. Please respond before %s.",
			booking.CustomerName, booking.ServiceDuration, booking.ServiceType,
			booking.ResponseDeadline.Format("15:04")),
		BookingID: booking.ID,
		Payload:   map[string]interface{}{"room_id": room.ID},
	})

	return booking, nil
}

// releaseStaleBooking expires the pair's pending booking when its response
// deadline has already passed but no sweep has run yet. It reports whether
// the pair is free again.
func (s *bookingService) releaseStaleBooking(ctx context.Context, booking *entity.Booking) bool {
	existing, err := s.bookingRepo.GetByCustomer(ctx, booking.CustomerID, defaultBookingListLimit)
	if err != nil {
		logrus.WithError(err).WithField("customer_id", booking.CustomerID).Warn("failed to load customer bookings")
		return false
	}

	for _, b := range existing {
		if b.ProviderID != booking.ProviderID || !b.Status.IsActive() {
			continue
		}
		if b.Status != entity.BookingStatusPending || !booking.CreatedAt.After(b.ResponseDeadline) {
			return false
		}
		current, _, err := s.ExpireIfOverdue(ctx, b.ID)
		if err != nil {
			logrus.WithError(err).WithField("booking_id", b.ID).Warn("failed to expire stale booking")
			return false
		}
		return !current.Status.IsActive()
	}
	return false
}

// scheduleExpiry enqueues the expiry at the response deadline. The sweep
// expires the booking anyway if the task is lost.
func (s *bookingService) scheduleExpiry(ctx context.Context, booking *entity.Booking) {
	if s.queue == nil {
		return
	}

	task := &Task{
		ID:         fmt.Sprintf("expire_booking_%s", booking.ID),
		Type:       TaskTypeExpireBooking,
		Data:       map[string]interface{}{"booking_id": booking.ID},
		ExecuteAt:  booking.ResponseDeadline.Add(time.Second),
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		logrus.WithError(err).WithField("booking_id", booking.ID).Warn("failed to schedule booking expiry")
	}
}

const defaultBookingListLimit = 50

func (s *bookingService) ListBookings(ctx context.Context, userID string, role BookingRole, limit int) ([]*entity.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, entity.Validation("user_id is required")
	}
	if limit <= 0 || limit > defaultBookingListLimit {
		limit = defaultBookingListLimit
	}

	switch role {
	case RoleCustomer, "":
		return s.bookingRepo.GetByCustomer(ctx, userID, limit)
	case RoleProvider:
		return s.bookingRepo.GetByProvider(ctx, userID, limit)
	}
	return nil, entity.Validation("role must be customer or provider")
}

func (s *bookingService) GetBooking(ctx context.Context, id string) (*entity.Booking, error) {
	booking, _, err := s.ExpireIfOverdue(ctx, id)
	return booking, err
}

func (s *bookingService) RespondToBooking(ctx context.Context, id string, req *RespondRequest) (*entity.Booking, error) {
	var to entity.BookingStatus
	switch req.Decision {
	case entity.DecisionAccept:
		to = entity.BookingStatusAccepted
	case entity.DecisionDecline:
		to = entity.BookingStatusDeclined
	default:
		return nil, entity.Validation("decision must be accept or decline")
	}

	if to == entity.BookingStatusAccepted {
		current, err := s.bookingRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		provider, err := s.accountRepo.Get(ctx, current.ProviderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider account: %w", err)
		}
		if provider.Restricted {
			return nil, entity.ErrProviderRestricted
		}
	}

	booking, err := s.bookingRepo.Transition(ctx, entity.Transition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusPending},
		To:        to,
		At:        s.now(),
		Guard:     entity.WithinResponseWindow,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		if errors.Is(err, entity.ErrResponseWindowClosed) {
			if _, _, expErr := s.ExpireIfOverdue(ctx, id); expErr != nil {
				logrus.WithError(expErr).WithField("booking_id", id).Error("failed to expire late booking")
			}
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("booking answered")

	notification := &entity.Notification{
		UserID:    booking.CustomerID,
		BookingID: booking.ID,
	}
	if to == entity.BookingStatusAccepted {
		notification.Type = entity.NotifyBookingAccepted
		notification.Title = "Booking accepted"
		notification.Message = "Your booking was accepted. You can chat with your provider in the booking room."
	} else {
		notification.Type = entity.NotifyBookingDeclined
		notification.Title = "Booking declined"
		notification.Message = "Your booking was declined."
		if booking.DeclineReason != "" {
			notification.Message += " Reason: " + booking.DeclineReason
		}
	}
	s.notifier.Notify(ctx, notification)

	return booking, nil
}

// ExpireIfOverdue is idempotent. The bool reports whether this call expired it.
func (s *bookingService) ExpireIfOverdue(ctx context.Context, id string) (*entity.Booking, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, entity.Validation("booking id is required")
	}

	booking, err := s.bookingRepo.Transition(ctx, entity.Transition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusPending},
		To:        entity.BookingStatusExpired,
		At:        s.now(),
		Guard:     entity.AfterResponseWindow,
	})
	if err != nil {
		if entity.KindOf(err) != entity.KindInvalidState {
			return nil, false, err
		}
		current, getErr := s.bookingRepo.GetByID(ctx, id)
		return current, false, getErr
	}

	logrus.WithField("booking_id", booking.ID).Info("booking expired")

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    booking.CustomerID,
		Type:      entity.NotifyBookingExpired,
		Title:     "Booking expired",
		Message:   "The provider did not respond in time. Please choose another provider.",
		BookingID: booking.ID,
	})
	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    booking.ProviderID,
		Type:      entity.NotifyBookingExpired,
		Title:     "Booking request expired",
		Message:   "You did not respond to a booking request in time.",
		BookingID: booking.ID,
	})

	return booking, true, nil
}

// ExpireOverdueBookings expires every pending booking past its deadline.
func (s *bookingService) ExpireOverdueBookings(ctx context.Context) (int, error) {
	overdue, err := s.bookingRepo.ListOverduePending(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue bookings: %w", err)
	}

	expired := 0
	for _, b := range overdue {
		_, done, err := s.ExpireIfOverdue(ctx, b.ID)
		if err != nil {
			logrus.WithError(err).WithField("booking_id", b.ID).Error("failed to expire booking")
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

func (s *bookingService) StartService(ctx context.Context, id string) (*entity.Booking, error) {
	booking, err := s.bookingRepo.Transition(ctx, entity.Transition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusAccepted},
		To:        entity.BookingStatusInProgress,
		At:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("booking_id", booking.ID).Info("service started")
	return booking, nil
}

// MarkCompleted creates the commission record in the same write as the
// transition, so concurrent calls produce exactly one record.
func (s *bookingService) MarkCompleted(ctx context.Context, id string) (*entity.Booking, error) {
	var rec *entity.CommissionRecord
	booking, err := s.bookingRepo.Complete(ctx, entity.Transition{
		BookingID: id,
		From:      entity.SourcesOf(entity.BookingStatusCompleted),
		To:        entity.BookingStatusCompleted,
		At:        s.now(),
	}, func(b *entity.Booking) *entity.CommissionRecord {
		rec = NewCommissionRecord(b, s.rates[b.ProviderTier], s.schedule.Deadline)
		return rec
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"amount_due": rec.AmountDue.String(),
		"due_at":     rec.DueAt.Format(time.RFC3339),
	}).Info("booking completed")

	s.commissions.ScheduleChecks(ctx, rec)
	return booking, nil
}

// ConfirmPaymentReceived moves a completed booking to payment_confirmed and
// issues the review link and the system chat message, each exactly once.
func (s *bookingService) ConfirmPaymentReceived(ctx context.Context, id string) (*PaymentConfirmation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, entity.Validation("booking_id is required")
	}

	booking, err := s.bookingRepo.Transition(ctx, entity.Transition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusCompleted},
		To:        entity.BookingStatusPaymentConfirmed,
		At:        s.now(),
	})
	if err != nil {
		// A repeated call finishes side effects a failed first call left undone.
		if entity.KindOf(err) == entity.KindInvalidState {
			if current, getErr := s.bookingRepo.GetByID(ctx, id); getErr == nil && current.Status == entity.BookingStatusPaymentConfirmed {
				if _, sideErr := s.paymentSideEffects(ctx, current); sideErr != nil {
					logrus.WithError(sideErr).WithField("booking_id", id).Error("failed to repair payment side effects")
				}
			}
		}
		return nil, err
	}

	logrus.WithField("booking_id", booking.ID).Info("payment confirmed")

	result, err := s.paymentSideEffects(ctx, booking)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    booking.CustomerID,
		Type:      entity.NotifyReviewRequest,
		Title:     "How was your massage?",
		Message:   "Payment received. Leave a review: " + result.ReviewLink.URL,
		BookingID: booking.ID,
		Payload:   map[string]interface{}{"review_url": result.ReviewLink.URL},
	})

	return result, nil
}

func (s *bookingService) paymentSideEffects(ctx context.Context, booking *entity.Booking) (*PaymentConfirmation, error) {
	link, err := s.reviews.CreateReviewLink(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("failed to create review link: %w", err)
	}

	result := &PaymentConfirmation{Booking: booking, ReviewLink: link}

	room, err := s.chatRepo.GetRoomByBooking(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat room: %w", err)
	}

	text := fmt.Sprintf("Payment received. Thank you, %s! Please rate your experience: %s", booking.CustomerName, link.URL)
	msg, _, err := s.chat.PostSystemMessage(ctx, room.ID, "payment-confirmed:"+booking.ID, text)
	if err != nil {
		return nil, fmt.Errorf("failed to post payment message: %w", err)
	}
	result.SystemMessage = msg
	return result, nil
}

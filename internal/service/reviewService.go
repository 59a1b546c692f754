package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/ds124wfegd/spa-booking/internal/moderation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const discountCodePrefix = "SPA-"

type reviewService struct {
	bookingRepo  database.BookingRepository
	reviewRepo   database.ReviewRepository
	discountRepo database.DiscountRepository
	accountRepo  database.AccountRepository
	chatRepo     database.ChatRepository
	chat         ChatService
	notifier     Notifier
	reviewCfg    config.ReviewConfig
	discountCfg  config.DiscountConfig
	now          Clock
}

func NewReviewService(
	store *database.Store,
	chat ChatService,
	notifier Notifier,
	reviewCfg config.ReviewConfig,
	discountCfg config.DiscountConfig,
	clock Clock,
) ReviewService {
	return &reviewService{
		bookingRepo:  store.Bookings,
		reviewRepo:   store.Reviews,
		discountRepo: store.Discounts,
		accountRepo:  store.Accounts,
		chatRepo:     store.Chat,
		chat:         chat,
		notifier:     notifier,
		reviewCfg:    reviewCfg,
		discountCfg:  discountCfg,
		now:          clock,
	}
}

func (s *reviewService) SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*entity.Review, error) {
	text := strings.TrimSpace(req.Text)
	switch {
	case req.BookingID == "":
		return nil, entity.Validation("booking_id is required")
	case req.Rating < 1 || req.Rating > 5:
		return nil, entity.Validation("rating must be between 1 and 5")
	case s.reviewCfg.MaxTextSize > 0 && utf8.RuneCountInString(text) > s.reviewCfg.MaxTextSize:
		return nil, entity.Validation("text exceeds %d characters", s.reviewCfg.MaxTextSize)
	}
	if found := moderation.Detect(text); len(found) > 0 {
		return nil, entity.ErrContentViolation.WithMessage("review text must not contain contact information")
	}

	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != "" && req.CustomerID != booking.CustomerID {
		return nil, entity.Validation("booking belongs to another customer")
	}
	if !booking.Status.Reviewable() {
		return nil, entity.ErrBookingNotCompleted
	}

	review := &entity.Review{
		ID:         uuid.NewString(),
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		ProviderID: booking.ProviderID,
		Rating:     req.Rating,
		Text:       text,
		CreatedAt:  s.now(),
	}
	created, err := s.reviewRepo.CreateIfAbsent(ctx, review)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, entity.ErrAlreadyReviewed
	}

	if err := s.accountRepo.AddRating(ctx, review.ProviderID, review.Rating, review.CreatedAt); err != nil {
		logrus.WithError(err).WithField("provider_id", review.ProviderID).Error("failed to update provider rating")
	}

	logrus.WithFields(logrus.Fields{
		"review_id":  review.ID,
		"booking_id": review.BookingID,
		"rating":     review.Rating,
	}).Info("review submitted")

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    review.ProviderID,
		Type:      entity.NotifyReviewRequest,
		Title:     "New review",
		Message:   fmt.Sprintf("A customer rated booking %s with %d stars.", review.BookingID, review.Rating),
		BookingID: review.BookingID,
		Payload:   map[string]interface{}{"review_id": review.ID},
	})

	return review, nil
}

// reviewToken is derived from the booking id, so a booking has exactly one token.
func (s *reviewService) reviewToken(bookingID string) string {
	mac := hmac.New(sha256.New, []byte(s.reviewCfg.LinkSecret))
	mac.Write([]byte(bookingID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *reviewService) linkURL(token string) string {
	return strings.TrimRight(s.reviewCfg.BaseURL, "/") + "/review/" + token
}

func (s *reviewService) CreateReviewLink(ctx context.Context, booking *entity.Booking) (*entity.ReviewLink, error) {
	now := s.now()
	link := &entity.ReviewLink{
		Token:     s.reviewToken(booking.ID),
		BookingID: booking.ID,
		ExpiresAt: now.Add(s.reviewCfg.LinkTTL),
		CreatedAt: now,
	}

	created, err := s.reviewRepo.CreateLinkIfAbsent(ctx, link)
	if err != nil {
		return nil, err
	}
	if !created {
		link, err = s.reviewRepo.GetLink(ctx, link.Token)
		if err != nil {
			return nil, err
		}
	}
	link.URL = s.linkURL(link.Token)
	return link, nil
}

// ResolveReviewLink returns the link while it is valid and unused.
func (s *reviewService) ResolveReviewLink(ctx context.Context, token string) (*entity.ReviewLink, error) {
	if token == "" {
		return nil, entity.Validation("token is required")
	}

	link, err := s.reviewRepo.GetLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.now().After(link.ExpiresAt) {
		return nil, entity.ErrReviewLinkExpired
	}

	if _, err := s.reviewRepo.GetByBookingID(ctx, link.BookingID); err == nil {
		return nil, entity.ErrAlreadyReviewed
	} else if entity.KindOf(err) != entity.KindNotFound {
		return nil, err
	}

	link.URL = s.linkURL(link.Token)
	return link, nil
}

func newDiscountCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return discountCodePrefix + strings.ToUpper(raw[:8])
}

func (s *reviewService) IssueDiscount(ctx context.Context, req *IssueDiscountRequest) (*entity.DiscountCode, error) {
	switch {
	case req.ReviewID == "":
		return nil, entity.Validation("review_id is required")
	case req.Percentage < 1 || req.Percentage > s.discountCfg.MaxPercentage:
		return nil, entity.Validation("percentage must be between 1 and %d", s.discountCfg.MaxPercentage)
	case req.ValidDays < 1 || req.ValidDays > s.discountCfg.MaxValidDays:
		return nil, entity.Validation("valid_days must be between 1 and %d", s.discountCfg.MaxValidDays)
	}

	review, err := s.reviewRepo.GetByID(ctx, req.ReviewID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	code := &entity.DiscountCode{
		Code:       newDiscountCode(),
		ReviewID:   review.ID,
		ProviderID: review.ProviderID,
		CustomerID: review.CustomerID,
		Percentage: req.Percentage,
		ValidUntil: now.Add(time.Duration(req.ValidDays) * 24 * time.Hour),
		CreatedAt:  now,
	}
	created, err := s.discountRepo.CreateIfAbsent(ctx, code)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, entity.ErrDiscountAlreadyGiven
	}

	logrus.WithFields(logrus.Fields{
		"review_id":  review.ID,
		"code":       code.Code,
		"percentage": code.Percentage,
	}).Info("discount issued")

	text := fmt.Sprintf(
		"Thank you for your review! Here is a %d%% discount for your next booking: %s (valid until %s).",
		code.Percentage, code.Code, code.ValidUntil.Format("2006-01-02"),
	)

	if room, err := s.chatRepo.GetRoomByBooking(ctx, review.BookingID); err == nil {
		if _, _, err := s.chat.PostSystemMessage(ctx, room.ID, "discount:"+review.ID, text); err != nil {
			logrus.WithError(err).WithField("review_id", review.ID).Error("failed to post discount message")
		}
	} else {
		logrus.WithError(err).WithField("booking_id", review.BookingID).Warn("no chat room for discount message")
	}

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    review.CustomerID,
		Type:      entity.NotifyDiscountIssued,
		Title:     "You received a discount",
		Message:   text,
		BookingID: review.BookingID,
		Payload:   map[string]interface{}{"code": code.Code},
	})

	return code, nil
}

func (s *reviewService) GetDiscountCode(ctx context.Context, code string) (*entity.DiscountCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, entity.Validation("code is required")
	}
	return s.discountRepo.GetByCode(ctx, code)
}

func (s *reviewService) RedeemDiscountCode(ctx context.Context, code, bookingID string) (*entity.Redemption, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || bookingID == "" {
		return nil, entity.Validation("code and booking_id are required")
	}

	redemption, err := s.discountRepo.Redeem(ctx, code, bookingID, s.now())
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"code":       code,
		"booking_id": bookingID,
		"price":      redemption.Booking.Price.String(),
	}).Info("discount redeemed")

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    redemption.Booking.ProviderID,
		Type:      entity.NotifyDiscountIssued,
		Title:     "Discount applied",
		Message:   fmt.Sprintf("Discount %s (%d%%) was applied to booking %s.", code, redemption.Code.Percentage, bookingID),
		BookingID: bookingID,
	})

	return redemption, nil
}

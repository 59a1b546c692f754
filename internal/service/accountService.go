package service

import (
	"context"
	"strings"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultNotificationLimit = 50

// AccountView is the account with its derived rating.
type AccountView struct {
	*entity.Account
	AverageRating float64 `json:"average_rating"`
}

type AccountService interface {
	GetAccount(ctx context.Context, userID string) (*AccountView, error)
	LinkTelegram(ctx context.Context, userID, telegramID string) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*entity.Notification, error)
}

type accountService struct {
	accountRepo      database.AccountRepository
	notificationRepo database.NotificationRepository
	now              Clock
}

func NewAccountService(accountRepo database.AccountRepository, notificationRepo database.NotificationRepository, clock Clock) AccountService {
	return &accountService{
		accountRepo:      accountRepo,
		notificationRepo: notificationRepo,
		now:              clock,
	}
}

func (s *accountService) GetAccount(ctx context.Context, userID string) (*AccountView, error) {
	if userID == "" {
		return nil, entity.Validation("user_id is required")
	}
	account, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AccountView{Account: account, AverageRating: account.AverageRating()}, nil
}

func (s *accountService) LinkTelegram(ctx context.Context, userID, telegramID string) error {
	telegramID = strings.TrimSpace(telegramID)
	if userID == "" || telegramID == "" {
		return entity.Validation("user_id and telegram_id are required")
	}

	if err := s.accountRepo.SetTelegramID(ctx, userID, telegramID, s.now()); err != nil {
		return err
	}
	logrus.WithField("user_id", userID).Info("telegram linked")
	return nil
}

func (s *accountService) ListNotifications(ctx context.Context, userID string, limit int) ([]*entity.Notification, error) {
	if userID == "" {
		return nil, entity.Validation("user_id is required")
	}
	if limit <= 0 || limit > defaultNotificationLimit {
		limit = defaultNotificationLimit
	}
	return s.notificationRepo.ListByUser(ctx, userID, limit)
}

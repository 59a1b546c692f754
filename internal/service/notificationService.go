package service

import (
	"context"
	"fmt"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const notificationMaxRetries = 5

type notifier struct {
	repo      database.NotificationRepository
	queue     TaskPublisher
	deliverer Deliverer
	now       Clock
}

// NewNotifier persists notifications and delivers them through the queue
// when one is configured, or directly through deliverer otherwise.
func NewNotifier(repo database.NotificationRepository, queue TaskPublisher, deliverer Deliverer, clock Clock) Notifier {
	return &notifier{
		repo:      repo,
		queue:     queue,
		deliverer: deliverer,
		now:       clock,
	}
}

func (n *notifier) Notify(ctx context.Context, notification *entity.Notification) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = n.now()

	log := logrus.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"user_id":         notification.UserID,
		"type":            notification.Type,
		"booking_id":      notification.BookingID,
	})

	if err := n.repo.Create(ctx, notification); err != nil {
		log.WithError(err).Error("failed to store notification")
		return
	}

	if n.queue != nil {
		task := &Task{
			ID:   fmt.Sprintf("notify_%s", notification.ID),
			Type: TaskTypeDeliverNotification,
			Data: map[string]interface{}{
				"notification_id": notification.ID,
				"user_id":         notification.UserID,
				"type":            string(notification.Type),
				"title":           notification.Title,
				"message":         notification.Message,
				"booking_id":      notification.BookingID,
			},
			MaxRetries: notificationMaxRetries,
		}
		if err := n.queue.Publish(ctx, task); err != nil {
			log.WithError(err).Warn("failed to enqueue notification, delivering directly")
		} else {
			return
		}
	}

	if n.deliverer == nil {
		log.Info("notification stored")
		return
	}
	if err := n.deliverer.Deliver(ctx, notification); err != nil {
		log.WithError(err).Warn("failed to deliver notification")
	}
}

// TelegramSender is the part of the telegram bot the delivery needs.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

type deliveryService struct {
	accounts database.AccountRepository
	bot      TelegramSender
	pusher   Pusher
}

// NewDeliveryService sends notifications over the websocket hub and, for
// users with a linked telegram chat, over telegram.
func NewDeliveryService(accounts database.AccountRepository, bot TelegramSender, pusher Pusher) Deliverer {
	return &deliveryService{
		accounts: accounts,
		bot:      bot,
		pusher:   pusher,
	}
}

func (d *deliveryService) Deliver(ctx context.Context, n *entity.Notification) error {
	if d.pusher != nil {
		d.pusher.SendToUser(n.UserID, "notification", n)
	}

	if d.bot == nil {
		return nil
	}

	account, err := d.accounts.Get(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", n.UserID, err)
	}
	if account.TelegramID == "" {
		return nil
	}

	text := n.Title
	if n.Message != "" {
		text += "\n\n" + n.Message
	}
	if err := d.bot.SendMessage(ctx, account.TelegramID, text); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

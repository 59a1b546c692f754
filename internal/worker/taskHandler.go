package worker

import (
	"context"
	"fmt"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/ds124wfegd/spa-booking/pkg/queue"

	"github.com/sirupsen/logrus"
)

// TaskHandler обрабатывает задачи из очереди. Every handler is safe to run
// more than once for the same task.
type TaskHandler struct {
	bookings    service.BookingService
	commissions service.CommissionService
	deliverer   service.Deliverer
}

func NewTaskHandler(bookings service.BookingService, commissions service.CommissionService, deliverer service.Deliverer) *TaskHandler {
	return &TaskHandler{
		bookings:    bookings,
		commissions: commissions,
		deliverer:   deliverer,
	}
}

// HandleTask dispatches by task type
func (h *TaskHandler) HandleTask(ctx context.Context, task *queue.Task) error {
	log := logrus.WithFields(logrus.Fields{
		"task_id": task.ID,
		"type":    task.Type,
		"attempt": task.Attempts,
	})
	log.Debug("processing task")

	var err error
	switch task.Type {
	case queue.TaskTypeExpireBooking:
		err = h.handleExpireBooking(ctx, task)
	case queue.TaskTypeCheckCommission:
		err = h.handleCheckCommission(ctx, task)
	case queue.TaskTypeDeliverNotification:
		err = h.handleDeliverNotification(ctx, task)
	default:
		err = fmt.Errorf("%w: unknown task type %q", queue.ErrPermanent, task.Type)
	}

	if err != nil {
		log.WithError(err).Warn("task failed")
	}
	return err
}

func (h *TaskHandler) handleExpireBooking(ctx context.Context, task *queue.Task) error {
	bookingID := task.GetString("booking_id")
	if bookingID == "" {
		return fmt.Errorf("%w: booking_id is missing", queue.ErrPermanent)
	}

	booking, expired, err := h.bookings.ExpireIfOverdue(ctx, bookingID)
	if err != nil {
		return err
	}
	if expired {
		logrus.WithField("booking_id", booking.ID).Info("booking expired by scheduled task")
	}
	return nil
}

func (h *TaskHandler) handleCheckCommission(ctx context.Context, task *queue.Task) error {
	bookingID := task.GetString("booking_id")
	if bookingID == "" {
		return fmt.Errorf("%w: booking_id is missing", queue.ErrPermanent)
	}

	status, err := h.commissions.Check(ctx, bookingID)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"stage":      status.Stage.String(),
	}).Debug("commission checked")
	return nil
}

func (h *TaskHandler) handleDeliverNotification(ctx context.Context, task *queue.Task) error {
	if h.deliverer == nil {
		return nil
	}

	n := &entity.Notification{
		ID:        task.GetString("notification_id"),
		UserID:    task.GetString("user_id"),
		Type:      entity.NotificationType(task.GetString("type")),
		Title:     task.GetString("title"),
		Message:   task.GetString("message"),
		BookingID: task.GetString("booking_id"),
		CreatedAt: task.CreatedAt,
	}
	if n.UserID == "" {
		return fmt.Errorf("%w: user_id is missing", queue.ErrPermanent)
	}
	return h.deliverer.Deliver(ctx, n)
}

// Retryable reports whether a failed task may succeed on a later attempt.
// Domain errors are final; only internal failures are retried.
func Retryable(err error) bool {
	return entity.KindOf(err) == entity.KindInternal
}

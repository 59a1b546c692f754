package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type commissionService struct {
	commissionRepo database.CommissionRepository
	accountRepo    database.AccountRepository
	notifier       Notifier
	queue          TaskPublisher
	schedule       Schedule
	fee            decimal.Decimal
	batchSize      int
	now            Clock
}

func NewCommissionService(
	commissionRepo database.CommissionRepository,
	accountRepo database.AccountRepository,
	notifier Notifier,
	queue TaskPublisher,
	schedule Schedule,
	fee decimal.Decimal,
	batchSize int,
	clock Clock,
) CommissionService {
	return &commissionService{
		commissionRepo: commissionRepo,
		accountRepo:    accountRepo,
		notifier:       notifier,
		queue:          queue,
		schedule:       schedule,
		fee:            fee,
		batchSize:      batchSize,
		now:            clock,
	}
}

// Check brings the record up to date and reports its stage.
func (s *commissionService) Check(ctx context.Context, bookingID string) (*entity.CommissionStatus, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, entity.Validation("booking_id is required")
	}

	rec, err := s.commissionRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec, err = s.advance(ctx, rec, now)
	if err != nil {
		return nil, err
	}

	status := &entity.CommissionStatus{Record: rec, Stage: rec.ReminderStage}
	if rec.State == entity.CommissionPending && now.Before(rec.DueAt) {
		status.TimeLeft = rec.DueAt.Sub(now)
	}
	return status, nil
}

// SweepCommissions advances every pending record and returns how many moved.
func (s *commissionService) SweepCommissions(ctx context.Context) (int, error) {
	records, err := s.commissionRepo.ListByState(ctx, entity.CommissionPending, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending commissions: %w", err)
	}

	now := s.now()
	moved := 0
	for _, rec := range records {
		before := rec.ReminderStage
		updated, err := s.advance(ctx, rec, now)
		if err != nil {
			logrus.WithError(err).WithField("booking_id", rec.BookingID).Error("commission sweep failed for record")
			continue
		}
		if updated.ReminderStage != before {
			moved++
		}
	}
	return moved, nil
}

// advance moves the stored stage forward to the evaluated one. Only the
// caller whose conditional write wins emits the side effects.
func (s *commissionService) advance(ctx context.Context, rec *entity.CommissionRecord, now time.Time) (*entity.CommissionRecord, error) {
	if rec.State != entity.CommissionPending {
		return rec, nil
	}

	target := Evaluate(s.schedule, rec, now)
	if target <= rec.ReminderStage {
		return rec, nil
	}

	log := logrus.WithFields(logrus.Fields{
		"booking_id":  rec.BookingID,
		"provider_id": rec.ProviderID,
		"from":        rec.ReminderStage.String(),
		"to":          target.String(),
	})

	var (
		won bool
		err error
	)
	if target == entity.StageOverdue {
		won, err = s.commissionRepo.MarkOverdue(ctx, rec.BookingID, s.fee, now)
	} else {
		won, err = s.commissionRepo.AdvanceStage(ctx, rec.BookingID, rec.ReminderStage, target, now)
	}
	if err != nil {
		return nil, err
	}

	if won {
		log.Info("commission escalated")
		if target == entity.StageOverdue {
			s.onOverdue(ctx, rec, now)
		} else {
			s.notifyStage(ctx, rec, target, now)
		}
	}

	return s.commissionRepo.GetByBookingID(ctx, rec.BookingID)
}

func (s *commissionService) notifyStage(ctx context.Context, rec *entity.CommissionRecord, stage entity.ReminderStage, now time.Time) {
	left := rec.DueAt.Sub(now).Round(time.Minute)

	var title string
	switch stage {
	case entity.StageReminder:
		title = "Commission payment reminder"
	case entity.StageUrgent:
		title = "Commission payment due soon"
	case entity.StageFinal:
		title = "Final notice: commission payment"
	}

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    rec.ProviderID,
		Type:      entity.NotifyCommissionStage,
		Title:     title,
		Message:   fmt.Sprintf("Please pay the commission of IDR %s for booking %s. Time left: %s.", rec.AmountDue.StringFixed(0), rec.BookingID, left),
		BookingID: rec.BookingID,
		Payload:   map[string]interface{}{"stage": stage.String()},
	})
}

func (s *commissionService) onOverdue(ctx context.Context, rec *entity.CommissionRecord, now time.Time) {
	restricted, err := s.accountRepo.Restrict(ctx, rec.ProviderID, entity.RestrictionCommissionOverdue, now)
	if err != nil {
		logrus.WithError(err).WithField("provider_id", rec.ProviderID).Error("failed to restrict provider")
	}

	total := rec.AmountDue.Add(s.fee)
	s.notifier.Notify(ctx, &entity.Notification{
		UserID: rec.ProviderID,
		Type:   entity.NotifyCommissionBlocked,
		Title:  "Account restricted: commission overdue",
		Message: fmt.Sprintf(
			"The commission for booking %s is overdue. Pay IDR %s (including a reactivation fee of IDR %s) to restore your account.",
			rec.BookingID, total.StringFixed(0), s.fee.StringFixed(0),
		),
		BookingID: rec.BookingID,
		Payload:   map[string]interface{}{"restricted": restricted},
	})
}

// SubmitPaymentProof settles the commission. Settling the last overdue
// record of a provider lifts the commission restriction.
func (s *commissionService) SubmitPaymentProof(ctx context.Context, bookingID, proofURL string) (*entity.CommissionRecord, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, entity.Validation("booking_id is required")
	}
	if err := validateProofURL(proofURL); err != nil {
		return nil, err
	}

	now := s.now()
	rec, previous, err := s.commissionRepo.MarkPaid(ctx, bookingID, proofURL, now)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"booking_id":  bookingID,
		"provider_id": rec.ProviderID,
		"previous":    previous,
	})
	log.Info("commission paid")

	if previous == entity.CommissionOverdue {
		remaining, err := s.commissionRepo.CountOverdueByProvider(ctx, rec.ProviderID)
		if err != nil {
			return nil, fmt.Errorf("failed to count overdue commissions: %w", err)
		}
		if remaining == 0 {
			cleared, err := s.accountRepo.ClearRestriction(ctx, rec.ProviderID, entity.RestrictionCommissionOverdue, false, now)
			if err != nil {
				return nil, fmt.Errorf("failed to clear restriction: %w", err)
			}
			if cleared {
				log.Info("provider restriction lifted")
			}
		}
	}

	s.notifier.Notify(ctx, &entity.Notification{
		UserID:    rec.ProviderID,
		Type:      entity.NotifyCommissionPaid,
		Title:     "Commission payment received",
		Message:   fmt.Sprintf("Thank you. The commission for booking %s is settled.", bookingID),
		BookingID: bookingID,
	})

	return rec, nil
}

func validateProofURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return entity.Validation("proof_url must be an absolute http(s) URL")
	}
	return nil
}

// ScheduleChecks enqueues a delayed check at every stage boundary. The
// sweep covers the same work when no queue is configured.
func (s *commissionService) ScheduleChecks(ctx context.Context, rec *entity.CommissionRecord) {
	if s.queue == nil || rec.State != entity.CommissionPending {
		return
	}

	stages := []entity.ReminderStage{entity.StageReminder, entity.StageUrgent, entity.StageFinal}
	for _, stage := range stages {
		s.publishCheck(ctx, rec, stage.String(), rec.CompletedAt.Add(s.schedule.Offset(stage)))
	}
	// Overdue means strictly after due_at.
	s.publishCheck(ctx, rec, entity.StageOverdue.String(), rec.DueAt.Add(time.Second))
}

func (s *commissionService) publishCheck(ctx context.Context, rec *entity.CommissionRecord, stage string, at time.Time) {
	task := &Task{
		ID:         fmt.Sprintf("commission_%s_%s", rec.BookingID, stage),
		Type:       TaskTypeCheckCommission,
		Data:       map[string]interface{}{"booking_id": rec.BookingID, "stage": stage},
		ExecuteAt:  at,
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		logrus.WithError(err).WithField("booking_id", rec.BookingID).Warn("failed to schedule commission check")
	}
}

package service

import (
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
)

// Schedule holds the escalation offsets measured from completion.
type Schedule struct {
	Reminder time.Duration
	Urgent   time.Duration
	Final    time.Duration
	Deadline time.Duration
}

const defaultFinalLead = 30 * time.Minute

// NewSchedule builds a schedule whose offsets never decrease and never
// pass the deadline. Without an explicit final offset the final stage
// starts 30 minutes before the deadline, or halfway between urgent and
// the deadline when the deadline is too short for that.
func NewSchedule(cfg config.CommissionConfig) Schedule {
	s := Schedule{
		Reminder: cfg.ReminderAfter,
		Urgent:   cfg.UrgentAfter,
		Final:    cfg.FinalAfter,
		Deadline: cfg.Deadline,
	}

	clamp := func(d, lo time.Duration) time.Duration {
		if d < lo {
			d = lo
		}
		if d > s.Deadline {
			d = s.Deadline
		}
		return d
	}
	s.Reminder = clamp(s.Reminder, 0)
	s.Urgent = clamp(s.Urgent, s.Reminder)

	if s.Final <= 0 {
		s.Final = s.Deadline - defaultFinalLead
		if s.Final <= s.Urgent {
			s.Final = s.Urgent + (s.Deadline-s.Urgent)/2
		}
	}
	s.Final = clamp(s.Final, s.Urgent)
	return s
}

// Offset returns when stage starts, relative to completion.
func (s Schedule) Offset(stage entity.ReminderStage) time.Duration {
	switch stage {
	case entity.StageReminder:
		return s.Reminder
	case entity.StageUrgent:
		return s.Urgent
	case entity.StageFinal:
		return s.Final
	case entity.StageOverdue:
		return s.Deadline
	}
	return 0
}

// Evaluate is the escalation stage of rec at now. It depends only on
// rec.CompletedAt, rec.DueAt and now, and never decreases as now grows.
func Evaluate(s Schedule, rec *entity.CommissionRecord, now time.Time) entity.ReminderStage {
	if now.After(rec.DueAt) {
		return entity.StageOverdue
	}

	elapsed := now.Sub(rec.CompletedAt)
	switch {
	case elapsed >= s.Final:
		return entity.StageFinal
	case elapsed >= s.Urgent:
		return entity.StageUrgent
	case elapsed >= s.Reminder:
		return entity.StageReminder
	}
	return entity.StageNone
}

// Rates maps a provider tier to its commission rate.
type Rates map[entity.ProviderTier]decimal.Decimal

func NewRates(cfg config.CommissionConfig) Rates {
	rates := make(Rates, len(cfg.Rates))
	for tier, rate := range cfg.Rates {
		rates[entity.ProviderTier(tier)] = decimal.NewFromFloat(rate)
	}
	return rates
}

// NewCommissionRecord computes the record owed for a completed booking.
// A zero amount is settled on creation.
func NewCommissionRecord(b *entity.Booking, rate decimal.Decimal, deadline time.Duration) *entity.CommissionRecord {
	completedAt := b.UpdatedAt
	if b.CompletedAt != nil {
		completedAt = *b.CompletedAt
	}

	rec := &entity.CommissionRecord{
		BookingID:       b.ID,
		ProviderID:      b.ProviderID,
		Rate:            rate,
		AmountDue:       b.Price.Mul(rate).Round(0),
		ReactivationFee: decimal.Zero,
		CompletedAt:     completedAt,
		DueAt:           completedAt.Add(deadline),
		State:           entity.CommissionPending,
		ReminderStage:   entity.StageNone,
		UpdatedAt:       completedAt,
	}
	if rec.AmountDue.IsZero() {
		rec.State = entity.CommissionPaid
		rec.PaidAt = &completedAt
	}
	return rec
}

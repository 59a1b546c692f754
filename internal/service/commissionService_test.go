package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() Schedule {
	return NewSchedule(testConfig().Commission)
}

func TestNewSchedule(t *testing.T) {
	s := testSchedule()
	assert.Equal(t, 2*time.Hour, s.Reminder)
	assert.Equal(t, 150*time.Minute, s.Urgent)
	assert.Equal(t, 270*time.Minute, s.Final)
	assert.Equal(t, 5*time.Hour, s.Deadline)

	clamped := NewSchedule(config.CommissionConfig{
		Deadline:      time.Hour,
		ReminderAfter: 50 * time.Minute,
		UrgentAfter:   10 * time.Minute,
		FinalAfter:    2 * time.Hour,
	})
	assert.Equal(t, 50*time.Minute, clamped.Urgent)
	assert.Equal(t, time.Hour, clamped.Final)
}

func TestNewSchedule_ShortDeadlineKeepsEveryStage(t *testing.T) {
	s := NewSchedule(config.CommissionConfig{
		Deadline:      3 * time.Hour,
		ReminderAfter: 2 * time.Hour,
		UrgentAfter:   150 * time.Minute,
	})
	assert.Equal(t, 165*time.Minute, s.Final)

	rec := &entity.CommissionRecord{CompletedAt: t0, DueAt: t0.Add(3 * time.Hour)}
	tests := []struct {
		minute int
		want   entity.ReminderStage
	}{
		{120, entity.StageReminder},
		{150, entity.StageUrgent},
		{165, entity.StageFinal},
		{180, entity.StageFinal},
		{181, entity.StageOverdue},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Evaluate(s, rec, t0.Add(time.Duration(tt.minute)*time.Minute)), "minute %d", tt.minute)
	}
}

func TestEvaluate(t *testing.T) {
	s := testSchedule()
	rec := &entity.CommissionRecord{CompletedAt: t0, DueAt: t0.Add(5 * time.Hour)}

	tests := []struct {
		elapsed time.Duration
		want    entity.ReminderStage
	}{
		{0, entity.StageNone},
		{119 * time.Minute, entity.StageNone},
		{2 * time.Hour, entity.StageReminder},
		{2*time.Hour + 5*time.Minute, entity.StageReminder},
		{150 * time.Minute, entity.StageUrgent},
		{270 * time.Minute, entity.StageFinal},
		{5 * time.Hour, entity.StageFinal},
		{5*time.Hour + time.Minute, entity.StageOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(s, rec, t0.Add(tt.elapsed)))
		})
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	s := testSchedule()
	rec := &entity.CommissionRecord{CompletedAt: t0, DueAt: t0.Add(5 * time.Hour)}

	prev := entity.StageNone
	for d := time.Duration(0); d <= 6*time.Hour; d += time.Minute {
		got := Evaluate(s, rec, t0.Add(d))
		require.GreaterOrEqual(t, int(got), int(prev), "stage went back at %s", d)
		prev = got
	}
}

func TestCommissionEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.completedBooking(t)
	completed := t0.Add(time.Hour)

	steps := []struct {
		at    time.Duration
		stage entity.ReminderStage
	}{
		{2*time.Hour + 5*time.Minute, entity.StageReminder},
		{2*time.Hour + 10*time.Minute, entity.StageReminder},
		{2*time.Hour + 31*time.Minute, entity.StageUrgent},
		{4*time.Hour + 31*time.Minute, entity.StageFinal},
		{5*time.Hour + time.Minute, entity.StageOverdue},
	}

	for _, step := range steps {
		env.clock.Set(completed.Add(step.at))
		_, err := env.svc.Commission.SweepCommissions(ctx)
		require.NoError(t, err)

		status, err := env.svc.Commission.Check(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, step.stage, status.Stage, "at %s", step.at)
	}

	// one notification per stage
	assert.Len(t, env.notificationsOf(t, "prov-1", entity.NotifyCommissionStage), 3)
	assert.Len(t, env.notificationsOf(t, "prov-1", entity.NotifyCommissionBlocked), 1)

	rec, err := env.store.Commissions.GetByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CommissionOverdue, rec.State)
	assert.True(t, decimal.NewFromInt(25000).Equal(rec.ReactivationFee))

	account, err := env.store.Accounts.Get(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, account.Restricted)
	assert.Equal(t, entity.RestrictionCommissionOverdue, account.RestrictionReason)

	_, err = env.svc.Booking.CreateBooking(ctx, bookingRequest())
	assert.True(t, errors.Is(err, entity.ErrProviderRestricted))
}

func TestCommissionCheck_SkipsStraightToOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.completedBooking(t)

	env.clock.Set(t0.Add(7 * time.Hour))
	status, err := env.svc.Commission.Check(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StageOverdue, status.Stage)
	assert.Zero(t, status.TimeLeft)

	assert.Empty(t, env.notificationsOf(t, "prov-1", entity.NotifyCommissionStage))
	assert.Len(t, env.notificationsOf(t, "prov-1", entity.NotifyCommissionBlocked), 1)
}

func TestSubmitPaymentProof(t *testing.T) {
	t.Run("pending record", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		b := env.completedBooking(t)

		rec, err := env.svc.Commission.SubmitPaymentProof(ctx, b.ID, "https://files.test/proof.jpg")
		require.NoError(t, err)
		assert.Equal(t, entity.CommissionPaid, rec.State)

		_, err = env.svc.Commission.SubmitPaymentProof(ctx, b.ID, "https://files.test/proof.jpg")
		assert.True(t, errors.Is(err, entity.ErrCommissionSettled))

		// paid records stop escalating
		env.clock.Set(t0.Add(10 * time.Hour))
		status, err := env.svc.Commission.Check(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StageNone, status.Stage)
	})

	t.Run("overdue record lifts restriction", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		b := env.completedBooking(t)

		env.clock.Set(t0.Add(7 * time.Hour))
		_, err := env.svc.Commission.SweepCommissions(ctx)
		require.NoError(t, err)

		_, err = env.svc.Commission.SubmitPaymentProof(ctx, b.ID, "https://files.test/proof.jpg")
		require.NoError(t, err)

		account, err := env.store.Accounts.Get(ctx, "prov-1")
		require.NoError(t, err)
		assert.False(t, account.Restricted)
	})

	t.Run("invalid proof url", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.completedBooking(t)

		for _, u := range []string{"", "not a url", "ftp://files.test/x", "/relative/path"} {
			_, err := env.svc.Commission.SubmitPaymentProof(context.Background(), b.ID, u)
			assert.Equal(t, entity.KindValidation, entity.KindOf(err), u)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Commission.SubmitPaymentProof(context.Background(), "missing", "https://files.test/p.jpg")
		assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
	})
}

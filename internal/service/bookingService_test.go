package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateBookingRequest)
	}{
		{"missing customer", func(r *CreateBookingRequest) { r.CustomerID = "" }},
		{"missing customer name", func(r *CreateBookingRequest) { r.CustomerName = "  " }},
		{"missing provider", func(r *CreateBookingRequest) { r.ProviderID = "" }},
		{"bad provider type", func(r *CreateBookingRequest) { r.ProviderType = "spa" }},
		{"zero duration", func(r *CreateBookingRequest) { r.ServiceDuration = 0 }},
		{"zero price", func(r *CreateBookingRequest) { r.Price = decimal.Zero }},
		{"unknown tier", func(r *CreateBookingRequest) { r.ProviderTier = "gold" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := bookingRequest()
			tt.mutate(req)

			_, err := env.svc.Booking.CreateBooking(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, entity.KindValidation, entity.KindOf(err))
		})
	}
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t)

	b := env.createBooking(t)

	assert.Equal(t, entity.BookingStatusPending, b.Status)
	assert.Equal(t, t0.Add(30*time.Minute), b.ResponseDeadline)

	room := env.roomOf(t, b.ID)
	assert.True(t, room.HasMember("cust-1"))
	assert.True(t, room.HasMember("prov-1"))

	assert.Len(t, env.notificationsOf(t, "prov-1", entity.NotifyBookingRequest), 1)

	tasks := env.queue.ofType(TaskTypeExpireBooking)
	require.Len(t, tasks, 1)
	assert.Equal(t, b.ResponseDeadline.Add(time.Second), tasks[0].ExecuteAt)
}

func TestCreateBooking_RestrictedProvider(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Accounts.Restrict(context.Background(), "prov-1", entity.RestrictionCommissionOverdue, t0)
	require.NoError(t, err)

	_, err = env.svc.Booking.CreateBooking(context.Background(), bookingRequest())
	assert.True(t, errors.Is(err, entity.ErrProviderRestricted))
}

func TestCreateBooking_OneActiveBookingPerPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 5
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Booking.CreateBooking(ctx, bookingRequest())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, entity.ErrDuplicateBooking) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)

	bookings, err := env.svc.Booking.ListBookings(ctx, "cust-1", RoleCustomer, 0)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.Len(t, env.notificationsOf(t, "prov-1", entity.NotifyBookingRequest), 1)
	assert.Len(t, env.queue.ofType(TaskTypeExpireBooking), 1)

	// another provider is a different pair
	req := bookingRequest()
	req.ProviderID = "prov-2"
	_, err = env.svc.Booking.CreateBooking(ctx, req)
	require.NoError(t, err)
}

func TestCreateBooking_PairFreedAfterBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("declined", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		_, err := env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionDecline, Reason: "busy"})
		require.NoError(t, err)
		env.createBooking(t)
	})

	t.Run("accepted blocks until completed", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		_, err := env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
		require.NoError(t, err)

		_, err = env.svc.Booking.CreateBooking(ctx, bookingRequest())
		assert.Equal(t, "DUPLICATE_BOOKING", entity.CodeOf(err))
		assert.Equal(t, entity.KindInvalidState, entity.KindOf(err))

		_, err = env.svc.Booking.MarkCompleted(ctx, b.ID)
		require.NoError(t, err)
		env.createBooking(t)
	})

	t.Run("stale pending is expired first", func(t *testing.T) {
		env := newTestEnv(t)
		stale := env.createBooking(t)

		env.clock.Set(t0.Add(31 * time.Minute))
		fresh := env.createBooking(t)
		assert.NotEqual(t, stale.ID, fresh.ID)

		got, err := env.store.Bookings.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusExpired, got.Status)
		assert.Len(t, env.notificationsOf(t, "cust-1", entity.NotifyBookingExpired), 1)
	})
}

func TestListBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createBookingFor(t, "cust-1")
	env.clock.Set(t0.Add(time.Minute))
	second := env.createBookingFor(t, "cust-2")

	byProvider, err := env.svc.Booking.ListBookings(ctx, "prov-1", RoleProvider, 10)
	require.NoError(t, err)
	require.Len(t, byProvider, 2)
	assert.Equal(t, second.ID, byProvider[0].ID, "newest first")
	assert.Equal(t, first.ID, byProvider[1].ID)

	byCustomer, err := env.svc.Booking.ListBookings(ctx, "cust-2", RoleCustomer, 10)
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, second.ID, byCustomer[0].ID)

	_, err = env.svc.Booking.ListBookings(ctx, "prov-1", "admin", 10)
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))
	_, err = env.svc.Booking.ListBookings(ctx, "", RoleCustomer, 10)
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))
}

func TestRespondToBooking(t *testing.T) {
	t.Run("accept inside window", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		env.clock.Set(t0.Add(10 * time.Minute))

		got, err := env.svc.Booking.RespondToBooking(context.Background(), b.ID, &RespondRequest{Decision: entity.DecisionAccept})
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusAccepted, got.Status)
		assert.Len(t, env.notificationsOf(t, "cust-1", entity.NotifyBookingAccepted), 1)
	})

	t.Run("decline keeps reason", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)

		got, err := env.svc.Booking.RespondToBooking(context.Background(), b.ID, &RespondRequest{Decision: entity.DecisionDecline, Reason: "sick today"})
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusDeclined, got.Status)
		assert.Equal(t, "sick today", got.DeclineReason)
	})

	t.Run("accept after deadline expires booking", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		env.clock.Set(t0.Add(31 * time.Minute))

		_, err := env.svc.Booking.RespondToBooking(context.Background(), b.ID, &RespondRequest{Decision: entity.DecisionAccept})
		assert.True(t, errors.Is(err, entity.ErrResponseWindowClosed))

		stored, err := env.store.Bookings.GetByID(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusExpired, stored.Status)
	})

	t.Run("second answer is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		ctx := context.Background()

		_, err := env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
		require.NoError(t, err)
		_, err = env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionDecline})
		assert.True(t, errors.Is(err, entity.ErrInvalidTransition))
	})

	t.Run("bad decision", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.createBooking(t)
		_, err := env.svc.Booking.RespondToBooking(context.Background(), b.ID, &RespondRequest{Decision: "maybe"})
		assert.Equal(t, entity.KindValidation, entity.KindOf(err))
	})
}

func TestExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBooking(t)

	env.clock.Set(t0.Add(30 * time.Minute))
	got, expired, err := env.svc.Booking.ExpireIfOverdue(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, entity.BookingStatusPending, got.Status)

	env.clock.Set(t0.Add(31 * time.Minute))
	got, err = env.svc.Booking.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusExpired, got.Status)

	// idempotent
	_, expired, err = env.svc.Booking.ExpireIfOverdue(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Len(t, env.notificationsOf(t, "cust-1", entity.NotifyBookingExpired), 1)
}

func TestExpireOverdueBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createBooking(t)
	env.clock.Set(t0.Add(20 * time.Minute))
	second := env.createBookingFor(t, "cust-2")

	env.clock.Set(t0.Add(31 * time.Minute))
	n, err := env.svc.Booking.ExpireOverdueBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.store.Bookings.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusExpired, got.Status)

	got, err = env.store.Bookings.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, got.Status)
}

func TestMarkCompleted_ConcurrentCreatesOneCommission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBooking(t)
	_, err := env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
	require.NoError(t, err)
	env.clock.Set(t0.Add(time.Hour))

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Booking.MarkCompleted(ctx, b.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, entity.ErrInvalidTransition), "got %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	rec, err := env.store.Commissions.GetByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90000).Equal(rec.AmountDue), rec.AmountDue.String())
	assert.Equal(t, t0.Add(time.Hour+5*time.Hour), rec.DueAt)
	assert.Equal(t, entity.CommissionPending, rec.State)

	// one check per stage
	assert.Len(t, env.queue.ofType(TaskTypeCheckCommission), 4)
}

func TestMarkCompleted_PlusTierOwesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := bookingRequest()
	req.ProviderTier = entity.TierPlus
	b, err := env.svc.Booking.CreateBooking(ctx, req)
	require.NoError(t, err)
	_, err = env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
	require.NoError(t, err)

	_, err = env.svc.Booking.MarkCompleted(ctx, b.ID)
	require.NoError(t, err)

	rec, err := env.store.Commissions.GetByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CommissionPaid, rec.State)
	assert.Empty(t, env.queue.ofType(TaskTypeCheckCommission))
}

func TestStartService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBooking(t)

	_, err := env.svc.Booking.StartService(ctx, b.ID)
	assert.True(t, errors.Is(err, entity.ErrInvalidTransition))

	_, err = env.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
	require.NoError(t, err)
	got, err := env.svc.Booking.StartService(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestConfirmPaymentReceived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.completedBooking(t)

	res, err := env.svc.Booking.ConfirmPaymentReceived(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPaymentConfirmed, res.Booking.Status)
	require.NotNil(t, res.ReviewLink)
	assert.Contains(t, res.ReviewLink.URL, "https://spa.test/review/")
	require.NotNil(t, res.SystemMessage)
	assert.True(t, res.SystemMessage.IsSystemMessage)

	_, err = env.svc.Booking.ConfirmPaymentReceived(ctx, b.ID)
	assert.True(t, errors.Is(err, entity.ErrInvalidTransition))

	room := env.roomOf(t, b.ID)
	msgs, err := env.store.Chat.ListMessages(ctx, room.ID, 100)
	require.NoError(t, err)
	system := 0
	for _, m := range msgs {
		if m.IsSystemMessage {
			system++
		}
	}
	assert.Equal(t, 1, system)
}

func TestConfirmPaymentReceived_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.completedBooking(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Booking.ConfirmPaymentReceived(ctx, b.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	msgs, err := env.store.Chat.ListMessages(ctx, env.roomOf(t, b.ID).ID, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConfirmPaymentReceived_RequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBooking(t)

	_, err := env.svc.Booking.ConfirmPaymentReceived(context.Background(), b.ID)
	assert.True(t, errors.Is(err, entity.ErrInvalidTransition))

	_, err = env.svc.Booking.ConfirmPaymentReceived(context.Background(), "missing")
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
}

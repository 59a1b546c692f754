package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/database/memory"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []*Task
}

func (p *recordingPublisher) Publish(_ context.Context, task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) ofType(taskType string) []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Task
	for _, t := range p.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Booking: config.BookingConfig{ResponseWindow: 30 * time.Minute},
		Commission: config.CommissionConfig{
			Deadline:        5 * time.Hour,
			ReminderAfter:   2 * time.Hour,
			UrgentAfter:     150 * time.Minute,
			Rates:           map[string]float64{"pro": 0.30, "plus": 0},
			ReactivationFee: 25000,
		},
		Chat: config.ChatConfig{WarningThreshold: 3, RestrictThreshold: 5, MaxMessageLength: 2000},
		Review: config.ReviewConfig{
			LinkSecret:  "test-secret",
			LinkTTL:     7 * 24 * time.Hour,
			BaseURL:     "https://spa.test",
			MaxTextSize: 1000,
		},
		Discount: config.DiscountConfig{MaxPercentage: 50, MaxValidDays: 90},
		Worker:   config.WorkerConfig{BatchSize: 100},
	}
}

type testEnv struct {
	store *database.Store
	svc   *Services
	clock *fakeClock
	queue *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{now: t0}
	store := memory.NewStore()
	q := &recordingPublisher{}
	svc := NewServices(Deps{
		Store:  store,
		Config: testConfig(),
		Queue:  q,
		Clock:  clock.Now,
	})
	return &testEnv{store: store, svc: svc, clock: clock, queue: q}
}

func bookingRequest() *CreateBookingRequest {
	return &CreateBookingRequest{
		CustomerID:      "cust-1",
		CustomerName:    "Ayu",
		ProviderID:      "prov-1",
		ProviderType:    entity.ProviderTherapist,
		ProviderTier:    entity.TierPro,
		ServiceType:     "balinese",
		ServiceDuration: 90,
		Price:           decimal.NewFromInt(300000),
	}
}

func (e *testEnv) createBooking(t *testing.T) *entity.Booking {
	return e.createBookingFor(t, "cust-1")
}

func (e *testEnv) createBookingFor(t *testing.T, customerID string) *entity.Booking {
	t.Helper()
	req := bookingRequest()
	req.CustomerID = customerID
	b, err := e.svc.Booking.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	return b
}

// completedBooking drives a booking to completed at t0+1h.
func (e *testEnv) completedBooking(t *testing.T) *entity.Booking {
	t.Helper()
	ctx := context.Background()
	b := e.createBooking(t)

	e.clock.Set(t0.Add(5 * time.Minute))
	_, err := e.svc.Booking.RespondToBooking(ctx, b.ID, &RespondRequest{Decision: entity.DecisionAccept})
	require.NoError(t, err)

	e.clock.Set(t0.Add(time.Hour))
	b, err = e.svc.Booking.MarkCompleted(ctx, b.ID)
	require.NoError(t, err)
	return b
}

func (e *testEnv) notificationsOf(t *testing.T, userID string, typ entity.NotificationType) []*entity.Notification {
	t.Helper()
	all, err := e.store.Notifications.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	var out []*entity.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (e *testEnv) roomOf(t *testing.T, bookingID string) *entity.ChatRoom {
	t.Helper()
	room, err := e.store.Chat.GetRoomByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return room
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/database/memory"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/ds124wfegd/spa-booking/pkg/queue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type stubDeliverer struct {
	mu   sync.Mutex
	sent []*entity.Notification
	err  error
}

func (d *stubDeliverer) Deliver(_ context.Context, n *entity.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

type fixture struct {
	store   *database.Store
	svc     *service.Services
	now     time.Time
	handler *TaskHandler
	deliver *stubDeliverer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), now: t0, deliver: &stubDeliverer{}}
	cfg := &config.Config{
		Booking: config.BookingConfig{ResponseWindow: 30 * time.Minute},
		Commission: config.CommissionConfig{
			Deadline:        5 * time.Hour,
			ReminderAfter:   2 * time.Hour,
			UrgentAfter:     150 * time.Minute,
			Rates:           map[string]float64{"pro": 0.30},
			ReactivationFee: 25000,
		},
		Chat:     config.ChatConfig{WarningThreshold: 3, RestrictThreshold: 5, MaxMessageLength: 2000},
		Review:   config.ReviewConfig{LinkSecret: "s", LinkTTL: time.Hour, BaseURL: "https://spa.test"},
		Discount: config.DiscountConfig{MaxPercentage: 50, MaxValidDays: 90},
		Worker:   config.WorkerConfig{BatchSize: 10},
	}
	f.svc = service.NewServices(service.Deps{
		Store:  f.store,
		Config: cfg,
		Clock:  func() time.Time { return f.now },
	})
	f.handler = NewTaskHandler(f.svc.Booking, f.svc.Commission, f.deliver)
	return f
}

func (f *fixture) booking(t *testing.T) *entity.Booking {
	t.Helper()
	b, err := f.svc.Booking.CreateBooking(context.Background(), &service.CreateBookingRequest{
		CustomerID:      "cust-1",
		CustomerName:    "Ayu",
		ProviderID:      "prov-1",
		ProviderType:    entity.ProviderTherapist,
		ProviderTier:    entity.TierPro,
		ServiceType:     "balinese",
		ServiceDuration: 60,
		Price:           decimal.NewFromInt(200000),
	})
	require.NoError(t, err)
	return b
}

func task(typ queue.TaskType, data map[string]interface{}) *queue.Task {
	return &queue.Task{ID: "task-1", Type: typ, Data: data, CreatedAt: t0}
}

func TestHandleTask_ExpireBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking(t)
	tk := task(queue.TaskTypeExpireBooking, map[string]interface{}{"booking_id": b.ID})

	// too early: nothing happens
	f.now = t0.Add(10 * time.Minute)
	require.NoError(t, f.handler.HandleTask(ctx, tk))
	got, err := f.store.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, got.Status)

	f.now = t0.Add(31 * time.Minute)
	require.NoError(t, f.handler.HandleTask(ctx, tk))
	got, err = f.store.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusExpired, got.Status)

	// redelivery is harmless
	require.NoError(t, f.handler.HandleTask(ctx, tk))
}

func TestHandleTask_CheckCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking(t)

	f.now = t0.Add(5 * time.Minute)
	_, err := f.svc.Booking.RespondToBooking(ctx, b.ID, &service.RespondRequest{Decision: entity.DecisionAccept})
	require.NoError(t, err)
	f.now = t0.Add(time.Hour)
	_, err = f.svc.Booking.MarkCompleted(ctx, b.ID)
	require.NoError(t, err)

	f.now = t0.Add(3*time.Hour + time.Second)
	tk := task(queue.TaskTypeCheckCommission, map[string]interface{}{"booking_id": b.ID})
	require.NoError(t, f.handler.HandleTask(ctx, tk))

	rec, err := f.store.Commissions.GetByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StageReminder, rec.ReminderStage)
}

func TestHandleTask_DeliverNotification(t *testing.T) {
	f := newFixture(t)
	tk := task(queue.TaskTypeDeliverNotification, map[string]interface{}{
		"notification_id": "n-1",
		"user_id":         "prov-1",
		"type":            string(entity.NotifyCommissionStage),
		"title":           "Reminder",
		"message":         "please pay",
	})

	require.NoError(t, f.handler.HandleTask(context.Background(), tk))
	require.Len(t, f.deliver.sent, 1)
	assert.Equal(t, "prov-1", f.deliver.sent[0].UserID)
	assert.Equal(t, entity.NotifyCommissionStage, f.deliver.sent[0].Type)

	f.deliver.err = errors.New("telegram down")
	err := f.handler.HandleTask(context.Background(), tk)
	require.Error(t, err)
	assert.True(t, Retryable(err))
}

func TestHandleTask_PermanentFailures(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		task *queue.Task
	}{
		{"unknown type", task("reindex", nil)},
		{"expire without booking", task(queue.TaskTypeExpireBooking, map[string]interface{}{})},
		{"check without booking", task(queue.TaskTypeCheckCommission, map[string]interface{}{})},
		{"deliver without user", task(queue.TaskTypeDeliverNotification, map[string]interface{}{"message": "x"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.handler.HandleTask(context.Background(), tt.task)
			assert.True(t, errors.Is(err, queue.ErrPermanent), "got %v", err)
		})
	}
}

func TestHandleTask_DomainErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	tk := task(queue.TaskTypeExpireBooking, map[string]interface{}{"booking_id": "missing"})

	err := f.handler.HandleTask(context.Background(), tk)
	require.Error(t, err)
	assert.False(t, Retryable(err))

	rm := queue.NewRetryManager(3, time.Second).WithClassifier(func(err error) bool { return !Retryable(err) })
	retry, _ := rm.ShouldRetry(tk, err)
	assert.False(t, retry)
}

func TestCommissionWorker_Stats(t *testing.T) {
	f := newFixture(t)
	w := NewCommissionWorker(f.svc.Commission, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return w.GetStats()["runs"].(int64) >= 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	stats := w.GetStats()
	assert.Equal(t, "commission_escalation", stats["worker_type"])
	assert.Equal(t, int64(0), stats["failures"])
}

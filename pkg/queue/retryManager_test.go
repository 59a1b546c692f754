package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	rm := NewRetryManager(3, time.Second)
	transient := errors.New("connection reset")

	tests := []struct {
		name     string
		task     *Task
		err      error
		expected bool
	}{
		{"first failure", &Task{Attempts: 1}, transient, true},
		{"below limit", &Task{Attempts: 2}, transient, true},
		{"limit reached", &Task{Attempts: 3}, transient, false},
		{"task limit overrides", &Task{Attempts: 3, MaxRetries: 5}, transient, true},
		{"permanent", &Task{Attempts: 1}, fmt.Errorf("bad payload: %w", ErrPermanent), false},
		{"nil error", &Task{Attempts: 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, delay := rm.ShouldRetry(tt.task, tt.err)
			assert.Equal(t, tt.expected, retry)
			if !retry {
				assert.Zero(t, delay)
			}
		})
	}
}

func TestShouldRetry_Classifier(t *testing.T) {
	final := errors.New("booking not found")
	rm := NewRetryManager(3, time.Second).WithClassifier(func(err error) bool {
		return errors.Is(err, final)
	})

	retry, _ := rm.ShouldRetry(&Task{Attempts: 1}, final)
	assert.False(t, retry)

	retry, _ = rm.ShouldRetry(&Task{Attempts: 1}, errors.New("timeout"))
	assert.True(t, retry)
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	rm := NewRetryManager(10, base)

	assert.Equal(t, base, rm.calculateBackoff(0))

	for attempt := 1; attempt <= 8; attempt++ {
		expected := base * time.Duration(1<<(attempt-1))
		if expected > 16*base {
			expected = 16 * base
		}
		for i := 0; i < 20; i++ {
			d := rm.calculateBackoff(attempt)
			assert.GreaterOrEqual(t, d, expected-expected/4, "attempt %d", attempt)
			assert.LessOrEqual(t, d, 16*base, "attempt %d", attempt)
		}
	}
}

func TestNewRetryManager_Defaults(t *testing.T) {
	rm := NewRetryManager(0, 0)
	require.NotNil(t, rm)
	assert.Equal(t, defaultMaxRetries, rm.maxRetries)
	assert.Equal(t, defaultBaseDelay, rm.baseDelay)
}

func TestTaskHelpers(t *testing.T) {
	task := &Task{ID: "t1", Type: TaskTypeCheckCommission}
	require.NoError(t, task.Validate())
	assert.NotNil(t, task.Data)

	task.Data["booking_id"] = "b-1"
	task.Data["stage"] = float64(2)
	assert.Equal(t, "b-1", task.GetString("booking_id"))
	assert.Equal(t, 2, task.GetInt("stage"))
	assert.Empty(t, task.GetString("stage"))

	assert.Error(t, (&Task{Type: TaskTypeExpireBooking}).Validate())
	assert.Error(t, (&Task{ID: "x"}).Validate())
}

package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpirySweeper expires pending bookings past their response deadline.
type ExpirySweeper interface {
	ExpireOverdueBookings(ctx context.Context) (int, error)
}

type Scheduler struct {
	sweeper  ExpirySweeper
	interval time.Duration
}

func NewScheduler(sweeper ExpirySweeper, interval time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ticker.C:
			s.run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	expired, err := s.sweeper.ExpireOverdueBookings(ctx)
	if err != nil {
		logrus.WithError(err).Error("error expiring overdue bookings")
		return
	}
	if expired > 0 {
		logrus.WithField("expired", expired).Info("overdue bookings expired")
	}
}

package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/service"

	"github.com/sirupsen/logrus"
)

// CommissionWorker periodically escalates unpaid commissions. It is the
// fallback for delayed queue checks and the only driver without Redis.
type CommissionWorker struct {
	commissionService service.CommissionService
	interval          time.Duration

	runs  atomic.Int64
	moved atomic.Int64
	fails atomic.Int64
}

func NewCommissionWorker(commissionService service.CommissionService, interval time.Duration) *CommissionWorker {
	return &CommissionWorker{
		commissionService: commissionService,
		interval:          interval,
	}
}

func (w *CommissionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("commission worker started")

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("commission worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep выполняет один проход по неоплаченным комиссиям
func (w *CommissionWorker) sweep(ctx context.Context) {
	w.runs.Add(1)

	moved, err := w.commissionService.SweepCommissions(ctx)
	if err != nil {
		w.fails.Add(1)
		logrus.WithError(err).Error("commission sweep failed")
		return
	}
	w.moved.Add(int64(moved))

	if moved > 0 {
		logrus.WithField("escalated", moved).Info("commission sweep completed")
	}
}

// GetStats возвращает статистику работы воркера
func (w *CommissionWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "commission_escalation",
		"interval":    w.interval.String(),
		"runs":        w.runs.Load(),
		"escalated":   w.moved.Load(),
		"failures":    w.fails.Load(),
	}
}

package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// AmountRefresher is the lifecycle call the worker drives.
type AmountRefresher interface {
	RefreshAmounts(ctx context.Context) (int, error)
}

// AmountWorker периодически пересчитывает сумму к оплате занятых билетов
type AmountWorker struct {
	refresher AmountRefresher
	interval  time.Duration

	runs    atomic.Int64
	updated atomic.Int64
	failed  atomic.Int64
}

func NewAmountWorker(refresher AmountRefresher, interval time.Duration) *AmountWorker {
	return &AmountWorker{
		refresher: refresher,
		interval:  interval,
	}
}

// Start blocks until ctx is cancelled. The first pass runs immediately.
func (w *AmountWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		logrus.Warn("Amount refresh worker disabled: non-positive interval")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("Amount refresh worker started")
	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Amount refresh worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *AmountWorker) refresh(ctx context.Context) {
	w.runs.Add(1)

	n, err := w.refresher.RefreshAmounts(ctx)
	w.updated.Add(int64(n))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.failed.Add(1)
		logrus.WithError(err).WithField("updated", n).Error("Failed to refresh amounts due")
		return
	}
	if n > 0 {
		logrus.WithField("updated", n).Info("Amounts due refreshed")
	}
}

// GetStats возвращает статистику работы воркера
func (w *AmountWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "amount_refresh",
		"interval":    w.interval.String(),
		"runs":        w.runs.Load(),
		"updated":     w.updated.Load(),
		"failed":      w.failed.Load(),
	}
}

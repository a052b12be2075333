package service

import (
	"context"

	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/sirupsen/logrus"
)

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// saga collects undo actions of completed steps of one multi-record write.
type saga struct {
	op    string
	steps []compensation
}

func newSaga(op string) *saga {
	return &saga{op: op}
}

func (s *saga) onRollback(step string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{step: step, undo: undo})
}

// rollback runs the undo actions in reverse order. The caller's context may
// already be cancelled, so compensation runs detached from it.
func (s *saga) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	for i := len(s.steps) - 1; i >= 0; i-- {
		c := s.steps[i]
		if err := c.undo(ctx); err != nil {
			metrics.SagaCompensations.WithLabelValues(s.op, "failed").Inc()
			logrus.WithFields(logrus.Fields{
				"op":   s.op,
				"step": c.step,
			}).WithError(err).Error("Compensation step failed")
			continue
		}
		metrics.SagaCompensations.WithLabelValues(s.op, "ok").Inc()
		logrus.WithFields(logrus.Fields{"op": s.op, "step": c.step}).Warn("Compensation step applied")
	}
	s.steps = nil
}

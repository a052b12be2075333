package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"golang.org/x/sync/errgroup"
)

type statsService struct {
	repo database.StatsRepository
	now  func() time.Time
}

func NewStatsService(repo database.StatsRepository) StatsService {
	return &statsService{repo: repo, now: clock}
}

// Calculate runs every count in parallel. One failed count fails the whole
// snapshot; partial stats are never returned.
func (s *statsService) Calculate(ctx context.Context) (*entity.DashboardStats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	stats := &entity.DashboardStats{Timestamp: now}
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int, fn func(ctx context.Context) (int, error)) {
		g.Go(func() error {
			n, err := fn(gctx)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	count(&stats.PendingPayments, func(ctx context.Context) (int, error) {
		return s.repo.CountPaymentsByStatus(ctx, entity.PaymentPendingValidation)
	})
	count(&stats.PendingConfirmations, func(ctx context.Context) (int, error) {
		return s.repo.CountTicketsByStatus(ctx, entity.TicketOccupied)
	})
	count(&stats.TotalStaff, s.repo.CountStaff)
	count(&stats.TodayPayments, func(ctx context.Context) (int, error) {
		return s.repo.CountPaymentsSubmittedBetween(ctx, dayStart, dayEnd)
	})
	count(&stats.TotalTickets, s.repo.CountTickets)
	count(&stats.AvailableTickets, func(ctx context.Context) (int, error) {
		return s.repo.CountTicketsByStatus(ctx, entity.TicketAvailable)
	})
	count(&stats.CarsParked, func(ctx context.Context) (int, error) {
		return s.repo.CountVehiclesByStatus(ctx, entity.ActiveVehicleStatuses...)
	})
	count(&stats.PaidTickets, func(ctx context.Context) (int, error) {
		return s.repo.CountTicketsByStatus(ctx, entity.TicketPaid)
	})

	if err := g.Wait(); err != nil {
		return nil, entity.Internal(err, "failed to calculate stats")
	}
	return stats, nil
}

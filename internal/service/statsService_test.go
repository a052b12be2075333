package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/database/memory"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStats struct {
	database.StatsRepository
}

func (failingStats) CountStaff(ctx context.Context) (int, error) {
	return 0, errors.New("staff table locked")
}

// TestStatsCalculate проверяет счетчики панели после нескольких операций
func TestStatsCalculate(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewStore().Repositories()
	for _, code := range []string{"T-01", "T-02", "T-03"} {
		require.NoError(t, repos.Tickets.Create(ctx, &entity.Ticket{Code: code}))
	}
	require.NoError(t, repos.Staff.Create(ctx, &entity.Staff{ID: "s1", Email: "a@b.c"}))

	engine := newLifecycleService(repos, nil, testTariff)
	_, err := engine.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "AAA111", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = engine.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "BBB222", TicketCode: "T-02"})
	require.NoError(t, err)
	_, err = engine.ConfirmParking(ctx, "T-02")
	require.NoError(t, err)
	_, err = engine.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-02", Amount: 50, Method: "cash"})
	require.NoError(t, err)

	svc := &statsService{repo: repos.Stats, now: clock}
	stats, err := svc.Calculate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PendingPayments)
	assert.Equal(t, 1, stats.PendingConfirmations)
	assert.Equal(t, 1, stats.TotalStaff)
	assert.Equal(t, 1, stats.TodayPayments)
	assert.Equal(t, 3, stats.TotalTickets)
	assert.Equal(t, 1, stats.AvailableTickets)
	assert.Equal(t, 2, stats.CarsParked)
	assert.Equal(t, 0, stats.PaidTickets)
	assert.WithinDuration(t, time.Now(), stats.Timestamp, time.Minute)
}

func TestStatsCalculateFailsWhole(t *testing.T) {
	repos := memory.NewStore().Repositories()
	svc := NewStatsService(failingStats{StatsRepository: repos.Stats})

	stats, err := svc.Calculate(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.Equal(t, entity.KindInternal, entity.KindOf(err))
}

func TestTodayWindowIsUTCDay(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewStore().Repositories()
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)

	require.NoError(t, repos.Payments.Create(ctx, &entity.Payment{ID: "p1", SubmittedAt: now.Add(-time.Hour)}))
	require.NoError(t, repos.Payments.Create(ctx, &entity.Payment{ID: "p2", SubmittedAt: now}))

	svc := &statsService{repo: repos.Stats, now: func() time.Time { return now }}
	stats, err := svc.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TodayPayments)
}

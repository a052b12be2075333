package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/lib/pq"
)

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) database.StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) count(ctx context.Context, what, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

func (r *statsRepository) CountPaymentsByStatus(ctx context.Context, status entity.PaymentStatus) (int, error) {
	return r.count(ctx, "payments", `SELECT COUNT(*) FROM payments WHERE status = $1`, status)
}

func (r *statsRepository) CountPaymentsSubmittedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.count(ctx, "payments of the day",
		`SELECT COUNT(*) FROM payments WHERE submitted_at >= $1 AND submitted_at < $2`, from, to)
}

func (r *statsRepository) CountTickets(ctx context.Context) (int, error) {
	return r.count(ctx, "tickets", `SELECT COUNT(*) FROM tickets`)
}

func (r *statsRepository) CountTicketsByStatus(ctx context.Context, status entity.TicketStatus) (int, error) {
	return r.count(ctx, "tickets", `SELECT COUNT(*) FROM tickets WHERE status = $1`, status)
}

func (r *statsRepository) CountVehiclesByStatus(ctx context.Context, statuses ...entity.VehicleStatus) (int, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return r.count(ctx, "vehicles", `SELECT COUNT(*) FROM vehicles WHERE status = ANY($1::text[])`, pq.Array(values))
}

func (r *statsRepository) CountStaff(ctx context.Context) (int, error) {
	return r.count(ctx, "staff", `SELECT COUNT(*) FROM staff`)
}

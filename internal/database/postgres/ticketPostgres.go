package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/lib/pq"
)

type ticketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) database.TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `code, status, vehicle_snapshot, computed_amount, occupied_at,
	validated_at, payment_validated_at, created_at, updated_at`

func scanTicket(row rowScanner) (*entity.Ticket, error) {
	var t entity.Ticket
	err := row.Scan(
		&t.Code,
		&t.Status,
		&t.VehicleSnapshot,
		&t.ComputedAmount,
		&t.OccupiedAt,
		&t.ValidatedAt,
		&t.PaymentValidatedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *entity.Ticket) error {
	if ticket.Status == "" {
		ticket.Status = entity.TicketAvailable
	}

	query := `
		INSERT INTO tickets (code, status, vehicle_snapshot, computed_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		ticket.Code,
		ticket.Status,
		ticket.VehicleSnapshot,
		ticket.ComputedAmount,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)

	if pqCode(err) == pqUniqueViolation {
		return entity.ErrTicketAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE code = $1`

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, entity.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

func (r *ticketRepository) GetAll(ctx context.Context) ([]*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*entity.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Transition is the conditional write every lifecycle step goes through:
// the WHERE clause on status is the only race guard.
func (r *ticketRepository) Transition(ctx context.Context, code string, expected []entity.TicketStatus, upd entity.TicketUpdate) (*entity.Ticket, error) {
	query := `
		UPDATE tickets SET
			status = $2,
			vehicle_snapshot = CASE WHEN $2 = 'available' THEN NULL
				ELSE COALESCE($3::jsonb, vehicle_snapshot) END,
			computed_amount = CASE WHEN $2 = 'available' THEN 0
				ELSE COALESCE($4::numeric, computed_amount) END,
			occupied_at = CASE WHEN $2 = 'available' THEN NULL
				ELSE COALESCE($5::timestamptz, occupied_at) END,
			validated_at = CASE WHEN $2 = 'available' THEN NULL
				ELSE COALESCE($6::timestamptz, validated_at) END,
			payment_validated_at = CASE WHEN $2 = 'available' THEN NULL
				ELSE COALESCE($7::timestamptz, payment_validated_at) END,
			updated_at = now()
		WHERE code = $1 AND status = ANY($8::text[])
		RETURNING ` + ticketColumns

	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	t, err := scanTicket(r.db.QueryRowContext(ctx, query,
		code,
		string(upd.Status),
		upd.Snapshot,
		upd.ComputedAmount,
		upd.OccupiedAt,
		upd.ValidatedAt,
		upd.PaymentValidatedAt,
		pq.Array(statuses),
	))
	if err == sql.ErrNoRows {
		return nil, entity.ErrStaleWrite
	}
	if pqCode(err) == pqCheckViolation {
		return nil, fmt.Errorf("ticket %s: %w", code, entity.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}
	return t, nil
}

func (r *ticketRepository) Restore(ctx context.Context, prev *entity.Ticket, current entity.TicketStatus) error {
	query := `
		UPDATE tickets SET
			status = $2, vehicle_snapshot = $3, computed_amount = $4,
			occupied_at = $5, validated_at = $6, payment_validated_at = $7,
			updated_at = now()
		WHERE code = $1 AND status = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		prev.Code,
		prev.Status,
		prev.VehicleSnapshot,
		prev.ComputedAmount,
		prev.OccupiedAt,
		prev.ValidatedAt,
		prev.PaymentValidatedAt,
		current,
	)
	if err != nil {
		return fmt.Errorf("failed to restore ticket: %w", err)
	}
	return expectOneRow(result)
}

func (r *ticketRepository) UpdateAmount(ctx context.Context, code string, expected entity.TicketStatus, amount float64) error {
	query := `UPDATE tickets SET computed_amount = $2, updated_at = now() WHERE code = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, code, amount, expected)
	if err != nil {
		return fmt.Errorf("failed to update ticket amount: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrStaleWrite
	}
	return nil
}

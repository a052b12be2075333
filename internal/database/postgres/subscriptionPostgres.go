package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/lib/pq"
)

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) database.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	query := `
		INSERT INTO ticket_subscriptions (id, role, ticket_code, ticket_codes, endpoint, is_active, stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	codes := sub.TicketCodes
	if codes == nil {
		codes = []string{}
	}

	err := r.db.QueryRowContext(ctx, query,
		sub.ID,
		sub.Role,
		sub.TicketCode,
		pq.Array(codes),
		sub.Endpoint,
		sub.IsActive,
		sub.Stage,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetActive returns admin subscriptions, or the user subscriptions of one ticket.
func (r *subscriptionRepository) GetActive(ctx context.Context, role entity.Role, ticketCode string) ([]*entity.Subscription, error) {
	query := `
		SELECT id, role, ticket_code, ticket_codes, endpoint, is_active, stage, created_at, updated_at
		FROM ticket_subscriptions
		WHERE is_active AND role = $1 AND ($1 = 'admin' OR ticket_code = $2)
	`

	rows, err := r.db.QueryContext(ctx, query, role, ticketCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*entity.Subscription
	for rows.Next() {
		var s entity.Subscription
		err := rows.Scan(
			&s.ID,
			&s.Role,
			&s.TicketCode,
			pq.Array(&s.TicketCodes),
			&s.Endpoint,
			&s.IsActive,
			&s.Stage,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

func (r *subscriptionRepository) AddTicketToAdmins(ctx context.Context, ticketCode string) (int64, error) {
	query := `
		UPDATE ticket_subscriptions
		SET ticket_codes = array_append(ticket_codes, $1), updated_at = now()
		WHERE role = 'admin' AND is_active AND NOT ($1 = ANY(ticket_codes))
	`

	result, err := r.db.ExecContext(ctx, query, ticketCode)
	if err != nil {
		return 0, fmt.Errorf("failed to extend admin subscriptions: %w", err)
	}
	return result.RowsAffected()
}

func (r *subscriptionRepository) DeactivateByTicket(ctx context.Context, ticketCode string) (int64, error) {
	query := `
		UPDATE ticket_subscriptions
		SET is_active = FALSE, stage = 'expired', updated_at = now()
		WHERE role = 'user' AND ticket_code = $1 AND is_active
	`

	result, err := r.db.ExecContext(ctx, query, ticketCode)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}
	return result.RowsAffected()
}

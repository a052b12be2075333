package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) database.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, ticket_code, plate, amount_local, amount_foreign, computed_amount,
	method, reference, bank, receipt_image_url, status, submitted_at, validated_at`

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	err := row.Scan(
		&p.ID,
		&p.TicketCode,
		&p.Plate,
		&p.AmountLocal,
		&p.AmountForeign,
		&p.ComputedAmount,
		&p.Method,
		&p.Reference,
		&p.Bank,
		&p.ReceiptImageURL,
		&p.Status,
		&p.SubmittedAt,
		&p.ValidatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			id, ticket_code, plate, amount_local, amount_foreign, computed_amount,
			method, reference, bank, receipt_image_url, status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.TicketCode,
		payment.Plate,
		payment.AmountLocal,
		payment.AmountForeign,
		payment.ComputedAmount,
		payment.Method,
		payment.Reference,
		payment.Bank,
		payment.ReceiptImageURL,
		payment.Status,
		payment.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) GetByStatus(ctx context.Context, status entity.PaymentStatus) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 ORDER BY submitted_at DESC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*entity.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdateStatus only touches status and validated_at; payments are otherwise immutable.
func (r *paymentRepository) UpdateStatus(ctx context.Context, id string, expected, status entity.PaymentStatus, validatedAt *time.Time) error {
	query := `UPDATE payments SET status = $2, validated_at = $3 WHERE id = $1 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, id, status, validatedAt, expected)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return expectOneRow(result)
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrPaymentNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type historyRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) database.HistoryRepository {
	return &historyRepository{db: db}
}

const historyColumns = `vehicle_id, ticket_code, plate, vehicle, current_status, is_active, is_complete,
	total_paid, payments, rejected_amounts, pending_amounts, exit_type, exit_note,
	duration_minutes, exited_at, created_at, updated_at`

func scanHistory(row rowScanner) (*entity.HistoryEntry, error) {
	var (
		h                           entity.HistoryEntry
		payments, rejected, pending []byte
	)
	err := row.Scan(
		&h.VehicleID,
		&h.TicketCode,
		&h.Plate,
		&h.Vehicle,
		&h.CurrentStatus,
		&h.IsActive,
		&h.IsComplete,
		&h.TotalPaid,
		&payments,
		&rejected,
		&pending,
		&h.ExitType,
		&h.ExitNote,
		&h.DurationMinutes,
		&h.ExitedAt,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payments, &h.Payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	if err := json.Unmarshal(rejected, &h.RejectedAmounts); err != nil {
		return nil, fmt.Errorf("failed to decode rejected amounts: %w", err)
	}
	if err := json.Unmarshal(pending, &h.PendingAmounts); err != nil {
		return nil, fmt.Errorf("failed to decode pending amounts: %w", err)
	}
	return &h, nil
}

func jsonText(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts the entry and its initial events in one transaction.
func (r *historyRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := writeHistory(ctx, tx, entry, true); err != nil {
		return err
	}

	for i := range entry.Events {
		entry.Events[i].Seq = i + 1
		if err := insertEvent(ctx, tx, entry.VehicleID, &entry.Events[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func writeHistory(ctx context.Context, tx *sql.Tx, h *entity.HistoryEntry, insert bool) error {
	payments, err := jsonText(nonNilPayments(h.Payments))
	if err != nil {
		return err
	}
	rejected, err := jsonText(nonNilAmounts(h.RejectedAmounts))
	if err != nil {
		return err
	}
	pending, err := jsonText(nonNilAmounts(h.PendingAmounts))
	if err != nil {
		return err
	}

	if insert {
		query := `
			INSERT INTO car_history (` + historyColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
			RETURNING created_at, updated_at
		`
		err = tx.QueryRowContext(ctx, query,
			h.VehicleID, h.TicketCode, h.Plate, h.Vehicle, h.CurrentStatus, h.IsActive, h.IsComplete,
			h.TotalPaid, payments, rejected, pending, h.ExitType, h.ExitNote, h.DurationMinutes, h.ExitedAt,
		).Scan(&h.CreatedAt, &h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create history entry: %w", err)
		}
		return nil
	}

	query := `
		UPDATE car_history SET
			current_status = $2, is_active = $3, is_complete = $4, total_paid = $5,
			payments = $6, rejected_amounts = $7, pending_amounts = $8,
			exit_type = $9, exit_note = $10, duration_minutes = $11, exited_at = $12,
			updated_at = $13, plate = $14, vehicle = $15
		WHERE vehicle_id = $1
	`
	_, err = tx.ExecContext(ctx, query,
		h.VehicleID, h.CurrentStatus, h.IsActive, h.IsComplete, h.TotalPaid,
		payments, rejected, pending, h.ExitType, h.ExitNote, h.DurationMinutes, h.ExitedAt,
		h.UpdatedAt, h.Plate, h.Vehicle,
	)
	if err != nil {
		return fmt.Errorf("failed to update history rollups: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, vehicleID string, ev *entity.HistoryEvent) error {
	query := `INSERT INTO history_events (vehicle_id, seq, type, at, status, payload) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.ExecContext(ctx, query, vehicleID, ev.Seq, ev.Type, ev.At, ev.Status, entity.Payload(ev.Payload))
	if err != nil {
		return fmt.Errorf("failed to append history event: %w", err)
	}
	return nil
}

func (r *historyRepository) GetByVehicle(ctx context.Context, vehicleID string) (*entity.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM car_history WHERE vehicle_id = $1`

	h, err := scanHistory(r.db.QueryRowContext(ctx, query, vehicleID))
	if err == sql.ErrNoRows {
		return nil, entity.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}

	if h.Events, err = r.events(ctx, vehicleID); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *historyRepository) events(ctx context.Context, vehicleID string) ([]entity.HistoryEvent, error) {
	query := `SELECT seq, type, at, status, payload FROM history_events WHERE vehicle_id = $1 ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history events: %w", err)
	}
	defer rows.Close()

	events := []entity.HistoryEvent{}
	for rows.Next() {
		var ev entity.HistoryEvent
		if err := rows.Scan(&ev.Seq, &ev.Type, &ev.At, &ev.Status, (*entity.Payload)(&ev.Payload)); err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetAll returns the newest entries without their events.
func (r *historyRepository) GetAll(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + historyColumns + ` FROM car_history ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.HistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// Append locks the entry row, inserts the next event and rewrites rollups.
func (r *historyRepository) Append(ctx context.Context, vehicleID string, ev *entity.HistoryEvent, rollup entity.HistoryRollup) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + historyColumns + ` FROM car_history WHERE vehicle_id = $1 FOR UPDATE`
	h, err := scanHistory(tx.QueryRowContext(ctx, query, vehicleID))
	if err == sql.ErrNoRows {
		return entity.ErrHistoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock history entry: %w", err)
	}

	if ev != nil {
		var last int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM history_events WHERE vehicle_id = $1`, vehicleID,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("failed to get last event seq: %w", err)
		}
		e := *ev
		e.Seq = last + 1
		if err := insertEvent(ctx, tx, vehicleID, &e); err != nil {
			return err
		}
	}

	h.ApplyRollup(rollup, time.Now())
	if err := writeHistory(ctx, tx, h, false); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *historyRepository) Summary(ctx context.Context) (*entity.HistorySummary, error) {
	query := `
		SELECT
			COALESCE(SUM(h.total_paid), 0),
			COALESCE(SUM(rej.amount), 0),
			COALESCE(SUM(pen.amount), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE h.is_active),
			COUNT(*) FILTER (WHERE h.is_complete)
		FROM car_history h
		CROSS JOIN LATERAL (
			SELECT COALESCE(SUM((a ->> 'amount')::numeric), 0) AS amount
			FROM jsonb_array_elements(h.rejected_amounts) a
		) rej
		CROSS JOIN LATERAL (
			SELECT COALESCE(SUM((a ->> 'amount')::numeric), 0) AS amount
			FROM jsonb_array_elements(h.pending_amounts) a
		) pen
	`

	var s entity.HistorySummary
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.TotalPaid,
		&s.TotalRejected,
		&s.TotalPending,
		&s.Records,
		&s.Active,
		&s.Completed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get history summary: %w", err)
	}
	return &s, nil
}

func nonNilPayments(p []entity.PaymentRecord) []entity.PaymentRecord {
	if p == nil {
		return []entity.PaymentRecord{}
	}
	return p
}

func nonNilAmounts(a []entity.AmountRecord) []entity.AmountRecord {
	if a == nil {
		return []entity.AmountRecord{}
	}
	return a
}

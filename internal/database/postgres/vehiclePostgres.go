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

type vehicleRepository struct {
	db *sql.DB
}

func NewVehicleRepository(db *sql.DB) database.VehicleRepository {
	return &vehicleRepository{db: db}
}

const vehicleColumns = `id, plate, make, model, color, owner_name, owner_phone, ticket_code,
	status, entered_at, confirmed_at, note, images, updated_at`

func scanVehicle(row rowScanner) (*entity.Vehicle, error) {
	var v entity.Vehicle
	err := row.Scan(
		&v.ID,
		&v.Plate,
		&v.Make,
		&v.Model,
		&v.Color,
		&v.OwnerName,
		&v.OwnerPhone,
		&v.TicketCode,
		&v.Status,
		&v.EnteredAt,
		&v.ConfirmedAt,
		&v.Note,
		&v.Images,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a vehicle. The partial unique index on active vehicles per
// ticket turns a second registration into ErrActiveVehicleExists.
func (r *vehicleRepository) Create(ctx context.Context, vehicle *entity.Vehicle) error {
	query := `
		INSERT INTO vehicles (
			id, plate, make, model, color, owner_name, owner_phone, ticket_code,
			status, entered_at, confirmed_at, note, images, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		vehicle.ID,
		vehicle.Plate,
		vehicle.Make,
		vehicle.Model,
		vehicle.Color,
		vehicle.OwnerName,
		vehicle.OwnerPhone,
		vehicle.TicketCode,
		vehicle.Status,
		vehicle.EnteredAt,
		vehicle.ConfirmedAt,
		vehicle.Note,
		vehicle.Images,
	).Scan(&vehicle.UpdatedAt)

	if pqCode(err) == pqUniqueViolation {
		return entity.ErrActiveVehicleExists
	}
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*entity.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`

	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) GetActiveByTicket(ctx context.Context, ticketCode string) (*entity.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE ticket_code = $1 AND status <> 'completed'`

	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, ticketCode))
	if err == sql.ErrNoRows {
		return nil, entity.ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle by ticket: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) GetActive(ctx context.Context) ([]*entity.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE status <> 'completed' ORDER BY entered_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*entity.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r *vehicleRepository) UpdateStatus(ctx context.Context, id string, expected []entity.VehicleStatus, status entity.VehicleStatus, at time.Time) error {
	query := `
		UPDATE vehicles SET
			status = $2,
			confirmed_at = CASE
				WHEN $2 = 'parked_confirmed' THEN $3::timestamptz
				WHEN $2 = 'parked' THEN NULL
				ELSE confirmed_at END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])
	`

	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, query, id, string(status), at, pq.Array(statuses))
	if err != nil {
		return fmt.Errorf("failed to update vehicle status: %w", err)
	}
	return expectOneRow(result)
}

func (r *vehicleRepository) Update(ctx context.Context, vehicle *entity.Vehicle, expected entity.VehicleStatus) error {
	query := `
		UPDATE vehicles SET
			plate = $2, make = $3, model = $4, color = $5,
			owner_name = $6, owner_phone = $7, note = $8, images = $9,
			updated_at = now()
		WHERE id = $1 AND status = $10
	`

	result, err := r.db.ExecContext(ctx, query,
		vehicle.ID,
		vehicle.Plate,
		vehicle.Make,
		vehicle.Model,
		vehicle.Color,
		vehicle.OwnerName,
		vehicle.OwnerPhone,
		vehicle.Note,
		vehicle.Images,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	return expectOneRow(result)
}

func (r *vehicleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrVehicleNotFound
	}
	return nil
}

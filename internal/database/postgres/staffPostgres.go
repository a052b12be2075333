package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type staffRepository struct {
	db *sql.DB
}

func NewStaffRepository(db *sql.DB) database.StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, staff *entity.Staff) error {
	query := `
		INSERT INTO staff (id, first_name, last_name, email, role, password_hash, active)
		VALUES ($1, $2, $3, lower($4), $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		staff.ID,
		staff.FirstName,
		staff.LastName,
		staff.Email,
		staff.Role,
		staff.PasswordHash,
		staff.Active,
	).Scan(&staff.CreatedAt)

	if pqCode(err) == pqUniqueViolation {
		return entity.ErrStaffAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create staff member: %w", err)
	}
	return nil
}

func (r *staffRepository) GetAll(ctx context.Context) ([]*entity.Staff, error) {
	query := `
		SELECT id, first_name, last_name, email, role, password_hash, active, created_at
		FROM staff
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []*entity.Staff
	for rows.Next() {
		var s entity.Staff
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Role, &s.PasswordHash, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staff member: %w", err)
		}
		staff = append(staff, &s)
	}
	return staff, rows.Err()
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*entity.Staff, error) {
	query := `
		SELECT id, first_name, last_name, email, role, password_hash, active, created_at
		FROM staff
		WHERE id = $1
	`

	var s entity.Staff
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Role, &s.PasswordHash, &s.Active, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff member: %w", err)
	}
	return &s, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *entity.Staff) error {
	query := `
		UPDATE staff SET
			first_name = $2, last_name = $3, email = lower($4), role = $5, password_hash = $6, active = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		staff.ID,
		staff.FirstName,
		staff.LastName,
		staff.Email,
		staff.Role,
		staff.PasswordHash,
		staff.Active,
	)
	if pqCode(err) == pqUniqueViolation {
		return entity.ErrStaffAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to update staff member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrStaffNotFound
	}
	return nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*entity.Staff, error) {
	query := `
		SELECT id, first_name, last_name, email, role, password_hash, active, created_at
		FROM staff
		WHERE email = lower($1)
	`

	var s entity.Staff
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Role, &s.PasswordHash, &s.Active, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff member: %w", err)
	}
	return &s, nil
}

func (r *staffRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete staff member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrStaffNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) database.SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*entity.CompanySettings, error) {
	query := `
		SELECT mobile_payment, transfer, day_rate, night_rate, night_start, night_end,
			exchange_rate, created_at, updated_at
		FROM company_settings
		WHERE id = 1
	`

	var s entity.CompanySettings
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.MobilePayment,
		&s.Transfer,
		&s.Tariffs.DayRate,
		&s.Tariffs.NightRate,
		&s.Tariffs.NightStart,
		&s.Tariffs.NightEnd,
		&s.Tariffs.ExchangeRate,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company settings: %w", err)
	}
	return &s, nil
}

// Save upserts the single settings row.
func (r *settingsRepository) Save(ctx context.Context, settings *entity.CompanySettings) error {
	query := `
		INSERT INTO company_settings (
			id, mobile_payment, transfer, day_rate, night_rate, night_start, night_end, exchange_rate
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			mobile_payment = EXCLUDED.mobile_payment,
			transfer = EXCLUDED.transfer,
			day_rate = EXCLUDED.day_rate,
			night_rate = EXCLUDED.night_rate,
			night_start = EXCLUDED.night_start,
			night_end = EXCLUDED.night_end,
			exchange_rate = EXCLUDED.exchange_rate,
			updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		settings.MobilePayment,
		settings.Transfer,
		settings.Tariffs.DayRate,
		settings.Tariffs.NightRate,
		settings.Tariffs.NightStart,
		settings.Tariffs.NightEnd,
		settings.Tariffs.ExchangeRate,
	).Scan(&settings.CreatedAt, &settings.UpdatedAt)
	if pqCode(err) == pqCheckViolation {
		return fmt.Errorf("company settings: %w", entity.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("failed to save company settings: %w", err)
	}
	return nil
}

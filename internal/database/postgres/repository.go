package repository

import (
	"database/sql"
	"errors"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/lib/pq"
)

// NewRepositories wires every postgres repository over db. The change feed
// opens its own listener connections with dsn and reads its revision over db.
func NewRepositories(db *sql.DB, dsn string) *database.Repositories {
	return &database.Repositories{
		Tickets:       NewTicketRepository(db),
		Vehicles:      NewVehicleRepository(db),
		Payments:      NewPaymentRepository(db),
		History:       NewHistoryRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Staff:         NewStaffRepository(db),
		Settings:      NewSettingsRepository(db),
		Stats:         NewStatsRepository(db),
		Feed:          NewChangeFeed(dsn, db),
	}
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

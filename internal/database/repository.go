// Package database declares the record store contracts shared by the
// postgres and in-memory implementations.
package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *entity.Ticket) error
	GetByCode(ctx context.Context, code string) (*entity.Ticket, error)
	GetAll(ctx context.Context) ([]*entity.Ticket, error)

	// Transition applies upd only while the ticket is in one of the expected
	// statuses. A miss returns entity.ErrStaleWrite.
	Transition(ctx context.Context, code string, expected []entity.TicketStatus, upd entity.TicketUpdate) (*entity.Ticket, error)
	// Restore writes prev back while the ticket is still in status current.
	Restore(ctx context.Context, prev *entity.Ticket, current entity.TicketStatus) error
	UpdateAmount(ctx context.Context, code string, expected entity.TicketStatus, amount float64) error
}

type VehicleRepository interface {
	// Create fails with entity.ErrActiveVehicleExists when the ticket already
	// has an active vehicle.
	Create(ctx context.Context, vehicle *entity.Vehicle) error
	GetByID(ctx context.Context, id string) (*entity.Vehicle, error)
	GetActiveByTicket(ctx context.Context, ticketCode string) (*entity.Vehicle, error)
	GetActive(ctx context.Context) ([]*entity.Vehicle, error)
	// UpdateStatus is conditional on the expected statuses, see TicketRepository.Transition.
	UpdateStatus(ctx context.Context, id string, expected []entity.VehicleStatus, status entity.VehicleStatus, at time.Time) error
	// Update writes the descriptive fields (plate, make, model, color, owner,
	// note, images) while the vehicle is still in status expected.
	Update(ctx context.Context, vehicle *entity.Vehicle, expected entity.VehicleStatus) error
	Delete(ctx context.Context, id string) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByID(ctx context.Context, id string) (*entity.Payment, error)
	GetByStatus(ctx context.Context, status entity.PaymentStatus) ([]*entity.Payment, error)
	UpdateStatus(ctx context.Context, id string, expected, status entity.PaymentStatus, validatedAt *time.Time) error
	Delete(ctx context.Context, id string) error
}

type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	GetByVehicle(ctx context.Context, vehicleID string) (*entity.HistoryEntry, error)
	GetAll(ctx context.Context, limit int) ([]*entity.HistoryEntry, error)
	// Append adds ev (may be nil) and applies r in one step. Events are
	// never rewritten or removed.
	Append(ctx context.Context, vehicleID string, ev *entity.HistoryEvent, r entity.HistoryRollup) error
	Summary(ctx context.Context) (*entity.HistorySummary, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *entity.Subscription) error
	GetActive(ctx context.Context, role entity.Role, ticketCode string) ([]*entity.Subscription, error)
	AddTicketToAdmins(ctx context.Context, ticketCode string) (int64, error)
	DeactivateByTicket(ctx context.Context, ticketCode string) (int64, error)
}

type StaffRepository interface {
	Create(ctx context.Context, staff *entity.Staff) error
	GetAll(ctx context.Context) ([]*entity.Staff, error)
	GetByID(ctx context.Context, id string) (*entity.Staff, error)
	GetByEmail(ctx context.Context, email string) (*entity.Staff, error)
	// Update fails with entity.ErrStaffAlreadyExists when the email belongs
	// to another staff member.
	Update(ctx context.Context, staff *entity.Staff) error
	Delete(ctx context.Context, id string) error
}

// SettingsRepository keeps the single company settings record.
type SettingsRepository interface {
	// Get returns entity.ErrSettingsNotFound until the first Save.
	Get(ctx context.Context) (*entity.CompanySettings, error)
	Save(ctx context.Context, settings *entity.CompanySettings) error
}

// StatsRepository holds the independent counting queries of the dashboard.
type StatsRepository interface {
	CountPaymentsByStatus(ctx context.Context, status entity.PaymentStatus) (int, error)
	CountPaymentsSubmittedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountTickets(ctx context.Context) (int, error)
	CountTicketsByStatus(ctx context.Context, status entity.TicketStatus) (int, error)
	CountVehiclesByStatus(ctx context.Context, statuses ...entity.VehicleStatus) (int, error)
	CountStaff(ctx context.Context) (int, error)
}

// ChangeWatcher delivers mutations of one record kind. Changes is closed when
// the watcher ends; Err then reports why (nil after Close).
type ChangeWatcher interface {
	Changes() <-chan entity.ChangeEvent
	Err() error
	Close() error
}

type ChangeFeed interface {
	Watch(ctx context.Context, kind entity.RecordKind) (ChangeWatcher, error)
}

// ChangeRevision is implemented by feeds that count committed mutations.
// The revision only grows, so two equal reads mean no write happened between them.
type ChangeRevision interface {
	Revision(ctx context.Context) (int64, error)
}

// Repositories bundles one implementation of every contract.
type Repositories struct {
	Tickets       TicketRepository
	Vehicles      VehicleRepository
	Payments      PaymentRepository
	History       HistoryRepository
	Subscriptions SubscriptionRepository
	Staff         StaffRepository
	Settings      SettingsRepository
	Stats         StatsRepository
	Feed          ChangeFeed
}

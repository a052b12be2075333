package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

// LifecycleService владеет записями Ticket/Vehicle/Payment/HistoryEntry и
// переводит их между состояниями.
type LifecycleService interface {
	RegisterVehicle(ctx context.Context, req *RegisterVehicleRequest) (*entity.Vehicle, error)
	ConfirmParking(ctx context.Context, ticketCode string) (*ConfirmResult, error)
	SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*PaymentResult, error)
	ValidatePayment(ctx context.Context, paymentID string) (*ValidationResult, error)
	Exit(ctx context.Context, vehicleID string) (*ExitResult, error)
	QuickExit(ctx context.Context, vehicleID, justification string) (*ExitResult, error)

	// Дополнительные операции
	UpdateVehicle(ctx context.Context, vehicleID string, req *UpdateVehicleRequest) (*entity.Vehicle, error)
	ActiveVehicles(ctx context.Context) ([]*entity.Vehicle, error)
	RefreshAmounts(ctx context.Context) (int, error)
}

// StatsService считает счетчики панели администратора
type StatsService interface {
	Calculate(ctx context.Context) (*entity.DashboardStats, error)
}

type TicketService interface {
	CreateTickets(ctx context.Context, codes []string) ([]*entity.Ticket, error)
	GetAllTickets(ctx context.Context) ([]*entity.Ticket, error)
}

type HistoryService interface {
	GetHistory(ctx context.Context, vehicleID string) (*entity.HistoryEntry, error)
	GetRecent(ctx context.Context, limit int) ([]*entity.HistoryEntry, error)
	Summary(ctx context.Context) (*entity.HistorySummary, error)
}

type StaffService interface {
	CreateStaff(ctx context.Context, req *CreateStaffRequest) (*CreatedStaff, error)
	GetAllStaff(ctx context.Context) ([]*entity.Staff, error)
	UpdateStaff(ctx context.Context, id string, req *UpdateStaffRequest) (*entity.Staff, error)
	DeleteStaff(ctx context.Context, id string) error
}

// SettingsService хранит реквизиты и тарифы компании.
type SettingsService interface {
	TariffSource
	GetSettings(ctx context.Context) (*entity.CompanySettings, error)
	UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*entity.CompanySettings, error)
}

// TariffSource отдает тариф, действующий на момент вызова.
type TariffSource interface {
	CurrentTariff(ctx context.Context) (Tariff, error)
}

type SubscriptionService interface {
	Subscribe(ctx context.Context, req *SubscribeRequest) (*entity.Subscription, error)
}

// RegisterVehicleRequest представляет данные для регистрации автомобиля
type RegisterVehicleRequest struct {
	Plate      string               `json:"plate"`
	Make       string               `json:"make"`
	Model      string               `json:"model"`
	Color      string               `json:"color"`
	OwnerName  string               `json:"ownerName"`
	OwnerPhone string               `json:"ownerPhone"`
	TicketCode string               `json:"ticketCode"`
	Note       string               `json:"note"`
	Images     *entity.VehicleImages `json:"images,omitempty"`
}

// UpdateVehicleRequest меняет описательные поля автомобиля. Nil поле не трогается.
type UpdateVehicleRequest struct {
	Plate      *string               `json:"plate,omitempty"`
	Make       *string               `json:"make,omitempty"`
	Model      *string               `json:"model,omitempty"`
	Color      *string               `json:"color,omitempty"`
	OwnerName  *string               `json:"ownerName,omitempty"`
	OwnerPhone *string               `json:"ownerPhone,omitempty"`
	Note       *string               `json:"note,omitempty"`
	Images     *entity.VehicleImages `json:"images,omitempty"`
}

type ConfirmResult struct {
	TicketCode string `json:"ticketCode"`
	VehicleID  string `json:"vehicleId"`
	Plate      string `json:"plate"`
}

// SubmitPaymentRequest представляет данные платежа от клиента
type SubmitPaymentRequest struct {
	TicketCode    string  `json:"ticketCode"`
	Amount        float64 `json:"amount"`
	AmountForeign float64 `json:"amountForeign"`
	Method        string  `json:"method"`
	Reference     string  `json:"reference"`
	Bank          string  `json:"bank"`
	ReceiptURL    string  `json:"receiptUrl"`
}

type PaymentResult struct {
	PaymentID string               `json:"paymentId"`
	Status    entity.PaymentStatus `json:"status"`
}

type ValidationResult struct {
	PaymentID        string `json:"paymentId"`
	TicketCode       string `json:"ticketCode,omitempty"`
	AlreadyValidated bool   `json:"alreadyValidated"`
}

type ExitResult struct {
	TicketCode      string `json:"ticketCode"`
	DurationMinutes int    `json:"durationMinutes"`
}

type CreateStaffRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Password  string `json:"password"`
}

// UpdateStaffRequest keeps the current password hash when Password is blank.
type UpdateStaffRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Password  string `json:"password"`
}

type UpdateSettingsRequest struct {
	MobilePayment *entity.PaymentAccount `json:"mobilePayment,omitempty"`
	Transfer      *entity.PaymentAccount `json:"transfer,omitempty"`
	Tariffs       *entity.TariffSettings `json:"tariffs,omitempty"`
}

// CreatedStaff returns the temporary password once, when none was supplied.
type CreatedStaff struct {
	Staff             *entity.Staff `json:"staff"`
	TemporaryPassword string        `json:"temporaryPassword,omitempty"`
}

type SubscribeRequest struct {
	Role       entity.Role `json:"role"`
	TicketCode string      `json:"ticketCode"`
	Endpoint   string      `json:"endpoint"`
}

// Notification event types
const (
	NotifyVehicleRegistered = "vehicle_registered"
	NotifyVehicleParked     = "vehicle_parked"
	NotifyVehicleUpdated    = "vehicle_updated"
	NotifyPaymentReceived   = "payment_received"
	NotifyPaymentValidated  = "payment_validated"
	NotifyVehicleExit       = "vehicle_exit"
	NotifyQuickExit         = "quick_exit_processed"
)

// Target addresses a notification to the admin role or to one ticket holder.
type Target struct {
	Role       entity.Role `json:"role"`
	TicketCode string      `json:"ticketCode,omitempty"`
}

// Notifier is the fire-and-forget notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, target Target, eventType string, payload map[string]interface{}) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Target, string, map[string]interface{}) error { return nil }

func clock() time.Time { return time.Now().UTC() }

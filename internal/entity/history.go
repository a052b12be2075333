package entity

import "time"

type HistoryEventType string

const (
	EventInitialRegistration HistoryEventType = "registro_inicial"
	EventParkingConfirmed    HistoryEventType = "confirmacion_estacionamiento"
	EventPaymentValidated    HistoryEventType = "pago_validado"
	EventExit                HistoryEventType = "salida"
	EventQuickExit           HistoryEventType = "salida_rapida"
	EventVehicleUpdated      HistoryEventType = "actualizacion_vehiculo"
)

// HistoryPaid is the ledger status after a validated payment. Vehicle rows
// keep payment_pending_validation until they leave.
const HistoryPaid VehicleStatus = "paid_validated"

type ExitType string

const (
	ExitNormal ExitType = "normal"
	ExitQuick  ExitType = "quick"
)

// HistoryEvent is one immutable entry of a vehicle's ledger.
type HistoryEvent struct {
	Seq     int                    `json:"seq"`
	Type    HistoryEventType       `json:"type"`
	At      time.Time              `json:"at"`
	Status  VehicleStatus          `json:"status"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type PaymentRecord struct {
	PaymentID   string    `json:"paymentId"`
	AmountLocal float64   `json:"amountLocal"`
	Method      string    `json:"method"`
	Reference   string    `json:"reference,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

type AmountRecord struct {
	PaymentID string    `json:"paymentId"`
	Amount    float64   `json:"amount"`
	At        time.Time `json:"at"`
}

// HistoryEntry is the ledger of one vehicle lifecycle. Events only grow;
// the remaining fields are rollups derived from them.
type HistoryEntry struct {
	VehicleID       string          `json:"vehicleId"`
	TicketCode      string          `json:"ticketCode"`
	Plate           string          `json:"plate"`
	Vehicle         VehicleSnapshot `json:"vehicle"`
	CurrentStatus   VehicleStatus   `json:"currentStatus"`
	IsActive        bool            `json:"isActive"`
	IsComplete      bool            `json:"isComplete"`
	TotalPaid       float64         `json:"totalPaid"`
	Payments        []PaymentRecord `json:"payments"`
	// RejectedAmounts is reserved for rejected payments. No operation rejects
	// a payment yet, so it stays empty and only feeds the summary totals.
	RejectedAmounts []AmountRecord  `json:"rejectedAmounts"`
	PendingAmounts  []AmountRecord  `json:"pendingAmounts"`
	Events          []HistoryEvent  `json:"events"`
	ExitType        ExitType        `json:"exitType,omitempty"`
	ExitNote        string          `json:"exitNote,omitempty"`
	DurationMinutes int             `json:"durationMinutes,omitempty"`
	ExitedAt        *time.Time      `json:"exitedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// HistoryClose marks the entry as finished.
type HistoryClose struct {
	ExitType        ExitType
	ExitNote        string
	DurationMinutes int
	ExitedAt        time.Time
}

// HistoryRollup is the set of rollup changes written together with an
// optional event.
type HistoryRollup struct {
	CurrentStatus        VehicleStatus
	Vehicle              *VehicleSnapshot
	AddPending           *AmountRecord
	RemovePendingPayment string
	AddPayment           *PaymentRecord
	Close                *HistoryClose
}

// ApplyRollup mutates h in place.
func (h *HistoryEntry) ApplyRollup(r HistoryRollup, now time.Time) {
	if r.CurrentStatus != "" {
		h.CurrentStatus = r.CurrentStatus
	}
	if r.Vehicle != nil {
		h.Vehicle = *r.Vehicle
		h.Plate = r.Vehicle.Plate
	}
	if r.AddPending != nil {
		h.PendingAmounts = append(h.PendingAmounts, *r.AddPending)
	}
	if r.RemovePendingPayment != "" {
		kept := h.PendingAmounts[:0:0]
		for _, p := range h.PendingAmounts {
			if p.PaymentID != r.RemovePendingPayment {
				kept = append(kept, p)
			}
		}
		h.PendingAmounts = kept
	}
	if r.AddPayment != nil {
		h.Payments = append(h.Payments, *r.AddPayment)
		h.TotalPaid += r.AddPayment.AmountLocal
	}
	if r.Close != nil {
		h.IsActive = false
		h.IsComplete = true
		h.ExitType = r.Close.ExitType
		h.ExitNote = r.Close.ExitNote
		h.DurationMinutes = r.Close.DurationMinutes
		exited := r.Close.ExitedAt
		h.ExitedAt = &exited
	}
	h.UpdatedAt = now
}

// HistorySummary aggregates money across all ledgers.
type HistorySummary struct {
	TotalPaid     float64 `json:"totalPaid"`
	TotalRejected float64 `json:"totalRejected"`
	TotalPending  float64 `json:"totalPending"`
	Records       int     `json:"records"`
	Active        int     `json:"active"`
	Completed     int     `json:"completed"`
}

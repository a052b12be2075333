package entity

import (
	"time"
)

type TicketStatus string

const (
	TicketAvailable      TicketStatus = "available"
	TicketOccupied       TicketStatus = "occupied"
	TicketValidated      TicketStatus = "validated"
	TicketPaymentPending TicketStatus = "payment_pending_validation"
	TicketPaid           TicketStatus = "paid_validated"
)

// ticketTransitions lists every allowed edge of the ticket state machine.
// occupied/validated -> available is the quick exit path.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketAvailable:      {TicketOccupied},
	TicketOccupied:       {TicketValidated, TicketAvailable},
	TicketValidated:      {TicketPaymentPending, TicketAvailable},
	TicketPaymentPending: {TicketPaid},
	TicketPaid:           {TicketAvailable},
}

func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// TicketTransitionAllowed reports whether a ticket may move from one status to another.
func TicketTransitionAllowed(from, to TicketStatus) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Ticket struct {
	Code               string           `json:"code" db:"code"`
	Status             TicketStatus     `json:"status" db:"status"`
	VehicleSnapshot    *VehicleSnapshot `json:"vehicleSnapshot,omitempty" db:"vehicle_snapshot"`
	ComputedAmount     float64          `json:"computedAmount" db:"computed_amount"`
	OccupiedAt         *time.Time       `json:"occupiedAt,omitempty" db:"occupied_at"`
	ValidatedAt        *time.Time       `json:"validatedAt,omitempty" db:"validated_at"`
	PaymentValidatedAt *time.Time       `json:"paymentValidatedAt,omitempty" db:"payment_validated_at"`
	CreatedAt          time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time        `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy so callers can keep a pre-image for compensation.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.VehicleSnapshot != nil {
		s := *t.VehicleSnapshot
		c.VehicleSnapshot = &s
	}
	c.OccupiedAt = cloneTime(t.OccupiedAt)
	c.ValidatedAt = cloneTime(t.ValidatedAt)
	c.PaymentValidatedAt = cloneTime(t.PaymentValidatedAt)
	return &c
}

// TicketUpdate describes a conditional ticket transition. Nil fields keep
// the stored value; a transition to available always clears the snapshot,
// the timestamps and the computed amount.
type TicketUpdate struct {
	Status             TicketStatus
	Snapshot           *VehicleSnapshot
	ComputedAmount     *float64
	OccupiedAt         *time.Time
	ValidatedAt        *time.Time
	PaymentValidatedAt *time.Time
}

// Apply returns the ticket as it looks after u, leaving t untouched.
func (u TicketUpdate) Apply(t *Ticket, now time.Time) *Ticket {
	next := t.Clone()
	next.Status = u.Status
	next.UpdatedAt = now
	if u.Status == TicketAvailable {
		next.VehicleSnapshot = nil
		next.ComputedAmount = 0
		next.OccupiedAt = nil
		next.ValidatedAt = nil
		next.PaymentValidatedAt = nil
		return next
	}
	if u.Snapshot != nil {
		s := *u.Snapshot
		next.VehicleSnapshot = &s
	}
	if u.ComputedAmount != nil {
		next.ComputedAmount = *u.ComputedAmount
	}
	if u.OccupiedAt != nil {
		next.OccupiedAt = cloneTime(u.OccupiedAt)
	}
	if u.ValidatedAt != nil {
		next.ValidatedAt = cloneTime(u.ValidatedAt)
	}
	if u.PaymentValidatedAt != nil {
		next.PaymentValidatedAt = cloneTime(u.PaymentValidatedAt)
	}
	return next
}

// SnapshotConsistent checks the invariant tying the snapshot to the status.
func (t *Ticket) SnapshotConsistent() bool {
	return (t.Status == TicketAvailable) == (t.VehicleSnapshot == nil)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

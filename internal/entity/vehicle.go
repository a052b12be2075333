package entity

import (
	"strings"
	"time"
)

type VehicleStatus string

const (
	VehicleParked          VehicleStatus = "parked"
	VehicleParkedConfirmed VehicleStatus = "parked_confirmed"
	VehiclePaymentPending  VehicleStatus = "payment_pending_validation"
	VehicleCompleted       VehicleStatus = "completed"
)

// ActiveVehicleStatuses are the statuses counted as "cars parked".
var ActiveVehicleStatuses = []VehicleStatus{VehicleParked, VehicleParkedConfirmed, VehiclePaymentPending}

func (s VehicleStatus) Active() bool {
	for _, a := range ActiveVehicleStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// CaptureMobileCamera marks images taken with the attendant's phone.
const CaptureMobileCamera = "mobile_camera"

// VehicleImages holds URLs produced by the external media host.
type VehicleImages struct {
	PlateImageURL   string     `json:"plateImageUrl,omitempty"`
	VehicleImageURL string     `json:"vehicleImageUrl,omitempty"`
	CapturedAt      *time.Time `json:"capturedAt,omitempty"`
	CaptureMethod   string     `json:"captureMethod,omitempty"`
}

type Vehicle struct {
	ID          string         `json:"id" db:"id"`
	Plate       string         `json:"plate" db:"plate"`
	Make        string         `json:"make" db:"make"`
	Model       string         `json:"model" db:"model"`
	Color       string         `json:"color" db:"color"`
	OwnerName   string         `json:"ownerName" db:"owner_name"`
	OwnerPhone  string         `json:"ownerPhone" db:"owner_phone"`
	TicketCode  string         `json:"ticketCode" db:"ticket_code"`
	Status      VehicleStatus  `json:"status" db:"status"`
	EnteredAt   time.Time      `json:"enteredAt" db:"entered_at"`
	ConfirmedAt *time.Time     `json:"confirmedAt,omitempty" db:"confirmed_at"`
	Note        string         `json:"note,omitempty" db:"note"`
	Images      *VehicleImages `json:"images,omitempty" db:"images"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

// VehicleSnapshot is the copy of a vehicle embedded in its ticket.
type VehicleSnapshot struct {
	VehicleID  string         `json:"vehicleId"`
	Plate      string         `json:"plate"`
	Make       string         `json:"make,omitempty"`
	Model      string         `json:"model,omitempty"`
	Color      string         `json:"color,omitempty"`
	OwnerName  string         `json:"ownerName,omitempty"`
	OwnerPhone string         `json:"ownerPhone,omitempty"`
	Status     VehicleStatus  `json:"status"`
	EnteredAt  time.Time      `json:"enteredAt"`
	Note       string         `json:"note,omitempty"`
	Images     *VehicleImages `json:"images,omitempty"`
}

func (v *Vehicle) Snapshot() *VehicleSnapshot {
	s := &VehicleSnapshot{
		VehicleID:  v.ID,
		Plate:      v.Plate,
		Make:       v.Make,
		Model:      v.Model,
		Color:      v.Color,
		OwnerName:  v.OwnerName,
		OwnerPhone: v.OwnerPhone,
		Status:     v.Status,
		EnteredAt:  v.EnteredAt,
		Note:       v.Note,
	}
	if v.Images != nil {
		img := *v.Images
		s.Images = &img
	}
	return s
}

func (v *Vehicle) Clone() *Vehicle {
	if v == nil {
		return nil
	}
	c := *v
	c.ConfirmedAt = cloneTime(v.ConfirmedAt)
	if v.Images != nil {
		img := *v.Images
		c.Images = &img
	}
	return &c
}

// NormalizePlate upper-cases a plate and strips surrounding whitespace.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

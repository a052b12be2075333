package entity

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type SubscriptionStage string

const (
	StageActive  SubscriptionStage = "active"
	StageExpired SubscriptionStage = "expired"
)

// Subscription ties a push endpoint to the admin role or to one ticket.
type Subscription struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	TicketCode  string            `json:"ticketCode,omitempty"`
	TicketCodes []string          `json:"ticketCodes,omitempty"`
	Endpoint    string            `json:"endpoint"`
	IsActive    bool              `json:"isActive"`
	Stage       SubscriptionStage `json:"stage"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

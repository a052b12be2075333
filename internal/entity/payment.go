package entity

import "time"

type PaymentStatus string

const (
	PaymentPendingValidation PaymentStatus = "pending_validation"
	PaymentValidated         PaymentStatus = "validated"
	// PaymentRejected is kept for records imported with that status; no
	// lifecycle operation produces it.
	PaymentRejected PaymentStatus = "rejected"
)

type Payment struct {
	ID              string        `json:"id" db:"id"`
	TicketCode      string        `json:"ticketCode" db:"ticket_code"`
	Plate           string        `json:"plate,omitempty" db:"plate"`
	AmountLocal     float64       `json:"amountLocal" db:"amount_local"`
	AmountForeign   float64       `json:"amountForeign" db:"amount_foreign"`
	ComputedAmount  float64       `json:"computedAmount" db:"computed_amount"`
	Method          string        `json:"method" db:"method"`
	Reference       string        `json:"reference,omitempty" db:"reference"`
	Bank            string        `json:"bank,omitempty" db:"bank"`
	ReceiptImageURL string        `json:"receiptImageUrl,omitempty" db:"receipt_image_url"`
	Status          PaymentStatus `json:"status" db:"status"`
	SubmittedAt     time.Time     `json:"submittedAt" db:"submitted_at"`
	ValidatedAt     *time.Time    `json:"validatedAt,omitempty" db:"validated_at"`
}

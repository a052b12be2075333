package entity

import (
	"fmt"
	"time"
)

// PaymentAccount is where customers send money for one payment method.
type PaymentAccount struct {
	Bank          string `json:"bank"`
	IDNumber      string `json:"idNumber"`
	Phone         string `json:"phone"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// TariffSettings are the editable parking rates. Night hours are whole
// hours of day, 0-23; an equal start and end means there is no night rate.
type TariffSettings struct {
	DayRate      float64 `json:"dayRate"`
	NightRate    float64 `json:"nightRate"`
	NightStart   int     `json:"nightStart"`
	NightEnd     int     `json:"nightEnd"`
	ExchangeRate float64 `json:"exchangeRate"`
}

func (t TariffSettings) Validate() error {
	if t.DayRate <= 0 || t.NightRate <= 0 {
		return Validation(ReasonInvalidAmount, "hourly rates must be positive")
	}
	if t.ExchangeRate <= 0 {
		return Validation(ReasonInvalidAmount, "exchange rate must be positive")
	}
	if t.NightStart < 0 || t.NightStart > 23 || t.NightEnd < 0 || t.NightEnd > 23 {
		return Validation(ReasonRequired, "night hours must be within 0-23")
	}
	return nil
}

// CompanySettings is the single settings record of the parking company.
type CompanySettings struct {
	MobilePayment PaymentAccount `json:"mobilePayment"`
	Transfer      PaymentAccount `json:"transfer"`
	Tariffs       TariffSettings `json:"tariffs"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (s CompanySettings) String() string {
	return fmt.Sprintf("day=%.2f night=%.2f (%02d-%02d) rate=%.2f",
		s.Tariffs.DayRate, s.Tariffs.NightRate, s.Tariffs.NightStart, s.Tariffs.NightEnd, s.Tariffs.ExchangeRate)
}

package service

import (
	"context"
	"math"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/config"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

// Tariff prices every started hour by the hour of day it starts in.
type Tariff struct {
	DayRate      float64
	NightRate    float64
	NightStart   int
	NightEnd     int
	ExchangeRate float64
}

func NewTariff(cfg config.TariffConfig) Tariff {
	return Tariff{
		DayRate:      cfg.DayRate,
		NightRate:    cfg.NightRate,
		NightStart:   cfg.NightStart,
		NightEnd:     cfg.NightEnd,
		ExchangeRate: cfg.ExchangeRate,
	}
}

// TariffFromSettings builds a tariff from the stored company settings.
func TariffFromSettings(ts entity.TariffSettings) Tariff {
	return Tariff{
		DayRate:      ts.DayRate,
		NightRate:    ts.NightRate,
		NightStart:   ts.NightStart,
		NightEnd:     ts.NightEnd,
		ExchangeRate: ts.ExchangeRate,
	}
}

// CurrentTariff lets a fixed tariff serve as a TariffSource.
func (t Tariff) CurrentTariff(context.Context) (Tariff, error) { return t, nil }

func (t Tariff) settings() entity.TariffSettings {
	return entity.TariffSettings{
		DayRate:      t.DayRate,
		NightRate:    t.NightRate,
		NightStart:   t.NightStart,
		NightEnd:     t.NightEnd,
		ExchangeRate: t.ExchangeRate,
	}
}

func (t Tariff) night(hour int) bool {
	if t.NightStart == t.NightEnd {
		return false
	}
	if t.NightStart < t.NightEnd {
		return hour >= t.NightStart && hour < t.NightEnd
	}
	// окно через полночь, например 22-06
	return hour >= t.NightStart || hour < t.NightEnd
}

// AmountDue returns the price in base currency for a stay; a stay shorter
// than an hour still pays one hour.
func (t Tariff) AmountDue(enteredAt, now time.Time) float64 {
	hours := int(math.Ceil(now.Sub(enteredAt).Hours()))
	if hours < 1 {
		hours = 1
	}

	total := 0.0
	for i := 0; i < hours; i++ {
		start := enteredAt.Add(time.Duration(i) * time.Hour)
		if t.night(start.Hour()) {
			total += t.NightRate
		} else {
			total += t.DayRate
		}
	}
	return math.Round(total*100) / 100
}

// Local converts a base currency amount with the exchange rate.
func (t Tariff) Local(amount float64) float64 {
	return math.Round(amount*t.ExchangeRate*100) / 100
}

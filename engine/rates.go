/*
rates.go - Date-versioned, position-specific pay rates

PURPOSE:
  A published rate era never changes and never disappears: a new
  effective-dated era supersedes it going forward, while past months keep
  resolving to the era that was in force at the time. Re-running January's
  calculation after a March rate change must reproduce January's numbers.

LOOKUP RULE:
  RatesFor(position, year, month) selects the era with the latest
  effective date <= the first day of the target month. Selection is
  uniform no matter how many eras exist; adding an era is data, not code.

WHY INJECTED:
  Rate selection is a pure function of (position, date). There is no
  module-level rate singleton; the table is constructed (from presets,
  JSON, or the database) and handed to the classifier, pairer, and
  aggregator. See DESIGN.md.

SEE ALSO:
  - airline/rates.go: Preset eras for the supported carrier
  - factory/rates.go: JSON era definitions
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATES - One era's pay figures for one position
// =============================================================================

// Rates holds every figure the engine may price against. Fixed-hour
// constants (ASBY, recurrent, business promotion) live here too so no
// pay computation ever reaches for a hardcoded number.
type Rates struct {
	BasicSalary        decimal.Decimal
	HousingAllowance   decimal.Decimal
	TransportAllowance decimal.Decimal
	HourlyRate         decimal.Decimal
	PerDiemRate        decimal.Decimal

	// Fixed compensable hours, independent of actual time on duty.
	AsbyHours      decimal.Decimal
	RecurrentHours decimal.Decimal
	PromoHours     decimal.Decimal
}

// RateEra is one published (position, effective-date) entry.
// Immutable once published; supersede, never replace.
type RateEra struct {
	Position      Position
	EffectiveFrom time.Time
	Rates         Rates
}

// =============================================================================
// RATE TABLE - Versioned lookup
// =============================================================================

type RateTable struct {
	eras []RateEra // sorted by EffectiveFrom ascending
}

func NewRateTable(eras ...RateEra) *RateTable {
	rt := &RateTable{}
	for _, era := range eras {
		rt.Publish(era)
	}
	return rt
}

// Publish adds a new era. Existing eras are untouched, so every past
// month keeps its original rates.
func (rt *RateTable) Publish(era RateEra) {
	i := sort.Search(len(rt.eras), func(i int) bool {
		return rt.eras[i].EffectiveFrom.After(era.EffectiveFrom)
	})
	rt.eras = append(rt.eras, RateEra{})
	copy(rt.eras[i+1:], rt.eras[i:])
	rt.eras[i] = era
}

// RatesFor returns the rates in force for the given position and month:
// the era with the latest effective date <= the first day of that month.
func (rt *RateTable) RatesFor(position Position, year, month int) (Rates, error) {
	target := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)

	var found *RateEra
	for i := range rt.eras {
		era := &rt.eras[i]
		if era.Position != position {
			continue
		}
		if era.EffectiveFrom.After(target) {
			break
		}
		found = era
	}
	if found == nil {
		return Rates{}, &NoRatesError{Position: position, Year: year, Month: month}
	}
	return found.Rates, nil
}

// RatesAt resolves rates for the month containing date. The pairer uses
// this so per diem is priced at the outbound leg's date.
func (rt *RateTable) RatesAt(position Position, date time.Time) (Rates, error) {
	return rt.RatesFor(position, date.Year(), int(date.Month()))
}

// Eras returns a copy of all published eras, oldest first.
func (rt *RateTable) Eras() []RateEra {
	out := make([]RateEra, len(rt.eras))
	copy(out, rt.eras)
	return out
}

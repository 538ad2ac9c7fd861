/*
Package factory provides JSON to Go rate-era conversion.

PURPOSE:
  Converts JSON rate definitions into engine.RateEra objects and whole
  engine.RateTables. This enables rate configuration without code changes -
  ops staff can publish salary adjustments as JSON, and the factory creates
  the proper Go structs.

WHY JSON?
  - Non-developers can publish rate changes
  - Easy integration with admin UI
  - Version control for rate definitions
  - Database storage of rate eras

JSON SCHEMA:
  {
    "position": "CCM",
    "effective_from": "2024-06",
    "rates": {
      "basic_salary": "3400",
      "housing_allowance": "4000",
      "transport_allowance": "1000",
      "hourly_rate": "52.50",
      "per_diem_rate": "9.25",
      "asby_hours": "4",
      "recurrent_hours": "4",
      "promo_hours": "8"
    }
  }

  Monetary values are JSON strings to preserve exact decimal amounts;
  bare numbers are accepted too.

KEY FEATURES:
  - Validates position codes and the effective_from month
  - Rejects negative amounts before they reach a rate table
  - Round-trips eras back to JSON for storage
  - Loads a full table from a JSON array of eras

USAGE:
  f := NewRateFactory()

  // Single era
  era, err := f.ParseEra(jsonString)

  // Whole table (e.g. from the rate_eras store)
  table, err := f.ParseTable(jsonArray)

SEE ALSO:
  - engine/rates.go: RateEra and RateTable definitions
  - airline/rates.go: compiled-in default table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skywage/salary-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RateEraJSON is the JSON representation of a rate era.
type RateEraJSON struct {
	Position      string    `json:"position"`
	EffectiveFrom string    `json:"effective_from"` // YYYY-MM
	Rates         RatesJSON `json:"rates"`
}

// RatesJSON represents the per-position amounts of one era.
// decimal.Decimal accepts both JSON strings and bare numbers.
type RatesJSON struct {
	BasicSalary        decimal.Decimal `json:"basic_salary"`
	HousingAllowance   decimal.Decimal `json:"housing_allowance"`
	TransportAllowance decimal.Decimal `json:"transport_allowance"`
	HourlyRate         decimal.Decimal `json:"hourly_rate"`
	PerDiemRate        decimal.Decimal `json:"per_diem_rate"`
	AsbyHours          decimal.Decimal `json:"asby_hours"`
	RecurrentHours     decimal.Decimal `json:"recurrent_hours"`
	PromoHours         decimal.Decimal `json:"promo_hours"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory converts JSON rate definitions to Go structs.
type RateFactory struct{}

// NewRateFactory creates a new rate factory.
func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseEra parses a JSON string into a RateEra.
func (f *RateFactory) ParseEra(jsonStr string) (engine.RateEra, error) {
	var rj RateEraJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return engine.RateEra{}, fmt.Errorf("failed to parse rate era JSON: %w", err)
	}

	return f.FromJSON(rj)
}

// FromJSON converts a RateEraJSON to an engine.RateEra.
func (f *RateFactory) FromJSON(rj RateEraJSON) (engine.RateEra, error) {
	position, ok := engine.ParsePosition(rj.Position)
	if !ok {
		return engine.RateEra{}, fmt.Errorf("unknown position %q", rj.Position)
	}

	effectiveFrom, err := time.Parse("2006-01", rj.EffectiveFrom)
	if err != nil {
		return engine.RateEra{}, fmt.Errorf("invalid effective_from %q: want YYYY-MM: %w", rj.EffectiveFrom, err)
	}

	if err := validateRates(rj.Rates); err != nil {
		return engine.RateEra{}, err
	}

	return engine.RateEra{
		Position:      position,
		EffectiveFrom: effectiveFrom.UTC(),
		Rates: engine.Rates{
			BasicSalary:        rj.Rates.BasicSalary,
			HousingAllowance:   rj.Rates.HousingAllowance,
			TransportAllowance: rj.Rates.TransportAllowance,
			HourlyRate:         rj.Rates.HourlyRate,
			PerDiemRate:        rj.Rates.PerDiemRate,
			AsbyHours:          rj.Rates.AsbyHours,
			RecurrentHours:     rj.Rates.RecurrentHours,
			PromoHours:         rj.Rates.PromoHours,
		},
	}, nil
}

// validateRates rejects negative amounts. Zero is legal: an era may pay
// no housing allowance, and hour fixtures default to zero until published.
func validateRates(rj RatesJSON) error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"basic_salary", rj.BasicSalary},
		{"housing_allowance", rj.HousingAllowance},
		{"transport_allowance", rj.TransportAllowance},
		{"hourly_rate", rj.HourlyRate},
		{"per_diem_rate", rj.PerDiemRate},
		{"asby_hours", rj.AsbyHours},
		{"recurrent_hours", rj.RecurrentHours},
		{"promo_hours", rj.PromoHours},
	}
	for _, field := range fields {
		if field.value.IsNegative() {
			return fmt.Errorf("rate %s must not be negative, got %s", field.name, field.value)
		}
	}
	return nil
}

// ToJSON converts an engine.RateEra back to its JSON representation.
func (f *RateFactory) ToJSON(era engine.RateEra) RateEraJSON {
	return RateEraJSON{
		Position:      string(era.Position),
		EffectiveFrom: era.EffectiveFrom.Format("2006-01"),
		Rates: RatesJSON{
			BasicSalary:        era.Rates.BasicSalary,
			HousingAllowance:   era.Rates.HousingAllowance,
			TransportAllowance: era.Rates.TransportAllowance,
			HourlyRate:         era.Rates.HourlyRate,
			PerDiemRate:        era.Rates.PerDiemRate,
			AsbyHours:          era.Rates.AsbyHours,
			RecurrentHours:     era.Rates.RecurrentHours,
			PromoHours:         era.Rates.PromoHours,
		},
	}
}

// MarshalEra serializes a RateEra for storage.
func (f *RateFactory) MarshalEra(era engine.RateEra) (string, error) {
	data, err := json.Marshal(f.ToJSON(era))
	if err != nil {
		return "", fmt.Errorf("failed to marshal rate era: %w", err)
	}
	return string(data), nil
}

// ParseTable parses a JSON array of rate eras into a ready RateTable.
func (f *RateFactory) ParseTable(jsonStr string) (*engine.RateTable, error) {
	var raw []RateEraJSON
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rate table JSON: %w", err)
	}

	table := engine.NewRateTable()
	for i, rj := range raw {
		era, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("rate era %d: %w", i, err)
		}
		table.Publish(era)
	}
	return table, nil
}

/*
Package airline provides the carrier-specific configuration the engine is
deliberately ignorant of: preset rate eras per crew position, the home
base, the layover lookahead window, the cross-day inference ceiling, and
the unpaid-recurrent roster codes.

PURPOSE:
  The engine prices everything through an injected RateTable and a pair
  of config structs; this package is where the actual airline numbers
  live. Two eras per position ship as presets so the versioned lookup is
  exercised out of the box; ops publish further eras as JSON (see the
  factory package) without touching code.

NOTE ON FIGURES:
  Values model a Gulf-carrier cabin crew salary structure (AED). Rate
  eras are immutable once published - to change pay going forward,
  publish a new era; never edit these.

SEE ALSO:
  - engine/rates.go: Lookup semantics
  - factory/rates.go: JSON era loading
*/
package airline

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/skywage/salary-engine/engine"
)

// HomeBase is the IATA code all outbound layover legs depart from.
const HomeBase = "DXB"

// LookaheadDays bounds the outbound->inbound pairing window.
const LookaheadDays = 5

// CrossDayCeiling is the same-day duty span above which a missing
// cross-day marker is treated as a next-day debrief. No legal same-day
// duty runs this long; keep in one place, do not inline elsewhere.
const CrossDayCeiling = 16 * time.Hour

// UnpaidRecurrentCodes are roster duty codes for recurrent training
// variants that record hours but pay nothing (computer-based and
// e-learning modules done from home).
var UnpaidRecurrentCodes = []string{"ELEARN", "CBT", "LMS"}

// =============================================================================
// PRESET RATE ERAS
// =============================================================================

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// DefaultRateTable returns the published eras for both positions:
// the 2023 structure and the June 2024 revision.
func DefaultRateTable() *engine.RateTable {
	return engine.NewRateTable(
		engine.RateEra{
			Position:      engine.PositionCCM,
			EffectiveFrom: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			Rates: engine.Rates{
				BasicSalary:        d("3275"),
				HousingAllowance:   d("4000"),
				TransportAllowance: d("1000"),
				HourlyRate:         d("50.17"),
				PerDiemRate:        d("8.82"),
				AsbyHours:          d("4"),
				RecurrentHours:     d("4"),
				PromoHours:         d("8"),
			},
		},
		engine.RateEra{
			Position:      engine.PositionSCCM,
			EffectiveFrom: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			Rates: engine.Rates{
				BasicSalary:        d("4275"),
				HousingAllowance:   d("5000"),
				TransportAllowance: d("1000"),
				HourlyRate:         d("61.21"),
				PerDiemRate:        d("8.82"),
				AsbyHours:          d("4"),
				RecurrentHours:     d("4"),
				PromoHours:         d("8"),
			},
		},
		engine.RateEra{
			Position:      engine.PositionCCM,
			EffectiveFrom: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
			Rates: engine.Rates{
				BasicSalary:        d("3400"),
				HousingAllowance:   d("4000"),
				TransportAllowance: d("1000"),
				HourlyRate:         d("52.50"),
				PerDiemRate:        d("9.25"),
				AsbyHours:          d("4"),
				RecurrentHours:     d("4"),
				PromoHours:         d("8"),
			},
		},
		engine.RateEra{
			Position:      engine.PositionSCCM,
			EffectiveFrom: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
			Rates: engine.Rates{
				BasicSalary:        d("4500"),
				HousingAllowance:   d("5000"),
				TransportAllowance: d("1000"),
				HourlyRate:         d("64.00"),
				PerDiemRate:        d("9.25"),
				AsbyHours:          d("4"),
				RecurrentHours:     d("4"),
				PromoHours:         d("8"),
			},
		},
	)
}

// =============================================================================
// ENGINE WIRING
// =============================================================================

// Calculator bundles the fully configured engine components for this
// carrier. It is the one constructor call the API and CLI layers need.
type Calculator struct {
	Rates      *engine.RateTable
	Classifier *engine.Classifier
	Pairer     *engine.Pairer
	Aggregator *engine.Aggregator
}

// NewCalculator wires the engine with this carrier's configuration.
// Pass a zerolog.Nop() logger for silent operation.
func NewCalculator(rates *engine.RateTable, logger zerolog.Logger) *Calculator {
	if rates == nil {
		rates = DefaultRateTable()
	}
	classifier := engine.NewClassifier(rates, engine.ClassifierConfig{
		UnpaidRecurrentCodes: UnpaidRecurrentCodes,
		CrossDayCeiling:      CrossDayCeiling,
		Logger:               logger,
	})
	pairer := engine.NewPairer(rates, engine.PairerConfig{
		HomeBase:        HomeBase,
		LookaheadDays:   LookaheadDays,
		CrossDayCeiling: CrossDayCeiling,
		Logger:          logger,
	})
	return &Calculator{
		Rates:      rates,
		Classifier: classifier,
		Pairer:     pairer,
		Aggregator: engine.NewAggregator(rates, classifier, pairer),
	}
}

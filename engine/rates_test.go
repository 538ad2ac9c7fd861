package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skywage/salary-engine/engine"
)

func decFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// =============================================================================
// TEST FIXTURES
// =============================================================================

func ccmRates2023() engine.Rates {
	return engine.Rates{
		BasicSalary:        dec("3275"),
		HousingAllowance:   dec("4000"),
		TransportAllowance: dec("1000"),
		HourlyRate:         dec("50"),
		PerDiemRate:        dec("8.82"),
		AsbyHours:          dec("4"),
		RecurrentHours:     dec("4"),
		PromoHours:         dec("8"),
	}
}

func ccmRates2024() engine.Rates {
	r := ccmRates2023()
	r.HourlyRate = dec("55")
	r.PerDiemRate = dec("9.5")
	return r
}

func twoEraTable() *engine.RateTable {
	return engine.NewRateTable(
		engine.RateEra{
			Position:      engine.PositionCCM,
			EffectiveFrom: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			Rates:         ccmRates2023(),
		},
		engine.RateEra{
			Position:      engine.PositionCCM,
			EffectiveFrom: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
			Rates:         ccmRates2024(),
		},
		engine.RateEra{
			Position:      engine.PositionSCCM,
			EffectiveFrom: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
			Rates: engine.Rates{
				BasicSalary: dec("4500"), HousingAllowance: dec("5000"),
				TransportAllowance: dec("1000"), HourlyRate: dec("60"),
				PerDiemRate: dec("8.82"), AsbyHours: dec("4"),
				RecurrentHours: dec("4"), PromoHours: dec("8"),
			},
		},
	)
}

// =============================================================================
// VERSIONED LOOKUP
// =============================================================================

func TestRatesFor_SelectsLatestEraAtOrBeforeMonth(t *testing.T) {
	rt := twoEraTable()

	// GIVEN: eras effective 2023-01 and 2024-06 for CCM
	// THEN: May 2024 still resolves to the 2023 era
	got, err := rt.RatesFor(engine.PositionCCM, 2024, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HourlyRate.Equal(dec("50")) {
		t.Errorf("May 2024 should use the 2023 era, got hourly %v", got.HourlyRate)
	}

	// AND: June 2024 onward resolves to the new era
	got, err = rt.RatesFor(engine.PositionCCM, 2024, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HourlyRate.Equal(dec("55")) {
		t.Errorf("June 2024 should use the 2024 era, got hourly %v", got.HourlyRate)
	}
}

func TestRatesFor_PositionsAreIndependent(t *testing.T) {
	rt := twoEraTable()

	ccm, err := rt.RatesFor(engine.PositionCCM, 2023, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sccm, err := rt.RatesFor(engine.PositionSCCM, 2023, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ccm.HourlyRate.Equal(sccm.HourlyRate) {
		t.Error("CCM and SCCM should resolve to different hourly rates")
	}
}

func TestRatesFor_BeforeFirstEra(t *testing.T) {
	rt := twoEraTable()

	_, err := rt.RatesFor(engine.PositionCCM, 2022, 12)
	if !errors.Is(err, engine.ErrNoRates) {
		t.Fatalf("expected ErrNoRates, got %v", err)
	}

	var noRates *engine.NoRatesError
	if !errors.As(err, &noRates) {
		t.Fatalf("expected NoRatesError, got %T", err)
	}
	if noRates.Year != 2022 || noRates.Month != 12 {
		t.Errorf("error should carry the missing month, got %+v", noRates)
	}
}

func TestPublish_SupersedesWithoutRewritingHistory(t *testing.T) {
	// GIVEN: an established table and a calculation for March 2024
	rt := twoEraTable()
	before, err := rt.RatesFor(engine.PositionCCM, 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// WHEN: a new era is published effective 2025-01
	newRates := ccmRates2024()
	newRates.HourlyRate = dec("60")
	rt.Publish(engine.RateEra{
		Position:      engine.PositionCCM,
		EffectiveFrom: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Rates:         newRates,
	})

	// THEN: March 2024 reproduces its original rates
	after, err := rt.RatesFor(engine.PositionCCM, 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !after.HourlyRate.Equal(before.HourlyRate) {
		t.Errorf("past month changed: %v -> %v", before.HourlyRate, after.HourlyRate)
	}

	// AND: January 2025 uses the new era
	jan, err := rt.RatesFor(engine.PositionCCM, 2025, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jan.HourlyRate.Equal(dec("60")) {
		t.Errorf("expected new era hourly 60, got %v", jan.HourlyRate)
	}
}

func TestPublish_ArbitraryEraCount(t *testing.T) {
	// Selection logic is uniform regardless of how many eras exist.
	rt := engine.NewRateTable()
	for year := 2015; year <= 2025; year++ {
		r := ccmRates2023()
		r.HourlyRate = dec("50").Add(decFromInt(year - 2015))
		rt.Publish(engine.RateEra{
			Position:      engine.PositionCCM,
			EffectiveFrom: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Rates:         r,
		})
	}

	got, err := rt.RatesFor(engine.PositionCCM, 2019, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HourlyRate.Equal(dec("54")) {
		t.Errorf("expected the 2019 era (hourly 54), got %v", got.HourlyRate)
	}
}

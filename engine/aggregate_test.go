package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/skywage/salary-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestAggregator() *engine.Aggregator {
	rates := twoEraTable()
	return engine.NewAggregator(
		rates,
		engine.NewClassifier(rates, engine.ClassifierConfig{UnpaidRecurrentCodes: []string{"ELEARN"}}),
		engine.NewPairer(rates, engine.PairerConfig{HomeBase: "DXB"}),
	)
}

// julyDuties is a representative month: a turnaround, a paired layover,
// an ASBY, a recurrent training day and a day off.
func julyDuties(t *testing.T) []engine.DutyRecord {
	t.Helper()
	turnaround := flightDuty(t, "t1", engine.DutyTurnaround, "09:20", "21:15")
	turnaround.Date = day(2023, time.July, 3)

	out := layoverLeg(t, "l-out", day(2023, time.July, 10), "DXB-VIE", "10:00", "16:54")
	in := layoverLeg(t, "l-in", day(2023, time.July, 11), "VIE-DXB", "16:30", "23:40")

	asby := flightDuty(t, "a1", engine.DutyASBY, "06:00", "10:00")
	asby.Date = day(2023, time.July, 15)

	recurrent := flightDuty(t, "r1", engine.DutyRecurrent, "09:00", "13:00")
	recurrent.Date = day(2023, time.July, 20)
	recurrent.RosterCode = "RTC1"

	off := engine.DutyRecord{ID: "o1", UserID: "crew-1", DutyType: engine.DutyOff,
		Date: day(2023, time.July, 21), Month: 7, Year: 2023}

	return []engine.DutyRecord{turnaround, out, in, asby, recurrent, off}
}

func aggregateJuly(t *testing.T, duties []engine.DutyRecord) *engine.Result {
	t.Helper()
	result, err := newTestAggregator().Aggregate(engine.Input{
		UserID:   "crew-1",
		Position: engine.PositionCCM,
		Month:    7,
		Year:     2023,
		Duties:   duties,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

// =============================================================================
// ROLL-UP
// =============================================================================

func TestAggregate_MonthlyTotals(t *testing.T) {
	result := aggregateJuly(t, julyDuties(t))
	calc := result.Calculation

	// Fixed components from the era in force for July 2023.
	if !calc.BasicSalary.Equal(dec("3275")) ||
		!calc.HousingAllowance.Equal(dec("4000")) ||
		!calc.TransportAllowance.Equal(dec("1000")) {
		t.Errorf("unexpected fixed components: %v %v %v",
			calc.BasicSalary, calc.HousingAllowance, calc.TransportAllowance)
	}

	// Flight hours: turnaround 11.9167 + layover 6.9 + 7.1667 + asby 4.
	// Recurrent hours are compensated but never counted as flown.
	if !calc.TotalFlightHours.Equal(dec("29.9834")) {
		t.Errorf("expected 29.9834 flight hours, got %v", calc.TotalFlightHours)
	}

	// Duty pay: 595.84 + 345.00 + 358.34 + 200.00 + 200.00 = 1699.18.
	if !calc.DutyPay.Equal(dec("1699.18")) {
		t.Errorf("expected duty pay 1699.18, got %v", calc.DutyPay)
	}

	// One rest period: 23.6h, per diem 208.15.
	if !calc.TotalRestHours.Equal(dec("23.6")) {
		t.Errorf("expected 23.6 rest hours, got %v", calc.TotalRestHours)
	}
	if !calc.PerDiemPay.Equal(dec("208.15")) {
		t.Errorf("expected per diem 208.15, got %v", calc.PerDiemPay)
	}

	// Total: 3275 + 4000 + 1000 + 1699.18 + 208.15.
	if !calc.TotalSalary.Equal(dec("10182.33")) {
		t.Errorf("expected total salary 10182.33, got %v", calc.TotalSalary)
	}
}

func TestAggregate_SummaryStatistics(t *testing.T) {
	result := aggregateJuly(t, julyDuties(t))
	s := result.Calculation.Summary

	if s.DutyCount != 6 {
		t.Errorf("expected 6 duties counted, got %d", s.DutyCount)
	}
	if s.DutyCounts[engine.DutyLayover] != 2 || s.DutyCounts[engine.DutyTurnaround] != 1 ||
		s.DutyCounts[engine.DutyOff] != 1 {
		t.Errorf("unexpected duty counts: %v", s.DutyCounts)
	}
	if s.RestPeriodCount != 1 {
		t.Errorf("expected 1 rest period, got %d", s.RestPeriodCount)
	}
	if !s.AvgRestHours.Equal(dec("23.6")) {
		t.Errorf("expected avg rest 23.6, got %v", s.AvgRestHours)
	}
	// (11.9167 + 6.9 + 7.1667 + 4 + 4 + 0) / 6 = 5.6639
	if !s.AvgDutyHours.Equal(dec("5.6639")) {
		t.Errorf("expected avg duty hours 5.6639, got %v", s.AvgDutyHours)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	// Running twice on an identical snapshot yields identical values.
	duties := julyDuties(t)
	first := aggregateJuly(t, duties)
	second := aggregateJuly(t, duties)

	if !first.Calculation.TotalSalary.Equal(second.Calculation.TotalSalary) ||
		!first.Calculation.TotalFlightHours.Equal(second.Calculation.TotalFlightHours) ||
		!first.Calculation.TotalRestHours.Equal(second.Calculation.TotalRestHours) {
		t.Error("recomputation on the same snapshot diverged")
	}
	if len(first.RestPeriods) != len(second.RestPeriods) {
		t.Fatal("rest period counts diverged")
	}
	for i := range first.RestPeriods {
		a, b := first.RestPeriods[i], second.RestPeriods[i]
		if a.ID != b.ID || !a.RestHours.Equal(b.RestHours) || !a.PerDiemPay.Equal(b.PerDiemPay) {
			t.Errorf("rest period %d diverged", i)
		}
	}
}

// =============================================================================
// ERROR PROPAGATION - One bad record never sinks the month
// =============================================================================

func TestAggregate_BadRecordIsCollectedNotFatal(t *testing.T) {
	duties := julyDuties(t)
	bad := flightDuty(t, "bad", engine.DutyType("freighter"), "09:00", "15:00")
	bad.Date = day(2023, time.July, 5)
	duties = append(duties, bad)

	result := aggregateJuly(t, duties)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 record error, got %d", len(result.Errors))
	}
	if result.Errors[0].RecordID != "bad" {
		t.Errorf("error should be scoped to the bad record, got %s", result.Errors[0].RecordID)
	}
	if !errors.Is(&result.Errors[0], engine.ErrUnknownDutyType) {
		t.Errorf("expected ErrUnknownDutyType, got %v", result.Errors[0].Err)
	}

	// The remaining records still produced the full calculation.
	if result.Calculation == nil {
		t.Fatal("expected a partial calculation")
	}
	if result.Calculation.Summary.DutyCount != 6 {
		t.Errorf("valid records should still be counted, got %d", result.Calculation.Summary.DutyCount)
	}
	if len(result.RestPeriods) != 1 {
		t.Errorf("pairing should still run, got %d rest periods", len(result.RestPeriods))
	}
}

func TestAggregate_MissingRateEra_BatchFatal(t *testing.T) {
	_, err := newTestAggregator().Aggregate(engine.Input{
		UserID:   "crew-1",
		Position: engine.PositionCCM,
		Month:    1,
		Year:     2020, // before any published era
	})
	if !errors.Is(err, engine.ErrNoRates) {
		t.Fatalf("expected ErrNoRates, got %v", err)
	}
}

func TestAggregate_LookaheadInboundPairsButDoesNotCount(t *testing.T) {
	// GIVEN: outbound July 31 and its return August 2 in the lookahead
	duties := []engine.DutyRecord{
		layoverLeg(t, "out", day(2023, time.July, 31), "DXB-BEY", "14:00", "20:00"),
		layoverLeg(t, "in", day(2023, time.August, 2), "BEY-DXB", "08:00", "15:00"),
	}

	result := aggregateJuly(t, duties)

	// THEN: the pair produces a July rest period...
	if len(result.RestPeriods) != 1 {
		t.Fatalf("expected 1 rest period, got %d", len(result.RestPeriods))
	}
	// ...but the August record contributes nothing to July's totals.
	if result.Calculation.Summary.DutyCount != 1 {
		t.Errorf("expected only the July duty counted, got %d", result.Calculation.Summary.DutyCount)
	}
	if len(result.Duties) != 1 || result.Duties[0].ID != "out" {
		t.Errorf("only July duties belong in the result set, got %v", len(result.Duties))
	}
}

func TestAggregate_ExcessiveDurationWarningSurfaces(t *testing.T) {
	long := flightDuty(t, "long", engine.DutyLayover, "08:00", "09:00+1")
	long.Date = day(2023, time.July, 5)
	long.Sectors = []string{"DXB-JFK"}

	result := aggregateJuly(t, []engine.DutyRecord{long})

	if len(result.Warnings) != 1 || result.Warnings[0].Code != engine.WarnExcessiveDuration {
		t.Fatalf("expected one excessive_duration warning, got %v", result.Warnings)
	}
	if len(result.Duties) != 1 || !result.Duties[0].DutyHours.Equal(dec("25")) {
		t.Error("the 25h value must be preserved, not clamped")
	}
}

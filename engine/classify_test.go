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

func newTestClassifier() *engine.Classifier {
	return engine.NewClassifier(twoEraTable(), engine.ClassifierConfig{
		UnpaidRecurrentCodes: []string{"ELEARN", "CBT"},
	})
}

func flightDuty(t *testing.T, id string, dutyType engine.DutyType, report, debrief string) engine.DutyRecord {
	t.Helper()
	rep, _, err := engine.ParseTime(report)
	if err != nil {
		t.Fatalf("bad report time %q: %v", report, err)
	}
	deb, marked, err := engine.ParseTime(debrief)
	if err != nil {
		t.Fatalf("bad debrief time %q: %v", debrief, err)
	}
	return engine.DutyRecord{
		ID:                id,
		UserID:            "crew-1",
		Date:              time.Date(2023, time.July, 10, 0, 0, 0, 0, time.UTC),
		DutyType:          dutyType,
		ReportTime:        rep,
		DebriefTime:       deb,
		IsCrossDay:        marked,
		HasCrossDayMarker: marked,
		Month:             7,
		Year:              2023,
	}
}

// =============================================================================
// FLIGHT DUTIES
// =============================================================================

func TestClassify_Turnaround_HoursTimesHourlyRate(t *testing.T) {
	// GIVEN: 09:20 -> 21:15 same-day turnaround at hourly 50
	// THEN: 11.9167 hours, pay 595.84 (hours are priced as computed)
	c := newTestClassifier()

	got, err := c.Classify(flightDuty(t, "d1", engine.DutyTurnaround, "09:20", "21:15"), engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.DutyHours.Equal(dec("11.9167")) {
		t.Errorf("expected 11.9167 hours, got %v", got.DutyHours)
	}
	if !got.Pay.Equal(dec("595.84")) {
		t.Errorf("expected pay 595.84, got %v", got.Pay)
	}
}

func TestClassify_Layover_CrossDayMarker(t *testing.T) {
	// GIVEN: 23:30 -> 05:45 with explicit cross-day marker
	// THEN: exactly 6.25 hours at hourly 50 = 312.50
	c := newTestClassifier()

	got, err := c.Classify(flightDuty(t, "d2", engine.DutyLayover, "23:30", "05:45¹"), engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.DutyHours.Equal(dec("6.25")) {
		t.Errorf("expected 6.25 hours, got %v", got.DutyHours)
	}
	if !got.Pay.Equal(dec("312.5")) {
		t.Errorf("expected pay 312.50, got %v", got.Pay)
	}
}

func TestClassify_UsesRatesInForceForRecordMonth(t *testing.T) {
	// Editing a historical record must price it with the rates of its own
	// month, not the current era.
	c := newTestClassifier()

	rec := flightDuty(t, "d3", engine.DutyTurnaround, "08:00", "14:00")
	rec.Date = time.Date(2024, time.July, 3, 0, 0, 0, 0, time.UTC)
	rec.Month, rec.Year = 7, 2024 // the 2024-06 era (hourly 55) applies

	got, err := c.Classify(rec, engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.Equal(dec("330")) {
		t.Errorf("expected 6h * 55 = 330, got %v", got.Pay)
	}
}

func TestClassify_ExcessiveDuration_WarnsButPreserves(t *testing.T) {
	// GIVEN: a duty spanning 25 hours (explicit cross-day)
	// THEN: a warning is emitted and hours stay 25, not clamped to 24
	c := newTestClassifier()

	got, err := c.Classify(flightDuty(t, "d4", engine.DutyLayover, "08:00", "09:00+1"), engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.DutyHours.Equal(dec("25")) {
		t.Errorf("expected 25 hours preserved, got %v", got.DutyHours)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Code != engine.WarnExcessiveDuration {
		t.Errorf("expected one excessive_duration warning, got %v", got.Warnings)
	}
}

// =============================================================================
// FIXED-HOUR DUTIES
// =============================================================================

func TestClassify_ASBY_FixedHoursRegardlessOfSpan(t *testing.T) {
	// GIVEN: ASBY with an 8-hour actual span, hourly 50, fixed 4 hours
	// THEN: pay is 200 regardless of the span
	c := newTestClassifier()

	got, err := c.Classify(flightDuty(t, "d5", engine.DutyASBY, "06:00", "14:00"), engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.Equal(dec("200")) {
		t.Errorf("expected pay 200, got %v", got.Pay)
	}
	if !got.DutyHours.Equal(dec("4")) {
		t.Errorf("expected the fixed 4 compensable hours, got %v", got.DutyHours)
	}
}

func TestClassify_Recurrent_PaidAndUnpaidVariants(t *testing.T) {
	c := newTestClassifier()

	paid := flightDuty(t, "d6", engine.DutyRecurrent, "09:00", "13:00")
	paid.RosterCode = "RTC1"
	got, err := c.Classify(paid, engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.Equal(dec("200")) {
		t.Errorf("expected 4h * 50 = 200, got %v", got.Pay)
	}

	// Unpaid variant keyword: pay zero, hours still recorded for reporting.
	unpaid := flightDuty(t, "d7", engine.DutyRecurrent, "09:00", "13:00")
	unpaid.RosterCode = "ELEARN-SEP"
	got, err = c.Classify(unpaid, engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.IsZero() {
		t.Errorf("unpaid recurrent should pay zero, got %v", got.Pay)
	}
	if !got.DutyHours.Equal(dec("4")) {
		t.Errorf("unpaid recurrent should keep 4 hours, got %v", got.DutyHours)
	}
}

func TestClassify_BusinessPromotion_DistinctFixedHours(t *testing.T) {
	c := newTestClassifier()

	got, err := c.Classify(flightDuty(t, "d8", engine.DutyBusinessPromo, "10:00", "18:00"), engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.Equal(dec("400")) {
		t.Errorf("expected 8h * 50 = 400, got %v", got.Pay)
	}
}

// =============================================================================
// UNPAID DUTIES
// =============================================================================

func TestClassify_HomeStandbyAndOff(t *testing.T) {
	c := newTestClassifier()

	sby := flightDuty(t, "d9", engine.DutySBY, "06:00", "14:00")
	sby.DutyHours = dec("8")
	got, err := c.Classify(sby, engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.IsZero() {
		t.Errorf("home standby should pay zero, got %v", got.Pay)
	}
	if !got.DutyHours.Equal(dec("8")) {
		t.Errorf("recorded standby hours should pass through, got %v", got.DutyHours)
	}

	off := engine.DutyRecord{ID: "d10", DutyType: engine.DutyOff, Month: 7, Year: 2023,
		Date: time.Date(2023, time.July, 12, 0, 0, 0, 0, time.UTC)}
	got, err = c.Classify(off, engine.PositionCCM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Pay.IsZero() || !got.DutyHours.IsZero() {
		t.Errorf("day off should be all zero, got hours %v pay %v", got.DutyHours, got.Pay)
	}
}

// =============================================================================
// DISPATCH EXHAUSTIVENESS AND FAILURE MODES
// =============================================================================

func TestClassify_EveryDutyTypeHasAStrategy(t *testing.T) {
	// A newly-added duty type must not fall through to UnknownDutyType.
	c := newTestClassifier()
	for _, dt := range engine.DutyTypes() {
		rec := flightDuty(t, "d-"+string(dt), dt, "09:00", "15:00")
		if _, err := c.Classify(rec, engine.PositionCCM); errors.Is(err, engine.ErrUnknownDutyType) {
			t.Errorf("duty type %q has no pay strategy", dt)
		}
	}
}

func TestClassify_UnknownDutyType_Fatal(t *testing.T) {
	c := newTestClassifier()

	rec := flightDuty(t, "d11", engine.DutyType("charter"), "09:00", "15:00")
	_, err := c.Classify(rec, engine.PositionCCM)
	if !errors.Is(err, engine.ErrUnknownDutyType) {
		t.Fatalf("expected ErrUnknownDutyType, got %v", err)
	}

	var unknown *engine.UnknownDutyTypeError
	if !errors.As(err, &unknown) || unknown.Tag != "charter" {
		t.Errorf("error should carry the raw tag, got %v", err)
	}
}

func TestClassify_NoRateEra_Fatal(t *testing.T) {
	c := newTestClassifier()

	rec := flightDuty(t, "d12", engine.DutyTurnaround, "09:00", "15:00")
	rec.Month, rec.Year = 1, 2020 // before any published era
	_, err := c.Classify(rec, engine.PositionCCM)
	if !errors.Is(err, engine.ErrNoRates) {
		t.Fatalf("expected ErrNoRates, got %v", err)
	}
}

/*
Package engine computes a flight crew member's monthly salary from duty
records.

PURPOSE:
  This package contains the calculation core: duty-time arithmetic with
  cross-day handling, per-duty-type pay classification, layover rest-period
  pairing across legs and month boundaries, date-versioned rate lookup,
  and monthly aggregation.

KEY CONCEPTS IN THIS FILE (types.go):
  - DutyRecord: One roster line (flight, standby, training, ...)
  - DutyType: Tagged variant dispatched to its own pay strategy
  - Position: Crew rank; every rate lookup is position-specific
  - LayoverRestPeriod: Derived outbound/inbound pairing with per diem
  - MonthlyCalculation: The aggregate output, one per (user, month, year)

DESIGN PRINCIPLES:
  1. Purity: Given identical inputs the engine always produces identical
     outputs; no I/O, no clocks, no hidden globals.
  2. Precision: decimal.Decimal for all hours and money; no float math.
  3. Wholesale recomputation: Monthly aggregates are always rebuilt from
     the full duty set, never patched, so they cannot drift.
  4. Data-driven rates: Every pay figure resolves through the injected
     RateTable; the engine holds no airline constants.

SEE ALSO:
  - time.go: TimeValue and duty-time arithmetic
  - rates.go: Date-versioned rate lookup
  - classify.go: Per-duty-type pay strategies
  - layover.go: Outbound/inbound pairing and rest periods
  - aggregate.go: Monthly roll-up
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSITION - Crew rank
// =============================================================================

type Position string

const (
	PositionCCM  Position = "CCM"  // Cabin Crew Member
	PositionSCCM Position = "SCCM" // Senior Cabin Crew Member
)

// Positions returns all known crew positions.
func Positions() []Position {
	return []Position{PositionCCM, PositionSCCM}
}

// ParsePosition validates a position string.
func ParsePosition(s string) (Position, bool) {
	for _, p := range Positions() {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// =============================================================================
// DUTY TYPE - Tagged variant, one pay strategy each
// =============================================================================

type DutyType string

const (
	DutyTurnaround    DutyType = "turnaround"
	DutyLayover       DutyType = "layover"
	DutyASBY          DutyType = "asby" // airport standby: paid, fixed hours
	DutySBY           DutyType = "sby"  // home standby: unpaid
	DutyOff           DutyType = "off"
	DutyRecurrent     DutyType = "recurrent"
	DutyBusinessPromo DutyType = "business_promotion"
)

// DutyTypes returns every duty type the classifier must handle.
// classify.go's dispatch table is checked against this list in tests,
// so a newly-added type cannot silently fall through.
func DutyTypes() []DutyType {
	return []DutyType{
		DutyTurnaround, DutyLayover, DutyASBY, DutySBY,
		DutyOff, DutyRecurrent, DutyBusinessPromo,
	}
}

// ParseDutyType validates a duty tag. Unknown tags are an error for the
// caller to surface; they are never defaulted.
func ParseDutyType(s string) (DutyType, error) {
	for _, dt := range DutyTypes() {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", &UnknownDutyTypeError{Tag: s}
}

// IsFlightBearing reports whether the type represents actual flying, for
// which non-positive duty hours are a fatal error.
func (dt DutyType) IsFlightBearing() bool {
	return dt == DutyTurnaround || dt == DutyLayover
}

// CountsTowardFlightHours reports whether the type's hours belong in the
// monthly flight-hours total. Recurrent training and business promotion
// are compensated but not counted as flown hours; days off never count.
func (dt DutyType) CountsTowardFlightHours() bool {
	switch dt {
	case DutyTurnaround, DutyLayover, DutyASBY, DutySBY:
		return true
	default:
		return false
	}
}

// =============================================================================
// DATA SOURCE - Where a duty record came from
// =============================================================================

type DataSource string

const (
	SourceRoster DataSource = "roster"
	SourceManual DataSource = "manual"
	SourceEdited DataSource = "edited"
)

// =============================================================================
// DUTY RECORD - One roster line
// =============================================================================

// DutyRecord is a single duty as entered from a roster or by hand.
// DutyHours and Pay are computed by the classifier; incoming values for
// flight-bearing types are recomputed, not trusted.
type DutyRecord struct {
	ID            string
	UserID        string
	Date          time.Time // calendar day of the report, home-base local
	FlightNumbers []string
	Sectors       []string // origin-first, e.g. "DXB-VIE"
	DutyType      DutyType

	ReportTime  TimeValue
	DebriefTime TimeValue
	// IsCrossDay mirrors the roster's cross-day marker. It is only
	// authoritative when HasCrossDayMarker is set; otherwise the
	// classifier infers cross-day (see DetectCrossDay).
	IsCrossDay        bool
	HasCrossDayMarker bool

	// RosterCode is the raw duty code from the roster line, kept for
	// keyword checks such as unpaid recurrent variants.
	RosterCode string

	DutyHours decimal.Decimal
	Pay       decimal.Decimal

	DataSource DataSource
	Month      int
	Year       int

	// Original holds the pre-edit values, captured once on the first
	// edit so a revert is always possible. Nil for unedited records.
	Original *DutyRecord
}

// ExplicitCrossDay returns the explicit cross-day marker for the
// three-way DetectCrossDay decision: nil when the roster carried none.
func (d *DutyRecord) ExplicitCrossDay() *bool {
	if !d.HasCrossDayMarker {
		return nil
	}
	v := d.IsCrossDay
	return &v
}

// ApplyEdit replaces the record's editable fields with those of edited,
// preserving the pre-edit snapshot exactly once.
func (d *DutyRecord) ApplyEdit(edited DutyRecord) {
	if d.Original == nil {
		snapshot := *d
		snapshot.Original = nil
		d.Original = &snapshot
	}
	original := d.Original
	id, userID := d.ID, d.UserID
	*d = edited
	d.ID, d.UserID = id, userID
	d.Original = original
	d.DataSource = SourceEdited
}

// Revert restores the pre-edit values. Reports false if never edited.
func (d *DutyRecord) Revert() bool {
	if d.Original == nil {
		return false
	}
	snapshot := *d.Original
	*d = snapshot
	return true
}

// =============================================================================
// LAYOVER REST PERIOD - Derived, regenerated on every duty change
// =============================================================================

// LayoverRestPeriod pairs an outbound layover leg with its inbound
// return. It exists only when a valid pairing with RestHours > 0 was
// found; it is never edited, only regenerated.
type LayoverRestPeriod struct {
	ID         string
	UserID     string
	OutboundID string
	InboundID  string
	Outstation string
	RestHours  decimal.Decimal
	PerDiemPay decimal.Decimal
	Month      int
	Year       int
}

// =============================================================================
// MONTHLY CALCULATION - The aggregate, always recomputed wholesale
// =============================================================================

// MonthlyCalculation is the salary roll-up for one (user, month, year).
type MonthlyCalculation struct {
	ID       string
	UserID   string
	Position Position
	Month    int
	Year     int

	// Fixed components from the rate era in force for the month.
	BasicSalary        decimal.Decimal
	HousingAllowance   decimal.Decimal
	TransportAllowance decimal.Decimal

	// TotalFlightHours excludes recurrent and business-promotion hours
	// (see DutyType.CountsTowardFlightHours); DutyPay includes their pay.
	TotalFlightHours decimal.Decimal
	DutyPay          decimal.Decimal

	TotalRestHours decimal.Decimal
	PerDiemPay     decimal.Decimal

	TotalSalary decimal.Decimal

	Summary Summary
}

// Summary carries the per-month reporting statistics.
type Summary struct {
	DutyCounts      map[DutyType]int
	DutyCount       int
	RestPeriodCount int
	AvgDutyHours    decimal.Decimal
	AvgRestHours    decimal.Decimal
}

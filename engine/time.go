/*
time.go - Time values and duty-time arithmetic

PURPOSE:
  Foundation for all duty-time math: clock values parsed from roster text,
  durations across midnight, and absolute timestamps for rest calculations.

KEY CONCEPTS IN THIS FILE:
  - TimeValue: A wall-clock time (hours:minutes) with enforced ranges
  - Cross-day: A debrief that lands on the calendar day after the report
  - Duration: Minutes between report and debrief, wrap-aware
  - Timestamp: date + TimeValue as an absolute instant

WHY ABSOLUTE TIMESTAMPS:
  Layover rest spans month boundaries and multi-day gaps. Day-count
  arithmetic (days*24 + hour delta) silently breaks at month ends;
  subtracting absolute instants is correct in every case, so rest
  calculations use Timestamp() exclusively.

CROSS-DAY DETECTION:
  One three-way decision, in one place:
    1. Explicit roster marker present -> marker wins, true or false
    2. No marker, debrief <= report   -> cross-day
    3. No marker, same-day span would exceed the duty ceiling -> cross-day
  The ceiling is supplied by the caller (see airline package); a wrong
  guess here is money, so the heuristic is never duplicated elsewhere.

SEE ALSO:
  - classify.go: Uses Duration/DetectCrossDay for duty hours
  - layover.go: Uses Timestamp for rest periods
*/
package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME VALUE - Wall-clock time with enforced invariants
// =============================================================================

const minutesPerDay = 24 * 60

// TimeValue is a wall-clock time of day. The zero value is midnight.
// Fields are unexported so 0<=hour<24 and 0<=minute<60 always hold;
// total minutes/hours are derived, never stored.
type TimeValue struct {
	hour   int
	minute int
}

// NewTimeValue builds a TimeValue, rejecting out-of-range components.
func NewTimeValue(hour, minute int) (TimeValue, error) {
	if hour < 0 || hour > 23 {
		return TimeValue{}, &ParseError{Input: fmt.Sprintf("%d:%d", hour, minute), Reason: "hour out of range"}
	}
	if minute < 0 || minute > 59 {
		return TimeValue{}, &ParseError{Input: fmt.Sprintf("%d:%d", hour, minute), Reason: "minute out of range"}
	}
	return TimeValue{hour: hour, minute: minute}, nil
}

// MustTimeValue is NewTimeValue that panics on invalid input.
// Use in tests and static preset data only.
func MustTimeValue(hour, minute int) TimeValue {
	tv, err := NewTimeValue(hour, minute)
	if err != nil {
		panic(err)
	}
	return tv
}

func (t TimeValue) Hour() int   { return t.hour }
func (t TimeValue) Minute() int { return t.minute }

// TotalMinutes returns minutes since midnight.
func (t TimeValue) TotalMinutes() int { return t.hour*60 + t.minute }

// TotalHours returns hours since midnight as a decimal (4 dp).
func (t TimeValue) TotalHours() decimal.Decimal {
	return HoursFromMinutes(t.TotalMinutes())
}

// String formats as "HH:MM". ParseTime(t.String()) round-trips.
func (t TimeValue) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

// MarshalJSON renders the value as "HH:MM".
func (t TimeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "HH:MM". Cross-day markers are rejected here:
// whether a duty crosses midnight is a property of the duty record,
// not of the clock value.
func (t *TimeValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tv, marked, err := ParseTime(s)
	if err != nil {
		return err
	}
	if marked {
		return &ParseError{Input: s, Reason: "unexpected cross-day marker"}
	}
	*t = tv
	return nil
}

func (t TimeValue) Equal(other TimeValue) bool {
	return t.hour == other.hour && t.minute == other.minute
}

func (t TimeValue) Before(other TimeValue) bool {
	return t.TotalMinutes() < other.TotalMinutes()
}

// =============================================================================
// PARSING - "HH:MM" with optional cross-day marker suffix
// =============================================================================

// Cross-day marker suffixes seen in roster exports. The superscript form
// is what the airline's PDF rosters carry; "+1" is the plain-text export.
var crossDayMarkers = []string{"+1", "¹", "⁺¹"}

// ParseTime parses "HH:MM" with an optional trailing cross-day marker.
// It returns the clock value and whether a marker was present.
func ParseTime(text string) (TimeValue, bool, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return TimeValue{}, false, &ParseError{Input: text, Reason: "empty time"}
	}

	marked := false
	for _, marker := range crossDayMarkers {
		if strings.HasSuffix(raw, marker) {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, marker))
			marked = true
			break
		}
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return TimeValue{}, false, &ParseError{Input: text, Reason: "expected HH:MM"}
	}

	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return TimeValue{}, false, &ParseError{Input: text, Reason: "hour is not numeric"}
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return TimeValue{}, false, &ParseError{Input: text, Reason: "minute is not numeric"}
	}

	tv, err := NewTimeValue(hour, minute)
	if err != nil {
		return TimeValue{}, false, err
	}
	return tv, marked, nil
}

// =============================================================================
// DURATION - Wrap-aware elapsed time between report and debrief
// =============================================================================

// DurationMinutes computes minutes from start to end. If endCrossDay is
// set, or end <= start on an assumed same-day sequence, a day is added
// (next-day wrap). A still-negative result is an InvalidSequenceError.
func DurationMinutes(start, end TimeValue, endCrossDay bool) (int, error) {
	minutes := end.TotalMinutes() - start.TotalMinutes()
	if endCrossDay || minutes <= 0 {
		minutes += minutesPerDay
	}
	if minutes <= 0 {
		return 0, &InvalidSequenceError{Report: start, Debrief: end, CrossDay: endCrossDay}
	}
	return minutes, nil
}

// Duration is DurationMinutes expressed in decimal hours (4 dp).
func Duration(start, end TimeValue, endCrossDay bool) (decimal.Decimal, error) {
	minutes, err := DurationMinutes(start, end, endCrossDay)
	if err != nil {
		return decimal.Zero, err
	}
	return HoursFromMinutes(minutes), nil
}

// =============================================================================
// ABSOLUTE TIMESTAMPS
// =============================================================================

// Timestamp combines a calendar date with a clock value into an absolute
// instant, advanced one day when crossDay is set. All times are local to
// the single home base, carried as UTC instants.
func Timestamp(date time.Time, tv TimeValue, crossDay bool) time.Time {
	t := time.Date(date.Year(), date.Month(), date.Day(), tv.hour, tv.minute, 0, 0, time.UTC)
	if crossDay {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// =============================================================================
// CROSS-DAY DETECTION - The single three-way decision
// =============================================================================

// DetectCrossDay decides whether the debrief falls on the next calendar
// day. An explicit marker (explicit != nil) always wins. Without one,
// cross-day is inferred when debrief <= report, or when the same-day span
// would exceed ceiling (missing-marker heuristic).
func DetectCrossDay(report, debrief TimeValue, explicit *bool, ceiling time.Duration) bool {
	if explicit != nil {
		return *explicit
	}
	if debrief.TotalMinutes() <= report.TotalMinutes() {
		return true
	}
	sameDay := debrief.TotalMinutes() - report.TotalMinutes()
	return time.Duration(sameDay)*time.Minute > ceiling
}

// =============================================================================
// ROUNDING CONVENTION
// =============================================================================
// One convention everywhere: hours at 4 dp, money at 2 dp, both half-up.
// No per-month correction constants exist anywhere in this engine.

var sixty = decimal.NewFromInt(60)

// HoursFromMinutes converts whole minutes to decimal hours (4 dp).
func HoursFromMinutes(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).DivRound(sixty, 4)
}

// RoundHours applies the engine-wide hour rounding (4 dp).
func RoundHours(h decimal.Decimal) decimal.Decimal { return h.Round(4) }

// RoundMoney applies the engine-wide money rounding (2 dp).
func RoundMoney(m decimal.Decimal) decimal.Decimal { return m.Round(2) }

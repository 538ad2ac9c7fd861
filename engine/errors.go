/*
errors.go - Centralized error types for the salary engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Callers branch with errors.Is/errors.As against the sentinels here.

ERROR CATEGORIES:
  1. Record-scoped fatal errors - abort ONE duty record, never the batch
     (ParseError, InvalidSequenceError, UnknownDutyTypeError,
     NonPositiveHoursError)
  2. Batch-scoped fatal errors - abort the whole calculation
     (NoRatesError: without a rate era nothing can be priced)
  3. Warnings - carried alongside results, never abort anything
     (excessive duration; the value is preserved, not clamped)

PROPAGATION POLICY:
  A single bad duty record must never sink the month. The aggregator wraps
  record failures in RecordError, collects them, and keeps going; the
  partial MonthlyCalculation is computed from the records that survived.

SEE ALSO:
  - time.go: Raises ParseError / InvalidSequenceError
  - classify.go: Raises UnknownDutyTypeError / NonPositiveHoursError
  - aggregate.go: Collects RecordError and Warning lists
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrParseTime is returned for malformed roster time text.
	ErrParseTime = errors.New("malformed time text")

	// ErrInvalidSequence is returned when a debrief does not resolve to
	// strictly after its report once cross-day handling is applied.
	ErrInvalidSequence = errors.New("debrief not after report")

	// ErrUnknownDutyType is returned for a duty tag the classifier has no
	// strategy for. Never silently defaulted.
	ErrUnknownDutyType = errors.New("unknown duty type")

	// ErrNonPositiveHours is returned when a flight-bearing duty resolves
	// to zero or negative duty hours.
	ErrNonPositiveHours = errors.New("non-positive duty hours")

	// ErrNoRates is returned when no rate era is in effect for a
	// position/month. Every pay figure must come from a published era.
	ErrNoRates = errors.New("no rate era in effect")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ParseError describes malformed time text from a roster or manual entry.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParseTime }

// InvalidSequenceError describes a report/debrief pair that stays
// non-positive even after cross-day adjustment.
type InvalidSequenceError struct {
	Report   TimeValue
	Debrief  TimeValue
	CrossDay bool
}

func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid sequence: report %s, debrief %s (cross-day=%t)",
		e.Report, e.Debrief, e.CrossDay)
}

func (e *InvalidSequenceError) Unwrap() error { return ErrInvalidSequence }

// UnknownDutyTypeError records the unrecognized tag verbatim.
type UnknownDutyTypeError struct {
	Tag string
}

func (e *UnknownDutyTypeError) Error() string {
	return fmt.Sprintf("unknown duty type %q", e.Tag)
}

func (e *UnknownDutyTypeError) Unwrap() error { return ErrUnknownDutyType }

// NonPositiveHoursError describes a flight-bearing duty with hours <= 0.
type NonPositiveHoursError struct {
	DutyType DutyType
	Hours    string
}

func (e *NonPositiveHoursError) Error() string {
	return fmt.Sprintf("%s duty resolved to %s hours", e.DutyType, e.Hours)
}

func (e *NonPositiveHoursError) Unwrap() error { return ErrNonPositiveHours }

// NoRatesError identifies the missing era.
type NoRatesError struct {
	Position Position
	Year     int
	Month    int
}

func (e *NoRatesError) Error() string {
	return fmt.Sprintf("no rate era in effect for %s at %04d-%02d", e.Position, e.Year, e.Month)
}

func (e *NoRatesError) Unwrap() error { return ErrNoRates }

// =============================================================================
// RECORD SCOPING - One bad record never aborts the batch
// =============================================================================

// RecordError binds a fatal error to the single duty record it aborted.
type RecordError struct {
	RecordID string
	Date     time.Time
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("duty %s (%s): %v", e.RecordID, e.Date.Format("2006-01-02"), e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordScoped reports whether err aborts only one record (as opposed
// to the whole batch, like a missing rate era).
func IsRecordScoped(err error) bool {
	return errors.Is(err, ErrParseTime) ||
		errors.Is(err, ErrInvalidSequence) ||
		errors.Is(err, ErrUnknownDutyType) ||
		errors.Is(err, ErrNonPositiveHours)
}

// =============================================================================
// WARNINGS - Informational, never abort
// =============================================================================

type WarningCode string

const (
	// WarnExcessiveDuration: duty span exceeded 24h. Legitimate spans can
	// approach 24h, so the value is preserved, never clamped.
	WarnExcessiveDuration WarningCode = "excessive_duration"
)

// Warning is a non-fatal finding attached to a duty record.
type Warning struct {
	RecordID string
	Code     WarningCode
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (duty %s)", w.Code, w.Message, w.RecordID)
}

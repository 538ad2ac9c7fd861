/*
store.go - Persistence interfaces for duty records and derived output

PURPOSE:
  Defines what the engine needs from storage without binding to a
  database. The engine itself never touches these - orchestration
  (api package) loads duties, runs the aggregator, and writes the
  result back through these interfaces.

WRITE DISCIPLINE:
  - Duty records are the source of truth: normal insert/update/delete.
  - Derived output (rest periods, monthly calculations) is replaced
    wholesale per (user, month, year) on every recalculation. There is
    no partial update of derived rows, so ReplaceMonth is atomic.
  - Rate eras are append-only: a correction is a new era with a later
    effective date, never an update in place.

SEE ALSO:
  - store/memory.go: In-memory implementation for testing
  - ../store/sqlite/sqlite.go: SQLite implementation
*/
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get* operations for missing rows.
var ErrNotFound = errors.New("not found")

// ErrAlreadyPublished is returned when a rate era for the same position
// and effective month already exists. Eras are immutable; corrections
// ship as a new effective month.
var ErrAlreadyPublished = errors.New("rate era already published")

// DutyStore persists duty records.
type DutyStore interface {
	// SaveDuty inserts or replaces a duty record by ID.
	SaveDuty(ctx context.Context, duty DutyRecord) error

	// SaveDuties inserts or replaces a batch atomically.
	// Either all succeed or none do.
	SaveDuties(ctx context.Context, duties []DutyRecord) error

	// ReplaceDuties atomically swaps a user's whole month of duties
	// for the given batch. Used for roster re-imports.
	ReplaceDuties(ctx context.Context, userID string, year, month int, duties []DutyRecord) error

	// GetDuty returns one duty record, ErrNotFound if missing.
	GetDuty(ctx context.Context, id string) (DutyRecord, error)

	// ListDuties returns a user's duties for one calendar month,
	// ordered by date then report time.
	ListDuties(ctx context.Context, userID string, year, month int) ([]DutyRecord, error)

	// ListDutiesInRange returns a user's duties with from <= Date <= to,
	// same ordering. Used to load the layover lookahead window.
	ListDutiesInRange(ctx context.Context, userID string, from, to time.Time) ([]DutyRecord, error)

	// DeleteDuty removes a duty record, ErrNotFound if missing.
	DeleteDuty(ctx context.Context, id string) error
}

// CalculationStore persists derived monthly output.
type CalculationStore interface {
	// ReplaceMonth atomically swaps in the recalculated month: the
	// monthly calculation is upserted and the month's rest periods are
	// replaced with the given set.
	ReplaceMonth(ctx context.Context, calc MonthlyCalculation, rests []LayoverRestPeriod) error

	// GetCalculation returns the stored roll-up, ErrNotFound if the
	// month was never calculated.
	GetCalculation(ctx context.Context, userID string, year, month int) (MonthlyCalculation, error)

	// ListCalculations returns all stored roll-ups for a user, newest
	// month first.
	ListCalculations(ctx context.Context, userID string) ([]MonthlyCalculation, error)

	// ListRestPeriods returns the month's stored rest periods.
	ListRestPeriods(ctx context.Context, userID string, year, month int) ([]LayoverRestPeriod, error)
}

// RateStore persists published rate eras.
type RateStore interface {
	// PublishRateEra appends an era. Append-only; ErrAlreadyPublished
	// if the position/effective-month pair exists.
	PublishRateEra(ctx context.Context, era RateEra) error

	// ListRateEras returns every published era, ordered by position
	// then effective date.
	ListRateEras(ctx context.Context) ([]RateEra, error)
}

// Store bundles all persistence the salary API needs.
type Store interface {
	DutyStore
	CalculationStore
	RateStore
}

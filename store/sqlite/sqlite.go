/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements all persistence interfaces (DutyStore, CalculationStore,
  RateStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  duties:               Source-of-truth duty records, one row per roster line
  rest_periods:         Derived layover rest, replaced wholesale per month
  monthly_calculations: Derived salary roll-up, upserted per (user, month)
  rate_eras:            Append-only rate history, JSON-encoded amounts

DERIVED-DATA DISCIPLINE:
  rest_periods and monthly_calculations rows are never edited in place.
  ReplaceMonth swaps the whole month inside one transaction, so readers
  never observe a half-recalculated month.

APPEND-ONLY RATES:
  rate_eras has no UPDATE or DELETE statements. A correction is a new
  era with a later effective date. UNIQUE(position, effective_from)
  rejects republishing the same month.

DECIMAL COLUMNS:
  Money and hours are stored as TEXT in decimal string form, never as
  REAL. Salary amounts must survive storage bit-exactly.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/skywage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/skywage/salary-engine/engine"
	"github.com/skywage/salary-engine/factory"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// Store implements engine.Store using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rates *factory.RateFactory
}

var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, rates: factory.NewRateFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Duty records (source of truth)
	CREATE TABLE IF NOT EXISTS duties (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		flight_numbers_json TEXT NOT NULL,
		sectors_json TEXT NOT NULL,
		duty_type TEXT NOT NULL,
		report_time TEXT NOT NULL,
		debrief_time TEXT NOT NULL,
		is_cross_day BOOLEAN NOT NULL DEFAULT FALSE,
		has_cross_day_marker BOOLEAN NOT NULL DEFAULT FALSE,
		roster_code TEXT NOT NULL DEFAULT '',
		duty_hours TEXT NOT NULL,
		pay TEXT NOT NULL,
		data_source TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		original_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Month listing (hot path: every recalculation)
	CREATE INDEX IF NOT EXISTS idx_duties_user_month
		ON duties(user_id, year, month);

	-- Lookahead window queries
	CREATE INDEX IF NOT EXISTS idx_duties_user_date
		ON duties(user_id, date);

	-- Layover rest periods (derived, replaced wholesale)
	CREATE TABLE IF NOT EXISTS rest_periods (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		outbound_id TEXT NOT NULL,
		inbound_id TEXT NOT NULL,
		outstation TEXT NOT NULL,
		rest_hours TEXT NOT NULL,
		per_diem_pay TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rest_periods_user_month
		ON rest_periods(user_id, year, month);

	-- Monthly calculations (derived, upserted per user-month)
	CREATE TABLE IF NOT EXISTS monthly_calculations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		position TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		basic_salary TEXT NOT NULL,
		housing_allowance TEXT NOT NULL,
		transport_allowance TEXT NOT NULL,
		total_flight_hours TEXT NOT NULL,
		duty_pay TEXT NOT NULL,
		total_rest_hours TEXT NOT NULL,
		per_diem_pay TEXT NOT NULL,
		total_salary TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_user
		ON monthly_calculations(user_id, year DESC, month DESC);

	-- Rate eras (append-only history)
	CREATE TABLE IF NOT EXISTS rate_eras (
		position TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		era_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(position, effective_from)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DUTY STORE
// =============================================================================

const dutyColumns = `id, user_id, date, flight_numbers_json, sectors_json,
	duty_type, report_time, debrief_time, is_cross_day, has_cross_day_marker,
	roster_code, duty_hours, pay, data_source, month, year, original_json`

func (s *Store) SaveDuty(ctx context.Context, duty engine.DutyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDuty(ctx, s.db, duty)
}

func (s *Store) SaveDuties(ctx context.Context, duties []engine.DutyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, duty := range duties {
		if err := s.saveDuty(ctx, tx, duty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ReplaceDuties(ctx context.Context, userID string, year, month int, duties []engine.DutyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM duties WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month)
	if err != nil {
		return fmt.Errorf("failed to clear month: %w", err)
	}
	for _, duty := range duties {
		if err := s.saveDuty(ctx, tx, duty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// execer lets saveDuty run against both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) saveDuty(ctx context.Context, db execer, duty engine.DutyRecord) error {
	flightNumbers, err := json.Marshal(duty.FlightNumbers)
	if err != nil {
		return fmt.Errorf("failed to marshal flight numbers: %w", err)
	}
	sectors, err := json.Marshal(duty.Sectors)
	if err != nil {
		return fmt.Errorf("failed to marshal sectors: %w", err)
	}

	var original sql.NullString
	if duty.Original != nil {
		data, err := json.Marshal(duty.Original)
		if err != nil {
			return fmt.Errorf("failed to marshal pre-edit snapshot: %w", err)
		}
		original = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
		INSERT INTO duties (`+dutyColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			date = excluded.date,
			flight_numbers_json = excluded.flight_numbers_json,
			sectors_json = excluded.sectors_json,
			duty_type = excluded.duty_type,
			report_time = excluded.report_time,
			debrief_time = excluded.debrief_time,
			is_cross_day = excluded.is_cross_day,
			has_cross_day_marker = excluded.has_cross_day_marker,
			roster_code = excluded.roster_code,
			duty_hours = excluded.duty_hours,
			pay = excluded.pay,
			data_source = excluded.data_source,
			month = excluded.month,
			year = excluded.year,
			original_json = excluded.original_json,
			updated_at = excluded.updated_at`,
		duty.ID, duty.UserID, duty.Date.UTC().Format("2006-01-02"),
		string(flightNumbers), string(sectors), string(duty.DutyType),
		duty.ReportTime.String(), duty.DebriefTime.String(),
		duty.IsCrossDay, duty.HasCrossDayMarker, duty.RosterCode,
		duty.DutyHours.String(), duty.Pay.String(), string(duty.DataSource),
		duty.Month, duty.Year, original, now, now)
	if err != nil {
		return fmt.Errorf("failed to save duty %s: %w", duty.ID, err)
	}
	return nil
}

func (s *Store) GetDuty(ctx context.Context, id string) (engine.DutyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+dutyColumns+` FROM duties WHERE id = ?`, id)
	duty, err := scanDuty(row)
	if err == sql.ErrNoRows {
		return engine.DutyRecord{}, engine.ErrNotFound
	}
	return duty, err
}

func (s *Store) ListDuties(ctx context.Context, userID string, year, month int) ([]engine.DutyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dutyColumns+` FROM duties
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY date, report_time`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list duties: %w", err)
	}
	defer rows.Close()
	return collectDuties(rows)
}

func (s *Store) ListDutiesInRange(ctx context.Context, userID string, from, to time.Time) ([]engine.DutyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dutyColumns+` FROM duties
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, report_time`,
		userID, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list duties in range: %w", err)
	}
	defer rows.Close()
	return collectDuties(rows)
}

func (s *Store) DeleteDuty(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM duties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete duty %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDuty(row scanner) (engine.DutyRecord, error) {
	var (
		duty                    engine.DutyRecord
		date                    string
		flightNumbers, sectors  string
		dutyType, dataSource    string
		reportTime, debriefTime string
		dutyHours, pay          string
		original                sql.NullString
	)
	err := row.Scan(&duty.ID, &duty.UserID, &date, &flightNumbers, &sectors,
		&dutyType, &reportTime, &debriefTime, &duty.IsCrossDay,
		&duty.HasCrossDayMarker, &duty.RosterCode, &dutyHours, &pay,
		&dataSource, &duty.Month, &duty.Year, &original)
	if err != nil {
		return engine.DutyRecord{}, err
	}

	if duty.Date, err = time.Parse("2006-01-02", date); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt duty date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(flightNumbers), &duty.FlightNumbers); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt flight numbers: %w", err)
	}
	if err := json.Unmarshal([]byte(sectors), &duty.Sectors); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt sectors: %w", err)
	}
	duty.DutyType = engine.DutyType(dutyType)
	duty.DataSource = engine.DataSource(dataSource)
	if duty.ReportTime, _, err = engine.ParseTime(reportTime); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt report time: %w", err)
	}
	if duty.DebriefTime, _, err = engine.ParseTime(debriefTime); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt debrief time: %w", err)
	}
	if duty.DutyHours, err = parseDecimal(dutyHours); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt duty hours: %w", err)
	}
	if duty.Pay, err = parseDecimal(pay); err != nil {
		return engine.DutyRecord{}, fmt.Errorf("corrupt pay: %w", err)
	}
	if original.Valid {
		var snapshot engine.DutyRecord
		if err := json.Unmarshal([]byte(original.String), &snapshot); err != nil {
			return engine.DutyRecord{}, fmt.Errorf("corrupt pre-edit snapshot: %w", err)
		}
		duty.Original = &snapshot
	}
	return duty, nil
}

func collectDuties(rows *sql.Rows) ([]engine.DutyRecord, error) {
	var duties []engine.DutyRecord
	for rows.Next() {
		duty, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		duties = append(duties, duty)
	}
	return duties, rows.Err()
}

// =============================================================================
// CALCULATION STORE
// =============================================================================

func (s *Store) ReplaceMonth(ctx context.Context, calc engine.MonthlyCalculation, rests []engine.LayoverRestPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	summary, err := json.Marshal(calc.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO monthly_calculations (
			id, user_id, position, month, year,
			basic_salary, housing_allowance, transport_allowance,
			total_flight_hours, duty_pay, total_rest_hours, per_diem_pay,
			total_salary, summary_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year, month) DO UPDATE SET
			id = excluded.id,
			position = excluded.position,
			basic_salary = excluded.basic_salary,
			housing_allowance = excluded.housing_allowance,
			transport_allowance = excluded.transport_allowance,
			total_flight_hours = excluded.total_flight_hours,
			duty_pay = excluded.duty_pay,
			total_rest_hours = excluded.total_rest_hours,
			per_diem_pay = excluded.per_diem_pay,
			total_salary = excluded.total_salary,
			summary_json = excluded.summary_json,
			updated_at = excluded.updated_at`,
		calc.ID, calc.UserID, string(calc.Position), calc.Month, calc.Year,
		calc.BasicSalary.String(), calc.HousingAllowance.String(),
		calc.TransportAllowance.String(), calc.TotalFlightHours.String(),
		calc.DutyPay.String(), calc.TotalRestHours.String(),
		calc.PerDiemPay.String(), calc.TotalSalary.String(),
		string(summary), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert calculation %s: %w", calc.ID, err)
	}

	// Rest periods are derived: the month's whole set is swapped.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM rest_periods WHERE user_id = ? AND year = ? AND month = ?`,
		calc.UserID, calc.Year, calc.Month)
	if err != nil {
		return fmt.Errorf("failed to clear rest periods: %w", err)
	}
	for _, rest := range rests {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rest_periods (
				id, user_id, outbound_id, inbound_id, outstation,
				rest_hours, per_diem_pay, month, year, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rest.ID, rest.UserID, rest.OutboundID, rest.InboundID,
			rest.Outstation, rest.RestHours.String(), rest.PerDiemPay.String(),
			rest.Month, rest.Year, now)
		if err != nil {
			return fmt.Errorf("failed to insert rest period %s: %w", rest.ID, err)
		}
	}

	return tx.Commit()
}

const calcColumns = `id, user_id, position, month, year,
	basic_salary, housing_allowance, transport_allowance,
	total_flight_hours, duty_pay, total_rest_hours, per_diem_pay,
	total_salary, summary_json`

func (s *Store) GetCalculation(ctx context.Context, userID string, year, month int) (engine.MonthlyCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+calcColumns+` FROM monthly_calculations
		WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month)
	calc, err := scanCalculation(row)
	if err == sql.ErrNoRows {
		return engine.MonthlyCalculation{}, engine.ErrNotFound
	}
	return calc, err
}

func (s *Store) ListCalculations(ctx context.Context, userID string) ([]engine.MonthlyCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+calcColumns+` FROM monthly_calculations
		WHERE user_id = ?
		ORDER BY year DESC, month DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var calcs []engine.MonthlyCalculation
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	return calcs, rows.Err()
}

func scanCalculation(row scanner) (engine.MonthlyCalculation, error) {
	var (
		calc     engine.MonthlyCalculation
		position string
		summary  string
		decimals [8]string
	)
	err := row.Scan(&calc.ID, &calc.UserID, &position, &calc.Month, &calc.Year,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3], &decimals[4],
		&decimals[5], &decimals[6], &decimals[7], &summary)
	if err != nil {
		return engine.MonthlyCalculation{}, err
	}

	calc.Position = engine.Position(position)
	fields := []struct {
		name string
		dst  *decimal.Decimal
		raw  string
	}{
		{"basic salary", &calc.BasicSalary, decimals[0]},
		{"housing allowance", &calc.HousingAllowance, decimals[1]},
		{"transport allowance", &calc.TransportAllowance, decimals[2]},
		{"total flight hours", &calc.TotalFlightHours, decimals[3]},
		{"duty pay", &calc.DutyPay, decimals[4]},
		{"total rest hours", &calc.TotalRestHours, decimals[5]},
		{"per diem pay", &calc.PerDiemPay, decimals[6]},
		{"total salary", &calc.TotalSalary, decimals[7]},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(f.raw); err != nil {
			return engine.MonthlyCalculation{}, fmt.Errorf("corrupt %s: %w", f.name, err)
		}
	}
	if err := json.Unmarshal([]byte(summary), &calc.Summary); err != nil {
		return engine.MonthlyCalculation{}, fmt.Errorf("corrupt summary: %w", err)
	}
	return calc, nil
}

func (s *Store) ListRestPeriods(ctx context.Context, userID string, year, month int) ([]engine.LayoverRestPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, outbound_id, inbound_id, outstation,
			rest_hours, per_diem_pay, month, year
		FROM rest_periods
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY id`, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list rest periods: %w", err)
	}
	defer rows.Close()

	var rests []engine.LayoverRestPeriod
	for rows.Next() {
		var (
			rest             engine.LayoverRestPeriod
			restHours, diems string
		)
		err := rows.Scan(&rest.ID, &rest.UserID, &rest.OutboundID,
			&rest.InboundID, &rest.Outstation, &restHours, &diems,
			&rest.Month, &rest.Year)
		if err != nil {
			return nil, err
		}
		if rest.RestHours, err = parseDecimal(restHours); err != nil {
			return nil, fmt.Errorf("corrupt rest hours: %w", err)
		}
		if rest.PerDiemPay, err = parseDecimal(diems); err != nil {
			return nil, fmt.Errorf("corrupt per diem pay: %w", err)
		}
		rests = append(rests, rest)
	}
	return rests, rows.Err()
}

// =============================================================================
// RATE STORE
// =============================================================================

func (s *Store) PublishRateEra(ctx context.Context, era engine.RateEra) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.rates.MarshalEra(era)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_eras (position, effective_from, era_json, created_at)
		VALUES (?, ?, ?, ?)`,
		string(era.Position), era.EffectiveFrom.UTC().Format("2006-01"),
		data, time.Now().UTC().Format(time.RFC3339))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return engine.ErrAlreadyPublished
	}
	if err != nil {
		return fmt.Errorf("failed to publish rate era: %w", err)
	}
	return nil
}

func (s *Store) ListRateEras(ctx context.Context) ([]engine.RateEra, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT era_json FROM rate_eras
		ORDER BY position, effective_from`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate eras: %w", err)
	}
	defer rows.Close()

	var eras []engine.RateEra
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		era, err := s.rates.ParseEra(data)
		if err != nil {
			return nil, fmt.Errorf("corrupt rate era: %w", err)
		}
		eras = append(eras, era)
	}
	return eras, rows.Err()
}

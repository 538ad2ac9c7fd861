/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the shared validator before touching domain logic.

TIME FIELDS:
  report_time/debrief_time accept "HH:MM" with an optional cross-day
  marker suffix ("+1" or the roster superscript). A marked debrief sets
  the record's explicit cross-day flag; unmarked times leave the
  inference to the classifier.

MONEY FIELDS:
  All amounts and hour totals are JSON strings in decimal form. Clients
  must not receive float-rounded salary numbers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RateEraJSON used for rate publishing
*/
package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skywage/salary-engine/engine"
)

// =============================================================================
// DUTY TYPES
// =============================================================================

// DutyRequest is the request body for creating or updating a duty.
type DutyRequest struct {
	UserID        string   `json:"user_id" validate:"required"`
	Position      string   `json:"position" validate:"required,oneof=CCM SCCM"`
	Date          string   `json:"date" validate:"required,datetime=2006-01-02"`
	FlightNumbers []string `json:"flight_numbers,omitempty"`
	Sectors       []string `json:"sectors,omitempty"`
	DutyType      string   `json:"duty_type" validate:"required"`
	ReportTime    string   `json:"report_time" validate:"required"`
	DebriefTime   string   `json:"debrief_time" validate:"required"`
	RosterCode    string   `json:"roster_code,omitempty"`
	DataSource    string   `json:"data_source,omitempty" validate:"omitempty,oneof=roster manual"`
}

// toRecord converts a validated request into a duty record. A cross-day
// marker on either time sets the record's explicit cross-day flag.
func (r DutyRequest) toRecord(id string) (engine.DutyRecord, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return engine.DutyRecord{}, fmt.Errorf("invalid date %q: %w", r.Date, err)
	}

	dutyType, err := engine.ParseDutyType(r.DutyType)
	if err != nil {
		return engine.DutyRecord{}, err
	}

	// A marker on the report time is roster noise; only the debrief
	// marker means the duty ends the next day.
	report, _, err := engine.ParseTime(r.ReportTime)
	if err != nil {
		return engine.DutyRecord{}, err
	}
	debrief, debriefMarked, err := engine.ParseTime(r.DebriefTime)
	if err != nil {
		return engine.DutyRecord{}, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	source := engine.DataSource(r.DataSource)
	if source == "" {
		source = engine.SourceManual
	}

	return engine.DutyRecord{
		ID:                id,
		UserID:            r.UserID,
		Date:              date.UTC(),
		FlightNumbers:     r.FlightNumbers,
		Sectors:           r.Sectors,
		DutyType:          dutyType,
		ReportTime:        report,
		DebriefTime:       debrief,
		IsCrossDay:        debriefMarked,
		HasCrossDayMarker: debriefMarked,
		RosterCode:        r.RosterCode,
		DataSource:        source,
		Month:             int(date.Month()),
		Year:              date.Year(),
	}, nil
}

// DutyDTO represents a duty record in API responses.
type DutyDTO struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	Date          string   `json:"date"`
	FlightNumbers []string `json:"flight_numbers,omitempty"`
	Sectors       []string `json:"sectors,omitempty"`
	DutyType      string   `json:"duty_type"`
	ReportTime    string   `json:"report_time"`
	DebriefTime   string   `json:"debrief_time"`
	IsCrossDay    bool     `json:"is_cross_day"`
	RosterCode    string   `json:"roster_code,omitempty"`
	DutyHours     string   `json:"duty_hours"`
	Pay           string   `json:"pay"`
	DataSource    string   `json:"data_source"`
	Edited        bool     `json:"edited"`
}

func toDutyDTO(d engine.DutyRecord) DutyDTO {
	return DutyDTO{
		ID:            d.ID,
		UserID:        d.UserID,
		Date:          d.Date.Format("2006-01-02"),
		FlightNumbers: d.FlightNumbers,
		Sectors:       d.Sectors,
		DutyType:      string(d.DutyType),
		ReportTime:    d.ReportTime.String(),
		DebriefTime:   d.DebriefTime.String(),
		IsCrossDay:    d.IsCrossDay,
		RosterCode:    d.RosterCode,
		DutyHours:     d.DutyHours.String(),
		Pay:           d.Pay.String(),
		DataSource:    string(d.DataSource),
		Edited:        d.Original != nil,
	}
}

// BulkDutiesRequest replaces a user's whole month of duties, as a roster
// re-import does.
type BulkDutiesRequest struct {
	UserID   string        `json:"user_id" validate:"required"`
	Position string        `json:"position" validate:"required,oneof=CCM SCCM"`
	Year     int           `json:"year" validate:"required,min=2000,max=2100"`
	Month    int           `json:"month" validate:"required,min=1,max=12"`
	Duties   []DutyRequest `json:"duties" validate:"dive"`
}

// =============================================================================
// CALCULATION TYPES
// =============================================================================

// RestPeriodDTO represents a layover rest period in API responses.
type RestPeriodDTO struct {
	ID         string `json:"id"`
	OutboundID string `json:"outbound_id"`
	InboundID  string `json:"inbound_id"`
	Outstation string `json:"outstation"`
	RestHours  string `json:"rest_hours"`
	PerDiemPay string `json:"per_diem_pay"`
}

func toRestPeriodDTO(rp engine.LayoverRestPeriod) RestPeriodDTO {
	return RestPeriodDTO{
		ID:         rp.ID,
		OutboundID: rp.OutboundID,
		InboundID:  rp.InboundID,
		Outstation: rp.Outstation,
		RestHours:  rp.RestHours.String(),
		PerDiemPay: rp.PerDiemPay.String(),
	}
}

// CalculationDTO represents the monthly salary roll-up.
type CalculationDTO struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Position           string     `json:"position"`
	Month              int        `json:"month"`
	Year               int        `json:"year"`
	BasicSalary        string     `json:"basic_salary"`
	HousingAllowance   string     `json:"housing_allowance"`
	TransportAllowance string     `json:"transport_allowance"`
	TotalFlightHours   string     `json:"total_flight_hours"`
	DutyPay            string     `json:"duty_pay"`
	TotalRestHours     string     `json:"total_rest_hours"`
	PerDiemPay         string     `json:"per_diem_pay"`
	TotalSalary        string     `json:"total_salary"`
	Summary            SummaryDTO `json:"summary"`
}

// SummaryDTO carries the per-month reporting statistics.
type SummaryDTO struct {
	DutyCounts      map[string]int `json:"duty_counts"`
	DutyCount       int            `json:"duty_count"`
	RestPeriodCount int            `json:"rest_period_count"`
	AvgDutyHours    string         `json:"avg_duty_hours"`
	AvgRestHours    string         `json:"avg_rest_hours"`
}

func toCalculationDTO(c engine.MonthlyCalculation) CalculationDTO {
	counts := make(map[string]int, len(c.Summary.DutyCounts))
	for dt, n := range c.Summary.DutyCounts {
		counts[string(dt)] = n
	}
	return CalculationDTO{
		ID:                 c.ID,
		UserID:             c.UserID,
		Position:           string(c.Position),
		Month:              c.Month,
		Year:               c.Year,
		BasicSalary:        c.BasicSalary.String(),
		HousingAllowance:   c.HousingAllowance.String(),
		TransportAllowance: c.TransportAllowance.String(),
		TotalFlightHours:   c.TotalFlightHours.String(),
		DutyPay:            c.DutyPay.String(),
		TotalRestHours:     c.TotalRestHours.String(),
		PerDiemPay:         c.PerDiemPay.String(),
		TotalSalary:        c.TotalSalary.String(),
		Summary: SummaryDTO{
			DutyCounts:      counts,
			DutyCount:       c.Summary.DutyCount,
			RestPeriodCount: c.Summary.RestPeriodCount,
			AvgDutyHours:    c.Summary.AvgDutyHours.String(),
			AvgRestHours:    c.Summary.AvgRestHours.String(),
		},
	}
}

// RecordErrorDTO is a per-record failure from the last calculation run.
type RecordErrorDTO struct {
	RecordID string `json:"record_id"`
	Date     string `json:"date"`
	Error    string `json:"error"`
}

// WarningDTO is a non-fatal flag from the last calculation run.
type WarningDTO struct {
	RecordID string `json:"record_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// CalculationResponse is the full month view: the roll-up, derived rest
// periods, and issues from the most recent recalculation.
type CalculationResponse struct {
	Calculation CalculationDTO   `json:"calculation"`
	RestPeriods []RestPeriodDTO  `json:"rest_periods"`
	Errors      []RecordErrorDTO `json:"errors,omitempty"`
	Warnings    []WarningDTO     `json:"warnings,omitempty"`
}

// RecalculateRequest identifies whose month to recompute.
type RecalculateRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Position string `json:"position" validate:"required,oneof=CCM SCCM"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

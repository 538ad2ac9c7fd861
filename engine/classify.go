/*
classify.go - Per-duty-type hours and pay

PURPOSE:
  Assigns duty hours and pay to a single duty record. Each DutyType maps
  to its own strategy in a dispatch table; a tag with no strategy is a
  fatal UnknownDutyTypeError, never a silent default. Tests assert the
  table covers every DutyTypes() entry.

PAY RULES:
  turnaround/layover   hours from report->debrief, pay = hours * hourly
  asby                 fixed AsbyHours * hourly, span ignored
  recurrent            fixed RecurrentHours * hourly, unless the roster
                       code marks an unpaid variant (pay 0, hours kept)
  business_promotion   fixed PromoHours * hourly
  sby/off              zero pay; recorded hours pass through for sby

RATE RESOLUTION:
  Always keyed by the record's own (year, month), so editing a historical
  record prices it with the rates in force at that time.

VALIDATION:
  hours <= 0 is fatal for flight-bearing types. hours > 24 is a warning
  only; duty spans can legitimately approach 24h, so the value is
  preserved, never clamped.
*/
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultCrossDayCeiling is the same-day span above which a missing
// cross-day marker is assumed to mean a next-day debrief. Approximate
// airline policy; do not change without confirming the real figure.
const DefaultCrossDayCeiling = 16 * time.Hour

var hoursInDay = decimal.NewFromInt(24)

// =============================================================================
// CLASSIFIER
// =============================================================================

// ClassifierConfig carries the airline-supplied knobs.
type ClassifierConfig struct {
	// UnpaidRecurrentCodes are roster-code keywords marking recurrent
	// training variants that record hours but pay nothing.
	UnpaidRecurrentCodes []string

	// CrossDayCeiling for marker-less cross-day inference.
	// Zero means DefaultCrossDayCeiling.
	CrossDayCeiling time.Duration

	Logger zerolog.Logger
}

// Classifier turns duty records into {dutyHours, pay}.
type Classifier struct {
	rates       *RateTable
	unpaidCodes []string
	ceiling     time.Duration
	log         zerolog.Logger
}

func NewClassifier(rates *RateTable, cfg ClassifierConfig) *Classifier {
	ceiling := cfg.CrossDayCeiling
	if ceiling == 0 {
		ceiling = DefaultCrossDayCeiling
	}
	return &Classifier{
		rates:       rates,
		unpaidCodes: cfg.UnpaidRecurrentCodes,
		ceiling:     ceiling,
		log:         cfg.Logger,
	}
}

// Classification is the computed outcome for one duty record.
type Classification struct {
	DutyType  DutyType
	DutyHours decimal.Decimal
	Pay       decimal.Decimal
	Warnings  []Warning
}

// Classify computes duty hours and pay for one record. Errors are scoped
// to the record; the caller decides whether to continue the batch.
func (c *Classifier) Classify(rec DutyRecord, position Position) (Classification, error) {
	strategy, ok := payStrategies[rec.DutyType]
	if !ok {
		return Classification{}, &UnknownDutyTypeError{Tag: string(rec.DutyType)}
	}

	rates, err := c.rates.RatesFor(position, rec.Year, rec.Month)
	if err != nil {
		return Classification{}, err
	}

	hours, pay, err := strategy(c, rec, rates)
	if err != nil {
		return Classification{}, err
	}

	if rec.DutyType.IsFlightBearing() && !hours.IsPositive() {
		return Classification{}, &NonPositiveHoursError{DutyType: rec.DutyType, Hours: hours.String()}
	}

	result := Classification{DutyType: rec.DutyType, DutyHours: hours, Pay: pay}
	if hours.GreaterThan(hoursInDay) {
		w := Warning{
			RecordID: rec.ID,
			Code:     WarnExcessiveDuration,
			Message:  fmt.Sprintf("duty span of %s hours exceeds 24h", hours),
		}
		result.Warnings = append(result.Warnings, w)
		c.log.Warn().Str("duty", rec.ID).Str("hours", hours.String()).
			Msg("duty span exceeds 24h, value preserved")
	}
	return result, nil
}

// =============================================================================
// DISPATCH TABLE - One strategy per duty type
// =============================================================================

type payStrategy func(c *Classifier, rec DutyRecord, rates Rates) (hours, pay decimal.Decimal, err error)

var payStrategies = map[DutyType]payStrategy{
	DutyTurnaround:    flightPay,
	DutyLayover:       flightPay,
	DutyASBY:          asbyPay,
	DutyRecurrent:     recurrentPay,
	DutyBusinessPromo: promoPay,
	DutySBY:           standbyPassthrough,
	DutyOff:           unpaidZero,
}

// flightPay: hours computed from report/debrief via duty-time math,
// pay = hours * hourly rate.
func flightPay(c *Classifier, rec DutyRecord, rates Rates) (decimal.Decimal, decimal.Decimal, error) {
	crossDay := DetectCrossDay(rec.ReportTime, rec.DebriefTime, rec.ExplicitCrossDay(), c.ceiling)
	hours, err := Duration(rec.ReportTime, rec.DebriefTime, crossDay)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return hours, RoundMoney(hours.Mul(rates.HourlyRate)), nil
}

// asbyPay: the fixed compensable hour count applies regardless of the
// record's actual report/debrief span.
func asbyPay(_ *Classifier, _ DutyRecord, rates Rates) (decimal.Decimal, decimal.Decimal, error) {
	return rates.AsbyHours, RoundMoney(rates.AsbyHours.Mul(rates.HourlyRate)), nil
}

// recurrentPay: fixed hours; unpaid variants keep the hours for
// reporting but pay nothing.
func recurrentPay(c *Classifier, rec DutyRecord, rates Rates) (decimal.Decimal, decimal.Decimal, error) {
	if c.isUnpaidRecurrent(rec) {
		return rates.RecurrentHours, decimal.Zero, nil
	}
	return rates.RecurrentHours, RoundMoney(rates.RecurrentHours.Mul(rates.HourlyRate)), nil
}

func promoPay(_ *Classifier, _ DutyRecord, rates Rates) (decimal.Decimal, decimal.Decimal, error) {
	return rates.PromoHours, RoundMoney(rates.PromoHours.Mul(rates.HourlyRate)), nil
}

// standbyPassthrough: home standby is unpaid; whatever hours were
// recorded pass through for reporting.
func standbyPassthrough(_ *Classifier, rec DutyRecord, _ Rates) (decimal.Decimal, decimal.Decimal, error) {
	if rec.DutyHours.IsPositive() {
		return RoundHours(rec.DutyHours), decimal.Zero, nil
	}
	return decimal.Zero, decimal.Zero, nil
}

func unpaidZero(_ *Classifier, _ DutyRecord, _ Rates) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func (c *Classifier) isUnpaidRecurrent(rec DutyRecord) bool {
	code := strings.ToUpper(rec.RosterCode)
	if code == "" {
		return false
	}
	for _, keyword := range c.unpaidCodes {
		if strings.Contains(code, strings.ToUpper(keyword)) {
			return true
		}
	}
	return false
}

/*
aggregate.go - Monthly salary roll-up

PURPOSE:
  Produces one MonthlyCalculation per (user, month, year) from the full
  current duty set. There is no incremental path: every run classifies
  every record and re-pairs every layover, so the aggregate can never
  drift out of sync with the underlying records. Running twice on the
  same snapshot yields bit-identical output.

ERROR POLICY:
  A single bad record never aborts the batch. Fatal per-record errors are
  wrapped in RecordError and collected; the calculation proceeds with the
  valid remainder and is returned alongside the combined error/warning
  lists. Only batch-scoped failures (no rate era) abort the run.
*/
package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	classifier *Classifier
	pairer     *Pairer
	rates      *RateTable
}

func NewAggregator(rates *RateTable, classifier *Classifier, pairer *Pairer) *Aggregator {
	return &Aggregator{classifier: classifier, pairer: pairer, rates: rates}
}

// Input is one recalculation request: the target month's duties plus the
// layover lookahead window into the following month.
type Input struct {
	UserID   string
	Position Position
	Month    int
	Year     int
	Duties   []DutyRecord
}

// Result carries the aggregate plus everything callers persist or
// surface: classified duties, derived rest periods, and the per-record
// error/warning lists.
type Result struct {
	Calculation *MonthlyCalculation
	Duties      []DutyRecord // target-month records with computed hours/pay
	RestPeriods []LayoverRestPeriod
	Errors      []RecordError
	Warnings    []Warning
}

// Aggregate recomputes the month wholesale. The returned error is
// batch-scoped (e.g. no rate era published); record-scoped failures are
// collected in Result.Errors instead.
func (a *Aggregator) Aggregate(in Input) (*Result, error) {
	rates, err := a.rates.RatesFor(in.Position, in.Year, in.Month)
	if err != nil {
		return nil, err
	}

	duties := make([]DutyRecord, len(in.Duties))
	copy(duties, in.Duties)
	sort.SliceStable(duties, func(i, j int) bool {
		if !duties[i].Date.Equal(duties[j].Date) {
			return duties[i].Date.Before(duties[j].Date)
		}
		return duties[i].ReportTime.Before(duties[j].ReportTime)
	})

	result := &Result{}
	var (
		valid       []DutyRecord // classified records, month + lookahead
		flightHours = decimal.Zero
		dutyPay     = decimal.Zero
		hoursSum    = decimal.Zero
		counts      = make(map[DutyType]int)
		counted     int
	)

	for _, rec := range duties {
		cls, err := a.classifier.Classify(rec, in.Position)
		if err != nil {
			if !IsRecordScoped(err) {
				return nil, err
			}
			result.Errors = append(result.Errors, RecordError{
				RecordID: rec.ID, Date: rec.Date, Err: err,
			})
			continue
		}
		rec.DutyHours = cls.DutyHours
		rec.Pay = cls.Pay
		result.Warnings = append(result.Warnings, cls.Warnings...)
		valid = append(valid, rec)

		if rec.Month != in.Month || rec.Year != in.Year {
			continue // lookahead records pair layovers but do not count
		}
		result.Duties = append(result.Duties, rec)

		counts[rec.DutyType]++
		counted++
		hoursSum = hoursSum.Add(rec.DutyHours)
		dutyPay = dutyPay.Add(rec.Pay)
		if rec.DutyType.CountsTowardFlightHours() {
			flightHours = flightHours.Add(rec.DutyHours)
		}
	}

	restPeriods, err := a.pairer.Pair(valid, in.Position, in.Month, in.Year)
	if err != nil {
		return nil, err
	}
	result.RestPeriods = restPeriods

	restHours := decimal.Zero
	perDiem := decimal.Zero
	for _, rp := range restPeriods {
		restHours = restHours.Add(rp.RestHours)
		perDiem = perDiem.Add(rp.PerDiemPay)
	}

	calc := &MonthlyCalculation{
		ID:       fmt.Sprintf("%s:%04d-%02d", in.UserID, in.Year, in.Month),
		UserID:   in.UserID,
		Position: in.Position,
		Month:    in.Month,
		Year:     in.Year,

		BasicSalary:        rates.BasicSalary,
		HousingAllowance:   rates.HousingAllowance,
		TransportAllowance: rates.TransportAllowance,

		TotalFlightHours: RoundHours(flightHours),
		DutyPay:          RoundMoney(dutyPay),
		TotalRestHours:   RoundHours(restHours),
		PerDiemPay:       RoundMoney(perDiem),

		Summary: Summary{
			DutyCounts:      counts,
			DutyCount:       counted,
			RestPeriodCount: len(restPeriods),
			AvgDutyHours:    average(hoursSum, counted),
			AvgRestHours:    average(restHours, len(restPeriods)),
		},
	}
	calc.TotalSalary = RoundMoney(calc.BasicSalary.
		Add(calc.HousingAllowance).
		Add(calc.TransportAllowance).
		Add(calc.DutyPay).
		Add(calc.PerDiemPay))

	result.Calculation = calc
	return result, nil
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), 4)
}

/*
export.go - xlsx salary report generation

PURPOSE:
  Renders a calculated month as a spreadsheet for payroll review:
  one sheet of classified duties, one of layover rest periods, and a
  summary sheet with the salary breakdown.

FORMAT NOTES:
  Amounts are written as their decimal strings, not floats - the report
  must show exactly what the engine calculated.

SEE ALSO:
  - handlers.go: ExportCalculation endpoint
*/
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/skywage/salary-engine/engine"
)

// ExportCalculation streams the month's report as an xlsx file.
// GET /api/calculations/{year}/{month}/export?user_id=
func (h *Handler) ExportCalculation(w http.ResponseWriter, r *http.Request) {
	userID, year, month, ok := h.calculationKey(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	calc, err := h.Store.GetCalculation(ctx, userID, year, month)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Month was never calculated", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load calculation", err)
		return
	}
	duties, err := h.Store.ListDuties(ctx, userID, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list duties", err)
		return
	}
	rests, err := h.Store.ListRestPeriods(ctx, userID, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rest periods", err)
		return
	}

	file, err := buildReport(calc, duties, rests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}

	h.metrics.ExportsTotal.Inc()
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="salary-%s-%04d-%02d.xlsx"`, userID, year, month))
	if err := file.Write(w); err != nil {
		h.logger.Error().Err(err).Msg("failed to stream report")
	}
}

func buildReport(calc engine.MonthlyCalculation, duties []engine.DutyRecord, rests []engine.LayoverRestPeriod) (*excelize.File, error) {
	file := excelize.NewFile()

	if err := writeSheet(file, "Duties", true,
		[]string{"Date", "Duty Type", "Flights", "Sectors", "Report", "Debrief", "Hours", "Pay", "Source"},
		func() [][]interface{} {
			rows := make([][]interface{}, len(duties))
			for i, d := range duties {
				debrief := d.DebriefTime.String()
				if d.IsCrossDay {
					debrief += "+1"
				}
				rows[i] = []interface{}{
					d.Date.Format("2006-01-02"), string(d.DutyType),
					strings.Join(d.FlightNumbers, ", "), strings.Join(d.Sectors, ", "),
					d.ReportTime.String(), debrief,
					d.DutyHours.String(), d.Pay.String(), string(d.DataSource),
				}
			}
			return rows
		}()); err != nil {
		return nil, err
	}

	if err := writeSheet(file, "Rest Periods", false,
		[]string{"Outstation", "Outbound", "Inbound", "Rest Hours", "Per Diem"},
		func() [][]interface{} {
			rows := make([][]interface{}, len(rests))
			for i, rp := range rests {
				rows[i] = []interface{}{
					rp.Outstation, rp.OutboundID, rp.InboundID,
					rp.RestHours.String(), rp.PerDiemPay.String(),
				}
			}
			return rows
		}()); err != nil {
		return nil, err
	}

	summaryRows := [][]interface{}{
		{"Position", string(calc.Position)},
		{"Basic Salary", calc.BasicSalary.String()},
		{"Housing Allowance", calc.HousingAllowance.String()},
		{"Transport Allowance", calc.TransportAllowance.String()},
		{"Total Flight Hours", calc.TotalFlightHours.String()},
		{"Duty Pay", calc.DutyPay.String()},
		{"Total Rest Hours", calc.TotalRestHours.String()},
		{"Per Diem Pay", calc.PerDiemPay.String()},
		{"Total Salary", calc.TotalSalary.String()},
		{"Duty Count", calc.Summary.DutyCount},
		{"Rest Period Count", calc.Summary.RestPeriodCount},
		{"Avg Duty Hours", calc.Summary.AvgDutyHours.String()},
		{"Avg Rest Hours", calc.Summary.AvgRestHours.String()},
	}
	if err := writeSheet(file, "Summary", false, []string{"Component", "Value"}, summaryRows); err != nil {
		return nil, err
	}

	return file, nil
}

// writeSheet fills one sheet with a bold header row and data rows.
// renameDefault replaces the workbook's default first sheet.
func writeSheet(file *excelize.File, name string, renameDefault bool, header []string, rows [][]interface{}) error {
	if renameDefault {
		file.SetSheetName("Sheet1", name)
	} else {
		if _, err := file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	for i, col := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(name, cell, col); err != nil {
			return err
		}
	}
	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = file.SetCellStyle(name, startCell, endCell, style)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(name, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}

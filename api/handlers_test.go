package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywage/salary-engine/airline"
	"github.com/skywage/salary-engine/api"
	"github.com/skywage/salary-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := api.NewHandler(store, airline.NewCalculator(nil, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, h.LoadRates(context.Background()))
	return api.NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func dutyBody(dutyType, date, report, debrief string, sectors ...string) map[string]any {
	return map[string]any{
		"user_id":      "crew-1",
		"position":     "CCM",
		"date":         date,
		"duty_type":    dutyType,
		"report_time":  report,
		"debrief_time": debrief,
		"sectors":      sectors,
	}
}

func assertAmount(t *testing.T, want, got string, label string) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(got)),
		"%s = %s, want %s", label, got, want)
}

// =============================================================================
// DUTY LIFECYCLE
// =============================================================================

func TestCreateDutyCalculatesMonth(t *testing.T) {
	// GIVEN an empty July 2024
	router := newTestRouter(t)

	// WHEN a turnaround is created
	rec := do(t, router, http.MethodPost, "/api/duties",
		dutyBody("turnaround", "2024-07-10", "09:20", "21:15", "DXB-CMB", "CMB-DXB"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN the duty comes back classified (11.9167h at the 2024 CCM rate)
	duty := decode[api.DutyDTO](t, rec)
	assertAmount(t, "11.9167", duty.DutyHours, "duty hours")
	assertAmount(t, "625.63", duty.Pay, "pay")

	// AND the month's roll-up exists
	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.CalculationResponse](t, rec)
	assertAmount(t, "9025.63", resp.Calculation.TotalSalary, "total salary")
	assert.Equal(t, 1, resp.Calculation.Summary.DutyCount)
}

func TestBulkImportPairsLayovers(t *testing.T) {
	// GIVEN a roster import with an outbound/inbound layover pair
	router := newTestRouter(t)
	out := dutyBody("layover", "2024-07-10", "09:00", "16:54", "DXB-VIE")
	in := dutyBody("layover", "2024-07-11", "16:30", "23:00", "VIE-DXB")

	// WHEN the month is bulk-replaced
	rec := do(t, router, http.MethodPost, "/api/duties/bulk", map[string]any{
		"user_id":  "crew-1",
		"position": "CCM",
		"year":     2024,
		"month":    7,
		"duties":   []map[string]any{out, in},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN the legs are paired into a rest period with per diem
	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.CalculationResponse](t, rec)

	require.Len(t, resp.RestPeriods, 1)
	assert.Equal(t, "VIE", resp.RestPeriods[0].Outstation)
	assertAmount(t, "23.6", resp.RestPeriods[0].RestHours, "rest hours")
	assertAmount(t, "218.30", resp.RestPeriods[0].PerDiemPay, "per diem")

	assertAmount(t, "14.4", resp.Calculation.TotalFlightHours, "flight hours")
	// 8400 fixed + 756 duty pay + 218.30 per diem
	assertAmount(t, "9374.30", resp.Calculation.TotalSalary, "total salary")
}

func TestEditAndRevertDuty(t *testing.T) {
	// GIVEN a classified turnaround
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/duties",
		dutyBody("turnaround", "2024-07-10", "09:20", "21:15", "DXB-CMB", "CMB-DXB"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.DutyDTO](t, rec).ID

	// WHEN the debrief time is edited an hour later
	rec = do(t, router, http.MethodPut, "/api/duties/"+id,
		dutyBody("turnaround", "2024-07-10", "09:20", "22:15", "DXB-CMB", "CMB-DXB"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[api.DutyDTO](t, rec)

	// THEN pay follows the new hours and the edit is marked
	assertAmount(t, "678.13", edited.Pay, "edited pay")
	assert.True(t, edited.Edited)
	assert.Equal(t, "edited", edited.DataSource)

	// WHEN the edit is reverted
	rec = do(t, router, http.MethodPost, "/api/duties/"+id+"/revert?position=CCM", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reverted := decode[api.DutyDTO](t, rec)

	// THEN the original values and the roll-up are restored
	assertAmount(t, "625.63", reverted.Pay, "reverted pay")
	assert.False(t, reverted.Edited)

	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	resp := decode[api.CalculationResponse](t, rec)
	assertAmount(t, "9025.63", resp.Calculation.TotalSalary, "total salary")
}

func TestDeleteDutyRecalculates(t *testing.T) {
	// GIVEN a month with one duty
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/duties",
		dutyBody("turnaround", "2024-07-10", "09:20", "21:15", "DXB-CMB", "CMB-DXB"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.DutyDTO](t, rec).ID

	// WHEN it is deleted
	rec = do(t, router, http.MethodDelete, "/api/duties/"+id+"?position=CCM", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// THEN the roll-up drops to the fixed components
	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.CalculationResponse](t, rec)
	assertAmount(t, "8400", resp.Calculation.TotalSalary, "total salary")
	assert.Equal(t, 0, resp.Calculation.Summary.DutyCount)
}

func TestCalculationCarriesWarnings(t *testing.T) {
	// GIVEN a marker-confirmed turnaround spanning 25.5h (08:00 -> 09:30+1)
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/duties",
		dutyBody("turnaround", "2024-07-10", "08:00", "09:30+1", "DXB-JFK"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	duty := decode[api.DutyDTO](t, rec)

	// THEN the value is preserved, priced, and flagged in the roll-up
	assertAmount(t, "25.5", duty.DutyHours, "duty hours")
	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.CalculationResponse](t, rec)

	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, duty.ID, resp.Warnings[0].RecordID)
	assert.Equal(t, "excessive_duration", resp.Warnings[0].Code)
	assert.Empty(t, resp.Errors)
}

// =============================================================================
// VALIDATION AND ERRORS
// =============================================================================

func TestRequestValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing report time", dutyBody("turnaround", "2024-07-10", "", "21:15")},
		{"unknown duty type", dutyBody("charter", "2024-07-10", "09:20", "21:15")},
		{"bad date", dutyBody("turnaround", "July 10", "09:20", "21:15")},
		{"bad position", func() map[string]any {
			b := dutyBody("turnaround", "2024-07-10", "09:20", "21:15")
			b["position"] = "CAPT"
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/duties", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/duties/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7?user_id=crew-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RATE PUBLISHING
// =============================================================================

func TestPublishRateEraFlow(t *testing.T) {
	// GIVEN a new CCM era published over the API
	router := newTestRouter(t)
	era := map[string]any{
		"position":       "CCM",
		"effective_from": "2025-01",
		"rates": map[string]any{
			"basic_salary":        "3500",
			"housing_allowance":   "4000",
			"transport_allowance": "1000",
			"hourly_rate":         "60",
			"per_diem_rate":       "10",
			"asby_hours":          "4",
			"recurrent_hours":     "4",
			"promo_hours":         "8",
		},
	}
	rec := do(t, router, http.MethodPost, "/api/rates", era)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN republishing the same month conflicts
	rec = do(t, router, http.MethodPost, "/api/rates", era)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND the era is listed
	rec = do(t, router, http.MethodGet, "/api/rates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var eras []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&eras))
	require.Len(t, eras, 1)
	assert.Equal(t, "2025-01", eras[0]["effective_from"])

	// AND a January 2025 ASBY is paid at the new hourly rate
	rec = do(t, router, http.MethodPost, "/api/duties",
		dutyBody("asby", "2025-01-15", "08:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	duty := decode[api.DutyDTO](t, rec)
	assertAmount(t, "240", duty.Pay, "asby pay")

	rec = do(t, router, http.MethodGet, "/api/calculations/2025/1?user_id=crew-1", nil)
	resp := decode[api.CalculationResponse](t, rec)
	assertAmount(t, "8740", resp.Calculation.TotalSalary, "total salary")
}

// =============================================================================
// EXPORT AND OPERATIONS
// =============================================================================

func TestExportCalculation(t *testing.T) {
	// GIVEN a calculated month
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/duties",
		dutyBody("turnaround", "2024-07-10", "09:20", "21:15", "DXB-CMB", "CMB-DXB"))
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN the report is exported
	rec = do(t, router, http.MethodGet, "/api/calculations/2024/7/export?user_id=crew-1", nil)

	// THEN a non-empty xlsx comes back
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "salary-crew-1-2024-07.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

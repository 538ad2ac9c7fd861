/*
handlers.go - HTTP API handlers for the salary calculation service

PURPOSE:
  Exposes the salary engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Duties:
    GET    /api/duties                 List duties for a user-month
    POST   /api/duties                 Create duty (triggers recalculation)
    GET    /api/duties/{id}            Get duty details
    PUT    /api/duties/{id}            Edit duty (snapshot + recalculation)
    DELETE /api/duties/{id}            Delete duty (triggers recalculation)
    POST   /api/duties/bulk            Replace a whole month (roster import)
    POST   /api/duties/{id}/revert     Restore pre-edit values

  Calculations:
    GET    /api/calculations/{year}/{month}             Stored roll-up
    POST   /api/calculations/{year}/{month}/recalculate Explicit recompute
    GET    /api/calculations/{year}/{month}/export      xlsx report

  Rates:
    GET    /api/rates                  List published rate eras
    POST   /api/rates                  Publish a rate era (append-only)

RECALCULATION FLOW:
  Every duty mutation recomputes the affected (user, month, year)
  wholesale: load the month plus the layover lookahead window, classify,
  re-pair, aggregate, then persist the duty hours/pay, the roll-up, and
  the replaced rest periods. Recalculations are serialized under one
  mutex - concurrent edits to the same month must not interleave.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, no published rates
  - 404: Resource not found
  - 409: Conflict (republished rate era)
  - 500: Internal errors
  Record-scoped calculation errors are NOT HTTP errors: the month still
  calculates from the valid records and the issues ride along in the
  calculation response.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: xlsx report generation
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/skywage/salary-engine/airline"
	"github.com/skywage/salary-engine/engine"
	"github.com/skywage/salary-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       engine.Store
	Calc        *airline.Calculator
	RateFactory *factory.RateFactory

	validate *validator.Validate
	logger   zerolog.Logger
	metrics  *Metrics

	// recalcMu serializes recalculations: a month is recomputed
	// wholesale, and two interleaved recomputes of the same user-month
	// would race on the derived rows.
	recalcMu sync.Mutex

	// lastRuns keeps the record errors/warnings of each month's most
	// recent recalculation for the calculation response.
	runMu    sync.RWMutex
	lastRuns map[string]runIssues
}

type runIssues struct {
	Errors   []engine.RecordError
	Warnings []engine.Warning
}

// NewHandler creates a new handler with the given store and calculator.
func NewHandler(store engine.Store, calc *airline.Calculator, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:       store,
		Calc:        calc,
		RateFactory: factory.NewRateFactory(),
		validate:    validator.New(),
		logger:      logger,
		metrics:     newMetrics(),
		lastRuns:    make(map[string]runIssues),
	}
}

// LoadRates merges previously published rate eras from the store into
// the live rate table. Called once at startup.
func (h *Handler) LoadRates(ctx context.Context) error {
	eras, err := h.Store.ListRateEras(ctx)
	if err != nil {
		return err
	}
	for _, era := range eras {
		h.Calc.Rates.Publish(era)
	}
	return nil
}

// =============================================================================
// DUTY HANDLERS
// =============================================================================

// ListDuties returns a user's duties for one month.
// GET /api/duties?user_id=&year=&month=
func (h *Handler) ListDuties(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	year, errY := strconv.Atoi(r.URL.Query().Get("year"))
	month, errM := strconv.Atoi(r.URL.Query().Get("month"))
	if userID == "" || errY != nil || errM != nil {
		writeError(w, http.StatusBadRequest, "user_id, year and month query parameters are required", nil)
		return
	}

	duties, err := h.Store.ListDuties(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list duties", err)
		return
	}

	dtos := make([]DutyDTO, len(duties))
	for i, d := range duties {
		dtos[i] = toDutyDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDuty adds a duty and recalculates its month.
// POST /api/duties
func (h *Handler) CreateDuty(w http.ResponseWriter, r *http.Request) {
	var req DutyRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, _ := engine.ParsePosition(req.Position)

	duty, err := req.toRecord("")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duty", err)
		return
	}
	if err := h.Store.SaveDuty(r.Context(), duty); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save duty", err)
		return
	}

	if !h.recalculateOrError(w, r, duty.UserID, position, duty.Year, duty.Month) {
		return
	}
	saved, err := h.Store.GetDuty(r.Context(), duty.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload duty", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDutyDTO(saved))
}

// GetDuty returns one duty record.
// GET /api/duties/{id}
func (h *Handler) GetDuty(w http.ResponseWriter, r *http.Request) {
	duty, err := h.Store.GetDuty(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Duty not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load duty", err)
		return
	}
	writeJSON(w, http.StatusOK, toDutyDTO(duty))
}

// UpdateDuty edits a duty, keeping the one-shot pre-edit snapshot, and
// recalculates every affected month.
// PUT /api/duties/{id}
func (h *Handler) UpdateDuty(w http.ResponseWriter, r *http.Request) {
	var req DutyRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, _ := engine.ParsePosition(req.Position)

	duty, err := h.Store.GetDuty(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Duty not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load duty", err)
		return
	}

	edited, err := req.toRecord(duty.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duty", err)
		return
	}
	prevYear, prevMonth := duty.Year, duty.Month
	duty.ApplyEdit(edited)
	if err := h.Store.SaveDuty(r.Context(), duty); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save duty", err)
		return
	}

	// An edit can move the duty to another month; both sides need a
	// fresh roll-up.
	if !h.recalculateOrError(w, r, duty.UserID, position, duty.Year, duty.Month) {
		return
	}
	if prevYear != duty.Year || prevMonth != duty.Month {
		if !h.recalculateOrError(w, r, duty.UserID, position, prevYear, prevMonth) {
			return
		}
	}
	saved, err := h.Store.GetDuty(r.Context(), duty.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload duty", err)
		return
	}
	writeJSON(w, http.StatusOK, toDutyDTO(saved))
}

// DeleteDuty removes a duty and recalculates its month.
// DELETE /api/duties/{id}?position=CCM
func (h *Handler) DeleteDuty(w http.ResponseWriter, r *http.Request) {
	position, ok := engine.ParsePosition(r.URL.Query().Get("position"))
	if !ok {
		writeError(w, http.StatusBadRequest, "position query parameter is required (CCM or SCCM)", nil)
		return
	}

	duty, err := h.Store.GetDuty(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Duty not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load duty", err)
		return
	}
	if err := h.Store.DeleteDuty(r.Context(), duty.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete duty", err)
		return
	}

	if !h.recalculateOrError(w, r, duty.UserID, position, duty.Year, duty.Month) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkReplaceDuties swaps a user's whole month of duties, as a roster
// re-import does, then recalculates.
// POST /api/duties/bulk
func (h *Handler) BulkReplaceDuties(w http.ResponseWriter, r *http.Request) {
	var req BulkDutiesRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, _ := engine.ParsePosition(req.Position)

	duties := make([]engine.DutyRecord, len(req.Duties))
	for i, dr := range req.Duties {
		duty, err := dr.toRecord("")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid duty", err)
			return
		}
		duty.UserID = req.UserID
		duty.DataSource = engine.SourceRoster
		duties[i] = duty
	}

	if err := h.Store.ReplaceDuties(r.Context(), req.UserID, req.Year, req.Month, duties); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to replace duties", err)
		return
	}
	if !h.recalculateOrError(w, r, req.UserID, position, req.Year, req.Month) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(duties)})
}

// RevertDuty restores a duty's pre-edit values and recalculates.
// POST /api/duties/{id}/revert?position=CCM
func (h *Handler) RevertDuty(w http.ResponseWriter, r *http.Request) {
	position, ok := engine.ParsePosition(r.URL.Query().Get("position"))
	if !ok {
		writeError(w, http.StatusBadRequest, "position query parameter is required (CCM or SCCM)", nil)
		return
	}

	duty, err := h.Store.GetDuty(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Duty not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load duty", err)
		return
	}
	if !duty.Revert() {
		writeError(w, http.StatusBadRequest, "Duty was never edited", nil)
		return
	}
	if err := h.Store.SaveDuty(r.Context(), duty); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save duty", err)
		return
	}

	if !h.recalculateOrError(w, r, duty.UserID, position, duty.Year, duty.Month) {
		return
	}
	saved, err := h.Store.GetDuty(r.Context(), duty.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload duty", err)
		return
	}
	writeJSON(w, http.StatusOK, toDutyDTO(saved))
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// GetCalculation returns the stored roll-up with rest periods and the
// issues from the last recalculation.
// GET /api/calculations/{year}/{month}?user_id=
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	userID, year, month, ok := h.calculationKey(w, r)
	if !ok {
		return
	}

	calc, err := h.Store.GetCalculation(r.Context(), userID, year, month)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Month was never calculated", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load calculation", err)
		return
	}
	rests, err := h.Store.ListRestPeriods(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rest periods", err)
		return
	}

	writeJSON(w, http.StatusOK, h.calculationResponse(calc, rests))
}

// Recalculate recomputes the month explicitly.
// POST /api/calculations/{year}/{month}/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonthParams(w, r)
	if !ok {
		return
	}
	var req RecalculateRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, _ := engine.ParsePosition(req.Position)

	result, err := h.recalculate(r.Context(), req.UserID, position, year, month)
	if err != nil {
		h.writeRecalcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.calculationResponse(*result.Calculation, result.RestPeriods))
}

// recalculateOrError runs the wholesale recomputation behind a mutation
// handler, reporting false after writing the HTTP error.
func (h *Handler) recalculateOrError(w http.ResponseWriter, r *http.Request, userID string, position engine.Position, year, month int) bool {
	if _, err := h.recalculate(r.Context(), userID, position, year, month); err != nil {
		h.writeRecalcError(w, err)
		return false
	}
	return true
}

func (h *Handler) writeRecalcError(w http.ResponseWriter, err error) {
	var noRates *engine.NoRatesError
	if errors.As(err, &noRates) {
		writeError(w, http.StatusBadRequest, "No rate era covers the month", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "Recalculation failed", err)
}

// recalculate is the single write path for derived data: load the month
// plus the lookahead window, aggregate, persist.
func (h *Handler) recalculate(ctx context.Context, userID string, position engine.Position, year, month int) (*engine.Result, error) {
	h.recalcMu.Lock()
	defer h.recalcMu.Unlock()

	started := time.Now()

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).AddDate(0, 0, airline.LookaheadDays-1)
	duties, err := h.Store.ListDutiesInRange(ctx, userID, from, to)
	if err != nil {
		h.metrics.RecalculationsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}

	result, err := h.Calc.Aggregator.Aggregate(engine.Input{
		UserID:   userID,
		Position: position,
		Month:    month,
		Year:     year,
		Duties:   duties,
	})
	if err != nil {
		h.metrics.RecalculationsTotal.WithLabelValues("batch_error").Inc()
		return nil, err
	}

	if err := h.Store.SaveDuties(ctx, result.Duties); err != nil {
		h.metrics.RecalculationsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}
	if err := h.Store.ReplaceMonth(ctx, *result.Calculation, result.RestPeriods); err != nil {
		h.metrics.RecalculationsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}

	h.runMu.Lock()
	h.lastRuns[result.Calculation.ID] = runIssues{Errors: result.Errors, Warnings: result.Warnings}
	h.runMu.Unlock()

	h.metrics.RecalculationsTotal.WithLabelValues("success").Inc()
	h.metrics.RecordErrorsTotal.Add(float64(len(result.Errors)))
	h.metrics.RecalculationDuration.Observe(time.Since(started).Seconds())

	h.logger.Info().
		Str("user_id", userID).
		Int("year", year).
		Int("month", month).
		Str("total_salary", result.Calculation.TotalSalary.String()).
		Int("record_errors", len(result.Errors)).
		Msg("month recalculated")

	return result, nil
}

func (h *Handler) calculationResponse(calc engine.MonthlyCalculation, rests []engine.LayoverRestPeriod) CalculationResponse {
	resp := CalculationResponse{
		Calculation: toCalculationDTO(calc),
		RestPeriods: make([]RestPeriodDTO, len(rests)),
	}
	for i, rp := range rests {
		resp.RestPeriods[i] = toRestPeriodDTO(rp)
	}

	h.runMu.RLock()
	issues := h.lastRuns[calc.ID]
	h.runMu.RUnlock()
	for _, re := range issues.Errors {
		resp.Errors = append(resp.Errors, RecordErrorDTO{
			RecordID: re.RecordID,
			Date:     re.Date.Format("2006-01-02"),
			Error:    re.Err.Error(),
		})
	}
	for _, wn := range issues.Warnings {
		resp.Warnings = append(resp.Warnings, WarningDTO{
			RecordID: wn.RecordID,
			Code:     string(wn.Code),
			Message:  wn.Message,
		})
	}
	return resp
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// ListRates returns every published rate era.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	eras, err := h.Store.ListRateEras(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate eras", err)
		return
	}

	dtos := make([]factory.RateEraJSON, len(eras))
	for i, era := range eras {
		dtos[i] = h.RateFactory.ToJSON(era)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PublishRate appends a rate era to the store and the live table.
// POST /api/rates
func (h *Handler) PublishRate(w http.ResponseWriter, r *http.Request) {
	var req factory.RateEraJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	era, err := h.RateFactory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate era", err)
		return
	}

	if err := h.Store.PublishRateEra(r.Context(), era); err != nil {
		if errors.Is(err, engine.ErrAlreadyPublished) {
			writeError(w, http.StatusConflict, "Rate era already published for this month", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to publish rate era", err)
		return
	}
	h.Calc.Rates.Publish(era)

	h.logger.Info().
		Str("position", string(era.Position)).
		Str("effective_from", era.EffectiveFrom.Format("2006-01")).
		Msg("rate era published")
	writeJSON(w, http.StatusCreated, h.RateFactory.ToJSON(era))
}

// =============================================================================
// HELPERS
// =============================================================================

// Healthz reports liveness.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode unmarshals and validates a request body, writing the HTTP
// error itself. Reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) calculationKey(w http.ResponseWriter, r *http.Request) (userID string, year, month int, ok bool) {
	year, month, ok = yearMonthParams(w, r)
	if !ok {
		return "", 0, 0, false
	}
	userID = r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return "", 0, 0, false
	}
	return userID, year, month, true
}

func yearMonthParams(w http.ResponseWriter, r *http.Request) (year, month int, ok bool) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	month, errM := strconv.Atoi(chi.URLParam(r, "month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid year/month", nil)
		return 0, 0, false
	}
	return year, month, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

/*
handlers.go - HTTP API handlers for the commission ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response and JSON
  serialization, and delegates every decision to ledger.Ledger.

ENDPOINTS:
  Sellers and periods:
    GET    /api/sellers                                   List sellers
    GET    /api/sellers/{seller}/periods                  Period records
    GET    /api/sellers/{seller}/periods/{period}         Statement (record + entries)
    POST   /api/sellers/{seller}/periods/{period}/close
    POST   /api/sellers/{seller}/periods/{period}/reopen
    POST   /api/sellers/{seller}/periods/{period}/mark-paid
    POST   /api/sellers/{seller}/periods/{period}/recalculate
    POST   /api/sellers/{seller}/periods/{period}/carry-over
    GET    /api/sellers/{seller}/periods/{period}/audit

  Entries:
    POST   /api/commissions               Sale feed ingress
    POST   /api/adjustments               Manual credit/debit
    POST   /api/payments                  Payment
    GET    /api/entries/{id}
    PATCH  /api/entries/{id}              Edit (moves the entry if period changes)
    POST   /api/entries/{id}/transfer     Move to another period

  Reconciliation:
    GET    /api/reconciliation/runs
    POST   /api/reconciliation/run

  Scenarios:
    GET    /api/scenarios
    GET    /api/scenarios/current
    POST   /api/scenarios/load
    POST   /api/scenarios/reset

ACTOR:
  The operator is read from the X-Actor header and recorded in the audit
  trail. Missing means "system".

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Seller, period or entry not found
  - 409: State transition rejected, duplicate idempotency key
  - 503: Backing store failure
  - 500: Anything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
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

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// ActorHeader names the operator performing a mutation.
const ActorHeader = "X-Actor"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the store surface handlers need beyond the ledger itself.
type Backend interface {
	Reset(ctx context.Context) error
	SaveSeller(ctx context.Context, s ledger.Seller) error
	ListSellers(ctx context.Context) ([]ledger.Seller, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Store     Backend
	Log       *zap.Logger
	Scheduler *ReconciliationScheduler // optional; serializes manual and timed sweeps

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(l *ledger.Ledger, store Backend, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Ledger: l, Store: store, Log: log}
}

// =============================================================================
// SELLERS & PERIODS
// =============================================================================

// ListSellers returns every known seller.
func (h *Handler) ListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.Store.ListSellers(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list sellers", err)
		return
	}
	dtos := make([]SellerDTO, 0, len(sellers))
	for _, s := range sellers {
		dtos = append(dtos, SellerDTO{ID: string(s.ID), Name: s.Name, Email: s.Email, Initials: s.Initials})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPeriods returns a seller's period records ordered by period.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	seller := ledger.SellerID(chi.URLParam(r, "seller"))
	recs, err := h.Ledger.ListPeriods(r.Context(), seller)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]PeriodDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, toPeriodDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStatement returns a period record with its grouped entries.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Ledger.Statement(r.Context(), periodKey(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// ClosePeriod closes an open period.
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, h.Ledger.Close)
}

// ReopenPeriod reopens a closed period.
func (h *Handler) ReopenPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, h.Ledger.Reopen)
}

// MarkPeriodPaid settles a closed period with nothing owed.
func (h *Handler) MarkPeriodPaid(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, h.Ledger.MarkPaid)
}

// RecalculatePeriod recomputes totals from entries.
func (h *Handler) RecalculatePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, h.Ledger.Recalculate)
}

// RefreshCarryOver re-pulls the prior balance of an open period.
func (h *Handler) RefreshCarryOver(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, h.Ledger.RefreshCarryOver)
}

func (h *Handler) periodAction(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, string, ledger.Key) (ledger.PeriodRecord, error)) {
	rec, err := fn(r.Context(), actor(r), periodKey(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(rec))
}

// GetPeriodAudit returns the audit trail of one period.
func (h *Handler) GetPeriodAudit(w http.ResponseWriter, r *http.Request) {
	key := periodKey(r)
	rows, err := h.Ledger.Audit(r.Context(), ledger.AuditFilter{SellerID: key.SellerID, Period: key.Period})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]AuditDTO, 0, len(rows))
	for _, a := range rows {
		dtos = append(dtos, toAuditDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENTRIES
// =============================================================================

// RecordCommission ingests a commission from the sale feed.
func (h *Handler) RecordCommission(w http.ResponseWriter, r *http.Request) {
	var req CommissionRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeFieldError(w, "date", err)
		return
	}

	e, err := h.Ledger.RecordCommission(r.Context(), actor(r), ledger.CommissionInput{
		SellerID:          ledger.SellerID(req.SellerID),
		Period:            ledger.PeriodKey(req.Period),
		SaleID:            req.SaleID,
		SaleAmount:        req.SaleAmount,
		CommissionPercent: req.CommissionPercent,
		CommissionAmount:  req.CommissionAmount,
		Rule:              ledger.CommissionRule(req.Rule),
		PriceListID:       req.PriceListID,
		Note:              req.Note,
		Date:              date,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// CreateAdjustment adds a manual credit or debit.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeFieldError(w, "date", err)
		return
	}

	e, err := h.Ledger.AddManualEntry(r.Context(), actor(r), ledger.ManualEntryInput{
		SellerID:       ledger.SellerID(req.SellerID),
		Period:         ledger.PeriodKey(req.Period),
		Kind:           ledger.EntryKind(req.Kind),
		Date:           date,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// RegisterPayment records a payment to a seller.
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeFieldError(w, "date", err)
		return
	}

	e, err := h.Ledger.RegisterPayment(r.Context(), actor(r), ledger.PaymentInput{
		SellerID:       ledger.SellerID(req.SellerID),
		Period:         ledger.PeriodKey(req.Period),
		Date:           date,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		ReceiptRef:     req.ReceiptRef,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// GetEntry returns a single entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Ledger.GetEntry(r.Context(), ledger.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// UpdateEntry applies a partial update.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntryRequest
	if !decode(w, r, &req) {
		return
	}

	patch := ledger.EntryPatch{
		Amount:        req.Amount,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		ReceiptRef:    req.ReceiptRef,
		Note:          req.Note,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil || date.IsZero() {
			writeFieldError(w, "date", err)
			return
		}
		patch.Date = &date
	}
	if req.Period != nil {
		p := ledger.PeriodKey(*req.Period)
		patch.Period = &p
	}

	e, err := h.Ledger.UpdateEntry(r.Context(), actor(r), ledger.EntryID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// TransferEntry moves an entry to another period of the same seller.
func (h *Handler) TransferEntry(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.Ledger.TransferEntry(r.Context(), actor(r),
		ledger.EntryID(chi.URLParam(r, "id")), ledger.PeriodKey(req.ToPeriod))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ListReconciliationRuns returns recent sweeps, newest first.
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeFieldError(w, "limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Ledger.Runs(r.Context(), limit)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunReconciliation sweeps every period now. A run that hit errors is
// still returned with status "failed".
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	var run ledger.ReconciliationRun
	if h.Scheduler != nil {
		run = h.Scheduler.RunNow(r.Context())
	} else {
		run, _ = h.Ledger.ReconcileAll(r.Context())
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func periodKey(r *http.Request) ledger.Key {
	return ledger.Key{
		SellerID: ledger.SellerID(chi.URLParam(r, "seller")),
		Period:   ledger.PeriodKey(chi.URLParam(r, "period")),
	}
}

func actor(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
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

func writeFieldError(w http.ResponseWriter, field string, err error) {
	resp := ErrorResponse{Error: "Invalid " + field, Field: field}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeLedgerError maps ledger errors to HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Validation failed", Details: err.Error(), Field: verr.Field,
		})
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Duplicate request", err)
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, "Operation not allowed in current period status", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrPersistence):
		h.Log.Error("persistence failure", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
	default:
		h.Log.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

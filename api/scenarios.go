/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the store with realistic
	commission data. Every write goes through ledger.Ledger, so scenarios
	exercise the same validation, state machine and audit paths as the API.

AVAILABLE SCENARIOS:

	settlement:  Commission, credit and debit, period closed, paid in full
	reopen:      Closed period with 300 still owed, ready to be reopened
	transfer:    Credit of 500 booked in 2025-09, ready to move to 2025-10
	carry-over:  Unpaid September balance carried into October

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create sellers
 3. Record entries and lifecycle actions through the ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "settlement"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

const scenarioActor = "scenario-loader"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "settlement",
		Name:        "Settlement",
		Description: "Commission 1000, credit 200, debit 50; closed and paid 1150, ends paid",
	},
	{
		ID:          "reopen",
		Name:        "Reopen",
		Description: "Closed period with 300 still owed; reopen succeeds once",
	},
	{
		ID:          "transfer",
		Name:        "Transfer",
		Description: "Credit of 500 booked in 2025-09 that belongs to 2025-10",
	},
	{
		ID:          "carry-over",
		Name:        "Carry-over",
		Description: "September closed with 250 unpaid, October starts owing 250",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"settlement": (*Handler).loadSettlementScenario,
	"reopen":     (*Handler).loadReopenScenario,
	"transfer":   (*Handler).loadTransferScenario,
	"carry-over": (*Handler).loadCarryOverScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx); err != nil {
		h.Log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSettlementScenario(ctx context.Context) error {
	const seller = "seller-ana"
	if err := h.Store.SaveSeller(ctx, ledger.Seller{ID: seller, Name: "Ana Souza", Email: "ana@example.com"}); err != nil {
		return err
	}
	key := ledger.Key{SellerID: seller, Period: "2025-10"}

	if _, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-10", "sale-1001", "10000", "10", "1000", day(2025, 10, 3))); err != nil {
		return err
	}
	if _, err := h.Ledger.AddManualEntry(ctx, scenarioActor, manual(seller, "2025-10", ledger.KindCredit, "200", "Campaign bonus", day(2025, 10, 10))); err != nil {
		return err
	}
	if _, err := h.Ledger.AddManualEntry(ctx, scenarioActor, manual(seller, "2025-10", ledger.KindDebit, "50", "Returned sample", day(2025, 10, 12))); err != nil {
		return err
	}
	if _, err := h.Ledger.Close(ctx, scenarioActor, key); err != nil {
		return err
	}
	_, err := h.Ledger.RegisterPayment(ctx, scenarioActor, payment(seller, "2025-10", "1150", "pix", day(2025, 11, 5)))
	return err
}

func (h *Handler) loadReopenScenario(ctx context.Context) error {
	const seller = "seller-bruno"
	if err := h.Store.SaveSeller(ctx, ledger.Seller{ID: seller, Name: "Bruno Lima", Email: "bruno@example.com"}); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-10", "sale-2001", "6000", "5", "300", day(2025, 10, 8))); err != nil {
		return err
	}
	_, err := h.Ledger.Close(ctx, scenarioActor, ledger.Key{SellerID: seller, Period: "2025-10"})
	return err
}

func (h *Handler) loadTransferScenario(ctx context.Context) error {
	const seller = "seller-carla"
	if err := h.Store.SaveSeller(ctx, ledger.Seller{ID: seller, Name: "Carla Mendes", Email: "carla@example.com"}); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-09", "sale-3001", "8000", "10", "800", day(2025, 9, 15))); err != nil {
		return err
	}
	if _, err := h.Ledger.AddManualEntry(ctx, scenarioActor, manual(seller, "2025-09", ledger.KindCredit, "500", "Goal bonus (October)", day(2025, 9, 30))); err != nil {
		return err
	}
	_, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-10", "sale-3002", "4000", "10", "400", day(2025, 10, 2)))
	return err
}

func (h *Handler) loadCarryOverScenario(ctx context.Context) error {
	const seller = "seller-diego"
	if err := h.Store.SaveSeller(ctx, ledger.Seller{ID: seller, Name: "Diego Rocha", Email: "diego@example.com"}); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-09", "sale-4001", "5000", "15", "750", day(2025, 9, 9))); err != nil {
		return err
	}
	if _, err := h.Ledger.RegisterPayment(ctx, scenarioActor, payment(seller, "2025-09", "500", "transfer", day(2025, 9, 28))); err != nil {
		return err
	}
	if _, err := h.Ledger.Close(ctx, scenarioActor, ledger.Key{SellerID: seller, Period: "2025-09"}); err != nil {
		return err
	}
	_, err := h.Ledger.RecordCommission(ctx, scenarioActor, commission(seller, "2025-10", "sale-4002", "2000", "15", "300", day(2025, 10, 6)))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func commission(seller, period, sale, saleAmount, percent, amount string, date time.Time) ledger.CommissionInput {
	return ledger.CommissionInput{
		SellerID:          ledger.SellerID(seller),
		Period:            ledger.PeriodKey(period),
		SaleID:            sale,
		SaleAmount:        decimal.RequireFromString(saleAmount),
		CommissionPercent: decimal.RequireFromString(percent),
		CommissionAmount:  decimal.RequireFromString(amount),
		Rule:              ledger.RuleFixedSellerRate,
		Date:              date,
	}
}

func manual(seller, period string, kind ledger.EntryKind, amount, description string, date time.Time) ledger.ManualEntryInput {
	return ledger.ManualEntryInput{
		SellerID:    ledger.SellerID(seller),
		Period:      ledger.PeriodKey(period),
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		Date:        date,
	}
}

func payment(seller, period, amount, method string, date time.Time) ledger.PaymentInput {
	return ledger.PaymentInput{
		SellerID:      ledger.SellerID(seller),
		Period:        ledger.PeriodKey(period),
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: method,
		Date:          date,
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

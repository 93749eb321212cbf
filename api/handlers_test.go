/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Entry ingress (commissions, adjustments, payments)
- Period lifecycle endpoints and status mapping
- Transfers and edits
- Error responses (field names, 404/409 mapping)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/mediandev/prosellerv1-sub003/ledger"
	"github.com/mediandev/prosellerv1-sub003/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	if err := mem.SaveSeller(context.Background(), ledger.Seller{ID: "s1", Name: "Ana Souza", Email: "ana@example.com"}); err != nil {
		t.Fatalf("Failed to save seller: %v", err)
	}
	log := zaptest.NewLogger(t)
	l := ledger.New(mem, ledger.Options{Logger: log, Directory: mem})
	h := NewHandler(l, mem, log)
	return &testServer{handler: h, router: NewRouter(h, []string{"*"}), store: mem}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (ts *testServer) postCommission(t *testing.T, period, amount string) EntryDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/commissions", CommissionRequest{
		SellerID:          "s1",
		Period:            period,
		SaleID:            "sale-" + amount,
		SaleAmount:        dec(amount).Mul(dec("10")),
		CommissionPercent: dec("10"),
		CommissionAmount:  dec(amount),
		Rule:              "fixed_seller_rate",
		Date:              "2025-10-03",
	}, "feed")
	expectStatus(t, rec, http.StatusCreated)
	return decodeBody[EntryDTO](t, rec)
}

func (ts *testServer) postAdjustment(t *testing.T, period, kind, amount string) EntryDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/adjustments", AdjustmentRequest{
		SellerID:    "s1",
		Period:      period,
		Kind:        kind,
		Amount:      dec(amount),
		Description: kind + " adjustment",
	}, "ana")
	expectStatus(t, rec, http.StatusCreated)
	return decodeBody[EntryDTO](t, rec)
}

func (ts *testServer) statement(t *testing.T, period string) StatementDTO {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/sellers/s1/periods/"+period, nil, "")
	expectStatus(t, rec, http.StatusOK)
	return decodeBody[StatementDTO](t, rec)
}

// =============================================================================
// SETTLEMENT FLOW
// =============================================================================

func TestAPI_SettlementFlow(t *testing.T) {
	// GIVEN: commission 1000, credit 200, debit 50 posted for 2025-10
	// WHEN: the period is closed and a payment of 1150 is registered
	// THEN: the statement shows balance 0 and status paid

	ts := newTestServer(t)

	ts.postCommission(t, "2025-10", "1000")
	ts.postAdjustment(t, "2025-10", "credit", "200")
	ts.postAdjustment(t, "2025-10", "debit", "50")

	st := ts.statement(t, "2025-10")
	if !st.Record.NetLiability.Equal(dec("1150")) {
		t.Fatalf("Expected net liability 1150, got %s", st.Record.NetLiability)
	}
	if len(st.Commissions) != 1 || len(st.Credits) != 1 || len(st.Debits) != 1 {
		t.Fatalf("Unexpected grouping: %+v", st)
	}
	if st.Seller == nil || st.Seller.Initials != "AS" {
		t.Errorf("Expected seller label AS, got %+v", st.Seller)
	}

	rec := ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, "ana")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[PeriodDTO](t, rec); got.Status != "closed" || got.ClosedAt == "" {
		t.Fatalf("Expected closed period with closed_at, got %+v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/payments", PaymentRequest{
		SellerID:      "s1",
		Period:        "2025-10",
		Amount:        dec("1150"),
		PaymentMethod: "pix",
		ReceiptRef:    "rcpt-1",
	}, "ana")
	expectStatus(t, rec, http.StatusCreated)
	payment := decodeBody[EntryDTO](t, rec)
	if payment.Kind != "payment" || payment.CreatedBy != "ana" {
		t.Errorf("Unexpected payment entry: %+v", payment)
	}

	st = ts.statement(t, "2025-10")
	if st.Record.Status != "paid" {
		t.Errorf("Expected status paid, got %s", st.Record.Status)
	}
	if !st.Record.Balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", st.Record.Balance)
	}
	if st.Record.PaidAt == "" {
		t.Error("Expected paid_at to be set")
	}
}

func TestAPI_CommissionDTOCarriesSaleFields(t *testing.T) {
	ts := newTestServer(t)

	e := ts.postCommission(t, "2025-10", "12.50")

	if e.SaleAmount == nil || !e.SaleAmount.Equal(dec("125")) {
		t.Errorf("Expected sale_amount 125, got %v", e.SaleAmount)
	}
	if e.Rule != "fixed_seller_rate" {
		t.Errorf("Expected rule fixed_seller_rate, got %q", e.Rule)
	}
	if e.Date != "2025-10-03T00:00:00Z" {
		t.Errorf("Expected date 2025-10-03, got %q", e.Date)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_ReopenTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "300")

	expectStatus(t, ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, ""), http.StatusOK)

	rec := ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/reopen", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[PeriodDTO](t, rec); got.Status != "open" {
		t.Fatalf("Expected open, got %s", got.Status)
	}

	rec = ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/reopen", nil, "")
	expectStatus(t, rec, http.StatusConflict)
}

func TestAPI_MarkPaidWithBalanceOwed(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "300")
	expectStatus(t, ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, ""), http.StatusOK)

	rec := ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/mark-paid", nil, "")
	expectStatus(t, rec, http.StatusConflict)
}

func TestAPI_LateAdjustmentRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "300")
	expectStatus(t, ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, ""), http.StatusOK)

	rec := ts.do(t, http.MethodPost, "/api/adjustments", AdjustmentRequest{
		SellerID: "s1", Period: "2025-10", Kind: "credit", Amount: dec("10"), Description: "late",
	}, "")
	expectStatus(t, rec, http.StatusConflict)
}

func TestAPI_RecalculateAndCarryOver(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-09", "100")
	ts.postCommission(t, "2025-10", "10")
	ts.postAdjustment(t, "2025-09", "credit", "5")

	rec := ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/recalculate", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[PeriodDTO](t, rec); !got.PriorBalance.Equal(dec("100")) {
		t.Fatalf("Expected prior balance snapshot 100, got %s", got.PriorBalance)
	}

	rec = ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/carry-over", nil, "")
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[PeriodDTO](t, rec)
	if !got.PriorBalance.Equal(dec("105")) || !got.NetLiability.Equal(dec("115")) {
		t.Fatalf("Expected prior 105 and net 115, got %s and %s", got.PriorBalance, got.NetLiability)
	}
}

func TestAPI_ListPeriods(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "1")
	ts.postCommission(t, "2025-09", "1")

	rec := ts.do(t, http.MethodGet, "/api/sellers/s1/periods", nil, "")
	expectStatus(t, rec, http.StatusOK)
	periods := decodeBody[[]PeriodDTO](t, rec)
	if len(periods) != 2 || periods[0].Period != "2025-09" {
		t.Fatalf("Expected two periods ordered by key, got %+v", periods)
	}
}

func TestAPI_ListSellers(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/sellers", nil, "")
	expectStatus(t, rec, http.StatusOK)
	sellers := decodeBody[[]SellerDTO](t, rec)
	if len(sellers) != 1 || sellers[0].ID != "s1" || sellers[0].Initials != "AS" {
		t.Fatalf("Unexpected sellers: %+v", sellers)
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestAPI_TransferEntry(t *testing.T) {
	// GIVEN: a credit of 500 in 2025-09
	// WHEN: it is transferred to 2025-10
	// THEN: the combined net liability is unchanged

	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "100")
	credit := ts.postAdjustment(t, "2025-09", "credit", "500")

	before := ts.statement(t, "2025-09").Record.NetLiability.Add(ts.statement(t, "2025-10").Record.NetLiability)

	rec := ts.do(t, http.MethodPost, "/api/entries/"+credit.ID+"/transfer", TransferRequest{ToPeriod: "2025-10"}, "ana")
	expectStatus(t, rec, http.StatusOK)
	moved := decodeBody[EntryDTO](t, rec)
	if moved.Period != "2025-10" || moved.EditedBy != "ana" {
		t.Fatalf("Unexpected transferred entry: %+v", moved)
	}

	sep, oct := ts.statement(t, "2025-09"), ts.statement(t, "2025-10")
	if !sep.Record.NetLiability.IsZero() {
		t.Errorf("Expected 2025-09 net 0, got %s", sep.Record.NetLiability)
	}
	if after := sep.Record.NetLiability.Add(oct.Record.NetLiability); !after.Equal(before) {
		t.Errorf("Total changed: before %s, after %s", before, after)
	}

	rec = ts.do(t, http.MethodGet, "/api/sellers/s1/periods/2025-10/audit", nil, "")
	expectStatus(t, rec, http.StatusOK)
	audit := decodeBody[[]AuditDTO](t, rec)
	last := audit[len(audit)-1]
	if last.Action != "entry_transferred" || last.Actor != "ana" || last.Payload["from"] != "2025-09" {
		t.Errorf("Unexpected audit row: %+v", last)
	}
}

func TestAPI_UpdateEntry(t *testing.T) {
	ts := newTestServer(t)
	credit := ts.postAdjustment(t, "2025-10", "credit", "200")

	rec := ts.do(t, http.MethodPatch, "/api/entries/"+credit.ID, `{"amount": "250", "date": "2025-10-20"}`, "ana")
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[EntryDTO](t, rec)
	if !got.Amount.Equal(dec("250")) || got.Date != "2025-10-20T00:00:00Z" {
		t.Fatalf("Unexpected entry after update: %+v", got)
	}
	if st := ts.statement(t, "2025-10"); !st.Record.NetLiability.Equal(dec("250")) {
		t.Errorf("Expected net 250, got %s", st.Record.NetLiability)
	}

	rec = ts.do(t, http.MethodPatch, "/api/entries/"+credit.ID, `{"date": "20/10/2025"}`, "")
	expectStatus(t, rec, http.StatusBadRequest)
	if e := decodeBody[ErrorResponse](t, rec); e.Field != "date" {
		t.Errorf("Expected field date, got %q", e.Field)
	}

	rec = ts.do(t, http.MethodPatch, "/api/entries/"+credit.ID, `{"period": "2025-11"}`, "")
	expectStatus(t, rec, http.StatusOK)
	if e := decodeBody[EntryDTO](t, rec); e.Period != "2025-11" {
		t.Errorf("Expected a period patch to move the entry, got %s", e.Period)
	}
}

func TestAPI_GetEntry(t *testing.T) {
	ts := newTestServer(t)
	c := ts.postCommission(t, "2025-10", "10")

	rec := ts.do(t, http.MethodGet, "/api/entries/"+c.ID, nil, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[EntryDTO](t, rec); got.ID != c.ID {
		t.Errorf("Expected %s, got %s", c.ID, got.ID)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/entries/missing", nil, ""), http.StatusNotFound)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestAPI_ValidationNamesField(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"zero adjustment", "/api/adjustments", AdjustmentRequest{
			SellerID: "s1", Period: "2025-10", Kind: "credit", Amount: decimal.Zero, Description: "x",
		}, "amount"},
		{"unknown kind", "/api/adjustments", AdjustmentRequest{
			SellerID: "s1", Period: "2025-10", Kind: "bonus", Amount: dec("1"), Description: "x",
		}, "kind"},
		{"bad period", "/api/payments", PaymentRequest{
			SellerID: "s1", Period: "Oct 2025", Amount: dec("1"), PaymentMethod: "pix",
		}, "period"},
		{"missing method", "/api/payments", PaymentRequest{
			SellerID: "s1", Period: "2025-10", Amount: dec("1"),
		}, "paymentMethod"},
		{"bad date", "/api/commissions", CommissionRequest{
			SellerID: "s1", Period: "2025-10", SaleID: "x", Rule: "fixed_seller_rate", Date: "yesterday",
		}, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body, "")
			expectStatus(t, rec, http.StatusBadRequest)
			if e := decodeBody[ErrorResponse](t, rec); e.Field != tt.field {
				t.Errorf("Expected field %q, got %q (%s)", tt.field, e.Field, e.Details)
			}
		})
	}
}

func TestAPI_UnknownSeller(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/adjustments", AdjustmentRequest{
		SellerID: "ghost", Period: "2025-10", Kind: "credit", Amount: dec("1"), Description: "x",
	}, "")
	expectStatus(t, rec, http.StatusNotFound)
}

func TestAPI_DuplicateIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	body := PaymentRequest{
		SellerID: "s1", Period: "2025-10", Amount: dec("5"), PaymentMethod: "pix", IdempotencyKey: "pay-1",
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/payments", body, ""), http.StatusCreated)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/payments", body, ""), http.StatusConflict)
}

func TestAPI_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/commissions", `{"seller_id": `, "")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestAPI_PeriodNotFound(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/sellers/s1/periods/2025-10", nil, ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, ""), http.StatusNotFound)
}

func TestAPI_DefaultActorIsSystem(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "1")
	expectStatus(t, ts.do(t, http.MethodPost, "/api/sellers/s1/periods/2025-10/close", nil, ""), http.StatusOK)

	rec := ts.do(t, http.MethodGet, "/api/sellers/s1/periods/2025-10/audit", nil, "")
	expectStatus(t, rec, http.StatusOK)
	audit := decodeBody[[]AuditDTO](t, rec)
	last := audit[len(audit)-1]
	if last.Action != "period_closed" || last.Actor != ledger.SystemActor {
		t.Errorf("Expected period_closed by system, got %+v", last)
	}
}

// =============================================================================
// RECONCILIATION & HEALTH
// =============================================================================

func TestAPI_Reconciliation(t *testing.T) {
	ts := newTestServer(t)
	ts.postCommission(t, "2025-10", "10")

	rec, err := ts.store.GetPeriod(context.Background(), ledger.Key{SellerID: "s1", Period: "2025-10"})
	if err != nil {
		t.Fatalf("Failed to load period: %v", err)
	}
	rec.Balance = dec("1")
	if err := ts.store.UpdatePeriod(context.Background(), rec); err != nil {
		t.Fatalf("Failed to corrupt period: %v", err)
	}

	resp := ts.do(t, http.MethodPost, "/api/reconciliation/run", nil, "")
	expectStatus(t, resp, http.StatusOK)
	run := decodeBody[RunDTO](t, resp)
	if run.Status != "completed" || run.Checked != 1 || run.Drifted != 1 {
		t.Fatalf("Unexpected run: %+v", run)
	}

	resp = ts.do(t, http.MethodGet, "/api/reconciliation/runs?limit=5", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if runs := decodeBody[[]RunDTO](t, resp); len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("Expected the run to be listed, got %+v", runs)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/reconciliation/runs?limit=zero", nil, ""), http.StatusBadRequest)
}

func TestAPI_Healthz(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/healthz", nil, ""), http.StatusOK)
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every amount is a decimal.Decimal, which marshals as a JSON string
  ("125.50") and accepts both strings and numbers on input.

DATES:
  Dates are "2006-01-02" or RFC3339 on input, RFC3339 on output.

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CommissionRequest is a SaleCommission fact from the sale feed.
type CommissionRequest struct {
	SellerID          string          `json:"seller_id"`
	Period            string          `json:"period"`
	SaleID            string          `json:"sale_id"`
	SaleAmount        decimal.Decimal `json:"sale_amount"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	CommissionAmount  decimal.Decimal `json:"commission_amount"`
	Rule              string          `json:"rule_applied"`
	PriceListID       string          `json:"price_list_id,omitempty"`
	Note              string          `json:"note,omitempty"`
	Date              string          `json:"date,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
}

// AdjustmentRequest creates a manual credit or debit.
type AdjustmentRequest struct {
	SellerID       string          `json:"seller_id"`
	Period         string          `json:"period"`
	Kind           string          `json:"kind"` // credit | debit
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Date           string          `json:"date,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// PaymentRequest registers a payment to a seller.
type PaymentRequest struct {
	SellerID       string          `json:"seller_id"`
	Period         string          `json:"period"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method"`
	ReceiptRef     string          `json:"receipt_ref,omitempty"`
	Note           string          `json:"note,omitempty"`
	Date           string          `json:"date,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// UpdateEntryRequest is a partial update. Omitted fields are unchanged.
type UpdateEntryRequest struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Date          *string          `json:"date,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
	ReceiptRef    *string          `json:"receipt_ref,omitempty"`
	Note          *string          `json:"note,omitempty"`
	Period        *string          `json:"period,omitempty"`
}

// TransferRequest moves an entry to another period.
type TransferRequest struct {
	ToPeriod string `json:"to_period"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// EntryDTO represents any entry kind. Kind-specific fields are omitted
// when empty.
type EntryDTO struct {
	ID                string           `json:"id"`
	Kind              string           `json:"kind"`
	SellerID          string           `json:"seller_id"`
	Period            string           `json:"period"`
	Date              string           `json:"date"`
	Amount            decimal.Decimal  `json:"amount"`
	Description       string           `json:"description,omitempty"`
	SaleID            string           `json:"sale_id,omitempty"`
	SaleAmount        *decimal.Decimal `json:"sale_amount,omitempty"`
	CommissionPercent *decimal.Decimal `json:"commission_percent,omitempty"`
	Rule              string           `json:"rule_applied,omitempty"`
	PriceListID       string           `json:"price_list_id,omitempty"`
	PaymentMethod     string           `json:"payment_method,omitempty"`
	ReceiptRef        string           `json:"receipt_ref,omitempty"`
	Note              string           `json:"note,omitempty"`
	CreatedBy         string           `json:"created_by"`
	CreatedAt         string           `json:"created_at"`
	EditedBy          string           `json:"edited_by,omitempty"`
	EditedAt          string           `json:"edited_at,omitempty"`
}

// PeriodDTO is a period record.
type PeriodDTO struct {
	ID           string          `json:"id"`
	SellerID     string          `json:"seller_id"`
	Period       string          `json:"period"`
	PeriodType   string          `json:"period_type"`
	Status       string          `json:"status"`
	GeneratedAt  string          `json:"generated_at"`
	ClosedAt     string          `json:"closed_at,omitempty"`
	PaidAt       string          `json:"paid_at,omitempty"`
	PriorBalance decimal.Decimal `json:"prior_balance"`
	NetLiability decimal.Decimal `json:"net_liability"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Balance      decimal.Decimal `json:"balance"`
}

// SellerDTO is the display label for a seller.
type SellerDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Initials string `json:"initials"`
}

// StatementDTO is a period with all of its entries, grouped by kind.
type StatementDTO struct {
	Seller      *SellerDTO `json:"seller,omitempty"`
	Record      PeriodDTO  `json:"record"`
	Commissions []EntryDTO `json:"commissions"`
	Credits     []EntryDTO `json:"credits"`
	Debits      []EntryDTO `json:"debits"`
	Payments    []EntryDTO `json:"payments"`
}

// AuditDTO is one audit trail row.
type AuditDTO struct {
	ID       string            `json:"id"`
	At       string            `json:"at"`
	Actor    string            `json:"actor"`
	Action   string            `json:"action"`
	SellerID string            `json:"seller_id,omitempty"`
	Period   string            `json:"period,omitempty"`
	EntryID  string            `json:"entry_id,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// RunDTO is a reconciliation run.
type RunDTO struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	Checked     int    `json:"checked"`
	Drifted     int    `json:"drifted"`
	Repaired    int    `json:"repaired"`
	Error       string `json:"error,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:            string(e.ID),
		Kind:          string(e.Kind),
		SellerID:      string(e.SellerID),
		Period:        string(e.Period),
		Date:          formatTime(e.Date),
		Amount:        e.Amount,
		Description:   e.Description,
		SaleID:        e.SaleID,
		Rule:          string(e.Rule),
		PriceListID:   e.PriceListID,
		PaymentMethod: e.PaymentMethod,
		ReceiptRef:    e.ReceiptRef,
		Note:          e.Note,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     formatTime(e.CreatedAt),
		EditedBy:      e.EditedBy,
		EditedAt:      formatTimePtr(e.EditedAt),
	}
	if e.Kind == ledger.KindCommission {
		saleAmount, percent := e.SaleAmount, e.CommissionPercent
		dto.SaleAmount = &saleAmount
		dto.CommissionPercent = &percent
	}
	return dto
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

func toPeriodDTO(r ledger.PeriodRecord) PeriodDTO {
	return PeriodDTO{
		ID:           string(r.ID),
		SellerID:     string(r.SellerID),
		Period:       string(r.Period),
		PeriodType:   string(r.PeriodType),
		Status:       string(r.Status),
		GeneratedAt:  formatTime(r.GeneratedAt),
		ClosedAt:     formatTimePtr(r.ClosedAt),
		PaidAt:       formatTimePtr(r.PaidAt),
		PriorBalance: r.PriorBalance,
		NetLiability: r.NetLiability,
		TotalPaid:    r.TotalPaid,
		Balance:      r.Balance,
	}
}

func toStatementDTO(st ledger.Statement) StatementDTO {
	dto := StatementDTO{
		Record:      toPeriodDTO(st.Record),
		Commissions: toEntryDTOs(st.Entries.Commissions),
		Credits:     toEntryDTOs(st.Entries.Credits),
		Debits:      toEntryDTOs(st.Entries.Debits),
		Payments:    toEntryDTOs(st.Entries.Payments),
	}
	if st.Seller != nil {
		dto.Seller = &SellerDTO{
			ID:       string(st.Seller.ID),
			Name:     st.Seller.Name,
			Email:    st.Seller.Email,
			Initials: st.Seller.Initials,
		}
	}
	return dto
}

func toAuditDTO(a ledger.AuditEntry) AuditDTO {
	return AuditDTO{
		ID:       a.ID,
		At:       formatTime(a.At),
		Actor:    a.Actor,
		Action:   string(a.Action),
		SellerID: string(a.SellerID),
		Period:   string(a.Period),
		EntryID:  string(a.EntryID),
		Payload:  a.Payload,
	}
}

func toRunDTO(r ledger.ReconciliationRun) RunDTO {
	return RunDTO{
		ID:          r.ID,
		Status:      string(r.Status),
		StartedAt:   formatTime(r.StartedAt),
		CompletedAt: formatTime(r.CompletedAt),
		Checked:     r.Checked,
		Drifted:     r.Drifted,
		Repaired:    r.Repaired,
		Error:       r.Error,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// parseDate accepts "2006-01-02" or RFC3339. Empty means zero time, which
// the ledger replaces with now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

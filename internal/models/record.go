package models

import "github.com/shopspring/decimal"

type MatchStatus string

const (
	StatusMatched   MatchStatus = "MATCHED"
	StatusPartial   MatchStatus = "PARTIAL"
	StatusUnmatched MatchStatus = "UNMATCHED"
	StatusDuplicate MatchStatus = "DUPLICATE"
	StatusMissing   MatchStatus = "MISSING"
)

// AllStatuses lists the five record statuses in display order.
var AllStatuses = []MatchStatus{
	StatusMatched, StatusPartial, StatusUnmatched, StatusDuplicate, StatusMissing,
}

// SideRecord is one side's version of a transaction: the backoffice
// ledger entry or the vendor entry.
type SideRecord struct {
	ID          string          `json:"id"`
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Direction   string          `json:"direction"`
}

// Record is a single transaction-level comparison result within a batch.
// BankRecord is nil when the backoffice side is absent entirely, which is
// distinct from a bank record carrying a zero amount.
type Record struct {
	ID                 int64           `json:"id"`
	TransactionID      string          `json:"transaction_id"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Date               string          `json:"date"`
	Status             MatchStatus     `json:"status"`
	Confidence         float64         `json:"confidence"`
	ConfidenceKnown    bool            `json:"confidence_known"`
	Direction          string          `json:"direction"`
	BankRecord         *SideRecord     `json:"bank_record,omitempty"`
	VendorRecord       SideRecord      `json:"vendor_record"`
	AIReasoning        string          `json:"ai_reasoning"`
	FieldFlags         []string        `json:"field_flags"`
	Resolved           bool            `json:"resolved"`
	ResolutionComments []string        `json:"resolution_comments"`
}

// BankAmount returns the bank-side amount, or zero when there is no bank
// record. Aggregations sum this value.
func (r *Record) BankAmount() decimal.Decimal {
	if r.BankRecord == nil {
		return decimal.Zero
	}
	return r.BankRecord.Amount
}

package mapper

import (
	"encoding/json"
	"testing"

	"recon-review-gateway/internal/models"
	"recon-review-gateway/internal/upstream"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestMapRecordAllFieldsMalformedStillMaps(t *testing.T) {
	raw := upstream.RawRecord{
		ID:             42,
		MatchStatus:    "MISMATCH",
		DisplayData:    "{not json",
		VendorData:     "also broken",
		BackofficeData: "[",
		FieldFlags:     "{{",
	}

	record := MapRecord(raw)

	assert.Equal(t, "TXN-42", record.TransactionID)
	assert.Equal(t, "Unknown Transaction", record.Description)
	assert.True(t, record.Amount.IsZero())
	assert.Equal(t, "Unknown", record.Direction)
	assert.Empty(t, record.FieldFlags)
	assert.Nil(t, record.BankRecord)
	assert.Equal(t, models.StatusUnmatched, record.Status)
}

func TestMapRecordStatusTable(t *testing.T) {
	cases := map[string]models.MatchStatus{
		"MATCH":         models.StatusMatched,
		"FULL_MATCH":    models.StatusMatched,
		"PARTIAL_MATCH": models.StatusPartial,
		"MISMATCH":      models.StatusUnmatched,
		"DUPLICATE":     models.StatusDuplicate,
		"MISSING":       models.StatusMissing,
		"SOMETHING":     models.StatusUnmatched,
		"":              models.StatusUnmatched,
	}
	valid := map[models.MatchStatus]bool{}
	for _, s := range models.AllStatuses {
		valid[s] = true
	}
	for input, want := range cases {
		got := MapRecord(upstream.RawRecord{ID: 1, MatchStatus: input}).Status
		assert.Equal(t, want, got, "matchStatus %q", input)
		assert.True(t, valid[got], "status must be one of the five enumerated values")
	}
}

func TestMapRecordVendorCorePreferred(t *testing.T) {
	raw := upstream.RawRecord{
		ID:          7,
		MatchStatus: "MATCH",
		VendorData: `{
			"core": {"transaction_id": "TX-100", "amount": 125.5, "date": "2024-03-01", "description": "Vendor payment", "direction": "Debit"},
			"raw":  {"Ref No": "LEGACY-1", "Value": "999"}
		}`,
	}

	record := MapRecord(raw)

	assert.Equal(t, "TX-100", record.TransactionID)
	assert.True(t, record.Amount.Equal(decimal.NewFromFloat(125.5)))
	assert.Equal(t, "2024-03-01", record.Date)
	assert.Equal(t, "Vendor payment", record.Description)
	assert.Equal(t, "Debit", record.Direction)
}

func TestMapRecordLegacyRawFallback(t *testing.T) {
	raw := upstream.RawRecord{
		ID:          8,
		MatchStatus: "MATCH",
		VendorData: `{
			"raw": {"Ref No": "LEGACY-8", "Value": "450.25", "Narrative": "wire transfer", "Txn Date": "2024-04-02", "Dr/Cr": "Credit"}
		}`,
	}

	record := MapRecord(raw)

	assert.Equal(t, "LEGACY-8", record.TransactionID)
	assert.True(t, record.Amount.Equal(decimal.RequireFromString("450.25")))
	assert.Equal(t, "wire transfer", record.Description)
	assert.Equal(t, "2024-04-02", record.Date)
	assert.Equal(t, "Credit", record.Direction)
}

func TestMapRecordBankRecordOnlyWhenPresent(t *testing.T) {
	withBank := MapRecord(upstream.RawRecord{
		ID:             1,
		BackofficeData: `{"core": {"id": "BO-1", "amount": 0}}`,
	})
	require.NotNil(t, withBank.BankRecord)
	assert.Equal(t, "BO-1", withBank.BankRecord.ID)
	assert.True(t, withBank.BankRecord.Amount.IsZero())

	withoutBank := MapRecord(upstream.RawRecord{ID: 2, BackofficeData: `{}`})
	assert.Nil(t, withoutBank.BankRecord)
}

func TestMapRecordReasoning(t *testing.T) {
	fromArray := MapRecord(upstream.RawRecord{
		ID:            1,
		Discrepancies: `["amount mismatch: 10 vs 12", "description differs: partial"]`,
	})
	assert.Equal(t, "amount mismatch: 10 vs 12; description differs: partial", fromArray.AIReasoning)

	fromString := MapRecord(upstream.RawRecord{ID: 2, Discrepancies: `"date off by one day"`})
	assert.Equal(t, "date off by one day", fromString.AIReasoning)

	fromGarbage := MapRecord(upstream.RawRecord{ID: 3, Discrepancies: `date off {`})
	assert.Equal(t, "date off {", fromGarbage.AIReasoning)
}

func TestMapRecordResolutionComments(t *testing.T) {
	bare := MapRecord(upstream.RawRecord{ID: 1, ResolutionComment: json.RawMessage(`"checked manually"`)})
	assert.Equal(t, []string{"checked manually"}, bare.ResolutionComments)

	list := MapRecord(upstream.RawRecord{ID: 2, ResolutionComment: json.RawMessage(`["first", "second"]`)})
	assert.Equal(t, []string{"first", "second"}, list.ResolutionComments)

	absent := MapRecord(upstream.RawRecord{ID: 3})
	assert.Empty(t, absent.ResolutionComments)
}

func TestMapRecordConfidence(t *testing.T) {
	known := MapRecord(upstream.RawRecord{ID: 1, ConfidenceScore: floatPtr(0.87)})
	assert.True(t, known.ConfidenceKnown)
	assert.InDelta(t, 0.87, known.Confidence, 1e-9)

	clamped := MapRecord(upstream.RawRecord{ID: 2, ConfidenceScore: floatPtr(1.7)})
	assert.Equal(t, 1.0, clamped.Confidence)

	unknown := MapRecord(upstream.RawRecord{ID: 3})
	assert.False(t, unknown.ConfidenceKnown)
	assert.Zero(t, unknown.Confidence)
}

func TestMapRecordDisplayDescriptionWins(t *testing.T) {
	record := MapRecord(upstream.RawRecord{
		ID:          5,
		DisplayData: `{"description": "Card settlement ACME"}`,
		VendorData:  `{"core": {"description": "vendor-side text"}}`,
	})
	assert.Equal(t, "Card settlement ACME", record.Description)
}

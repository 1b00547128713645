package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recon-review-gateway/internal/config"
	"recon-review-gateway/internal/models"
	"recon-review-gateway/internal/upstream"

	"github.com/shopspring/decimal"
)

// sideData is the two-layer shape both the vendor and backoffice blobs
// carry: a normalized core object plus the raw source row under its
// original column names.
type sideData struct {
	Core map[string]any `json:"core"`
	Raw  map[string]any `json:"raw"`
}

func (s sideData) empty() bool {
	return len(s.Core) == 0 && len(s.Raw) == 0
}

// Legacy raw-side column names, keyed by the normalized core field.
var legacyKeys = map[string]string{
	"transaction_id": "Ref No",
	"amount":         "Value",
	"description":    "Narrative",
	"date":           "Txn Date",
	"direction":      "Dr/Cr",
	"status":         "Status",
	"id":             "Id",
}

// MapRecord normalizes one raw backend record. Every embedded JSON string
// decodes independently; a malformed field degrades to empty and the rest
// of the record still maps.
func MapRecord(raw upstream.RawRecord) models.Record {
	display := decodeMap(raw.ID, "displayData", raw.DisplayData)
	vendor := decodeSide(raw.ID, "vendorData", raw.VendorData)
	backoffice := decodeSide(raw.ID, "backofficeData", raw.BackofficeData)

	record := models.Record{
		ID:                 raw.ID,
		TransactionID:      stringField(vendor, "transaction_id", fmt.Sprintf("TXN-%d", raw.ID)),
		Amount:             amountField(vendor),
		Date:               dateField(vendor),
		Direction:          stringField(vendor, "direction", "Unknown"),
		Status:             mapMatchStatus(raw.MatchStatus),
		AIReasoning:        reasoningText(raw.ID, raw.Discrepancies),
		FieldFlags:         decodeFlags(raw.ID, raw.FieldFlags),
		Resolved:           raw.Resolved,
		ResolutionComments: decodeComments(raw.ResolutionComment),
	}

	record.Description = displayString(display, "description")
	if record.Description == "" {
		record.Description = stringField(vendor, "description", "Unknown Transaction")
	}

	if raw.ConfidenceScore != nil {
		record.Confidence = clamp01(*raw.ConfidenceScore)
		record.ConfidenceKnown = true
	}

	record.VendorRecord = buildSideRecord(vendor, fmt.Sprintf("VND-%d", raw.ID))
	if !backoffice.empty() {
		bank := buildSideRecord(backoffice, fmt.Sprintf("BNK-%d", raw.ID))
		record.BankRecord = &bank
	}

	return record
}

func mapMatchStatus(raw string) models.MatchStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MATCH", "FULL_MATCH":
		return models.StatusMatched
	case "PARTIAL_MATCH":
		return models.StatusPartial
	case "MISMATCH":
		return models.StatusUnmatched
	case "DUPLICATE":
		return models.StatusDuplicate
	case "MISSING":
		return models.StatusMissing
	default:
		return models.StatusUnmatched
	}
}

func buildSideRecord(side sideData, fallbackID string) models.SideRecord {
	return models.SideRecord{
		ID:          stringField(side, "id", fallbackID),
		Reference:   stringField(side, "transaction_id", ""),
		Amount:      amountField(side),
		Date:        dateField(side),
		Description: stringField(side, "description", ""),
		Status:      stringField(side, "status", ""),
		Direction:   stringField(side, "direction", ""),
	}
}

// lookup resolves a scalar from the core object first, then the raw
// object under its legacy column name.
func lookup(side sideData, coreKey string) (any, bool) {
	if v, ok := side.Core[coreKey]; ok && v != nil {
		return v, true
	}
	if legacy, ok := legacyKeys[coreKey]; ok {
		if v, ok := side.Raw[legacy]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(side sideData, coreKey, fallback string) string {
	v, ok := lookup(side, coreKey)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return fallback
		}
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return fallback
	}
}

func amountField(side sideData) decimal.Decimal {
	v, ok := lookup(side, "amount")
	if !ok {
		return decimal.Zero
	}
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func dateField(side sideData) string {
	if v, ok := lookup(side, "date"); ok {
		if s, isString := v.(string); isString && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return time.Now().Format("2006-01-02")
}

func displayString(display map[string]any, key string) string {
	if v, ok := display[key]; ok {
		if s, isString := v.(string); isString {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func decodeSide(recordID int64, field, blob string) sideData {
	if strings.TrimSpace(blob) == "" {
		return sideData{}
	}
	var side sideData
	if err := json.Unmarshal([]byte(blob), &side); err != nil {
		logParseFailure(recordID, field, err)
		return sideData{}
	}
	return side
}

func decodeMap(recordID int64, field, blob string) map[string]any {
	if strings.TrimSpace(blob) == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		logParseFailure(recordID, field, err)
		return map[string]any{}
	}
	return m
}

func decodeFlags(recordID int64, blob string) []string {
	if strings.TrimSpace(blob) == "" {
		return []string{}
	}
	var flags []string
	if err := json.Unmarshal([]byte(blob), &flags); err != nil {
		logParseFailure(recordID, "fieldFlags", err)
		return []string{}
	}
	return flags
}

// reasoningText turns the discrepancies blob into one display string: a
// JSON array joins with "; ", a JSON string passes through, anything
// unparsable falls back to the raw text.
func reasoningText(recordID int64, blob string) string {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" {
		return ""
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		logParseFailure(recordID, "discrepancies", err)
		return blob
	}
	switch t := parsed.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; ")
	case string:
		return t
	default:
		return blob
	}
}

func decodeComments(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return []string{}
		}
		return []string{single}
	}
	return []string{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func logParseFailure(recordID int64, field string, err error) {
	config.GetLogger().WithFields(map[string]any{
		"record": recordID,
		"field":  field,
	}).Warnf("payload field failed to parse, degrading to empty: %v", err)
}

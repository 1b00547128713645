package upstream

import "encoding/json"

// RawBatch is the backend's batch payload as delivered. Timestamps are
// RFC3339 strings and status is free-form; normalization happens in the
// mapper, not here.
type RawBatch struct {
	ID               int64  `json:"id"`
	BackofficeFile   string `json:"backofficeFile"`
	VendorFile       string `json:"vendorFile"`
	Status           string `json:"status"`
	ProcessedRecords *int   `json:"processedRecords"`
	ErrorMessage     string `json:"errorMessage"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

// RawRecord is the backend's record payload. DisplayData, VendorData,
// BackofficeData, FieldFlags and Discrepancies are each independently
// JSON-encoded strings; any of them may be absent or malformed.
// ResolutionComment arrives as either a bare string or a list.
type RawRecord struct {
	ID                int64           `json:"id"`
	BatchID           int64           `json:"batchId"`
	MatchStatus       string          `json:"matchStatus"`
	ConfidenceScore   *float64        `json:"confidenceScore"`
	DisplayData       string          `json:"displayData"`
	VendorData        string          `json:"vendorData"`
	BackofficeData    string          `json:"backofficeData"`
	FieldFlags        string          `json:"fieldFlags"`
	Discrepancies     string          `json:"discrepancies"`
	Resolved          bool            `json:"resolved"`
	ResolutionComment json.RawMessage `json:"resolutionComment"`
}

type uploadResponse struct {
	BatchID int64 `json:"batchId"`
}

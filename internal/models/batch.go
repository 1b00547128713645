package models

import (
	"math"
	"time"
)

type BatchStatus string

const (
	BatchPending BatchStatus = "PENDING"
	BatchRunning BatchStatus = "RUNNING"
	BatchDone    BatchStatus = "DONE"
	BatchFailed  BatchStatus = "FAILED"
)

// Batch is one reconciliation run pairing a backoffice file against a
// vendor file. Records are fetched independently and attached later.
type Batch struct {
	ID             string      `json:"id"`
	NumericID      int64       `json:"numeric_id"`
	Status         BatchStatus `json:"status"`
	BackofficeFile string      `json:"backoffice_file"`
	VendorFile     string      `json:"vendor_file"`
	RecordCount    int         `json:"record_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ProcessingTime string      `json:"processing_time,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	MatchRate      int         `json:"match_rate"`
	Records        []Record    `json:"records"`
}

// AttachRecords replaces the batch's record set and recomputes the match
// rate from it. The rate is never trusted from a precomputed field once
// records are loaded.
func (b *Batch) AttachRecords(records []Record) {
	b.Records = records
	if len(records) == 0 {
		b.MatchRate = 0
		return
	}
	matched := 0
	for i := range records {
		if records[i].Status == StatusMatched {
			matched++
		}
	}
	b.MatchRate = int(math.Round(float64(matched) / float64(len(records)) * 100))
}

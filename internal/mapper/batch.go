package mapper

import (
	"fmt"
	"strings"
	"time"

	"recon-review-gateway/internal/models"
	"recon-review-gateway/internal/upstream"
)

const unknownFile = "Unknown File"

// MapBatch normalizes one raw backend batch. Pure: the same input always
// yields the same output (timestamps excepted when the backend omits
// createdAt, which degrades to "now").
func MapBatch(raw upstream.RawBatch) models.Batch {
	status := mapBatchStatus(raw.Status)

	batch := models.Batch{
		ID:             fmt.Sprintf("RB-%d", raw.ID),
		NumericID:      raw.ID,
		Status:         status,
		BackofficeFile: fileName(raw.BackofficeFile),
		VendorFile:     fileName(raw.VendorFile),
		Records:        []models.Record{},
	}

	if raw.ProcessedRecords != nil {
		batch.RecordCount = *raw.ProcessedRecords
	}

	created, createdOK := parseTimestamp(raw.CreatedAt)
	if !createdOK {
		created = time.Now()
	}
	batch.CreatedAt = created

	updated, updatedOK := parseTimestamp(raw.UpdatedAt)
	if updatedOK {
		batch.UpdatedAt = updated
	}

	if status == models.BatchDone && createdOK && updatedOK {
		batch.ProcessingTime = formatProcessingTime(updated.Sub(created))
	}
	if status == models.BatchFailed {
		batch.FailureReason = raw.ErrorMessage
	}

	return batch
}

func mapBatchStatus(raw string) models.BatchStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return models.BatchDone
	case "PROCESSING":
		return models.BatchRunning
	case "FAILED":
		return models.BatchFailed
	default:
		return models.BatchPending
	}
}

func fileName(path string) string {
	if strings.TrimSpace(path) == "" {
		return unknownFile
	}
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return unknownFile
	}
	return path
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatProcessingTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

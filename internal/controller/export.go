package controller

import (
	"fmt"
	"math"
	"strings"
	"time"

	"recon-review-gateway/internal/models"
)

// exportHeader is the fixed 20-column header of the issue export.
const exportHeader = "Transaction ID, Description, Amount, Date, Status, Confidence, Direction, AI Reasoning, Flags, Bank Record ID, Bank Record Reference, Bank Record Amount, Bank Record Date, Bank Record Description, System Record ID, System Record Reference, System Record Amount, System Record Date, System Record Description, Resolution Comments"

// BuildIssueCSV serializes problematic records to CSV. Values carrying a
// comma, quote, or newline are wrapped in double quotes with internal
// quotes doubled.
func BuildIssueCSV(batchID string, records []models.Record, now time.Time) (string, []byte) {
	var b strings.Builder
	b.WriteString(exportHeader)
	b.WriteByte('\n')

	for i := range records {
		b.WriteString(strings.Join(exportRow(&records[i]), ","))
		b.WriteByte('\n')
	}

	filename := fmt.Sprintf("problematic_records_%s_%s.csv", batchID, now.Format("2006-01-02"))
	return filename, []byte(b.String())
}

func exportRow(rec *models.Record) []string {
	fields := []string{
		rec.TransactionID,
		rec.Description,
		rec.Amount.StringFixed(2),
		rec.Date,
		string(rec.Status),
		confidenceCell(rec),
		rec.Direction,
		rec.AIReasoning,
		strings.Join(rec.FieldFlags, "; "),
	}
	fields = append(fields, sideCells(rec.BankRecord)...)
	vendor := rec.VendorRecord
	fields = append(fields, sideCells(&vendor)...)
	fields = append(fields, strings.Join(rec.ResolutionComments, "; "))

	for i := range fields {
		fields[i] = escapeCSV(fields[i])
	}
	return fields
}

func sideCells(side *models.SideRecord) []string {
	if side == nil {
		return []string{"", "", "", "", ""}
	}
	return []string{
		side.ID,
		side.Reference,
		side.Amount.StringFixed(2),
		side.Date,
		side.Description,
	}
}

func confidenceCell(rec *models.Record) string {
	if !rec.ConfidenceKnown {
		return "N/A"
	}
	return fmt.Sprintf("%d%%", int(math.Round(rec.Confidence*100)))
}

func escapeCSV(v string) string {
	if strings.ContainsAny(v, ",\"\n") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

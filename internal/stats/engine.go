package stats

import (
	"fmt"
	"sort"
	"strings"

	"recon-review-gateway/internal/models"

	"github.com/shopspring/decimal"
)

// All aggregations here are pure and recomputed per call. An empty record
// set is a valid input: percentages render as "0%" and money as $0.00.

type DirectionSummary struct {
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"-"`
	TotalF  string          `json:"total"`
	Percent string          `json:"percent"`
	Average string          `json:"average"`
}

type DebitCreditSummary struct {
	Debit       DirectionSummary `json:"debit"`
	Credit      DirectionSummary `json:"credit"`
	NetPosition decimal.Decimal  `json:"-"`
	NetF        string           `json:"net_position"`
}

// ComputeDebitCredit partitions records by direction and sums bank-side
// amounts; records with no bank record contribute zero. Net position is
// total credit minus total debit.
func ComputeDebitCredit(records []models.Record) DebitCreditSummary {
	var debitTotal, creditTotal decimal.Decimal
	var debitCount, creditCount int

	for i := range records {
		switch strings.ToLower(records[i].Direction) {
		case "debit":
			debitCount++
			debitTotal = debitTotal.Add(records[i].BankAmount())
		case "credit":
			creditCount++
			creditTotal = creditTotal.Add(records[i].BankAmount())
		}
	}

	combined := debitTotal.Add(creditTotal)
	net := creditTotal.Sub(debitTotal)

	return DebitCreditSummary{
		Debit:       directionSummary(debitCount, debitTotal, combined),
		Credit:      directionSummary(creditCount, creditTotal, combined),
		NetPosition: net,
		NetF:        FormatCurrency(net),
	}
}

func directionSummary(count int, total, combined decimal.Decimal) DirectionSummary {
	avg := decimal.Zero
	if count > 0 {
		avg = total.Div(decimal.NewFromInt(int64(count)))
	}
	return DirectionSummary{
		Count:   count,
		Total:   total,
		TotalF:  FormatCurrency(total),
		Percent: amountShare(total, combined),
		Average: FormatCurrency(avg),
	}
}

func amountShare(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return "0%"
	}
	share, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Float64()
	return fmt.Sprintf("%.2f%%", share)
}

type StatusRow struct {
	Status        string          `json:"status"`
	Count         int             `json:"count"`
	Percent       string          `json:"percent"`
	TotalAmount   decimal.Decimal `json:"-"`
	TotalAmountF  string          `json:"total_amount"`
	AvgConfidence string          `json:"avg_confidence"`
	AvgAmount     string          `json:"avg_amount"`
}

const totalRowLabel = "TOTAL"

// ComputeStatusBreakdown returns one row per status plus a synthetic
// TOTAL row. TOTAL's percent is "100%" whenever any records exist.
func ComputeStatusBreakdown(records []models.Record) []StatusRow {
	rows := make([]StatusRow, 0, len(models.AllStatuses)+1)

	var grandTotal decimal.Decimal
	var grandConfidence float64

	for _, status := range models.AllStatuses {
		var total decimal.Decimal
		var confidence float64
		count := 0
		for i := range records {
			if records[i].Status != status {
				continue
			}
			count++
			total = total.Add(records[i].Amount)
			confidence += records[i].Confidence
		}

		avgConfidence := 0.0
		avgAmount := decimal.Zero
		if count > 0 {
			avgConfidence = confidence / float64(count)
			avgAmount = total.Div(decimal.NewFromInt(int64(count)))
		}

		grandTotal = grandTotal.Add(total)
		grandConfidence += confidence

		rows = append(rows, StatusRow{
			Status:        string(status),
			Count:         count,
			Percent:       formatPercent(count, len(records)),
			TotalAmount:   total,
			TotalAmountF:  FormatCurrency(total),
			AvgConfidence: formatConfidence(avgConfidence),
			AvgAmount:     FormatCurrency(avgAmount),
		})
	}

	totalPercent := "0%"
	avgConfidence := 0.0
	avgAmount := decimal.Zero
	if len(records) > 0 {
		totalPercent = "100%"
		avgConfidence = grandConfidence / float64(len(records))
		avgAmount = grandTotal.Div(decimal.NewFromInt(int64(len(records))))
	}

	rows = append(rows, StatusRow{
		Status:        totalRowLabel,
		Count:         len(records),
		Percent:       totalPercent,
		TotalAmount:   grandTotal,
		TotalAmountF:  FormatCurrency(grandTotal),
		AvgConfidence: formatConfidence(avgConfidence),
		AvgAmount:     FormatCurrency(avgAmount),
	})

	return rows
}

type DiscrepancyGroup struct {
	IssueType      string          `json:"issue_type"`
	Count          int             `json:"count"`
	AffectedAmount decimal.Decimal `json:"-"`
	AffectedF      string          `json:"affected_amount"`
	Example        string          `json:"example"`
	Severity       string          `json:"severity"`
}

// ComputeDiscrepancies groups the AI-reasoning phrases by issue type: each
// record's reasoning splits on "; " and the text before the first ":" in a
// segment keys the group. Only the first occurrence supplies the example
// citation.
func ComputeDiscrepancies(records []models.Record) []DiscrepancyGroup {
	groups := map[string]*DiscrepancyGroup{}

	for i := range records {
		rec := &records[i]
		if strings.TrimSpace(rec.AIReasoning) == "" {
			continue
		}
		for _, segment := range strings.Split(rec.AIReasoning, "; ") {
			issue := segment
			if idx := strings.Index(segment, ":"); idx >= 0 {
				issue = segment[:idx]
			}
			issue = strings.TrimSpace(issue)
			if issue == "" {
				continue
			}

			group, ok := groups[issue]
			if !ok {
				group = &DiscrepancyGroup{
					IssueType: issue,
					Example:   exampleCitation(rec),
					Severity:  issueSeverity(issue),
				}
				groups[issue] = group
			}
			group.Count++
			group.AffectedAmount = group.AffectedAmount.Add(rec.Amount)
		}
	}

	result := make([]DiscrepancyGroup, 0, len(groups))
	for _, g := range groups {
		g.AffectedF = FormatCurrency(g.AffectedAmount)
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].IssueType < result[j].IssueType
	})
	return result
}

func exampleCitation(rec *models.Record) string {
	bankID := "N/A"
	if rec.BankRecord != nil {
		bankID = rec.BankRecord.ID
	}
	return fmt.Sprintf("%s / %s, %s", rec.TransactionID, bankID, rec.AIReasoning)
}

func issueSeverity(issue string) string {
	if strings.Contains(strings.ToLower(issue), "description") {
		return "Low"
	}
	return "Medium"
}

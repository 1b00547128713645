package stats

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders a US-locale currency string: $1,234.56, with the
// sign ahead of the symbol for negatives.
func FormatCurrency(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	intPart := fixed
	fracPart := "00"
	if idx := strings.Index(fixed, "."); idx >= 0 {
		intPart = fixed[:idx]
		fracPart = fixed[idx+1:]
	}

	grouped := groupThousands(intPart)
	if neg {
		return "-$" + grouped + "." + fracPart
	}
	return "$" + grouped + "." + fracPart
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// formatPercent renders part over whole to two decimal places. A zero
// whole renders as the literal "0%" rather than dividing.
func formatPercent(part, whole int) string {
	if whole == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(whole)*100)
}

// formatConfidence renders an average confidence to four decimal places
// as a plain number.
func formatConfidence(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

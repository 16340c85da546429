// Package utils provides shared formatting helpers.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatUSD formats an amount as US dollars with thousands separators and
// two decimal places, e.g. -$1,234.50.
func FormatUSD(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)

	parts := strings.SplitN(str, ".", 2)
	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative && result != "$0.00" {
		result = "-" + result
	}
	return result
}

// FormatUSDFloat formats a float amount as US dollars.
func FormatUSDFloat(amount float64) string {
	return FormatUSD(decimal.NewFromFloat(amount))
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPnL formats P&L with an explicit sign for gains.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatUSD(pnl)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatQuantity formats a coin quantity without trailing zeros, keeping
// at most eight decimal places.
func FormatQuantity(qty decimal.Decimal) string {
	return qty.Round(8).String()
}

// FormatPrice formats a price; sub-dollar prices keep more precision.
func FormatPrice(price float64) string {
	switch {
	case price >= 1:
		return FormatUSDFloat(price)
	case price >= 0.01:
		return fmt.Sprintf("$%.4f", price)
	default:
		return fmt.Sprintf("$%.8f", price)
	}
}

// FormatConfidence formats a 0-100 confidence.
func FormatConfidence(conf float64) string {
	return fmt.Sprintf("%.1f%%", conf)
}

// FormatRiskReward formats a risk/reward ratio.
func FormatRiskReward(rr float64) string {
	return fmt.Sprintf("1:%.2f", rr)
}

// FormatDateTime formats a timestamp in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// TruncateString shortens s to maxLen, ending with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

package tui

import (
	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/domain"
)

// accruedValue prices elapsed seconds at an hourly rate, to the cent
func accruedValue(rate decimal.Decimal, seconds int64) decimal.Decimal {
	return domain.RoundMoney(rate.Mul(domain.HoursFromSeconds(seconds)))
}

// truncateStr truncates a string to the specified length with ellipsis
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

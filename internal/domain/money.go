package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the minor-unit precision used when an entry is materialised
	MoneyPlaces int32 = 2
	// HoursPlaces is the precision of TimeEntry.Hours
	HoursPlaces int32 = 4
)

var secondsPerHour = decimal.NewFromInt(3600)

// RoundMoney rounds to minor units
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// HoursFromSeconds converts whole seconds to decimal hours
func HoursFromSeconds(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).DivRound(secondsPerHour, HoursPlaces)
}

// ParseMoney parses a user- or config-supplied amount such as "300" or "$1,250.50"
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatMoney formats money as "$X,XXX.XX" with comma separators
func FormatMoney(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	s := amount.Abs().StringFixed(MoneyPlaces)

	dotPos := len(s) - 3
	intPart := s[:dotPos]
	decPart := s[dotPos:]

	result := make([]byte, 0, len(intPart)+len(intPart)/3)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}

	prefix := "$"
	if negative {
		prefix = "-$"
	}
	return prefix + string(result) + decPart
}

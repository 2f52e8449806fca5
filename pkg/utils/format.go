package utils

import (
	"fmt"
)

// FormatPercent formats a fractional value as a signed percentage.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value*100)
}

// FormatCurrency formats an amount with two decimal places.
func FormatCurrency(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-%.2f", -amount)
	}
	return fmt.Sprintf("%.2f", amount)
}

// FormatRatio formats a unitless ratio such as a Sharpe value.
func FormatRatio(value float64) string {
	return fmt.Sprintf("%.3f", value)
}

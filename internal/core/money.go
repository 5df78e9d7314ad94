// Package core provides money parsing and formatting utilities.
//
// Amounts are stored as float64 currency units (not cents) to keep the
// persisted JSON identical to what mobile clients send. All rounding and
// formatting goes through shopspring/decimal.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const amountPlaces = 2

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// zeroDecimalCurrencies are formatted without a fractional part.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
}

// ParseAmount converts a user-typed amount to currency units.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero to two places. Zero, negative and non-numeric values are
// rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-3")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(amountPlaces)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// NormalizeAmount rejects non-finite and non-positive amounts and rounds the
// rest to two places. It is applied to every amount entering the store.
func NormalizeAmount(v float64) (float64, error) {
	if !ValidAmount(v) {
		return 0, ErrInvalidAmount
	}
	d := decimal.NewFromFloat(v).Round(amountPlaces)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// FormatCurrency renders amount for display, e.g. "$1,234.50" or "CHF 12.00".
// NaN and infinite values are shown as zero.
func FormatCurrency(amount float64, currency string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = DefaultCurrency
	}

	places := int32(amountPlaces)
	if zeroDecimalCurrencies[code] {
		places = 0
	}

	d := decimal.NewFromFloat(amount)
	negative := d.Round(places).IsNegative()
	intPart, fracPart, _ := strings.Cut(d.Abs().StringFixed(places), ".")

	out := groupThousands(intPart)
	if fracPart != "" {
		out += "." + fracPart
	}
	if sym, ok := currencySymbols[code]; ok {
		out = sym + out
	} else {
		out = code + " " + out
	}
	if negative {
		out = "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

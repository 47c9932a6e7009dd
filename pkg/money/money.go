// Package money holds the cent arithmetic used for prices and platform fees.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PlatformFeeCents returns percent of priceCents, rounded half-up to a whole cent
func PlatformFeeCents(priceCents int64, percent decimal.Decimal) int64 {
	if priceCents <= 0 || !percent.IsPositive() {
		return 0
	}
	fee := decimal.NewFromInt(priceCents).Mul(percent).Div(hundred).Round(0)
	if fee.GreaterThan(decimal.NewFromInt(priceCents)) {
		return priceCents
	}
	return fee.IntPart()
}

// NetCents returns what the streamer keeps after the platform fee
func NetCents(priceCents int64, percent decimal.Decimal) int64 {
	return priceCents - PlatformFeeCents(priceCents, percent)
}

// Format renders cents for display, e.g. "$5.00" or "5.00 EUR"
func Format(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	switch strings.ToLower(currency) {
	case "usd", "":
		return "$" + amount
	case "eur":
		return "€" + amount
	case "gbp":
		return "£" + amount
	default:
		return amount + " " + strings.ToUpper(currency)
	}
}

// Decimal converts cents into a major-unit decimal, e.g. 1999 -> 19.99
func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

package constants

import "strings"

// CurrencyPrefix matches the currency markers that may precede an amount.
// Kept in sync with the amount patterns in internal/extract.
const CurrencyPrefix = `(?:€|\$|EUR|USD|MXN|COP)`

// CanonicalCurrency maps a matched symbol or code to an ISO 4217 code.
// The dollar sign is ambiguous on domestic invoices; defaultDomestic decides it.
func CanonicalCurrency(matched, defaultDomestic string) string {
	switch {
	case strings.Contains(matched, "$"):
		return defaultDomestic
	case strings.Contains(matched, "€"):
		return "EUR"
	case strings.EqualFold(matched, "USD"):
		return "USD"
	case strings.EqualFold(matched, "MXN"):
		return "MXN"
	default:
		return strings.ToUpper(matched)
	}
}

// Package normalize holds the locale-aware value parsing primitives shared by
// every extraction strategy: amount and date parsing, tax-id cleanup, fuzzy
// string similarity. All functions are pure; unparseable input degrades to a
// nil result, never an error.
package normalize

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	currencyPrefix = regexp.MustCompile(`^(?:€|\$|EUR|USD|MXN|COP)\s*`)
	taxIDJunk      = regexp.MustCompile(`[.\-\s]`)
)

// ParseAmount parses a monetary string whose thousands/decimal separators may
// follow either the comma-decimal or dot-decimal convention. When both
// separators appear, the one appearing last is the decimal point. A lone comma
// is a decimal point. Repeated dots are thousands separators unless the final
// group is longer than two digits, in which case all dots are stripped
// (malformed input heuristic).
func ParseAmount(text string) *float64 {
	value := currencyPrefix.ReplaceAllString(strings.TrimSpace(text), "")
	if value == "" {
		return nil
	}

	hasComma := strings.Contains(value, ",")
	hasDot := strings.Contains(value, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(value, ",") > strings.LastIndex(value, ".") {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.ReplaceAll(value, ",", ".")
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case hasComma:
		value = strings.ReplaceAll(value, ",", ".")
	case strings.Count(value, ".") > 1:
		parts := strings.Split(value, ".")
		last := parts[len(parts)-1]
		if len(last) <= 2 {
			value = strings.Join(parts[:len(parts)-1], "") + "." + last
		} else {
			value = strings.Join(parts, "")
		}
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Debug("amount not parseable", "value", text)
		return nil
	}
	return &f
}

type dateLayout struct {
	layout   string
	twoDigit bool
}

var dateLayouts = []dateLayout{
	{layout: "2/1/2006"},
	{layout: "2-1-2006"},
	{layout: "2006/1/2"},
	{layout: "2006-1-2"},
	{layout: "2/1/06", twoDigit: true},
	{layout: "2-1-06", twoDigit: true},
	{layout: "2 de January de 2006"},
	{layout: "2 January 2006"},
	{layout: "2 de Jan de 2006"},
	{layout: "2 Jan 2006"},
}

// monthReplacer translates Spanish month names to English and restores the
// capitalization Go's layouts require after the input has been lowercased.
var monthReplacer = strings.NewReplacer(
	"enero", "January", "febrero", "February", "marzo", "March",
	"abril", "April", "mayo", "May", "junio", "June",
	"julio", "July", "agosto", "August", "septiembre", "September",
	"octubre", "October", "noviembre", "November", "diciembre", "December",
	"january", "January", "february", "February", "march", "March",
	"april", "April", "may", "May", "june", "June",
	"july", "July", "august", "August", "september", "September",
	"october", "October", "november", "November", "december", "December",
)

// ParseDate parses the date formats seen on invoices: day-first and ISO
// numeric forms plus long Spanish forms ("23 de Mayo de 2025"). Two-digit
// years pivot around the current year: a reading more than 5 years in the
// future falls back to the previous century.
func ParseDate(text string) *time.Time {
	return parseDateAt(text, time.Now())
}

func parseDateAt(text string, now time.Time) *time.Time {
	value := monthReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
	if value == "" {
		return nil
	}
	for _, dl := range dateLayouts {
		t, err := time.Parse(dl.layout, value)
		if err != nil {
			continue
		}
		if dl.twoDigit {
			t = pivotCentury(t, now)
		}
		return &t
	}
	slog.Debug("date not parseable", "value", text)
	return nil
}

func pivotCentury(t time.Time, now time.Time) time.Time {
	yy := t.Year() % 100
	year := (now.Year()/100)*100 + yy
	if year > now.Year()+5 {
		year -= 100
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NormalizeTaxID strips the punctuation (dots, dashes, whitespace) NIT-style
// fiscal identifiers are printed with.
func NormalizeTaxID(text string) string {
	return taxIDJunk.ReplaceAllString(text, "")
}

// Similarity returns a case-insensitive similarity ratio in [0, 1].
// Either input being empty yields 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(strings.ToLower(a), strings.ToLower(b), levenshtein.NewParams())
}

var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics removes combining marks: "Descripción" -> "Descripcion".
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsStripper, s)
	if err != nil {
		return s
	}
	return out
}

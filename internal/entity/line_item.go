package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
)

// LineItem is one detail row of an invoice.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	LineTotal   *float64 `json:"line_total,omitempty"`
}

// Valid reports whether the item survives the noise filter: a non-empty
// description that is not a header/footer token, and at least one positive
// numeric among quantity, unit price and line total.
func (it LineItem) Valid() bool {
	if strings.TrimSpace(it.Description) == "" || constants.IsItemNoise(it.Description) {
		return false
	}
	return positive(it.Quantity) || positive(it.UnitPrice) || positive(it.LineTotal)
}

// DeriveLineTotal fills a missing line total from quantity * unit price,
// rounded to two decimals. No-op when the total is already known.
func (it *LineItem) DeriveLineTotal() {
	if it.LineTotal != nil || it.Quantity == nil || it.UnitPrice == nil {
		return
	}
	total := math.Round(*it.Quantity**it.UnitPrice*100) / 100
	it.LineTotal = &total
}

// Hash is the dedup/replay key: normalized description joined with quantity
// and unit price. Items with the same hash are the same item as far as
// correction replay is concerned.
func (it LineItem) Hash() string {
	return fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(it.Description)),
		formatNum(it.Quantity),
		formatNum(it.UnitPrice),
	)
}

func formatNum(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

// Float64Ptr is a small helper for building optional numeric fields.
func Float64Ptr(v float64) *float64 { return &v }

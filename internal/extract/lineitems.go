package extract

import (
	"regexp"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// itemRowPattern matches "description  qty  unit-price  [currency] total",
// the row shape of text-rendered item tables. The trailing total is optional.
var itemRowPattern = regexp.MustCompile(
	`(.+?)\s+([\d\.,]+)\s+([\d\.,]+)\s*(?:(?:€|\$|EUR|USD|MXN|COP)\s*)?([\d\.,]+)?$`)

var hasDigit = regexp.MustCompile(`\d`)

// ExtractLineItems scans raw text for an item section: the section opens at
// the first line holding a table-header keyword plus a digit, and closes at
// the first subsequent line holding a totals keyword plus a digit. Rows that
// match the pattern but fail the item validity filter are dropped silently,
// not treated as section end.
func (fe *FieldExtractor) ExtractLineItems(text string) []entity.LineItem {
	var items []entity.LineItem
	sectionStarted := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !sectionStarted {
			if containsKeyword(line, constants.ItemSectionStart) && hasDigit.MatchString(line) {
				sectionStarted = true
				fe.logger.Debug("item section start", "line", line)
			}
			continue
		}

		if containsKeyword(line, constants.ItemSectionEnd) && hasDigit.MatchString(line) {
			fe.logger.Debug("item section end", "line", line)
			break
		}

		m := itemRowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := entity.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    normalize.ParseAmount(m[2]),
			UnitPrice:   normalize.ParseAmount(m[3]),
			LineTotal:   normalize.ParseAmount(m[4]),
		}
		item.DeriveLineTotal()
		if !item.Valid() {
			fe.logger.Debug("item row filtered as noise", "line", line)
			continue
		}
		items = append(items, item)
	}

	if sectionStarted && len(items) == 0 {
		fe.logger.Warn("item section detected but no items extracted")
	}
	return items
}

func containsKeyword(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

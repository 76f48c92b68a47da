package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// columnAliases maps canonical item columns to the header names seen in the
// wild, after header normalization.
var columnAliases = map[string][]string{
	"description": {"descripcion", "description", "detalle", "concepto", "item", "desc"},
	"quantity":    {"cantidad", "qty", "quantity", "cant"},
	"unit_price":  {"precio_unitario", "unitario", "precio_unit", "unit_price", "valor_unitario", "vrunitario", "p_unit"},
	"line_total":  {"total", "valor_total", "subtotal", "importe", "vr_total", "total_linea"},
}

// TableLineItems extracts line items from externally detected tables. Every
// configured detection strategy runs, in order, and ALL their items are
// collected and then deduplicated: overlapping detections are reconciled, not
// short-circuited on first success.
type TableLineItems struct {
	logger    *slog.Logger
	detectors []TableDetector
}

func NewTableLineItems(detectors []TableDetector, logger *slog.Logger) *TableLineItems {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableLineItems{logger: logger, detectors: detectors}
}

// ExtractAndParse runs all strategies over the document and returns the
// deduplicated item list. A failing strategy contributes zero items; the rest
// still run.
func (t *TableLineItems) ExtractAndParse(ctx context.Context, path string) []entity.LineItem {
	var collected []entity.LineItem
	for _, d := range t.detectors {
		tables, err := d.DetectTables(ctx, path)
		if err != nil {
			t.logger.Warn("table detection failed", "strategy", d.Name(), "path", path, "err", err)
			continue
		}
		for _, tb := range tables {
			items := t.parseTable(tb)
			if len(items) > 0 {
				t.logger.Debug("items from table", "strategy", d.Name(), "count", len(items))
				collected = append(collected, items...)
			}
		}
	}
	if len(collected) == 0 {
		t.logger.Info("no line items found in tables", "path", path)
		return nil
	}
	return dedupeItems(collected)
}

// parseTable maps a grid's columns to the canonical item schema and filters
// its rows.
func (t *TableLineItems) parseTable(tb Table) []entity.LineItem {
	if len(tb.Rows) < 2 {
		return nil
	}
	headers := make([]string, len(tb.Rows[0]))
	for i, h := range tb.Rows[0] {
		headers[i] = normalizeHeader(h)
	}

	cols := map[string]int{}
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx := indexOf(headers, alias); idx >= 0 {
				cols[canonical] = idx
				break
			}
		}
	}

	if !hasRequiredColumns(cols) {
		// Name lookup failed; assume the common positional layout
		// description / quantity / unit price / line total.
		cols = map[string]int{}
		switch {
		case len(headers) >= 4:
			cols["description"], cols["quantity"], cols["unit_price"], cols["line_total"] = 0, 1, 2, 3
		case len(headers) == 3:
			cols["description"], cols["quantity"], cols["unit_price"] = 0, 1, 2
		default:
			t.logger.Warn("table columns unresolvable", "headers", headers)
			return nil
		}
	}

	var items []entity.LineItem
	for _, row := range tb.Rows[1:] {
		item := entity.LineItem{
			Description: strings.TrimSpace(cell(row, cols, "description")),
			Quantity:    normalize.ParseAmount(cell(row, cols, "quantity")),
			UnitPrice:   normalize.ParseAmount(cell(row, cols, "unit_price")),
			LineTotal:   normalize.ParseAmount(cell(row, cols, "line_total")),
		}
		item.DeriveLineTotal()
		if !item.Valid() {
			continue
		}
		items = append(items, item)
	}
	return items
}

// dedupeItems merges duplicates across strategies. The dedup key is
// (description, quantity, unit_price); on collision the candidate carrying a
// line total beats one without.
func dedupeItems(items []entity.LineItem) []entity.LineItem {
	index := make(map[string]int, len(items))
	out := make([]entity.LineItem, 0, len(items))
	for _, item := range items {
		key := item.Hash()
		if at, ok := index[key]; ok {
			if out[at].LineTotal == nil && item.LineTotal != nil {
				out[at] = item
			}
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func normalizeHeader(h string) string {
	h = normalize.StripDiacritics(strings.ToLower(strings.TrimSpace(h)))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, ".", "")
}

func hasRequiredColumns(cols map[string]int) bool {
	for _, c := range []string{"description", "quantity", "unit_price"} {
		if _, ok := cols[c]; !ok {
			return false
		}
	}
	return true
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}

func cell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

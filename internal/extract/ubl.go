package extract

import (
	"log/slog"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// FromUBL consumes the structured-XML collaborator's dictionary (canonical
// field names, values still raw strings). The dictionary is trusted as a
// whole only when it carries both an invoice number and a total amount;
// otherwise it is rejected entirely and the caller falls back to the
// text/table pipeline. No field-by-field merge with text-derived data.
func FromUBL(doc map[string]any, logger *slog.Logger) (map[string]any, []entity.LineItem, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	if doc == nil {
		return nil, nil, false
	}
	if str(doc[constants.FieldInvoiceNumber]) == "" || str(doc[constants.FieldTotalAmount]) == "" {
		logger.Info("structured document rejected, required fields missing",
			"has_invoice_number", str(doc[constants.FieldInvoiceNumber]) != "",
			"has_total_amount", str(doc[constants.FieldTotalAmount]) != "")
		return nil, nil, false
	}

	record := map[string]any{}
	for _, field := range constants.ExpectedFields() {
		raw := str(doc[field])
		if raw == "" {
			record[field] = nil
			continue
		}
		switch {
		case constants.IsAmountField(field):
			if f := normalize.ParseAmount(raw); f != nil {
				record[field] = *f
			} else {
				record[field] = nil
			}
		case constants.IsDateField(field):
			if d := normalize.ParseDate(raw); d != nil {
				record[field] = *d
			} else {
				record[field] = nil
			}
		case constants.IsTaxIDField(field):
			record[field] = normalize.NormalizeTaxID(raw)
		default:
			record[field] = raw
		}
	}

	return record, ublItems(doc), true
}

func ublItems(doc map[string]any) []entity.LineItem {
	rawItems, _ := doc["items"].([]map[string]any)
	if rawItems == nil {
		if anyItems, ok := doc["items"].([]any); ok {
			for _, it := range anyItems {
				if m, ok := it.(map[string]any); ok {
					rawItems = append(rawItems, m)
				}
			}
		}
	}

	var items []entity.LineItem
	for _, m := range rawItems {
		item := entity.LineItem{
			Description: str(m["description"]),
			Quantity:    normalize.ParseAmount(str(m["quantity"])),
			UnitPrice:   normalize.ParseAmount(str(m["unit_price"])),
			LineTotal:   normalize.ParseAmount(str(m["line_total"])),
		}
		item.DeriveLineTotal()
		if item.Valid() {
			items = append(items, item)
		}
	}
	return items
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

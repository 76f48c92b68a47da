package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FieldCorrection is a human correction of one header field on one invoice.
// At most one row exists per (invoice, field); later corrections replace
// earlier ones.
type FieldCorrection struct {
	ID             uuid.UUID `json:"id"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
	FieldName      string    `json:"field_name"`
	OriginalValue  string    `json:"original_value"`
	CorrectedValue string    `json:"corrected_value"`
	CorrectedAt    time.Time `json:"corrected_at"`
}

// ItemCorrectionType discriminates the payload an item correction carries.
type ItemCorrectionType string

const (
	ItemCorrectionUpdate ItemCorrectionType = "update"
	ItemCorrectionAdd    ItemCorrectionType = "add"
	ItemCorrectionDelete ItemCorrectionType = "delete"
)

// ItemCorrection is a human correction of an invoice's line items. The payload
// shape is decided by Type, not by inspecting the stored values:
//
//   - update: ItemRef targets the original item's hash, Field names the column
//     being changed, OriginalValue/CorrectedValue hold the scalar before/after.
//   - add: CorrectedValue holds a whole serialized LineItem.
//   - delete: OriginalValue holds a whole serialized LineItem (its hash is the
//     removal key).
//
// Rows are append-only; replay order is defined by ApplyItemCorrections.
type ItemCorrection struct {
	ID             uuid.UUID          `json:"id"`
	InvoiceID      uuid.UUID          `json:"invoice_id"`
	Type           ItemCorrectionType `json:"type"`
	ItemRef        string             `json:"item_ref,omitempty"`
	Field          string             `json:"field,omitempty"`
	OriginalValue  string             `json:"original_value,omitempty"`
	CorrectedValue string             `json:"corrected_value,omitempty"`
	CorrectedAt    time.Time          `json:"corrected_at"`
}

// Item decodes a serialized LineItem payload. Which side carries a whole item
// depends on Type: CorrectedValue for add, OriginalValue for delete.
func (c ItemCorrection) Item() (LineItem, bool) {
	var raw string
	switch c.Type {
	case ItemCorrectionAdd:
		raw = c.CorrectedValue
	case ItemCorrectionDelete:
		raw = c.OriginalValue
	default:
		return LineItem{}, false
	}
	var item LineItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return LineItem{}, false
	}
	return item, true
}

// Description extracts the corrected description text for learning. Only
// corrections that carry corrected content qualify: the payload item of an
// add, or the corrected scalar of a description update. A delete names the
// item the human removed, so its description is never learned.
func (c ItemCorrection) Description() (string, bool) {
	switch c.Type {
	case ItemCorrectionAdd:
		if item, ok := c.Item(); ok && item.Description != "" {
			return item.Description, true
		}
	case ItemCorrectionUpdate:
		if c.Field != "description" || c.CorrectedValue == "" {
			return "", false
		}
		// An update payload carries the scalar directly, but tolerate a
		// serialized item here too since older rows stored whole items.
		var item LineItem
		if err := json.Unmarshal([]byte(c.CorrectedValue), &item); err == nil && item.Description != "" {
			return item.Description, true
		}
		return c.CorrectedValue, true
	}
	return "", false
}

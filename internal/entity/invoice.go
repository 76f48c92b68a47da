package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/facturalab/invoice-engine/constants"
)

// Invoice is the reconciled record for data transfer between layers.
// Every header field is optional; extraction degrades to nil rather than failing.
type Invoice struct {
	ID             uuid.UUID  `json:"id"`
	InvoiceNumber  *string    `json:"invoice_number,omitempty"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	SubtotalAmount *float64   `json:"subtotal_amount,omitempty"`
	TaxAmount      *float64   `json:"tax_amount,omitempty"`
	TotalAmount    *float64   `json:"total_amount,omitempty"`
	Currency       *string    `json:"currency,omitempty"`
	SupplierName   *string    `json:"supplier_name,omitempty"`
	SupplierTaxID  *string    `json:"supplier_tax_id,omitempty"`
	CustomerName   *string    `json:"customer_name,omitempty"`
	CustomerTaxID  *string    `json:"customer_tax_id,omitempty"`
	CUFE           *string    `json:"cufe,omitempty"`
	PaymentMethod  *string    `json:"payment_method,omitempty"`
	RawText        string     `json:"raw_text,omitempty"`
	FilePath       string     `json:"file_path"`
	Items          []LineItem `json:"items,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FieldCandidate is one strategy's proposal for one field. Ephemeral: produced
// per extraction pass and merged away by the combiner, never persisted.
type FieldCandidate struct {
	FieldName string           `json:"field_name"`
	Value     any              `json:"value"`
	Source    constants.Source `json:"source"`
}

// InvoiceFromRecord builds an Invoice from a combined field map. The map uses
// the canonical field names; values are already cast by the combiner
// (float64 for amounts, time.Time for dates, string otherwise).
func InvoiceFromRecord(record map[string]any, items []LineItem) Invoice {
	inv := Invoice{Items: items}
	inv.InvoiceNumber = recordString(record, constants.FieldInvoiceNumber)
	inv.IssueDate = recordDate(record, constants.FieldIssueDate)
	inv.DueDate = recordDate(record, constants.FieldDueDate)
	inv.SubtotalAmount = recordFloat(record, constants.FieldSubtotalAmount)
	inv.TaxAmount = recordFloat(record, constants.FieldTaxAmount)
	inv.TotalAmount = recordFloat(record, constants.FieldTotalAmount)
	inv.Currency = recordString(record, constants.FieldCurrency)
	inv.SupplierName = recordString(record, constants.FieldSupplierName)
	inv.SupplierTaxID = recordString(record, constants.FieldSupplierTaxID)
	inv.CustomerName = recordString(record, constants.FieldCustomerName)
	inv.CustomerTaxID = recordString(record, constants.FieldCustomerTaxID)
	inv.CUFE = recordString(record, constants.FieldCUFE)
	inv.PaymentMethod = recordString(record, constants.FieldPaymentMethod)
	if s := recordString(record, constants.FieldRawText); s != nil {
		inv.RawText = *s
	}
	if s := recordString(record, constants.FieldFilePath); s != nil {
		inv.FilePath = *s
	}
	return inv
}

func recordString(record map[string]any, field string) *string {
	if v, ok := record[field].(string); ok && v != "" {
		return &v
	}
	return nil
}

func recordFloat(record map[string]any, field string) *float64 {
	switch v := record[field].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func recordDate(record map[string]any, field string) *time.Time {
	if v, ok := record[field].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}

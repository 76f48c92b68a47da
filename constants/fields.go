package constants

import "strings"

// Field names the combiner guarantees on every reconciled record.
// Stable values (store these exact strings in DB and in the learned-pattern artifact).
const (
	FieldInvoiceNumber  = "invoice_number"
	FieldIssueDate      = "issue_date"
	FieldDueDate        = "due_date"
	FieldSubtotalAmount = "subtotal_amount"
	FieldTaxAmount      = "tax_amount"
	FieldTotalAmount    = "total_amount"
	FieldCurrency       = "currency"
	FieldSupplierName   = "supplier_name"
	FieldSupplierTaxID  = "supplier_tax_id"
	FieldCustomerName   = "customer_name"
	FieldCustomerTaxID  = "customer_tax_id"
	FieldCUFE           = "cufe"
	FieldPaymentMethod  = "payment_method"
	FieldRawText        = "raw_text"
	FieldFilePath       = "file_path"
)

var expectedFields = []string{
	FieldInvoiceNumber,
	FieldIssueDate,
	FieldDueDate,
	FieldSubtotalAmount,
	FieldTaxAmount,
	FieldTotalAmount,
	FieldCurrency,
	FieldSupplierName,
	FieldSupplierTaxID,
	FieldCustomerName,
	FieldCustomerTaxID,
	FieldCUFE,
	FieldPaymentMethod,
	FieldRawText,
	FieldFilePath,
}

// ExpectedFields returns a copy of the canonical field-name set, in combiner order.
func ExpectedFields() []string {
	out := make([]string, len(expectedFields))
	copy(out, expectedFields)
	return out
}

// IsAmountField reports whether a field carries a monetary value.
func IsAmountField(field string) bool {
	return strings.HasSuffix(field, "_amount")
}

// IsDateField reports whether a field carries a calendar date.
func IsDateField(field string) bool {
	return strings.HasSuffix(field, "_date")
}

// IsTaxIDField reports whether a field carries a fiscal identifier (NIT).
func IsTaxIDField(field string) bool {
	return strings.HasSuffix(field, "_tax_id")
}

package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalab/invoice-engine/constants"
)

func TestCombinePriorityOrder(t *testing.T) {
	c := NewCombiner(nil)

	regex := map[string]any{constants.FieldTotalAmount: 100.0}
	nlp := map[string]any{constants.FieldTotalAmount: 50.0, constants.FieldSupplierName: "Acme SAS"}
	ocr := map[string]any{constants.FieldTotalAmount: 25.0, constants.FieldInvoiceNumber: "OCR-1"}
	pdf := map[string]any{constants.FieldInvoiceNumber: "PDF-1", constants.FieldCurrency: "COP"}

	got := c.Combine(pdf, ocr, regex, nlp)

	assert.Equal(t, 100.0, got[constants.FieldTotalAmount])
	assert.Equal(t, "Acme SAS", got[constants.FieldSupplierName])
	assert.Equal(t, "OCR-1", got[constants.FieldInvoiceNumber])
	assert.Equal(t, "COP", got[constants.FieldCurrency])
}

func TestCombineAllExpectedFieldsPresent(t *testing.T) {
	c := NewCombiner(nil)

	got := c.Combine(nil, nil, nil, nil)

	require.Len(t, got, len(constants.ExpectedFields()))
	for _, field := range constants.ExpectedFields() {
		v, ok := got[field]
		assert.True(t, ok, "missing key %s", field)
		assert.Nil(t, v, "field %s should be nil with no sources", field)
	}
}

func TestCombineSkipsNilValues(t *testing.T) {
	c := NewCombiner(nil)

	regex := map[string]any{constants.FieldSupplierName: nil}
	nlp := map[string]any{constants.FieldSupplierName: "Distribuciones Andinas SAS"}

	got := c.Combine(nil, nil, regex, nlp)
	assert.Equal(t, "Distribuciones Andinas SAS", got[constants.FieldSupplierName])
}

func TestCombineRecastsTypes(t *testing.T) {
	c := NewCombiner(nil)

	regex := map[string]any{
		constants.FieldTotalAmount: "1.190.000,00",
		constants.FieldTaxAmount:   190,
		constants.FieldIssueDate:   "23/05/2025",
	}
	got := c.Combine(nil, nil, regex, nil)

	total, ok := got[constants.FieldTotalAmount].(float64)
	require.True(t, ok)
	assert.InDelta(t, 1190000.0, total, 0.001)

	tax, ok := got[constants.FieldTaxAmount].(float64)
	require.True(t, ok)
	assert.InDelta(t, 190.0, tax, 0.001)

	issued, ok := got[constants.FieldIssueDate].(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.May, 23, 0, 0, 0, 0, time.UTC), issued)
}

func TestCombineUnparseableWinnerBecomesNil(t *testing.T) {
	c := NewCombiner(nil)

	regex := map[string]any{
		constants.FieldTotalAmount: "not a number",
		constants.FieldIssueDate:   "someday",
	}
	got := c.Combine(nil, nil, regex, nil)

	assert.Nil(t, got[constants.FieldTotalAmount])
	assert.Nil(t, got[constants.FieldIssueDate])
}

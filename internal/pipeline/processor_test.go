package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/extract"
	"github.com/facturalab/invoice-engine/internal/learning"
)

// docText exercises the whole text path: header fields above, an item
// section in the middle, totals below it.
const docText = `Factura No.: FV-2025-00123
Fecha de emisión: 23/05/2025
Detalle de items: 2
Cemento gris 50kg 10 100.000,00 1.000.000,00
Transporte de obra 1 190.000,00 190.000,00
Total a pagar: $ 1.190.000,00
Subtotal: $ 1.000.000,00
IVA: $ 190.000,00
`

const sidecarXML = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
         xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
         xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2">
  <cbc:ID>FV-2025-00777</cbc:ID>
  <cbc:IssueDate>2025-05-23</cbc:IssueDate>
  <cbc:DocumentCurrencyCode>COP</cbc:DocumentCurrencyCode>
  <cac:AccountingSupplierParty>
    <cac:Party>
      <cac:PartyTaxScheme>
        <cbc:RegistrationName>Distribuciones Andinas SAS</cbc:RegistrationName>
        <cbc:CompanyID>900123456-7</cbc:CompanyID>
      </cac:PartyTaxScheme>
    </cac:Party>
  </cac:AccountingSupplierParty>
  <cac:LegalMonetaryTotal>
    <cbc:PayableAmount currencyID="COP">1190000.00</cbc:PayableAmount>
  </cac:LegalMonetaryTotal>
  <cac:InvoiceLine>
    <cbc:InvoicedQuantity unitCode="EA">10</cbc:InvoicedQuantity>
    <cac:Item><cbc:Description>Cemento gris 50kg</cbc:Description></cac:Item>
    <cac:Price><cbc:PriceAmount currencyID="COP">100000.00</cbc:PriceAmount></cac:Price>
  </cac:InvoiceLine>
</Invoice>`

type fakeInvoiceRepo struct {
	byPath map[string]entity.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{byPath: map[string]entity.Invoice{}}
}

func (r *fakeInvoiceRepo) UpsertByFilePath(_ context.Context, inv entity.Invoice) (entity.Invoice, error) {
	if existing, ok := r.byPath[inv.FilePath]; ok && inv.ID == uuid.Nil {
		inv.ID = existing.ID
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.byPath[inv.FilePath] = inv
	return inv, nil
}

func (r *fakeInvoiceRepo) GetByFilePath(_ context.Context, filePath string) (*entity.Invoice, error) {
	if inv, ok := r.byPath[filePath]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Invoice, error) {
	for _, inv := range r.byPath {
		if inv.ID == id {
			return &inv, nil
		}
	}
	return nil, nil
}

func (r *fakeInvoiceRepo) List(_ context.Context, _, _ *time.Time) ([]entity.Invoice, error) {
	out := make([]entity.Invoice, 0, len(r.byPath))
	for _, inv := range r.byPath {
		out = append(out, inv)
	}
	return out, nil
}

type memCorrections struct {
	fields map[string]entity.FieldCorrection
	items  []entity.ItemCorrection
}

func newMemCorrections() *memCorrections {
	return &memCorrections{fields: map[string]entity.FieldCorrection{}}
}

func (s *memCorrections) UpsertFieldCorrection(_ context.Context, c entity.FieldCorrection) error {
	s.fields[c.InvoiceID.String()+"/"+c.FieldName] = c
	return nil
}

func (s *memCorrections) AppendItemCorrection(_ context.Context, c entity.ItemCorrection) error {
	s.items = append(s.items, c)
	return nil
}

func (s *memCorrections) ListFieldCorrections(_ context.Context) ([]entity.FieldCorrection, error) {
	out := make([]entity.FieldCorrection, 0, len(s.fields))
	for _, c := range s.fields {
		out = append(out, c)
	}
	return out, nil
}

func (s *memCorrections) ListItemCorrections(_ context.Context) ([]entity.ItemCorrection, error) {
	return s.items, nil
}

func (s *memCorrections) FieldCorrectionsForInvoice(_ context.Context, id uuid.UUID) ([]entity.FieldCorrection, error) {
	var out []entity.FieldCorrection
	for _, c := range s.fields {
		if c.InvoiceID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCorrections) ItemCorrectionsForInvoice(_ context.Context, id uuid.UUID) ([]entity.ItemCorrection, error) {
	var out []entity.ItemCorrection
	for _, c := range s.items {
		if c.InvoiceID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

// stubSource is a canned text source.
type stubSource struct {
	name string
	text string
	err  error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Text(_ context.Context, _ string) (string, error) { return s.text, s.err }

func newTestProcessor(t *testing.T, repo *fakeInvoiceRepo, store learning.CorrectionStore, pdfText, ocrText extract.TextSource) *Processor {
	t.Helper()
	patterns := learning.NewPatternStore(filepath.Join(t.TempDir(), "patterns.json"), nil)
	feedback := learning.NewFeedbackLoop(store, patterns, 5, nil)
	return NewProcessor(ProcessorDeps{
		Invoices:   repo,
		Feedback:   feedback,
		Fields:     extract.NewFieldExtractor(extract.Config{}, entity.EmptyPatternSet(), nil),
		Tables:     extract.NewTableLineItems(nil, nil),
		Recognizer: extract.NewTermRecognizer(nil),
		Combiner:   extract.NewCombiner(nil),
		PDFText:    pdfText,
		OCRText:    ocrText,
	})
}

func TestProcessDocumentFromText(t *testing.T) {
	repo := newFakeInvoiceRepo()
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: docText}, nil)

	inv, err := proc.ProcessDocument(context.Background(), "/inbox/fv-2025-00123.pdf", DocumentMeta{})
	require.NoError(t, err)

	require.NotNil(t, inv.InvoiceNumber)
	assert.Equal(t, "FV-2025-00123", *inv.InvoiceNumber)
	require.NotNil(t, inv.TotalAmount)
	assert.InDelta(t, 1190000.0, *inv.TotalAmount, 0.001)
	require.NotNil(t, inv.SubtotalAmount)
	assert.InDelta(t, 1000000.0, *inv.SubtotalAmount, 0.001)
	require.NotNil(t, inv.IssueDate)
	assert.Equal(t, time.Date(2025, time.May, 23, 0, 0, 0, 0, time.UTC), *inv.IssueDate)
	require.NotNil(t, inv.Currency)
	assert.Equal(t, "COP", *inv.Currency)

	require.Len(t, inv.Items, 2)
	assert.Equal(t, "Cemento gris 50kg", inv.Items[0].Description)
	require.NotNil(t, inv.Items[0].LineTotal)
	assert.InDelta(t, 1000000.0, *inv.Items[0].LineTotal, 0.001)

	assert.Equal(t, docText, inv.RawText)
	assert.Equal(t, "/inbox/fv-2025-00123.pdf", inv.FilePath)
	assert.NotEqual(t, uuid.Nil, inv.ID)

	stored, err := repo.GetByFilePath(context.Background(), "/inbox/fv-2025-00123.pdf")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, inv.ID, stored.ID)
}

func TestProcessDocumentMergesOCRText(t *testing.T) {
	repo := newFakeInvoiceRepo()
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: "Factura No.: FV-77"},
		stubSource{name: "ocr", text: "Total a pagar: $ 10,00"})

	inv, err := proc.ProcessDocument(context.Background(), "/inbox/scan.pdf", DocumentMeta{})
	require.NoError(t, err)

	require.NotNil(t, inv.InvoiceNumber)
	assert.Equal(t, "FV-77", *inv.InvoiceNumber)
	require.NotNil(t, inv.TotalAmount)
	assert.InDelta(t, 10.0, *inv.TotalAmount, 0.001)
}

func TestProcessDocumentSkipsDuplicateOCRText(t *testing.T) {
	repo := newFakeInvoiceRepo()
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: docText},
		stubSource{name: "ocr", text: "Fecha de emisión: 23/05/2025"})

	inv, err := proc.ProcessDocument(context.Background(), "/inbox/dup.pdf", DocumentMeta{})
	require.NoError(t, err)
	assert.Equal(t, docText, inv.RawText)
}

func TestProcessDocumentNoText(t *testing.T) {
	repo := newFakeInvoiceRepo()
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: ""},
		stubSource{name: "ocr", text: "  \n "})

	_, err := proc.ProcessDocument(context.Background(), "/inbox/blank.pdf", DocumentMeta{})
	assert.ErrorIs(t, err, ErrNoText)
	assert.Empty(t, repo.byPath)
}

func TestProcessDocumentSidecarBypassesText(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "doc.xml")
	require.NoError(t, os.WriteFile(sidecar, []byte(sidecarXML), 0o644))

	repo := newFakeInvoiceRepo()
	// The text layer describes a different document; the sidecar must win.
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: "Factura No.: TEXT-1\nTotal a pagar: $ 5,00"}, nil)

	inv, err := proc.ProcessDocument(context.Background(), filepath.Join(dir, "doc.pdf"),
		DocumentMeta{UBLSidecar: sidecar})
	require.NoError(t, err)

	require.NotNil(t, inv.InvoiceNumber)
	assert.Equal(t, "FV-2025-00777", *inv.InvoiceNumber)
	require.NotNil(t, inv.TotalAmount)
	assert.InDelta(t, 1190000.0, *inv.TotalAmount, 0.001)
	require.NotNil(t, inv.SupplierTaxID)
	assert.Equal(t, "9001234567", *inv.SupplierTaxID)

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Cemento gris 50kg", inv.Items[0].Description)
	require.NotNil(t, inv.Items[0].LineTotal)
	assert.InDelta(t, 1000000.0, *inv.Items[0].LineTotal, 0.001)
}

func TestProcessDocumentIncompleteSidecarFallsBack(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "doc.xml")
	partial := strings.Replace(sidecarXML, "<cbc:ID>FV-2025-00777</cbc:ID>", "", 1)
	require.NoError(t, os.WriteFile(sidecar, []byte(partial), 0o644))

	repo := newFakeInvoiceRepo()
	proc := newTestProcessor(t, repo, newMemCorrections(),
		stubSource{name: "pdf_direct", text: "Factura No.: TXT-9\nTotal a pagar: $ 5,00"}, nil)

	inv, err := proc.ProcessDocument(context.Background(), filepath.Join(dir, "doc.pdf"),
		DocumentMeta{UBLSidecar: sidecar})
	require.NoError(t, err)

	require.NotNil(t, inv.InvoiceNumber)
	assert.Equal(t, "TXT-9", *inv.InvoiceNumber)
}

func TestReprocessReplaysCorrections(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	store := newMemCorrections()
	patterns := learning.NewPatternStore(filepath.Join(t.TempDir(), "patterns.json"), nil)
	feedback := learning.NewFeedbackLoop(store, patterns, 5, nil)
	proc := NewProcessor(ProcessorDeps{
		Invoices:   repo,
		Feedback:   feedback,
		Fields:     extract.NewFieldExtractor(extract.Config{}, entity.EmptyPatternSet(), nil),
		Tables:     extract.NewTableLineItems(nil, nil),
		Recognizer: extract.NewTermRecognizer(nil),
		Combiner:   extract.NewCombiner(nil),
		PDFText:    stubSource{name: "pdf_direct", text: docText},
	})

	first, err := proc.ProcessDocument(ctx, "/inbox/doc.pdf", DocumentMeta{})
	require.NoError(t, err)

	require.NoError(t, feedback.RecordFieldCorrection(ctx, first.ID,
		"invoice_number", "FV-2025-00123", "FV-FIXED"))

	qty, price := 1.0, 190000.0
	payload, err := json.Marshal(entity.LineItem{
		Description: "Transporte de obra", Quantity: &qty, UnitPrice: &price, LineTotal: &price,
	})
	require.NoError(t, err)
	require.NoError(t, feedback.RecordItemCorrection(ctx, entity.ItemCorrection{
		InvoiceID:     first.ID,
		Type:          entity.ItemCorrectionDelete,
		OriginalValue: string(payload),
	}))

	second, err := proc.ProcessDocument(ctx, "/inbox/doc.pdf", DocumentMeta{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "re-processing must keep the invoice identity")
	require.NotNil(t, second.InvoiceNumber)
	assert.Equal(t, "FV-FIXED", *second.InvoiceNumber)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "Cemento gris 50kg", second.Items[0].Description)
}

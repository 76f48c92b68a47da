package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/common"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/extract"
	"github.com/facturalab/invoice-engine/internal/learning"
	"github.com/facturalab/invoice-engine/internal/repository"
)

// ErrNoText means neither the text layer nor OCR produced anything usable;
// the caller moves the document to the error bucket.
var ErrNoText = errors.New("no text could be extracted from document")

// DocumentMeta carries the optional context a document arrived with.
type DocumentMeta struct {
	SenderEmail string
	Subject     string
	UBLSidecar  string // path to a structured XML sidecar, empty if none
}

// Processor runs the per-document extraction flow: structured XML gate,
// text gathering, field and item extraction, reconciliation, persistence,
// and correction replay for re-processed documents.
type Processor struct {
	invoices   repository.InvoiceRepository
	feedback   *learning.FeedbackLoop
	fields     *extract.FieldExtractor
	tables     *extract.TableLineItems
	recognizer extract.EntityRecognizer
	combiner   *extract.Combiner
	pdfText    extract.TextSource
	ocrText    extract.TextSource
	logger     *slog.Logger
}

type ProcessorDeps struct {
	Invoices   repository.InvoiceRepository
	Feedback   *learning.FeedbackLoop
	Fields     *extract.FieldExtractor
	Tables     *extract.TableLineItems
	Recognizer extract.EntityRecognizer
	Combiner   *extract.Combiner
	PDFText    extract.TextSource
	OCRText    extract.TextSource
	Logger     *slog.Logger
}

func NewProcessor(deps ProcessorDeps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		invoices:   deps.Invoices,
		feedback:   deps.Feedback,
		fields:     deps.Fields,
		tables:     deps.Tables,
		recognizer: deps.Recognizer,
		combiner:   deps.Combiner,
		pdfText:    deps.PDFText,
		ocrText:    deps.OCRText,
		logger:     logger,
	}
}

// ProcessDocument extracts one document and upserts the result, keyed by
// file path. A structured XML sidecar short-circuits the text pipeline when
// it passes the completeness gate.
func (p *Processor) ProcessDocument(ctx context.Context, path string, meta DocumentMeta) (entity.Invoice, error) {
	p.logger.Info("processing document", "path", path)

	if record, items, ok := p.fromSidecar(meta.UBLSidecar); ok {
		record[constants.FieldFilePath] = path
		return p.persist(ctx, path, record, items)
	}

	text := p.gatherText(ctx, path)
	if strings.TrimSpace(text) == "" {
		p.logger.Error("no text extracted", "path", path)
		return entity.Invoice{}, ErrNoText
	}

	regexData := p.fields.ExtractFields(text, meta.SenderEmail, meta.Subject)

	items := p.tables.ExtractAndParse(ctx, path)
	if len(items) == 0 {
		p.logger.Info("no table items found, falling back to text rows", "path", path)
		items = p.fields.ExtractLineItems(text)
	}

	var nlpData map[string]any
	if p.recognizer != nil {
		spans, err := p.recognizer.Recognize(ctx, text)
		if err != nil {
			p.logger.Warn("entity recognition failed", "path", path, "error", err)
		} else {
			nlpData = extract.FieldsFromSpans(spans)
		}
	}

	record := p.combiner.Combine(nil, nil, regexData, nlpData)
	record[constants.FieldRawText] = text
	record[constants.FieldFilePath] = path
	return p.persist(ctx, path, record, items)
}

// fromSidecar applies the structured-document gate. Any failure falls back
// to the text pipeline without error.
func (p *Processor) fromSidecar(sidecar string) (map[string]any, []entity.LineItem, bool) {
	if sidecar == "" {
		return nil, nil, false
	}
	data, err := os.ReadFile(sidecar)
	if err != nil {
		p.logger.Warn("cannot read xml sidecar", "path", sidecar, "error", err)
		return nil, nil, false
	}
	doc, err := extract.ParseUBL(data)
	if err != nil {
		p.logger.Warn("cannot parse xml sidecar", "path", sidecar, "error", err)
		return nil, nil, false
	}
	record, items, ok := extract.FromUBL(doc, p.logger)
	if !ok {
		return nil, nil, false
	}
	p.logger.Info("structured document accepted", "path", sidecar, "items", len(items))
	return record, items, true
}

// gatherText merges the direct text layer with OCR output. OCR text is
// appended only when it adds content the text layer did not have.
func (p *Processor) gatherText(ctx context.Context, path string) string {
	var direct string
	if p.pdfText != nil {
		t, err := p.pdfText.Text(ctx, path)
		if err != nil {
			p.logger.Warn("text source failed", "source", p.pdfText.Name(), "path", path, "error", err)
		} else {
			direct = t
		}
	}

	var ocr string
	if p.ocrText != nil {
		t, err := p.ocrText.Text(ctx, path)
		if err != nil {
			p.logger.Warn("text source failed", "source", p.ocrText.Name(), "path", path, "error", err)
		} else {
			ocr = t
		}
	}

	full := direct
	if ocr != "" && !strings.Contains(full, ocr) {
		if full != "" {
			full += "\n"
		}
		full += ocr
	}
	return full
}

// persist upserts the reconciled record. When the file path already has an
// invoice, stored corrections are replayed over the fresh extraction before
// the row is rewritten, so re-processing never undoes human fixes.
func (p *Processor) persist(ctx context.Context, path string, record map[string]any, items []entity.LineItem) (entity.Invoice, error) {
	existing, err := p.invoices.GetByFilePath(ctx, path)
	if err != nil {
		return entity.Invoice{}, common.WrapError(err, "looking up invoice")
	}
	if existing != nil {
		p.logger.Info("document already known, replaying corrections", "path", path, "invoice_id", existing.ID)
		record, err = p.feedback.ApplyFieldCorrections(ctx, existing.ID, record)
		if err != nil {
			return entity.Invoice{}, err
		}
		items, err = p.feedback.ApplyItemCorrections(ctx, existing.ID, items)
		if err != nil {
			return entity.Invoice{}, err
		}
	}

	inv := entity.InvoiceFromRecord(record, items)
	inv.FilePath = path
	if existing != nil {
		inv.ID = existing.ID
	}
	saved, err := p.invoices.UpsertByFilePath(ctx, inv)
	if err != nil {
		return entity.Invoice{}, common.WrapError(err, "storing invoice")
	}
	return saved, nil
}

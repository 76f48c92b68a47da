package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// basePatterns is the built-in header-field pattern table, in application
// order. Learned patterns override entries by field name at construction;
// fields without an override keep their base pattern.
var basePatterns = []struct {
	field string
	expr  string
}{
	{constants.FieldInvoiceNumber, `(?:número\s*de\s*factura|factura\s*no\.|no\s*\.?|nº|factura|serie|comprobante|invoice\s*no\.|invoice\s*#|bill\s*no\.)\s*[:#]?\s*([A-Za-z0-9\-\/]+)`},
	{constants.FieldIssueDate, `(?:fecha\s*de\s*emisión|fecha|date|fec\.)\s*[:]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s*(?:de|del)?\s*(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s*(?:de)?\s*\d{4})`},
	{constants.FieldDueDate, `(?:fecha\s*de\s*vencimiento|vencimiento|fecha\s*límite)\s*[:]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s*(?:de|del)?\s*(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s*(?:de)?\s*\d{4})`},
	{constants.FieldSubtotalAmount, `(?:subtotal|valor\s*neto)\s*[:]?\s*` + constants.CurrencyPrefix + `?\s*([\d\.,]+)`},
	{constants.FieldTaxAmount, `(?:iva|impuesto|impuestos|tax)\s*[:]?\s*` + constants.CurrencyPrefix + `?\s*([\d\.,]+)`},
	{constants.FieldTotalAmount, `(?:total|importe\s*total|valor\s*total|total\s*a\s*pagar)\s*[:]?\s*` + constants.CurrencyPrefix + `?\s*([\d\.,]+)`},
	{constants.FieldCurrency, `(?:total|importe\s*total|valor\s*total|subtotal|iva|impuesto|impuestos|tax)\s*[:]?\s*(€|\$|EUR|USD|MXN|COP)\s*[\d\.,]+`},
	{constants.FieldSupplierName, `(?:Empresa|Nombre\s*Comercial|Razón\s*Social|Proveedor|Emisor)\s*[:\s]*([A-Z][\w\s\.\-&ñÑáéíóúÁÉÍÓÚ]{3,})`},
	{constants.FieldSupplierTaxID, `(?:NIT|N\.I\.T\.|Nit\s+del\s+Emisor|cif|nif|rfc|tax\s*id|vat\s*id)\s*[:#]?\s*([\d\.\-]{5,20})`},
	{constants.FieldCustomerName, `(?:ADQUIRENTE|Nombre\s*Comercial\s*Cliente|Razón\s*Social\s*Cliente|Cliente|Receptor)\s*[:\s]*([A-Z][\w\s\.\-&ñÑáéíóúÁÉÍÓÚ]{3,})`},
	{constants.FieldCustomerTaxID, `(?:NIT\s*del\s*Adquiriente|N\.I\.T\.\s*cliente|Nit\s*cliente|Número\s*Documento\s*Cliente|cif\s*cliente|nif\s*cliente|rfc\s*cliente|tax\s*id\s*cliente|vat\s*id\s*cliente)\s*[:#]?\s*([\d\.\-]{5,20})`},
	{constants.FieldCUFE, `(?:CUFE|Codigo\s*Unico\s*de\s*Factura\s*Electronica|UUID|GUID)[:\s]*(https?://\S+|[0-9a-fA-F\-]{32,96})`},
	{constants.FieldPaymentMethod, `(?:forma\s*de\s*pago|método\s*de\s*pago)\s*[:]?\s*([A-Za-z\s]+)`},
}

// cufeURLPattern recognizes a fiscal-authority verification URL whose query
// string carries the real document identifier.
var cufeURLPattern = regexp.MustCompile(`(?i)https?://(?:www\.)?dian\.gov\.co/validador/.*\?cufe=([0-9a-fA-F\-]{32,96})`)

var titleCaser = cases.Title(language.Und)

// Config tunes the field extractor.
type Config struct {
	// DefaultCurrency resolves the ambiguous "$" symbol on domestic invoices.
	DefaultCurrency string
	// SubjectSimilarity gates subject-line overrides: a pattern-derived value
	// with similarity below this to the subject-derived candidate is replaced.
	SubjectSimilarity float64
}

type fieldPattern struct {
	field string
	re    *regexp.Regexp
}

// FieldExtractor applies the combined pattern table to raw text and enriches
// the result from sender/subject metadata. Immutable after construction; safe
// for concurrent use across documents.
type FieldExtractor struct {
	logger   *slog.Logger
	cfg      Config
	patterns []fieldPattern
}

// NewFieldExtractor builds the combined pattern table from the base table and
// the learned overlay. A learned pattern that does not compile is skipped, the
// base pattern for that field stays in effect.
func NewFieldExtractor(cfg Config, learned entity.LearnedPatternSet, logger *slog.Logger) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "COP"
	}
	if cfg.SubjectSimilarity <= 0 {
		cfg.SubjectSimilarity = 0.7
	}

	fe := &FieldExtractor{logger: logger, cfg: cfg}
	for _, bp := range basePatterns {
		expr := bp.expr
		if override, ok := learned.RegexPatterns[bp.field]; ok {
			if _, err := regexp.Compile("(?is)" + override); err != nil {
				logger.Warn("learned pattern does not compile, keeping base",
					"field", bp.field, "pattern", override, "err", err)
			} else {
				expr = override
			}
		}
		re, err := regexp.Compile("(?is)" + expr)
		if err != nil {
			logger.Error("base pattern does not compile, field disabled", "field", bp.field, "err", err)
			continue
		}
		fe.patterns = append(fe.patterns, fieldPattern{field: bp.field, re: re})
	}
	return fe
}

// ExtractFields runs every pattern against the text (first match wins) and
// post-processes matches by field class. Every field in the pattern table is
// present in the result, nil when unmatched. Sender address and subject line,
// when available, act as override sources for supplier/invoice identity.
func (fe *FieldExtractor) ExtractFields(text, senderEmail, subject string) map[string]any {
	out := make(map[string]any, len(fe.patterns))
	for _, fp := range fe.patterns {
		m := fp.re.FindStringSubmatch(text)
		if m == nil {
			out[fp.field] = nil
			continue
		}
		// Learned exact-match patterns have no capture group; fall back to
		// the whole match.
		value := m[0]
		if len(m) > 1 && m[1] != "" {
			value = m[1]
		}
		out[fp.field] = fe.postProcess(fp.field, strings.TrimSpace(value))
	}

	fe.enrichFromSender(out, senderEmail)
	fe.enrichFromSubject(out, subject)
	return out
}

// postProcess casts a raw match by field class.
func (fe *FieldExtractor) postProcess(field, value string) any {
	switch {
	case constants.IsAmountField(field):
		if f := normalize.ParseAmount(value); f != nil {
			return *f
		}
		return nil
	case constants.IsDateField(field):
		if d := normalize.ParseDate(value); d != nil {
			return *d
		}
		return nil
	case constants.IsTaxIDField(field):
		return normalize.NormalizeTaxID(value)
	case field == constants.FieldCurrency:
		return constants.CanonicalCurrency(value, fe.cfg.DefaultCurrency)
	case field == constants.FieldCUFE:
		// Some issuers print the verification URL instead of the bare code;
		// the real identifier is the query parameter.
		if um := cufeURLPattern.FindStringSubmatch(value); um != nil {
			return strings.TrimSpace(um[1])
		}
		return value
	default:
		return value
	}
}

// enrichFromSender derives a human-readable supplier name from the sender's
// domain label when patterns found none.
func (fe *FieldExtractor) enrichFromSender(out map[string]any, senderEmail string) {
	if out[constants.FieldSupplierName] != nil || senderEmail == "" {
		return
	}
	at := strings.Index(senderEmail, "@")
	if at < 0 {
		return
	}
	label, _, _ := strings.Cut(senderEmail[at+1:], ".")
	if len(label) <= 2 {
		return
	}
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	name := titleCaser.String(label)
	out[constants.FieldSupplierName] = name
	fe.logger.Debug("supplier name derived from sender domain", "name", name)
}

// enrichFromSubject interprets a highly structured subject line
// (taxid;supplier;seg;seg;...) as an override source: it replaces a
// pattern-derived value that is missing or disagrees strongly with it.
func (fe *FieldExtractor) enrichFromSubject(out map[string]any, subject string) {
	parts := strings.Split(strings.TrimSpace(subject), ";")
	if subject == "" || len(parts) < 4 {
		return
	}
	taxID := normalize.NormalizeTaxID(strings.TrimSpace(parts[0]))
	supplier := strings.TrimSpace(parts[1])
	invoiceNo := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(parts[2])+strings.TrimSpace(parts[3]), " ", ""))

	fe.override(out, constants.FieldSupplierTaxID, taxID)
	fe.override(out, constants.FieldSupplierName, supplier)
	fe.override(out, constants.FieldInvoiceNumber, invoiceNo)
}

func (fe *FieldExtractor) override(out map[string]any, field, candidate string) {
	if candidate == "" {
		return
	}
	current, _ := out[field].(string)
	if current == "" || normalize.Similarity(current, candidate) < fe.cfg.SubjectSimilarity {
		out[field] = candidate
		fe.logger.Debug("field overridden from subject line", "field", field, "value", candidate)
	}
}

package extract

import "context"

// TextSource yields the raw UTF-8 text for a document. Implementations wrap
// external engines (direct PDF text, OCR); an empty string on total failure is
// valid output and must not abort the cycle.
type TextSource interface {
	Name() string
	Text(ctx context.Context, path string) (string, error)
}

// Span is one labeled text span from the entity-recognition collaborator.
type Span struct {
	Text  string
	Label string
}

// Span labels the engine mapping understands. Anything else is ignored.
const (
	LabelOrg         = "ORG"
	LabelDate        = "DATE"
	LabelMoney       = "MONEY"
	LabelLearnedTerm = "LEARNED_TERM"
)

// EntityRecognizer is the NLP collaborator: raw text in, labeled spans out.
// Model internals are its business; this engine only maps spans to fields.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
}

// Table is a detected row/column grid. The first row is the header row.
type Table struct {
	Rows [][]string
}

// TableDetector wraps one table-detection strategy over a document. Strategies
// are tried in a fixed order and their outputs reconciled, not short-circuited.
type TableDetector interface {
	Name() string
	DetectTables(ctx context.Context, path string) ([]Table, error)
}

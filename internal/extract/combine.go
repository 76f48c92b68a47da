package extract

import (
	"log/slog"
	"time"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// Combiner merges per-field candidates from the independent extraction
// strategies. Priority order is fixed and IS the confidence model; no
// per-field scores are consulted.
type Combiner struct {
	logger *slog.Logger
}

func NewCombiner(logger *slog.Logger) *Combiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combiner{logger: logger}
}

// Combine resolves one value per expected field by scanning sources
// highest-priority first (regex > nlp > ocr > pdf_direct). Every expected
// field key is present in the result, nil when no source had it. Winning
// values are re-cast defensively: a winner may come from a source that did
// not normalize it.
func (c *Combiner) Combine(pdfDirect, ocr, regex, nlp map[string]any) map[string]any {
	bySource := map[constants.Source]map[string]any{
		constants.SourceRegex:     regex,
		constants.SourceNLP:       nlp,
		constants.SourceOCR:       ocr,
		constants.SourcePDFDirect: pdfDirect,
	}

	combined := make(map[string]any, len(constants.ExpectedFields()))
	for _, field := range constants.ExpectedFields() {
		combined[field] = nil
		for _, source := range constants.SourcePriority {
			data := bySource[source]
			if data == nil {
				continue
			}
			if v, ok := data[field]; ok && v != nil {
				combined[field] = v
				c.logger.Debug("field resolved", "field", field, "source", string(source))
				break
			}
		}
	}

	c.castTypes(combined)
	return combined
}

// castTypes re-applies amount and date casting to winning values.
func (c *Combiner) castTypes(combined map[string]any) {
	for field, value := range combined {
		if value == nil {
			continue
		}
		switch {
		case constants.IsAmountField(field):
			combined[field] = castAmount(value)
		case constants.IsDateField(field):
			combined[field] = castDate(value)
		}
	}
}

func castAmount(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f := normalize.ParseAmount(v); f != nil {
			return *f
		}
	}
	return nil
}

func castDate(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v
	case string:
		if d := normalize.ParseDate(v); d != nil {
			return *d
		}
	}
	return nil
}

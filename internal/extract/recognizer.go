package extract

import (
	"context"
	"strings"
)

// TermRecognizer is the built-in entity recognizer: it emits a LEARNED_TERM
// span for each learned term found in the text. A full NER model can replace
// it behind the same interface; field mapping stays in FieldsFromSpans.
type TermRecognizer struct {
	terms []string
}

func NewTermRecognizer(terms []string) *TermRecognizer {
	return &TermRecognizer{terms: terms}
}

func (r *TermRecognizer) Recognize(_ context.Context, text string) ([]Span, error) {
	if text == "" || len(r.terms) == 0 {
		return nil, nil
	}
	lower := strings.ToLower(text)
	var spans []Span
	for _, term := range r.terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			spans = append(spans, Span{Text: term, Label: LabelLearnedTerm})
		}
	}
	return spans, nil
}

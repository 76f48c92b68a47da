package extract

import (
	"regexp"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

var taxIDShape = regexp.MustCompile(`^\d{5,20}-?\d+$`)

// FieldsFromSpans maps labeled spans from the entity-recognition collaborator
// to field candidates: first ORG is the supplier, first DATE the issue date
// (raw text, cast later by the combiner), first MONEY the total. Learned
// terms split on shape: multi-word terms are party names, tax-id-shaped
// numerics are the supplier's fiscal id.
func FieldsFromSpans(spans []Span) map[string]any {
	out := map[string]any{}
	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		switch span.Label {
		case LabelOrg:
			setIfAbsent(out, constants.FieldSupplierName, text)
		case LabelDate:
			setIfAbsent(out, constants.FieldIssueDate, text)
		case LabelMoney:
			if _, ok := out[constants.FieldTotalAmount]; !ok {
				if f := normalize.ParseAmount(text); f != nil {
					out[constants.FieldTotalAmount] = *f
				}
			}
		case LabelLearnedTerm:
			applyLearnedTerm(out, text)
		}
	}
	return out
}

func applyLearnedTerm(out map[string]any, term string) {
	if len(strings.Fields(term)) > 1 {
		if _, ok := out[constants.FieldSupplierName]; !ok {
			out[constants.FieldSupplierName] = term
			return
		}
		if out[constants.FieldSupplierName] != term {
			setIfAbsent(out, constants.FieldCustomerName, term)
		}
		return
	}
	if taxIDShape.MatchString(term) {
		setIfAbsent(out, constants.FieldSupplierTaxID, term)
	}
}

func setIfAbsent(out map[string]any, field string, value any) {
	if _, ok := out[field]; !ok {
		out[field] = value
	}
}

package learning

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/normalize"
)

// CorrectionStore is the persistence surface the feedback loop needs. The
// repository package provides the SQL implementation; tests use an in-memory
// fake.
type CorrectionStore interface {
	UpsertFieldCorrection(ctx context.Context, c entity.FieldCorrection) error
	AppendItemCorrection(ctx context.Context, c entity.ItemCorrection) error
	ListFieldCorrections(ctx context.Context) ([]entity.FieldCorrection, error)
	ListItemCorrections(ctx context.Context) ([]entity.ItemCorrection, error)
	FieldCorrectionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]entity.FieldCorrection, error)
	ItemCorrectionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]entity.ItemCorrection, error)
}

// nlpTermFields are the corrected fields whose values become learned NLP
// terms instead of regex patterns.
var nlpTermFields = map[string]bool{
	constants.FieldSupplierName:  true,
	constants.FieldCustomerName:  true,
	constants.FieldSupplierTaxID: true,
	constants.FieldCustomerTaxID: true,
}

// FeedbackLoop owns correction records and the learned-pattern artifact.
// Extractors read the artifact at construction; only the loop writes it.
type FeedbackLoop struct {
	store     CorrectionStore
	patterns  *PatternStore
	threshold int
	logger    *slog.Logger
}

// NewFeedbackLoop wires the loop. threshold is the strict lower bound on the
// correction count before a value is promoted (a value corrected exactly
// threshold times is not yet learned).
func NewFeedbackLoop(store CorrectionStore, patterns *PatternStore, threshold int, logger *slog.Logger) *FeedbackLoop {
	if threshold <= 0 {
		threshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackLoop{store: store, patterns: patterns, threshold: threshold, logger: logger}
}

// RecordFieldCorrection upserts a correction keyed by (invoice, field). A
// later correction of the same field replaces the earlier one.
func (fl *FeedbackLoop) RecordFieldCorrection(ctx context.Context, invoiceID uuid.UUID, field, original, corrected string) error {
	c := entity.FieldCorrection{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		FieldName:      field,
		OriginalValue:  original,
		CorrectedValue: corrected,
		CorrectedAt:    time.Now().UTC(),
	}
	if err := fl.store.UpsertFieldCorrection(ctx, c); err != nil {
		return fmt.Errorf("record field correction: %w", err)
	}
	fl.logger.Info("field correction recorded", "invoice_id", invoiceID, "field", field)
	return nil
}

// RecordItemCorrection appends an item correction. Rows are never replaced;
// replay order over the append log is defined by ApplyItemCorrections.
func (fl *FeedbackLoop) RecordItemCorrection(ctx context.Context, c entity.ItemCorrection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = time.Now().UTC()
	}
	if err := fl.store.AppendItemCorrection(ctx, c); err != nil {
		return fmt.Errorf("record item correction: %w", err)
	}
	fl.logger.Info("item correction recorded", "invoice_id", c.InvoiceID, "type", string(c.Type))
	return nil
}

// LearnFromCorrections recomputes the learned-pattern artifact from the full
// correction history and rewrites it wholesale. A field whose support falls
// under the threshold loses its learned pattern on the next cycle.
func (fl *FeedbackLoop) LearnFromCorrections(ctx context.Context) (entity.LearnedPatternSet, error) {
	fieldCorrs, err := fl.store.ListFieldCorrections(ctx)
	if err != nil {
		return entity.LearnedPatternSet{}, fmt.Errorf("list field corrections: %w", err)
	}
	itemCorrs, err := fl.store.ListItemCorrections(ctx)
	if err != nil {
		return entity.LearnedPatternSet{}, fmt.Errorf("list item corrections: %w", err)
	}
	fl.logger.Info("learning cycle", "field_corrections", len(fieldCorrs), "item_corrections", len(itemCorrs))

	set := entity.EmptyPatternSet()

	counts := map[string]map[string]int{}
	for _, c := range fieldCorrs {
		if counts[c.FieldName] == nil {
			counts[c.FieldName] = map[string]int{}
		}
		counts[c.FieldName][c.CorrectedValue]++
	}

	fields := make([]string, 0, len(counts))
	for f := range counts {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, count := mostFrequent(counts[field])
		if count <= fl.threshold {
			continue
		}
		switch {
		case field == constants.FieldInvoiceNumber:
			set.RegexPatterns[field] = "(?i)" + regexp.QuoteMeta(value)
			fl.logger.Info("regex pattern learned", "field", field, "count", count)
		case nlpTermFields[field]:
			if !set.HasTerm(value) {
				set.NLPTerms = append(set.NLPTerms, value)
			}
			fl.logger.Info("nlp term learned", "field", field, "count", count)
		default:
			fl.logger.Debug("frequent correction on unlearnable field", "field", field, "count", count)
		}
	}

	for _, c := range itemCorrs {
		desc, ok := c.Description()
		if !ok {
			continue
		}
		if !set.HasTerm(desc) {
			set.NLPTerms = append(set.NLPTerms, desc)
		}
	}

	if err := fl.patterns.Save(set); err != nil {
		return entity.LearnedPatternSet{}, err
	}
	return set, nil
}

// mostFrequent picks the highest-count value; ties break on the smaller
// value string so repeated cycles over the same history agree.
func mostFrequent(values map[string]int) (string, int) {
	best, bestCount := "", 0
	for v, n := range values {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best, bestCount
}

// ApplyItemCorrections replays the invoice's item-correction log over a
// freshly extracted item list. Replay is two explicit passes over the log:
// updates and deletes first, adds second. An update re-keys the item under
// its new hash before adds run, so an add of the already-updated item is a
// duplicate and is skipped.
func (fl *FeedbackLoop) ApplyItemCorrections(ctx context.Context, invoiceID uuid.UUID, items []entity.LineItem) ([]entity.LineItem, error) {
	corrs, err := fl.store.ItemCorrectionsForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list item corrections for invoice: %w", err)
	}
	if len(corrs) == 0 {
		return items, nil
	}

	ordered := make([]entity.LineItem, len(items))
	copy(ordered, items)
	index := map[string]int{}
	for i, it := range ordered {
		if _, seen := index[it.Hash()]; !seen {
			index[it.Hash()] = i
		}
	}
	deleted := map[int]bool{}

	// pass 1: updates and deletes
	for _, c := range corrs {
		switch c.Type {
		case entity.ItemCorrectionUpdate:
			i, ok := index[c.ItemRef]
			if !ok || deleted[i] {
				fl.logger.Warn("item update references unknown item", "invoice_id", invoiceID, "item_ref", c.ItemRef)
				continue
			}
			item := ordered[i]
			oldHash := item.Hash()
			if !applyItemField(&item, c.Field, c.CorrectedValue) {
				continue
			}
			ordered[i] = item
			if newHash := item.Hash(); newHash != oldHash {
				delete(index, oldHash)
				if _, taken := index[newHash]; !taken {
					index[newHash] = i
				}
			}
		case entity.ItemCorrectionDelete:
			target, ok := c.Item()
			if !ok {
				continue
			}
			i, ok := index[target.Hash()]
			if !ok {
				continue
			}
			deleted[i] = true
			delete(index, target.Hash())
		}
	}

	// pass 2: adds
	for _, c := range corrs {
		if c.Type != entity.ItemCorrectionAdd {
			continue
		}
		item, ok := c.Item()
		if !ok {
			continue
		}
		item.DeriveLineTotal()
		if !item.Valid() {
			continue
		}
		if _, exists := index[item.Hash()]; exists {
			continue
		}
		ordered = append(ordered, item)
		index[item.Hash()] = len(ordered) - 1
	}

	result := make([]entity.LineItem, 0, len(ordered))
	for i, it := range ordered {
		if deleted[i] {
			continue
		}
		result = append(result, it)
	}
	return result, nil
}

// applyItemField sets one scalar column on an item. Quantity and unit-price
// changes invalidate a derived total, which is recomputed.
func applyItemField(item *entity.LineItem, field, value string) bool {
	switch field {
	case "description":
		item.Description = value
	case "quantity":
		item.Quantity = normalize.ParseAmount(value)
		item.LineTotal = nil
		item.DeriveLineTotal()
	case "unit_price":
		item.UnitPrice = normalize.ParseAmount(value)
		item.LineTotal = nil
		item.DeriveLineTotal()
	case "line_total":
		item.LineTotal = normalize.ParseAmount(value)
	default:
		return false
	}
	return true
}

// ApplyFieldCorrections replays stored header-field corrections over a
// re-extracted record, then re-casts amount and date fields since corrected
// values are stored as strings.
func (fl *FeedbackLoop) ApplyFieldCorrections(ctx context.Context, invoiceID uuid.UUID, record map[string]any) (map[string]any, error) {
	corrs, err := fl.store.FieldCorrectionsForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list field corrections for invoice: %w", err)
	}
	for _, c := range corrs {
		if _, ok := record[c.FieldName]; !ok {
			fl.logger.Warn("corrected field absent from record", "invoice_id", invoiceID, "field", c.FieldName)
			continue
		}
		record[c.FieldName] = c.CorrectedValue
	}

	for field, value := range record {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch {
		case constants.IsAmountField(field):
			if f := normalize.ParseAmount(s); f != nil {
				record[field] = *f
			} else {
				fl.logger.Warn("corrected amount unparseable", "field", field, "value", s)
			}
		case constants.IsDateField(field):
			if d := normalize.ParseDate(s); d != nil {
				record[field] = *d
			} else {
				fl.logger.Warn("corrected date unparseable", "field", field, "value", s)
			}
		}
	}
	return record, nil
}

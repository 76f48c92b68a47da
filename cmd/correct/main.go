package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/common"
	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/learning"
	"github.com/facturalab/invoice-engine/internal/repository"
)

const usage = `Usage:
  correct field <invoice-id> <field> <original> <corrected>
  correct item-add <invoice-id> <item-json>
  correct item-delete <invoice-id> <item-json>
  correct item-update <invoice-id> <item-hash> <field> <original> <corrected>
  correct learn

Recording a correction also re-runs the learning cycle.`

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := common.LoadConfig()

	dbr, err := common.InitDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbr.Cleanup()

	invoices := repository.NewInvoiceRepository(dbr.Store, logger)
	corrections := repository.NewCorrectionRepository(dbr.Store, logger)
	patterns := learning.NewPatternStore(cfg.Paths.PatternsFile, logger)
	feedback := learning.NewFeedbackLoop(corrections, patterns, cfg.Extraction.LearnThreshold, logger)

	if err := run(ctx, invoices, feedback, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, invoices repository.InvoiceRepository, feedback *learning.FeedbackLoop, cmd string, args []string) error {
	switch cmd {
	case "field":
		if len(args) != 4 {
			return fmt.Errorf("field needs <invoice-id> <field> <original> <corrected>\n%s", usage)
		}
		invoiceID, err := resolveInvoiceID(ctx, invoices, args[0])
		if err != nil {
			return err
		}
		if !knownField(args[1]) {
			return fmt.Errorf("%w: unknown field %q, expected one of %v",
				common.ErrValidation, args[1], constants.ExpectedFields())
		}
		if err := validateCorrectedValue(args[1], args[3]); err != nil {
			return err
		}
		if err := feedback.RecordFieldCorrection(ctx, invoiceID, args[1], args[2], args[3]); err != nil {
			return err
		}

	case "item-add", "item-delete":
		if len(args) != 2 {
			return fmt.Errorf("%s needs <invoice-id> <item-json>\n%s", cmd, usage)
		}
		invoiceID, err := resolveInvoiceID(ctx, invoices, args[0])
		if err != nil {
			return err
		}
		var item entity.LineItem
		if err := json.Unmarshal([]byte(args[1]), &item); err != nil {
			return fmt.Errorf("item payload is not valid JSON: %w", err)
		}
		payload, err := json.Marshal(item)
		if err != nil {
			return err
		}
		c := entity.ItemCorrection{InvoiceID: invoiceID}
		if cmd == "item-add" {
			c.Type = entity.ItemCorrectionAdd
			c.CorrectedValue = string(payload)
		} else {
			c.Type = entity.ItemCorrectionDelete
			c.OriginalValue = string(payload)
		}
		if err := feedback.RecordItemCorrection(ctx, c); err != nil {
			return err
		}

	case "item-update":
		if len(args) != 5 {
			return fmt.Errorf("item-update needs <invoice-id> <item-hash> <field> <original> <corrected>\n%s", usage)
		}
		invoiceID, err := resolveInvoiceID(ctx, invoices, args[0])
		if err != nil {
			return err
		}
		if err := feedback.RecordItemCorrection(ctx, entity.ItemCorrection{
			InvoiceID:      invoiceID,
			Type:           entity.ItemCorrectionUpdate,
			ItemRef:        args[1],
			Field:          args[2],
			OriginalValue:  args[3],
			CorrectedValue: args[4],
		}); err != nil {
			return err
		}

	case "learn":
		if len(args) != 0 {
			return fmt.Errorf("learn takes no arguments\n%s", usage)
		}

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	learned, err := feedback.LearnFromCorrections(ctx)
	if err != nil {
		return fmt.Errorf("learning cycle: %w", err)
	}
	fmt.Printf("learned patterns: %d regex, %d terms\n",
		len(learned.RegexPatterns), len(learned.NLPTerms))
	return nil
}

// resolveInvoiceID validates the raw argument and confirms the invoice exists.
func resolveInvoiceID(ctx context.Context, invoices repository.InvoiceRepository, raw string) (uuid.UUID, error) {
	v := common.NewValidator().Field("invoice_id", raw, common.Required, common.UUID)
	if v.HasErrors() {
		return uuid.Nil, fmt.Errorf("%w: %s", common.ErrValidation, v.ErrorMessage())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	inv, err := invoices.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if inv == nil {
		return uuid.Nil, fmt.Errorf("%w: invoice %s", common.ErrNotFound, id)
	}
	return id, nil
}

// validateCorrectedValue sanity-checks a corrected value before it enters the
// correction history, since learned patterns are derived from it.
func validateCorrectedValue(field, value string) error {
	v := common.NewValidator().Field(field, value, common.Required, maxLen(255))
	if field == constants.FieldCurrency {
		v.Field(field, value, common.CurrencyCode)
	}
	if v.HasErrors() {
		return fmt.Errorf("%w: %s", common.ErrValidation, v.ErrorMessage())
	}
	return nil
}

func maxLen(max int) common.ValidationRule {
	return func(fieldName string, value interface{}) *common.ValidationError {
		return common.MaxLength(fieldName, value, max)
	}
}

func knownField(name string) bool {
	for _, f := range constants.ExpectedFields() {
		if f == name {
			return true
		}
	}
	return false
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/learning"
)

// CorrectionRepository stores human corrections. Field corrections upsert by
// (invoice, field); item corrections are an append-only log.
type CorrectionRepository interface {
	learning.CorrectionStore
}

type correctionRepository struct {
	store  *Store
	logger *slog.Logger
}

func NewCorrectionRepository(store *Store, logger *slog.Logger) CorrectionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &correctionRepository{store: store, logger: logger}
}

func (r *correctionRepository) UpsertFieldCorrection(ctx context.Context, c entity.FieldCorrection) error {
	query := r.store.rebind(`INSERT INTO field_corrections
		(id, invoice_id, field_name, original_value, corrected_value, corrected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id, field_name) DO UPDATE SET
			original_value  = excluded.original_value,
			corrected_value = excluded.corrected_value,
			corrected_at    = excluded.corrected_at`)
	_, err := r.store.db.ExecContext(ctx, query,
		c.ID.String(), c.InvoiceID.String(), c.FieldName, c.OriginalValue, c.CorrectedValue, c.CorrectedAt)
	if err != nil {
		r.logger.Error("failed to upsert field correction", "invoice_id", c.InvoiceID, "field", c.FieldName, "error", err)
		return fmt.Errorf("upsert field correction: %w", err)
	}
	return nil
}

func (r *correctionRepository) AppendItemCorrection(ctx context.Context, c entity.ItemCorrection) error {
	query := r.store.rebind(`INSERT INTO item_corrections
		(id, invoice_id, correction_type, item_ref, field_name, original_value, corrected_value, corrected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.store.db.ExecContext(ctx, query,
		c.ID.String(), c.InvoiceID.String(), string(c.Type), c.ItemRef, c.Field,
		c.OriginalValue, c.CorrectedValue, c.CorrectedAt)
	if err != nil {
		r.logger.Error("failed to append item correction", "invoice_id", c.InvoiceID, "error", err)
		return fmt.Errorf("append item correction: %w", err)
	}
	return nil
}

func (r *correctionRepository) ListFieldCorrections(ctx context.Context) ([]entity.FieldCorrection, error) {
	return r.queryFieldCorrections(ctx,
		`SELECT id, invoice_id, field_name, original_value, corrected_value, corrected_at
		 FROM field_corrections ORDER BY corrected_at, id`)
}

func (r *correctionRepository) FieldCorrectionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]entity.FieldCorrection, error) {
	return r.queryFieldCorrections(ctx,
		`SELECT id, invoice_id, field_name, original_value, corrected_value, corrected_at
		 FROM field_corrections WHERE invoice_id = ? ORDER BY corrected_at, id`, invoiceID.String())
}

func (r *correctionRepository) queryFieldCorrections(ctx context.Context, query string, args ...any) ([]entity.FieldCorrection, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list field corrections: %w", err)
	}
	defer rows.Close()

	var out []entity.FieldCorrection
	for rows.Next() {
		c, err := scanFieldCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *correctionRepository) ListItemCorrections(ctx context.Context) ([]entity.ItemCorrection, error) {
	return r.queryItemCorrections(ctx,
		`SELECT id, invoice_id, correction_type, item_ref, field_name, original_value, corrected_value, corrected_at
		 FROM item_corrections ORDER BY corrected_at, id`)
}

func (r *correctionRepository) ItemCorrectionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]entity.ItemCorrection, error) {
	return r.queryItemCorrections(ctx,
		`SELECT id, invoice_id, correction_type, item_ref, field_name, original_value, corrected_value, corrected_at
		 FROM item_corrections WHERE invoice_id = ? ORDER BY corrected_at, id`, invoiceID.String())
}

func (r *correctionRepository) queryItemCorrections(ctx context.Context, query string, args ...any) ([]entity.ItemCorrection, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list item corrections: %w", err)
	}
	defer rows.Close()

	var out []entity.ItemCorrection
	for rows.Next() {
		c, err := scanItemCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanFieldCorrection(rows *sql.Rows) (entity.FieldCorrection, error) {
	var (
		c      entity.FieldCorrection
		id, iv string
	)
	if err := rows.Scan(&id, &iv, &c.FieldName, &c.OriginalValue, &c.CorrectedValue, &c.CorrectedAt); err != nil {
		return entity.FieldCorrection{}, fmt.Errorf("scan field correction: %w", err)
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return entity.FieldCorrection{}, fmt.Errorf("parse correction id: %w", err)
	}
	if c.InvoiceID, err = uuid.Parse(iv); err != nil {
		return entity.FieldCorrection{}, fmt.Errorf("parse invoice id: %w", err)
	}
	return c, nil
}

func scanItemCorrection(rows *sql.Rows) (entity.ItemCorrection, error) {
	var (
		c           entity.ItemCorrection
		id, iv, typ string
	)
	if err := rows.Scan(&id, &iv, &typ, &c.ItemRef, &c.Field, &c.OriginalValue, &c.CorrectedValue, &c.CorrectedAt); err != nil {
		return entity.ItemCorrection{}, fmt.Errorf("scan item correction: %w", err)
	}
	c.Type = entity.ItemCorrectionType(typ)
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return entity.ItemCorrection{}, fmt.Errorf("parse correction id: %w", err)
	}
	if c.InvoiceID, err = uuid.Parse(iv); err != nil {
		return entity.ItemCorrection{}, fmt.Errorf("parse invoice id: %w", err)
	}
	return c, nil
}

package repository

import (
	"context"
	"fmt"
)

// schemaStatements is the bootstrap DDL, written to run unchanged on both
// Postgres and sqlite. UUIDs are stored as text.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id              TEXT PRIMARY KEY,
		invoice_number  TEXT,
		issue_date      TIMESTAMP,
		due_date        TIMESTAMP,
		subtotal_amount DOUBLE PRECISION,
		tax_amount      DOUBLE PRECISION,
		total_amount    DOUBLE PRECISION,
		currency        TEXT,
		supplier_name   TEXT,
		supplier_tax_id TEXT,
		customer_name   TEXT,
		customer_tax_id TEXT,
		cufe            TEXT,
		payment_method  TEXT,
		raw_text        TEXT NOT NULL DEFAULT '',
		file_path       TEXT NOT NULL UNIQUE,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id          TEXT PRIMARY KEY,
		invoice_id  TEXT NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity    DOUBLE PRECISION,
		unit_price  DOUBLE PRECISION,
		line_total  DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items (invoice_id)`,
	`CREATE TABLE IF NOT EXISTS field_corrections (
		id              TEXT PRIMARY KEY,
		invoice_id      TEXT NOT NULL,
		field_name      TEXT NOT NULL,
		original_value  TEXT NOT NULL DEFAULT '',
		corrected_value TEXT NOT NULL DEFAULT '',
		corrected_at    TIMESTAMP NOT NULL,
		UNIQUE (invoice_id, field_name)
	)`,
	`CREATE TABLE IF NOT EXISTS item_corrections (
		id              TEXT PRIMARY KEY,
		invoice_id      TEXT NOT NULL,
		correction_type TEXT NOT NULL,
		item_ref        TEXT NOT NULL DEFAULT '',
		field_name      TEXT NOT NULL DEFAULT '',
		original_value  TEXT NOT NULL DEFAULT '',
		corrected_value TEXT NOT NULL DEFAULT '',
		corrected_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_item_corrections_invoice ON item_corrections (invoice_id)`,
}

// EnsureSchema creates the tables if they do not exist. Idempotent.
func EnsureSchema(ctx context.Context, store *Store) error {
	for _, stmt := range schemaStatements {
		if _, err := store.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

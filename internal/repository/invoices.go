package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/facturalab/invoice-engine/internal/entity"
)

// InvoiceRepository persists reconciled invoices. The upsert key is the
// document file path: re-processing a file updates its row in place, and the
// item list is replaced wholesale on update.
type InvoiceRepository interface {
	UpsertByFilePath(ctx context.Context, inv entity.Invoice) (entity.Invoice, error)
	GetByFilePath(ctx context.Context, filePath string) (*entity.Invoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	List(ctx context.Context, fromDate, toDate *time.Time) ([]entity.Invoice, error)
}

type invoiceRepository struct {
	store  *Store
	logger *slog.Logger
}

func NewInvoiceRepository(store *Store, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceRepository{store: store, logger: logger}
}

const invoiceColumns = `id, invoice_number, issue_date, due_date, subtotal_amount, tax_amount,
	total_amount, currency, supplier_name, supplier_tax_id, customer_name, customer_tax_id,
	cufe, payment_method, raw_text, file_path, created_at, updated_at`

func (r *invoiceRepository) UpsertByFilePath(ctx context.Context, inv entity.Invoice) (entity.Invoice, error) {
	if inv.FilePath == "" {
		return entity.Invoice{}, errors.New("invoice has no file path")
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	now := time.Now().UTC()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	query := r.store.rebind(`INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path) DO UPDATE SET
			invoice_number  = excluded.invoice_number,
			issue_date      = excluded.issue_date,
			due_date        = excluded.due_date,
			subtotal_amount = excluded.subtotal_amount,
			tax_amount      = excluded.tax_amount,
			total_amount    = excluded.total_amount,
			currency        = excluded.currency,
			supplier_name   = excluded.supplier_name,
			supplier_tax_id = excluded.supplier_tax_id,
			customer_name   = excluded.customer_name,
			customer_tax_id = excluded.customer_tax_id,
			cufe            = excluded.cufe,
			payment_method  = excluded.payment_method,
			raw_text        = excluded.raw_text,
			updated_at      = excluded.updated_at
		RETURNING id, created_at`)

	var id string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, query,
		inv.ID.String(), nullStr(inv.InvoiceNumber), nullTime(inv.IssueDate), nullTime(inv.DueDate),
		nullFloat(inv.SubtotalAmount), nullFloat(inv.TaxAmount), nullFloat(inv.TotalAmount),
		nullStr(inv.Currency), nullStr(inv.SupplierName), nullStr(inv.SupplierTaxID),
		nullStr(inv.CustomerName), nullStr(inv.CustomerTaxID), nullStr(inv.CUFE),
		nullStr(inv.PaymentMethod), inv.RawText, inv.FilePath, now, now,
	).Scan(&id, &createdAt)
	if err != nil {
		r.logger.Error("failed to upsert invoice", "file_path", inv.FilePath, "error", err)
		return entity.Invoice{}, fmt.Errorf("upsert invoice: %w", err)
	}
	inv.ID, err = uuid.Parse(id)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("parse invoice id: %w", err)
	}
	inv.CreatedAt = createdAt
	inv.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, r.store.rebind(`DELETE FROM invoice_items WHERE invoice_id = ?`), inv.ID.String()); err != nil {
		return entity.Invoice{}, fmt.Errorf("replace invoice items: %w", err)
	}
	insertItem := r.store.rebind(`INSERT INTO invoice_items
		(id, invoice_id, position, description, quantity, unit_price, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i, item := range inv.Items {
		_, err := tx.ExecContext(ctx, insertItem,
			uuid.New().String(), inv.ID.String(), i, item.Description,
			nullFloat(item.Quantity), nullFloat(item.UnitPrice), nullFloat(item.LineTotal))
		if err != nil {
			return entity.Invoice{}, fmt.Errorf("insert invoice item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return entity.Invoice{}, fmt.Errorf("commit upsert: %w", err)
	}
	r.logger.Info("invoice upserted", "invoice_id", inv.ID, "file_path", inv.FilePath, "items", len(inv.Items))
	return inv, nil
}

func (r *invoiceRepository) GetByFilePath(ctx context.Context, filePath string) (*entity.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE file_path = ?`, filePath)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id.String())
}

// getOne returns nil without error when no row matches.
func (r *invoiceRepository) getOne(ctx context.Context, query string, arg any) (*entity.Invoice, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(query), arg)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}
	inv.Items, err = r.loadItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, fromDate, toDate *time.Time) ([]entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	var (
		conds []string
		args  []any
	)
	if fromDate != nil {
		conds = append(conds, `issue_date >= ?`)
		args = append(args, *fromDate)
	}
	if toDate != nil {
		conds = append(conds, `issue_date <= ?`)
		args = append(args, *toDate)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY issue_date, file_path`

	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items, err = r.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *invoiceRepository) loadItems(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(
		`SELECT description, quantity, unit_price, line_total
		 FROM invoice_items WHERE invoice_id = ? ORDER BY position`), invoiceID.String())
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()

	var items []entity.LineItem
	for rows.Next() {
		var (
			item              entity.LineItem
			qty, price, total sql.NullFloat64
		)
		if err := rows.Scan(&item.Description, &qty, &price, &total); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		item.Quantity = floatPtr(qty)
		item.UnitPrice = floatPtr(price)
		item.LineTotal = floatPtr(total)
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (entity.Invoice, error) {
	var (
		inv                  entity.Invoice
		id                   string
		number, currency     sql.NullString
		supName, supTax      sql.NullString
		cusName, cusTax      sql.NullString
		cufe, payment        sql.NullString
		issue, due           sql.NullTime
		subtotal, tax, total sql.NullFloat64
	)
	err := row.Scan(&id, &number, &issue, &due, &subtotal, &tax, &total, &currency,
		&supName, &supTax, &cusName, &cusTax, &cufe, &payment,
		&inv.RawText, &inv.FilePath, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return entity.Invoice{}, err
	}
	inv.ID, err = uuid.Parse(id)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("parse invoice id: %w", err)
	}
	inv.InvoiceNumber = strPtr(number)
	inv.IssueDate = timePtr(issue)
	inv.DueDate = timePtr(due)
	inv.SubtotalAmount = floatPtr(subtotal)
	inv.TaxAmount = floatPtr(tax)
	inv.TotalAmount = floatPtr(total)
	inv.Currency = strPtr(currency)
	inv.SupplierName = strPtr(supName)
	inv.SupplierTaxID = strPtr(supTax)
	inv.CustomerName = strPtr(cusName)
	inv.CustomerTaxID = strPtr(cusTax)
	inv.CUFE = strPtr(cufe)
	inv.PaymentMethod = strPtr(payment)
	return inv, nil
}

func nullStr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

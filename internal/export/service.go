package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/facturalab/invoice-engine/internal/entity"
	"github.com/facturalab/invoice-engine/internal/repository"
)

// Service is a tiny façade over the invoice repository that produces XLSX
// bytes for exports.
type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) for the given issue
// date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all invoices.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	fromDate, toDate := normalizeWindow(from, to)

	invs, err := s.invoices.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	if err := s.writeInvoiceSheet(f, invs); err != nil {
		return nil, err
	}
	if err := s.writeItemSheet(f, invs); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(invs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// normalizeWindow clamps the window bounds to date-only UTC and fills the
// upper bound with today when only the lower bound was given.
func normalizeWindow(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	return fromDate, toDate
}

const invoiceSheet = "Invoices"

func (s *Service) writeInvoiceSheet(f *excelize.File, invs []entity.Invoice) error {
	if index, _ := f.GetSheetIndex(invoiceSheet); index == -1 {
		if _, err := f.NewSheet(invoiceSheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(invoiceSheet)
	f.SetActiveSheet(activeIndex)
	// Excelize always seeds a default sheet; drop it so the workbook only
	// holds ours.
	if invoiceSheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Invoice Number",
		"Issue Date",
		"Due Date",
		"Supplier",
		"Supplier Tax ID",
		"Customer",
		"Subtotal",
		"Tax",
		"Total",
		"Currency",
		"Payment Method",
		"File Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(invoiceSheet, cell, h)
	}

	row := 2
	for _, inv := range invs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(invoiceSheet, cell, v)
		}

		write(1, strOrEmpty(inv.InvoiceNumber))
		write(2, dateOrEmpty(inv.IssueDate))
		write(3, dateOrEmpty(inv.DueDate))
		write(4, truncate(strOrEmpty(inv.SupplierName), 140))
		write(5, strOrEmpty(inv.SupplierTaxID))
		write(6, truncate(strOrEmpty(inv.CustomerName), 140))
		if inv.SubtotalAmount != nil {
			write(7, *inv.SubtotalAmount)
		}
		if inv.TaxAmount != nil {
			write(8, *inv.TaxAmount)
		}
		if inv.TotalAmount != nil {
			write(9, *inv.TotalAmount)
		}
		write(10, strOrEmpty(inv.Currency))
		write(11, strOrEmpty(inv.PaymentMethod))
		write(12, inv.FilePath)

		row++
	}

	_ = f.SetColWidth(invoiceSheet, "A", "A", 18) // invoice number
	_ = f.SetColWidth(invoiceSheet, "B", "C", 12) // dates
	_ = f.SetColWidth(invoiceSheet, "D", "F", 32) // parties
	_ = f.SetColWidth(invoiceSheet, "G", "I", 14) // amounts
	_ = f.SetColWidth(invoiceSheet, "L", "L", 60) // path
	return nil
}

const itemSheet = "Line Items"

func (s *Service) writeItemSheet(f *excelize.File, invs []entity.Invoice) error {
	if index, _ := f.GetSheetIndex(itemSheet); index == -1 {
		if _, err := f.NewSheet(itemSheet); err != nil {
			return err
		}
	}

	headers := []string{"Invoice Number", "Description", "Quantity", "Unit Price", "Line Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemSheet, cell, h)
	}

	row := 2
	for _, inv := range invs {
		for _, item := range inv.Items {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(itemSheet, cell, v)
			}

			write(1, strOrEmpty(inv.InvoiceNumber))
			write(2, truncate(item.Description, 140))
			if item.Quantity != nil {
				write(3, *item.Quantity)
			}
			if item.UnitPrice != nil {
				write(4, *item.UnitPrice)
			}
			if item.LineTotal != nil {
				write(5, *item.LineTotal)
			}

			row++
		}
	}

	_ = f.SetColWidth(itemSheet, "A", "A", 18)
	_ = f.SetColWidth(itemSheet, "B", "B", 48)
	_ = f.SetColWidth(itemSheet, "C", "E", 14)
	return nil
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func dateOrEmpty(v *time.Time) string {
	if v == nil || v.IsZero() {
		return ""
	}
	return v.Format("2006-01-02")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

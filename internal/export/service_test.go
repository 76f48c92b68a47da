package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/facturalab/invoice-engine/internal/entity"
)

type fakeInvoiceList struct {
	invoices []entity.Invoice
	gotFrom  *time.Time
	gotTo    *time.Time
}

func (r *fakeInvoiceList) UpsertByFilePath(_ context.Context, inv entity.Invoice) (entity.Invoice, error) {
	return inv, nil
}

func (r *fakeInvoiceList) GetByFilePath(_ context.Context, _ string) (*entity.Invoice, error) {
	return nil, nil
}

func (r *fakeInvoiceList) GetByID(_ context.Context, _ uuid.UUID) (*entity.Invoice, error) {
	return nil, nil
}

func (r *fakeInvoiceList) List(_ context.Context, from, to *time.Time) ([]entity.Invoice, error) {
	r.gotFrom, r.gotTo = from, to
	return r.invoices, nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func sampleExportInvoice() entity.Invoice {
	qty, price, total := 10.0, 100000.0, 1000000.0
	return entity.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: strPtr("FV-2025-00123"),
		IssueDate:     timePtr(time.Date(2025, time.May, 23, 0, 0, 0, 0, time.UTC)),
		TotalAmount:   floatPtr(1190000.0),
		Currency:      strPtr("COP"),
		SupplierName:  strPtr("Distribuciones Andinas SAS"),
		FilePath:      "/archive/fv-2025-00123.pdf",
		Items: []entity.LineItem{
			{Description: "Cemento gris 50kg", Quantity: &qty, UnitPrice: &price, LineTotal: &total},
		},
	}
}

func TestExportInvoicesXLSX(t *testing.T) {
	repo := &fakeInvoiceList{invoices: []entity.Invoice{sampleExportInvoice()}}
	svc := NewService(repo, nil)

	data, err := svc.ExportInvoicesXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Nil(t, repo.gotFrom)
	assert.Nil(t, repo.gotTo)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	num, err := wb.GetCellValue("Invoices", "A2")
	require.NoError(t, err)
	assert.Equal(t, "FV-2025-00123", num)

	date, err := wb.GetCellValue("Invoices", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-23", date)

	total, err := wb.GetCellValue("Invoices", "I2")
	require.NoError(t, err)
	assert.Equal(t, "1190000", total)

	desc, err := wb.GetCellValue("Line Items", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Cemento gris 50kg", desc)

	lineTotal, err := wb.GetCellValue("Line Items", "E2")
	require.NoError(t, err)
	assert.Equal(t, "1000000", lineTotal)
}

func TestExportWindowFillsUpperBound(t *testing.T) {
	repo := &fakeInvoiceList{}
	svc := NewService(repo, nil)

	from := time.Date(2025, time.January, 15, 13, 45, 0, 0, time.Local)
	_, err := svc.ExportInvoicesXLSX(context.Background(), &from, nil)
	require.NoError(t, err)

	require.NotNil(t, repo.gotFrom)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), *repo.gotFrom)
	require.NotNil(t, repo.gotTo, "missing upper bound should default to today")
	assert.Equal(t, time.UTC, repo.gotTo.Location())
	assert.Equal(t, 0, repo.gotTo.Hour())
}

func TestExportSparseInvoiceLeavesCellsEmpty(t *testing.T) {
	repo := &fakeInvoiceList{invoices: []entity.Invoice{{
		ID:       uuid.New(),
		FilePath: "/archive/sparse.pdf",
	}}}
	svc := NewService(repo, nil)

	data, err := svc.ExportInvoicesXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	total, err := wb.GetCellValue("Invoices", "I2")
	require.NoError(t, err)
	assert.Empty(t, total)

	path, err := wb.GetCellValue("Invoices", "L2")
	require.NoError(t, err)
	assert.Equal(t, "/archive/sparse.pdf", path)
}

package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalab/invoice-engine/internal/entity"
)

type fakeDetector struct {
	name   string
	tables []Table
	err    error
}

func (f fakeDetector) Name() string { return f.name }

func (f fakeDetector) DetectTables(context.Context, string) ([]Table, error) {
	return f.tables, f.err
}

func TestTableLineItemsNamedColumns(t *testing.T) {
	tb := Table{Rows: [][]string{
		{"Descripción", "Cantidad", "Precio Unitario", "Total"},
		{"Caja de tornillos", "2", "10.000,00", "20.000,00"},
		{"Martillo", "1", "15,50", ""},
	}}
	tli := NewTableLineItems([]TableDetector{fakeDetector{name: "lattice", tables: []Table{tb}}}, nil)

	items := tli.ExtractAndParse(context.Background(), "doc.pdf")
	require.Len(t, items, 2)
	assert.Equal(t, "Caja de tornillos", items[0].Description)
	require.NotNil(t, items[0].LineTotal)
	assert.InDelta(t, 20000.0, *items[0].LineTotal, 0.001)

	// Missing total derived from quantity * unit price.
	require.NotNil(t, items[1].LineTotal)
	assert.InDelta(t, 15.5, *items[1].LineTotal, 0.001)
}

func TestTableLineItemsPositionalFallback(t *testing.T) {
	tb := Table{Rows: [][]string{
		{"0", "1", "2", "3"},
		{"Martillo", "1", "15,50", "15,50"},
	}}
	tli := NewTableLineItems([]TableDetector{fakeDetector{name: "stream", tables: []Table{tb}}}, nil)

	items := tli.ExtractAndParse(context.Background(), "doc.pdf")
	require.Len(t, items, 1)
	assert.Equal(t, "Martillo", items[0].Description)
}

func TestTableLineItemsThreeColumnPositional(t *testing.T) {
	tb := Table{Rows: [][]string{
		{"a", "b", "c"},
		{"Tuerca", "3", "2,50"},
	}}
	tli := NewTableLineItems([]TableDetector{fakeDetector{name: "stream", tables: []Table{tb}}}, nil)

	items := tli.ExtractAndParse(context.Background(), "doc.pdf")
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LineTotal)
	assert.InDelta(t, 7.5, *items[0].LineTotal, 0.001)
}

func TestTableLineItemsDedupePrefersLineTotal(t *testing.T) {
	withTotal := Table{Rows: [][]string{
		{"Descripción", "Cantidad", "Precio Unitario", "Total"},
		{"Widget", "2", "10.0", "20.0"},
	}}
	withoutTotal := Table{Rows: [][]string{
		{"Descripción", "Cantidad", "Precio Unitario"},
		{"Widget", "2", "10.0"},
	}}
	tli := NewTableLineItems([]TableDetector{
		fakeDetector{name: "lattice", tables: []Table{withoutTotal}},
		fakeDetector{name: "stream", tables: []Table{withTotal}},
	}, nil)

	items := tli.ExtractAndParse(context.Background(), "doc.pdf")
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LineTotal)
	assert.InDelta(t, 20.0, *items[0].LineTotal, 0.001)
}

func TestDedupeItemsPrefersNonNilLineTotal(t *testing.T) {
	items := dedupeItems([]entity.LineItem{
		{Description: "Widget", Quantity: entity.Float64Ptr(2), UnitPrice: entity.Float64Ptr(10.0)},
		{Description: "Widget", Quantity: entity.Float64Ptr(2), UnitPrice: entity.Float64Ptr(10.0), LineTotal: entity.Float64Ptr(20.0)},
	})
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LineTotal)
	assert.InDelta(t, 20.0, *items[0].LineTotal, 0.001)

	// The preference does not run backwards: an already-resolved total stays.
	items = dedupeItems([]entity.LineItem{
		{Description: "Widget", Quantity: entity.Float64Ptr(2), UnitPrice: entity.Float64Ptr(10.0), LineTotal: entity.Float64Ptr(20.0)},
		{Description: "Widget", Quantity: entity.Float64Ptr(2), UnitPrice: entity.Float64Ptr(10.0)},
	})
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LineTotal)
}

func TestTableLineItemsFailingStrategyIsolated(t *testing.T) {
	good := Table{Rows: [][]string{
		{"Descripción", "Cantidad", "Precio Unitario", "Total"},
		{"Martillo", "1", "15,50", "15,50"},
	}}
	tli := NewTableLineItems([]TableDetector{
		fakeDetector{name: "lattice", err: errors.New("engine crashed")},
		fakeDetector{name: "stream", tables: []Table{good}},
	}, nil)

	items := tli.ExtractAndParse(context.Background(), "doc.pdf")
	assert.Len(t, items, 1)
}

func TestTableLineItemsNoiseRowsFiltered(t *testing.T) {
	tb := Table{Rows: [][]string{
		{"Descripción", "Cantidad", "Precio Unitario", "Total"},
		{"Total", "", "", ""},
		{"Descripcion", "", "", ""},
		{"", "2", "10,00", "20,00"},
	}}
	tli := NewTableLineItems([]TableDetector{fakeDetector{name: "lattice", tables: []Table{tb}}}, nil)

	assert.Empty(t, tli.ExtractAndParse(context.Background(), "doc.pdf"))
}

func TestLineItemValidity(t *testing.T) {
	noise := entity.LineItem{Description: "Total"}
	assert.False(t, noise.Valid())

	negative := entity.LineItem{Description: "Ajuste", Quantity: entity.Float64Ptr(-1)}
	assert.False(t, negative.Valid())

	ok := entity.LineItem{Description: "Martillo", UnitPrice: entity.Float64Ptr(15.5)}
	assert.True(t, ok.Valid())
}

package constants

import "strings"

// ItemSectionStart marks a likely line-item table header when found on a line
// that also contains a digit.
var ItemSectionStart = []string{
	"descripción", "cantidad", "valor unitario", "total", "item",
	"producto", "referencia", "detalle", "concept", "qty", "unit price",
	"line total", "amount", "unit", "valor", "preciounitario",
}

// ItemSectionEnd marks the totals block that terminates the line-item section.
var ItemSectionEnd = []string{"subtotal", "iva", "impuesto", "total", "total a pagar", "gran total"}

// itemNoiseTokens are descriptions that are really headers or footers leaking
// through table detection.
var itemNoiseTokens = map[string]struct{}{
	"item":        {},
	"ítem":        {},
	"description": {},
	"descripcion": {},
	"descripción": {},
	"concepto":    {},
	"total":       {},
}

// IsItemNoise reports whether a description is a known header/footer token
// rather than a real line item.
func IsItemNoise(description string) bool {
	_, ok := itemNoiseTokens[strings.ToLower(strings.TrimSpace(description))]
	return ok
}

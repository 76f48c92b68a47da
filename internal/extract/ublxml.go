package extract

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
)

// UBL element shapes, matched by local name so the DIAN namespace prefixes
// (cbc/cac) do not matter to the decoder.
type ublXMLInvoice struct {
	UUID                 string       `xml:"UUID"`
	ID                   string       `xml:"ID"`
	IssueDate            string       `xml:"IssueDate"`
	DocumentCurrencyCode string       `xml:"DocumentCurrencyCode"`
	Supplier             ublXMLParty  `xml:"AccountingSupplierParty>Party"`
	Customer             ublXMLParty  `xml:"AccountingCustomerParty>Party"`
	LegalMonetaryTotal   ublXMLTotals `xml:"LegalMonetaryTotal"`
	TaxTotal             struct {
		TaxAmount string `xml:"TaxAmount"`
	} `xml:"TaxTotal"`
	PaymentMeans struct {
		PaymentDueDate string `xml:"PaymentDueDate"`
	} `xml:"PaymentMeans"`
	Lines []ublXMLLine `xml:"InvoiceLine"`
}

type ublXMLParty struct {
	RegistrationName string `xml:"PartyTaxScheme>RegistrationName"`
	CompanyID        string `xml:"PartyTaxScheme>CompanyID"`
	LegalName        string `xml:"PartyLegalEntity>RegistrationName"`
}

type ublXMLTotals struct {
	LineExtensionAmount string `xml:"LineExtensionAmount"`
	PayableAmount       string `xml:"PayableAmount"`
}

type ublXMLLine struct {
	InvoicedQuantity    string `xml:"InvoicedQuantity"`
	LineExtensionAmount string `xml:"LineExtensionAmount"`
	Description         string `xml:"Item>Description"`
	PriceAmount         string `xml:"Price>PriceAmount"`
}

// attachedDocument is the DIAN envelope: the actual invoice XML travels as
// character data inside Attachment/ExternalReference/Description.
type attachedDocument struct {
	Description string `xml:"Attachment>ExternalReference>Description"`
}

// control characters that electronic-invoice emitters occasionally leave in
// the payload and that the XML decoder rejects.
var invalidXMLChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]+`)

// ParseUBL decodes a UBL invoice document into the canonical field map the
// structured-document gate consumes. It unwraps one level of AttachedDocument
// nesting when present. Values stay raw strings; FromUBL casts them.
func ParseUBL(data []byte) (map[string]any, error) {
	cleaned := invalidXMLChars.ReplaceAll(data, []byte(" "))

	var envelope attachedDocument
	if err := xml.Unmarshal(cleaned, &envelope); err == nil && strings.TrimSpace(envelope.Description) != "" {
		cleaned = []byte(envelope.Description)
	}

	var inv ublXMLInvoice
	if err := xml.Unmarshal(cleaned, &inv); err != nil {
		return nil, fmt.Errorf("parse ubl document: %w", err)
	}

	supplierName := firstNonEmpty(inv.Supplier.RegistrationName, inv.Supplier.LegalName)
	customerName := firstNonEmpty(inv.Customer.RegistrationName, inv.Customer.LegalName)

	doc := map[string]any{
		constants.FieldCUFE:           strings.TrimSpace(inv.UUID),
		constants.FieldInvoiceNumber:  strings.TrimSpace(inv.ID),
		constants.FieldIssueDate:      strings.TrimSpace(inv.IssueDate),
		constants.FieldDueDate:        strings.TrimSpace(inv.PaymentMeans.PaymentDueDate),
		constants.FieldCurrency:       strings.TrimSpace(inv.DocumentCurrencyCode),
		constants.FieldSupplierName:   supplierName,
		constants.FieldSupplierTaxID:  strings.TrimSpace(inv.Supplier.CompanyID),
		constants.FieldCustomerName:   customerName,
		constants.FieldCustomerTaxID:  strings.TrimSpace(inv.Customer.CompanyID),
		constants.FieldSubtotalAmount: strings.TrimSpace(inv.LegalMonetaryTotal.LineExtensionAmount),
		constants.FieldTaxAmount:      strings.TrimSpace(inv.TaxTotal.TaxAmount),
		constants.FieldTotalAmount:    strings.TrimSpace(inv.LegalMonetaryTotal.PayableAmount),
	}

	var items []map[string]any
	for _, line := range inv.Lines {
		items = append(items, map[string]any{
			"description": strings.TrimSpace(line.Description),
			"quantity":    strings.TrimSpace(line.InvoicedQuantity),
			"unit_price":  strings.TrimSpace(line.PriceAmount),
			"line_total":  strings.TrimSpace(line.LineExtensionAmount),
		})
	}
	if items != nil {
		doc["items"] = items
	}
	return doc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

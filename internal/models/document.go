package models

import "strings"

// DocumentKind identifies which document a byte payload represents.
// The value doubles as the base name of deterministic-override files
// ("invoice.json", "purchase_order.json").
type DocumentKind string

const (
	KindInvoice       DocumentKind = "invoice"
	KindPurchaseOrder DocumentKind = "purchase_order"
)

// String returns the string representation of the document kind.
func (k DocumentKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the supported document kinds.
func (k DocumentKind) IsValid() bool {
	return k == KindInvoice || k == KindPurchaseOrder
}

// Party is the nested supplier/recipient object of the harmonized schema.
type Party struct {
	Name    string `json:"name"`
	GSTIN   string `json:"gstin"`
	Address string `json:"address"`
}

// LineItem is a single billed line of an invoice or purchase order.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// DocumentFields is the harmonized field schema shared by invoice and
// purchase-order extraction so their outputs are directly comparable.
// Dates are ISO (YYYY-MM-DD) strings, amounts are plain numbers with
// currency formatting stripped, and tax rates are percentage strings
// such as "18%". Missing fields hold type-appropriate zero values.
type DocumentFields struct {
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date"`
	PONumber      string     `json:"po_number"`
	Supplier      Party      `json:"supplier"`
	Recipient     Party      `json:"recipient"`
	LineItems     []LineItem `json:"line_items"`
	Subtotal      float64    `json:"subtotal"`
	TaxRate       string     `json:"tax_rate"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	Currency      string     `json:"currency"`
	PaymentTerms  string     `json:"payment_terms"`
	PlaceOfSupply string     `json:"place_of_supply"`
}

// IsEmpty reports whether the extraction produced no usable fields at all.
// A successful extraction of a blank page can come back as all zero values;
// the orchestrator treats that the same as an extraction failure.
func (f *DocumentFields) IsEmpty() bool {
	if f == nil {
		return true
	}
	return strings.TrimSpace(f.InvoiceNumber) == "" &&
		strings.TrimSpace(f.PONumber) == "" &&
		strings.TrimSpace(f.Supplier.Name) == "" &&
		len(f.LineItems) == 0 &&
		f.TotalAmount == 0
}

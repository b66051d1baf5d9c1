package extraction

import (
	"fmt"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// buildPrompt builds the extraction prompt for a document kind. Both kinds
// share the harmonized field set; only the wording of what the document is
// differs.
func buildPrompt(kind models.DocumentKind) string {
	docName := "tax invoice"
	if kind == models.KindPurchaseOrder {
		docName = "purchase order"
	}

	return fmt.Sprintf(`Extract all fields from the attached %s image(s) and return a single JSON object with exactly this structure:

{
  "invoice_number": "document number as printed",
  "invoice_date": "YYYY-MM-DD",
  "po_number": "referenced purchase order number if any",
  "supplier": {"name": "", "gstin": "", "address": ""},
  "recipient": {"name": "", "gstin": "", "address": ""},
  "line_items": [{"description": "", "quantity": 0, "unit_price": 0, "amount": 0}],
  "subtotal": 0,
  "tax_rate": "percentage string such as 18%%",
  "tax_amount": 0,
  "total_amount": 0,
  "currency": "ISO 4217 code",
  "payment_terms": "",
  "place_of_supply": ""
}

Rules:
- Return ONLY the JSON object, no markdown fences, no commentary.
- Dates must be ISO format (YYYY-MM-DD).
- Amounts must be plain numbers with currency symbols and thousands separators stripped.
- Tax rates must be percentage strings, e.g. "18%%".
- Every key above must be present. Fill fields that are absent from the document with type-appropriate zero values: "" for strings, 0 for numbers, {} members empty for objects, [] for lists.
- Do not invent values that are not on the document.`, docName)
}

// systemInstruction is the fixed system message for extraction requests.
const systemInstruction = "You are an expert at reading scanned invoices and purchase orders. " +
	"You read field values exactly as printed and always respond with valid JSON."

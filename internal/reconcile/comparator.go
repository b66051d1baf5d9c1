package reconcile

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// amountTolerance absorbs rounding differences between the two documents.
const amountTolerance = 0.01

// Comparator reconciles an invoice against its purchase order field by
// field. It is pure: same inputs, same result, no I/O.
type Comparator struct {
	logger *zap.Logger
}

// NewComparator creates a new purchase-order comparator.
func NewComparator(logger *zap.Logger) *Comparator {
	return &Comparator{logger: logger}
}

// Compare reconciles invoice fields against purchase-order fields. The
// overall result matches only when every compared field matches.
func (c *Comparator) Compare(invoice, po *models.DocumentFields) models.ComparisonResult {
	if invoice == nil || po == nil {
		return models.FailedComparison("comparison requires both invoice and purchase order fields")
	}

	diffs := []models.FieldDiff{
		c.compareReference(invoice, po),
		c.compareSupplier(invoice, po),
		c.compareTotals(invoice, po),
		c.compareLineCount(invoice, po),
	}

	mismatches := 0
	for _, diff := range diffs {
		if !diff.Match {
			mismatches++
		}
	}

	result := models.ComparisonResult{
		OverallMatch: mismatches == 0,
		FieldDiffs:   diffs,
	}
	if mismatches == 0 {
		result.Message = "invoice matches the purchase order"
	} else {
		result.Message = fmt.Sprintf("invoice disagrees with the purchase order on %d of %d fields",
			mismatches, len(diffs))
	}

	c.logger.Info("Purchase order comparison completed",
		zap.Bool("overall_match", result.OverallMatch),
		zap.Int("mismatches", mismatches))

	return result
}

// compareReference checks the PO number the invoice cites against the
// purchase order's own number. A PO document may carry its number in either
// the po_number or invoice_number slot depending on the layout.
func (c *Comparator) compareReference(invoice, po *models.DocumentFields) models.FieldDiff {
	invoiceRef := normalize(invoice.PONumber)
	poRef := normalize(po.PONumber)
	if poRef == "" {
		poRef = normalize(po.InvoiceNumber)
	}

	diff := models.FieldDiff{
		Field:        "po_number",
		InvoiceValue: invoice.PONumber,
		POValue:      firstNonEmpty(po.PONumber, po.InvoiceNumber),
	}

	switch {
	case invoiceRef == "" && poRef == "":
		diff.Match = true
		diff.Detail = "neither document carries a PO number"
	case invoiceRef == "":
		diff.Detail = "invoice does not cite the purchase order number"
	case poRef == "":
		diff.Detail = "purchase order number could not be read"
	case invoiceRef == poRef:
		diff.Match = true
	default:
		diff.Detail = "invoice cites a different purchase order"
	}
	return diff
}

func (c *Comparator) compareSupplier(invoice, po *models.DocumentFields) models.FieldDiff {
	diff := models.FieldDiff{
		Field:        "supplier",
		InvoiceValue: invoice.Supplier.Name,
		POValue:      po.Supplier.Name,
	}

	invGSTIN := normalize(invoice.Supplier.GSTIN)
	poGSTIN := normalize(po.Supplier.GSTIN)
	if invGSTIN != "" && poGSTIN != "" {
		diff.Match = invGSTIN == poGSTIN
		if !diff.Match {
			diff.Detail = "supplier GSTINs differ"
		}
		return diff
	}

	diff.Match = normalize(invoice.Supplier.Name) == normalize(po.Supplier.Name)
	if !diff.Match {
		diff.Detail = "supplier names differ"
	}
	return diff
}

func (c *Comparator) compareTotals(invoice, po *models.DocumentFields) models.FieldDiff {
	diff := models.FieldDiff{
		Field:        "total_amount",
		InvoiceValue: fmt.Sprintf("%.2f", invoice.TotalAmount),
		POValue:      fmt.Sprintf("%.2f", po.TotalAmount),
	}

	if math.Abs(invoice.TotalAmount-po.TotalAmount) <= amountTolerance {
		diff.Match = true
		return diff
	}
	diff.Detail = fmt.Sprintf("invoice total %.2f differs from purchase order total %.2f",
		invoice.TotalAmount, po.TotalAmount)
	return diff
}

func (c *Comparator) compareLineCount(invoice, po *models.DocumentFields) models.FieldDiff {
	diff := models.FieldDiff{
		Field:        "line_items",
		InvoiceValue: fmt.Sprintf("%d items", len(invoice.LineItems)),
		POValue:      fmt.Sprintf("%d items", len(po.LineItems)),
	}

	if len(po.LineItems) == 0 {
		// Some purchase orders only carry a total; do not fail on layout.
		diff.Match = true
		diff.Detail = "purchase order carries no itemization"
		return diff
	}

	diff.Match = len(invoice.LineItems) == len(po.LineItems)
	if !diff.Match {
		diff.Detail = "line item counts differ"
	}
	return diff
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

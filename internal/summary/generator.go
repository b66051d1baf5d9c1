package summary

import (
	"fmt"
	"strings"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// Generator composes the human-readable verdict summary from the collected
// processing evidence. It is deterministic: no clock, no randomness.
type Generator struct{}

// NewGenerator creates a new summary generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the one-paragraph summary for a processing result. It
// works for every terminal status, including failures that never reached
// validation.
func (g *Generator) Generate(result *models.ProcessingResult) string {
	if result == nil {
		return ""
	}

	var b strings.Builder

	switch result.Status {
	case models.StatusSkippedInvoice:
		b.WriteString("Processing skipped: ")
		b.WriteString(result.Message)
		return b.String()
	case models.StatusFailed:
		b.WriteString("Processing failed: ")
		b.WriteString(result.Message)
		return b.String()
	case models.StatusDuplicate:
		b.WriteString("Invoice rejected as a duplicate: ")
		b.WriteString(result.Message)
		return b.String()
	}

	if result.InvoiceFields != nil {
		fmt.Fprintf(&b, "Invoice %s from %s for %s%.2f",
			valueOr(result.InvoiceFields.InvoiceNumber, "(no number)"),
			valueOr(result.InvoiceFields.Supplier.Name, "(unknown supplier)"),
			currencySymbol(result.InvoiceFields.Currency),
			result.InvoiceFields.TotalAmount)
	} else {
		b.WriteString("Invoice")
	}

	switch result.Status {
	case models.StatusAccepted:
		b.WriteString(" was accepted.")
	case models.StatusRejected:
		b.WriteString(" was rejected.")
	default:
		fmt.Fprintf(&b, " finished with status %s.", result.Status)
	}

	if result.ChecklistOption != "" {
		fmt.Fprintf(&b, " Validated against the %s checklist", result.ChecklistOption)
		if len(result.Issues) == 0 {
			b.WriteString(" with no issues.")
		} else {
			fmt.Fprintf(&b, " with %d issue(s): %s.", len(result.Issues), issueDigest(result.Issues))
		}
	}

	if result.VendorCheck.Message != "" {
		fmt.Fprintf(&b, " Vendor check: %s.", strings.TrimSuffix(result.VendorCheck.Message, "."))
	}

	if result.Comparison != nil {
		fmt.Fprintf(&b, " Purchase order reconciliation: %s.",
			strings.TrimSuffix(result.Comparison.Message, "."))
	}

	return b.String()
}

// issueDigest joins the violated fields so the summary names what failed
// without repeating every message.
func issueDigest(issues []models.ValidationIssue) string {
	fields := make([]string, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, issue.Field)
	}
	return strings.Join(fields, ", ")
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "INR":
		return "₹"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "":
		return ""
	default:
		return currency + " "
	}
}

package checklist

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// Option identifies which checklist applies to an invoice. Selection is a
// pure function of the extracted fields; when it cannot decide it returns
// OptionUnknown with the base criteria rather than erroring.
type Option string

const (
	OptionGSTTaxInvoice Option = "gst_tax_invoice"
	OptionBillOfSupply  Option = "bill_of_supply"
	OptionUnknown       Option = "unknown"
)

// String returns the string representation of the option.
func (o Option) String() string {
	return string(o)
}

// Criterion is one checklist rule. Check returns false with a human-readable
// message when the rule is violated.
type Criterion struct {
	Field string
	Rule  string
	Check func(f *models.DocumentFields) (bool, string)
}

// Selection is the outcome of checklist selection: the chosen option and the
// criteria the invoice must satisfy.
type Selection struct {
	Option   Option
	Criteria []Criterion
}

// amountTolerance absorbs rounding differences in extracted amounts.
const amountTolerance = 0.01

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// SelectCriteria picks the checklist for an invoice. GST markers (supplier
// GSTIN, tax rate or tax amount) select the tax-invoice checklist; an
// invoice without them is treated as a bill of supply. Fields too sparse to
// classify select OptionUnknown with the base criteria.
func (c *Checker) SelectCriteria(f *models.DocumentFields) Selection {
	if f == nil || f.IsEmpty() {
		return Selection{Option: OptionUnknown, Criteria: baseCriteria()}
	}

	if strings.TrimSpace(f.Supplier.GSTIN) != "" ||
		strings.TrimSpace(f.TaxRate) != "" ||
		f.TaxAmount > 0 {
		return Selection{
			Option:   OptionGSTTaxInvoice,
			Criteria: append(baseCriteria(), gstCriteria()...),
		}
	}

	if strings.TrimSpace(f.InvoiceNumber) != "" && strings.TrimSpace(f.Supplier.Name) != "" {
		return Selection{
			Option:   OptionBillOfSupply,
			Criteria: append(baseCriteria(), billOfSupplyCriteria()...),
		}
	}

	return Selection{Option: OptionUnknown, Criteria: baseCriteria()}
}

// baseCriteria applies to every invoice regardless of option.
func baseCriteria() []Criterion {
	return []Criterion{
		{
			Field: "invoice_number",
			Rule:  "required",
			Check: func(f *models.DocumentFields) (bool, string) {
				if strings.TrimSpace(f.InvoiceNumber) == "" {
					return false, "invoice number is missing"
				}
				return true, ""
			},
		},
		{
			Field: "invoice_date",
			Rule:  "iso_date",
			Check: func(f *models.DocumentFields) (bool, string) {
				date := strings.TrimSpace(f.InvoiceDate)
				if date == "" {
					return false, "invoice date is missing"
				}
				if _, err := time.Parse("2006-01-02", date); err != nil {
					return false, fmt.Sprintf("invoice date %q is not an ISO date", date)
				}
				return true, ""
			},
		},
		{
			Field: "supplier.name",
			Rule:  "required",
			Check: func(f *models.DocumentFields) (bool, string) {
				if strings.TrimSpace(f.Supplier.Name) == "" {
					return false, "supplier name is missing"
				}
				return true, ""
			},
		},
		{
			Field: "line_items",
			Rule:  "non_empty",
			Check: func(f *models.DocumentFields) (bool, string) {
				if len(f.LineItems) == 0 {
					return false, "invoice has no line items"
				}
				return true, ""
			},
		},
		{
			Field: "subtotal",
			Rule:  "line_items_sum",
			Check: func(f *models.DocumentFields) (bool, string) {
				if f.Subtotal == 0 || len(f.LineItems) == 0 {
					return true, ""
				}
				var sum float64
				for _, item := range f.LineItems {
					sum += item.Amount
				}
				if math.Abs(sum-f.Subtotal) > amountTolerance {
					return false, fmt.Sprintf("line items sum to %.2f but subtotal is %.2f", sum, f.Subtotal)
				}
				return true, ""
			},
		},
		{
			Field: "total_amount",
			Rule:  "totals_consistent",
			Check: func(f *models.DocumentFields) (bool, string) {
				if f.TotalAmount == 0 {
					return false, "total amount is missing or zero"
				}
				if f.Subtotal == 0 {
					return true, ""
				}
				if math.Abs(f.Subtotal+f.TaxAmount-f.TotalAmount) > amountTolerance {
					return false, fmt.Sprintf("subtotal %.2f plus tax %.2f does not equal total %.2f",
						f.Subtotal, f.TaxAmount, f.TotalAmount)
				}
				return true, ""
			},
		},
	}
}

// gstCriteria applies only to GST tax invoices.
func gstCriteria() []Criterion {
	return []Criterion{
		{
			Field: "supplier.gstin",
			Rule:  "gstin_format",
			Check: func(f *models.DocumentFields) (bool, string) {
				gstin := strings.TrimSpace(f.Supplier.GSTIN)
				if gstin == "" {
					return false, "supplier GSTIN is missing on a tax invoice"
				}
				if !gstinPattern.MatchString(gstin) {
					return false, fmt.Sprintf("supplier GSTIN %q is not a valid GSTIN", gstin)
				}
				return true, ""
			},
		},
		{
			Field: "tax_rate",
			Rule:  "valid_percentage",
			Check: func(f *models.DocumentFields) (bool, string) {
				rate := strings.TrimSpace(f.TaxRate)
				if rate == "" {
					return false, "tax rate is missing on a tax invoice"
				}
				value, err := strconv.ParseFloat(strings.TrimSuffix(rate, "%"), 64)
				if err != nil || value < 0 || value > 100 {
					return false, fmt.Sprintf("tax rate %q is not a valid percentage", rate)
				}
				return true, ""
			},
		},
	}
}

// billOfSupplyCriteria applies to invoices without GST markers.
func billOfSupplyCriteria() []Criterion {
	return []Criterion{
		{
			Field: "tax_amount",
			Rule:  "no_tax_charged",
			Check: func(f *models.DocumentFields) (bool, string) {
				if f.TaxAmount != 0 {
					return false, fmt.Sprintf("bill of supply must not charge tax, found %.2f", f.TaxAmount)
				}
				return true, ""
			},
		},
	}
}

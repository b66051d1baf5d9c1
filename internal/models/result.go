package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Status is the final verdict of one processing run. The set is closed:
// nothing outside these values may ever be persisted.
type Status string

const (
	StatusAccepted       Status = "accepted"
	StatusRejected       Status = "rejected"
	StatusDuplicate      Status = "duplicate"
	StatusFailed         Status = "failed"
	StatusSkippedInvoice Status = "skipped_invoice"
)

var validStatuses = map[Status]bool{
	StatusAccepted:       true,
	StatusRejected:       true,
	StatusDuplicate:      true,
	StatusFailed:         true,
	StatusSkippedInvoice: true,
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status belongs to the closed verdict set.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// ValidationIssue is one checklist violation: which field broke which rule.
type ValidationIssue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// VendorCheck is the supplier-identity check result produced alongside
// checklist validation. It informs the summary but never rejects on its own.
type VendorCheck struct {
	Known   bool   `json:"known"`
	Message string `json:"message"`
}

// FieldDiff describes one compared field between invoice and PO.
type FieldDiff struct {
	Field        string `json:"field"`
	InvoiceValue string `json:"invoice_value"`
	POValue      string `json:"po_value"`
	Match        bool   `json:"match"`
	Detail       string `json:"detail,omitempty"`
}

// ComparisonResult describes invoice-vs-PO reconciliation.
type ComparisonResult struct {
	OverallMatch bool        `json:"overall_match"`
	Message      string      `json:"message"`
	FieldDiffs   []FieldDiff `json:"field_diffs,omitempty"`
}

// SkippedComparison is the sentinel used when no PO was supplied.
// Absence of a PO is not a failure, so the match defaults to true.
func SkippedComparison() ComparisonResult {
	return ComparisonResult{OverallMatch: true, Message: "skipped"}
}

// FailedComparison is the forced non-match used when a PO was indicated
// but could not be extracted. The run continues on checklist alone.
func FailedComparison(reason string) ComparisonResult {
	return ComparisonResult{OverallMatch: false, Message: reason}
}

// ProcessingResult is the accumulated envelope of one pipeline run and the
// only entity written to durable storage. It is append-only: once created
// it is never mutated in the store.
//
// A result with status "duplicate" carries the ORIGINAL record's ID, never
// a freshly generated one.
type ProcessingResult struct {
	ID              string            `json:"id,omitempty"`
	Fingerprint     string            `json:"fingerprint,omitempty"`
	Status          Status            `json:"status"`
	Message         string            `json:"message"`
	InvoiceFields   *DocumentFields   `json:"invoice_fields,omitempty"`
	POFields        *DocumentFields   `json:"po_fields,omitempty"`
	Issues          []ValidationIssue `json:"invoice_validation_issues"`
	VendorCheck     VendorCheck       `json:"vendor_check"`
	Comparison      *ComparisonResult `json:"po_comparison,omitempty"`
	Summary         string            `json:"result_summary"`
	ChecklistOption string            `json:"checklist_option"`
	POProvided      bool              `json:"po_provided"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Fingerprint computes the stable content fingerprint used for duplicate
// detection: invoice number + supplier identity + total amount. Supplier
// identity prefers the GSTIN and falls back to the lowercased name.
func Fingerprint(f *DocumentFields) string {
	if f == nil {
		return ""
	}
	supplier := strings.TrimSpace(f.Supplier.GSTIN)
	if supplier == "" {
		supplier = strings.ToLower(strings.TrimSpace(f.Supplier.Name))
	}
	payload := fmt.Sprintf("%s|%s|%.2f",
		strings.ToLower(strings.TrimSpace(f.InvoiceNumber)),
		supplier,
		f.TotalAmount,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

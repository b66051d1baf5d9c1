package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

const sheetName = "Audit Report"

// ReportBuilder renders a persisted processing result as an Excel audit
// report: verdict, extracted fields, checklist issues and PO comparison.
type ReportBuilder struct {
	logger *zap.Logger
}

// NewReportBuilder creates a new audit report builder.
func NewReportBuilder(logger *zap.Logger) *ReportBuilder {
	return &ReportBuilder{logger: logger}
}

// Build renders the workbook and returns its bytes.
func (b *ReportBuilder) Build(result *models.ProcessingResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("no result to report on")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create report sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		b.logger.Warn("Failed to remove default sheet", zap.Error(err))
	}

	row := 1
	row = b.writeVerdict(f, row, result)
	row = b.writeFields(f, row, "Invoice", result.InvoiceFields)
	if result.POFields != nil {
		row = b.writeFields(f, row, "Purchase Order", result.POFields)
	}
	row = b.writeIssues(f, row, result.Issues)
	b.writeComparison(f, row, result.Comparison)

	if err := f.SetColWidth(sheetName, "A", "B", 32); err != nil {
		b.logger.Warn("Failed to set column width", zap.Error(err))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	b.logger.Info("Audit report rendered",
		zap.String("result_id", result.ID),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (b *ReportBuilder) writeVerdict(f *excelize.File, row int, result *models.ProcessingResult) int {
	b.setCell(f, row, "Result ID", result.ID)
	b.setCell(f, row+1, "Status", strings.ToUpper(result.Status.String()))
	b.setCell(f, row+2, "Message", result.Message)
	b.setCell(f, row+3, "Checklist", result.ChecklistOption)
	b.setCell(f, row+4, "Vendor Check", result.VendorCheck.Message)
	b.setCell(f, row+5, "Summary", result.Summary)
	b.setCell(f, row+6, "Processed At", result.CreatedAt.Format("2006-01-02 15:04:05"))
	return row + 8
}

func (b *ReportBuilder) writeFields(f *excelize.File, row int, title string, fields *models.DocumentFields) int {
	b.setCell(f, row, title, "")
	row++
	if fields == nil {
		b.setCell(f, row, "(not extracted)", "")
		return row + 2
	}

	entries := []struct{ label, value string }{
		{"Invoice Number", fields.InvoiceNumber},
		{"Invoice Date", fields.InvoiceDate},
		{"PO Number", fields.PONumber},
		{"Supplier", fields.Supplier.Name},
		{"Supplier GSTIN", fields.Supplier.GSTIN},
		{"Recipient", fields.Recipient.Name},
		{"Subtotal", fmt.Sprintf("%.2f", fields.Subtotal)},
		{"Tax", fmt.Sprintf("%s / %.2f", fields.TaxRate, fields.TaxAmount)},
		{"Total", fmt.Sprintf("%.2f %s", fields.TotalAmount, fields.Currency)},
	}
	for _, entry := range entries {
		b.setCell(f, row, entry.label, entry.value)
		row++
	}

	for i, item := range fields.LineItems {
		b.setCell(f, row, fmt.Sprintf("Line %d", i+1),
			fmt.Sprintf("%s x%.2f @ %.2f = %.2f", item.Description, item.Quantity, item.UnitPrice, item.Amount))
		row++
	}
	return row + 1
}

func (b *ReportBuilder) writeIssues(f *excelize.File, row int, issues []models.ValidationIssue) int {
	b.setCell(f, row, "Checklist Issues", fmt.Sprintf("%d", len(issues)))
	row++
	for _, issue := range issues {
		b.setCell(f, row, issue.Field+" ("+issue.Rule+")", issue.Message)
		row++
	}
	return row + 1
}

func (b *ReportBuilder) writeComparison(f *excelize.File, row int, comparison *models.ComparisonResult) {
	if comparison == nil {
		b.setCell(f, row, "PO Comparison", "not performed")
		return
	}

	verdict := "MATCH"
	if !comparison.OverallMatch {
		verdict = "MISMATCH"
	}
	b.setCell(f, row, "PO Comparison", verdict+" — "+comparison.Message)
	row++
	for _, diff := range comparison.FieldDiffs {
		b.setCell(f, row, diff.Field,
			fmt.Sprintf("invoice=%s po=%s match=%t %s", diff.InvoiceValue, diff.POValue, diff.Match, diff.Detail))
		row++
	}
}

func (b *ReportBuilder) setCell(f *excelize.File, row int, label, value string) {
	if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), label); err != nil {
		b.logger.Warn("Failed to set cell value", zap.Int("row", row), zap.Error(err))
	}
	if err := f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value); err != nil {
		b.logger.Warn("Failed to set cell value", zap.Int("row", row), zap.Error(err))
	}
}

package checklist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// Checker validates extracted invoice fields against a selected checklist
// and looks the supplier up in the vendor registry. The orchestrator
// consumes it as a black box: it never returns an error, only issues.
type Checker struct {
	vendors map[string]string // GSTIN -> registered vendor name
	logger  *zap.Logger
}

// NewChecker creates a checker. The vendor registry is an optional JSON
// object of GSTIN -> vendor name; an empty path means no registry.
func NewChecker(registryPath string, logger *zap.Logger) (*Checker, error) {
	vendors := make(map[string]string)

	if registryPath != "" {
		raw, err := os.ReadFile(registryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read vendor registry: %w", err)
		}
		if err := json.Unmarshal(raw, &vendors); err != nil {
			return nil, fmt.Errorf("failed to parse vendor registry: %w", err)
		}
		logger.Info("Vendor registry loaded",
			zap.String("path", registryPath),
			zap.Int("vendors", len(vendors)))
	}

	return &Checker{
		vendors: vendors,
		logger:  logger,
	}, nil
}

// Validate runs every criterion against the fields and returns whether the
// invoice passed, the ordered list of violations and the vendor check.
func (c *Checker) Validate(f *models.DocumentFields, criteria []Criterion) (bool, []models.ValidationIssue, models.VendorCheck) {
	issues := make([]models.ValidationIssue, 0, len(criteria))

	for _, criterion := range criteria {
		ok, message := criterion.Check(f)
		if !ok {
			issues = append(issues, models.ValidationIssue{
				Field:   criterion.Field,
				Rule:    criterion.Rule,
				Message: message,
			})
		}
	}

	vendor := c.checkVendor(f)

	c.logger.Info("Checklist validation completed",
		zap.Int("criteria", len(criteria)),
		zap.Int("issues", len(issues)),
		zap.Bool("vendor_known", vendor.Known))

	return len(issues) == 0, issues, vendor
}

// checkVendor looks the supplier up in the registry. An unknown vendor is
// reported but never rejects the invoice on its own.
func (c *Checker) checkVendor(f *models.DocumentFields) models.VendorCheck {
	if len(c.vendors) == 0 {
		return models.VendorCheck{Message: "vendor registry not configured"}
	}

	gstin := strings.TrimSpace(f.Supplier.GSTIN)
	if gstin == "" {
		return models.VendorCheck{Message: "supplier has no GSTIN to match against the registry"}
	}

	if name, ok := c.vendors[gstin]; ok {
		return models.VendorCheck{
			Known:   true,
			Message: fmt.Sprintf("supplier matches registered vendor %q", name),
		}
	}

	return models.VendorCheck{
		Message: fmt.Sprintf("supplier GSTIN %s is not in the vendor registry", gstin),
	}
}

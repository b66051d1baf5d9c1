package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
	"github.com/invoiceflow/invoice-verifier/pkg/database"
)

// ResultRepository persists processing results. Rows are append-only: the
// repository exposes no update or delete.
type ResultRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db *database.DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{
		db:     db,
		logger: logger,
	}
}

// Save assigns the result a fresh ID and creation time, then writes it.
// The status must belong to the closed verdict set.
func (r *ResultRepository) Save(ctx context.Context, result *models.ProcessingResult) error {
	if !result.Status.IsValid() {
		return fmt.Errorf("refusing to persist unknown status %q", result.Status)
	}

	result.ID = uuid.NewString()
	result.CreatedAt = time.Now().UTC()

	invoiceFields, err := marshalOrDefault(result.InvoiceFields, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode invoice fields: %w", err)
	}

	var poFields sql.NullString
	if result.POFields != nil {
		encoded, err := json.Marshal(result.POFields)
		if err != nil {
			return fmt.Errorf("failed to encode purchase order fields: %w", err)
		}
		poFields = sql.NullString{String: string(encoded), Valid: true}
	}

	issues, err := marshalOrDefault(result.Issues, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode validation issues: %w", err)
	}

	vendorCheck, err := json.Marshal(result.VendorCheck)
	if err != nil {
		return fmt.Errorf("failed to encode vendor check: %w", err)
	}

	comparison, err := marshalOrDefault(result.Comparison, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode comparison: %w", err)
	}

	query := `
		INSERT INTO processing_results (
			id, fingerprint, status, message, checklist_option, po_provided,
			invoice_fields, po_fields, validation_issues, vendor_check,
			comparison, summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		result.ID,
		result.Fingerprint,
		result.Status.String(),
		result.Message,
		result.ChecklistOption,
		result.POProvided,
		invoiceFields,
		poFields,
		issues,
		string(vendorCheck),
		comparison,
		result.Summary,
		result.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save processing result",
			zap.String("status", result.Status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to save processing result: %w", err)
	}

	r.logger.Info("Processing result saved",
		zap.String("id", result.ID),
		zap.String("status", result.Status.String()))
	return nil
}

// FindByFingerprint returns the earliest stored result with the given
// fingerprint, or nil when none exists.
func (r *ResultRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.ProcessingResult, error) {
	if fingerprint == "" {
		return nil, nil
	}

	query := selectColumns + `
		WHERE fingerprint = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	result, err := r.scanOne(r.db.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query result by fingerprint: %w", err)
	}
	return result, nil
}

// GetByID returns a stored result by its ID, or nil when not found.
func (r *ResultRepository) GetByID(ctx context.Context, id string) (*models.ProcessingResult, error) {
	query := selectColumns + ` WHERE id = ?`

	result, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query result by id: %w", err)
	}
	return result, nil
}

// ListRecent returns the most recent results, newest first.
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]*models.ProcessingResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectColumns + `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*models.ProcessingResult
	for rows.Next() {
		result, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

const selectColumns = `
	SELECT id, fingerprint, status, message, checklist_option, po_provided,
	       invoice_fields, po_fields, validation_issues, vendor_check,
	       comparison, summary, created_at
	FROM processing_results`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ResultRepository) scanOne(row rowScanner) (*models.ProcessingResult, error) {
	var (
		result        models.ProcessingResult
		status        string
		invoiceFields string
		poFields      sql.NullString
		issues        string
		vendorCheck   string
		comparison    string
	)

	err := row.Scan(
		&result.ID,
		&result.Fingerprint,
		&status,
		&result.Message,
		&result.ChecklistOption,
		&result.POProvided,
		&invoiceFields,
		&poFields,
		&issues,
		&vendorCheck,
		&comparison,
		&result.Summary,
		&result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Status = models.Status(status)

	if invoiceFields != "" && invoiceFields != "{}" {
		result.InvoiceFields = &models.DocumentFields{}
		if err := json.Unmarshal([]byte(invoiceFields), result.InvoiceFields); err != nil {
			return nil, fmt.Errorf("failed to decode invoice fields: %w", err)
		}
	}
	if poFields.Valid && poFields.String != "" {
		result.POFields = &models.DocumentFields{}
		if err := json.Unmarshal([]byte(poFields.String), result.POFields); err != nil {
			return nil, fmt.Errorf("failed to decode purchase order fields: %w", err)
		}
	}
	if issues != "" {
		if err := json.Unmarshal([]byte(issues), &result.Issues); err != nil {
			return nil, fmt.Errorf("failed to decode validation issues: %w", err)
		}
	}
	if vendorCheck != "" && vendorCheck != "{}" {
		if err := json.Unmarshal([]byte(vendorCheck), &result.VendorCheck); err != nil {
			return nil, fmt.Errorf("failed to decode vendor check: %w", err)
		}
	}
	if comparison != "" && comparison != "{}" {
		result.Comparison = &models.ComparisonResult{}
		if err := json.Unmarshal([]byte(comparison), result.Comparison); err != nil {
			return nil, fmt.Errorf("failed to decode comparison: %w", err)
		}
	}

	return &result, nil
}

func marshalOrDefault(v interface{}, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(encoded) == "null" {
		return empty, nil
	}
	return string(encoded), nil
}

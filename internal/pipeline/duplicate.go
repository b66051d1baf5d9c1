package pipeline

import (
	"context"
	"fmt"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// FingerprintReader is the single read duplicate detection needs.
type FingerprintReader interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.ProcessingResult, error)
}

// FindDuplicate computes the invoice fingerprint and performs one store
// read. When a prior result exists it returns the ORIGINAL record's ID and
// summary; a new run must never mint a fresh ID for a duplicate.
//
// This is a pure read. Two concurrent submissions of the same invoice may
// both see no match and both persist; there is no cross-request lock.
func FindDuplicate(ctx context.Context, store FingerprintReader, fields *models.DocumentFields) (originalID, summary string, found bool, err error) {
	fingerprint := models.Fingerprint(fields)
	if fingerprint == "" {
		return "", "", false, nil
	}

	original, err := store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", "", false, fmt.Errorf("duplicate lookup failed: %w", err)
	}
	if original == nil {
		return "", "", false, nil
	}

	return original.ID, original.Summary, true, nil
}

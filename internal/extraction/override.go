package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/models"
)

// loadOverride reads a pre-recorded extraction result instead of calling the
// provider. Layout: <base>/<DD-MM-YYYY>/<session>/<kind>.json, with the
// session segment omitted when no session is supplied. A missing or
// malformed file is a Failure with the attempted path in the reason; the
// adapter never falls back to a live call while the override is active.
func (a *Adapter) loadOverride(kind models.DocumentKind, session string) Outcome {
	dir := filepath.Join(a.cfg.MockDataDir, time.Now().Format(overrideDateLayout))
	if session != "" {
		dir = filepath.Join(dir, session)
	}
	path := filepath.Join(dir, kind.String()+".json")

	a.logger.Info("Deterministic override active, loading recorded extraction",
		zap.String("path", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return failure(0, fmt.Sprintf("recorded extraction not found for %s at %s", kind, path))
		}
		return failure(0, fmt.Sprintf("failed to read recorded extraction at %s: %v", path, err))
	}

	var fields models.DocumentFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return failure(0, fmt.Sprintf("malformed recorded extraction at %s: %v", path, err))
	}

	a.logger.Info("Recorded extraction loaded",
		zap.String("kind", kind.String()),
		zap.String("path", path))
	return success(&fields, 0)
}

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store persists opaque document bytes and returns their location. The
// pipeline treats locations as audit metadata only; it never reads them back.
type Store interface {
	// Save writes content under the given key relative to the store root
	// and returns the absolute location
	Save(key string, content []byte) (string, error)
}

// LocalStore implements Store on the local filesystem under a base
// directory. Keys resolving outside the base directory are rejected.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore creates a local store rooted at baseDir, creating it if
// needed.
func NewLocalStore(baseDir string, logger *zap.Logger) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage base directory: %w", err)
	}

	return &LocalStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Save writes content under key, creating parent directories as needed.
func (s *LocalStore) Save(key string, content []byte) (string, error) {
	fullPath := filepath.Join(s.baseDir, key)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return fullPath, nil
}

// validatePath checks that the resolved path stays within the base
// directory; ".." segments in keys must not escape it.
func (s *LocalStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes storage directory: %s", fullPath)
	}

	return nil
}

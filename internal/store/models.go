package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrModelNotFound is returned when a model reference has no stored file.
var ErrModelNotFound = errors.New("model not found")

// ModelFiles stores uploaded simulation models under a base directory, keyed
// by model reference.
type ModelFiles struct {
	BaseDir   string
	Retention time.Duration
}

// NewModelFiles creates a model file store. A zero retention keeps files forever.
func NewModelFiles(baseDir string, retention time.Duration) *ModelFiles {
	return &ModelFiles{
		BaseDir:   baseDir,
		Retention: retention,
	}
}

// EnsureDir ensures the base directory exists.
func (m *ModelFiles) EnsureDir() error {
	return os.MkdirAll(m.BaseDir, 0755)
}

// Path returns the file path of a model reference.
func (m *ModelFiles) Path(ref string) (string, error) {
	// Strip any directory part so references cannot escape BaseDir.
	name := filepath.Base(strings.TrimSpace(ref))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("%w: invalid reference %q", ErrModelNotFound, ref)
	}
	return filepath.Join(m.BaseDir, name), nil
}

// Save writes data under ref, replacing any previous content.
func (m *ModelFiles) Save(ref string, data []byte) error {
	path, err := m.Path(ref)
	if err != nil {
		return err
	}
	if err := m.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(m.BaseDir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Fetch reads the model stored under ref.
func (m *ModelFiles) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := m.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, ref)
	}
	return data, err
}

// Exists reports whether a model is stored under ref.
func (m *ModelFiles) Exists(ref string) bool {
	path, err := m.Path(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// FileType determines the model type based on extension.
func (m *ModelFiles) FileType(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".fmu", ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Cleanup removes models older than the retention period and returns how many
// were removed.
func (m *ModelFiles) Cleanup(now time.Time) (int, error) {
	if m.Retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(m.BaseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-m.Retention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.BaseDir, entry.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

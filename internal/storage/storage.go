// Package storage manages the on-disk upload area where lesion images and
// their heatmap overlays live.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dermalens/dermalens/pkg/crypto"
	"github.com/dermalens/dermalens/pkg/logger"
)

// URLPrefix is the route under which stored files are served.
const URLPrefix = "/static/"

// randomNameBytes is the entropy, in bytes, mixed into upload filenames.
const randomNameBytes = 8

// Store writes uploads into a flat directory with collision-free names.
type Store struct {
	root string
	now  func() time.Time
	log  *zap.Logger
}

// New creates the upload directory if needed and returns a Store over it.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	return &Store{root: root, now: time.Now, log: logger.WithModule("storage")}, nil
}

// Root returns the upload directory path.
func (s *Store) Root() string {
	return s.root
}

// SaveUpload persists an uploaded payload under a timestamped random name,
// keeping the original extension. Extension-less uploads default to .jpg.
func (s *Store) SaveUpload(data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".jpg"
	}

	suffix, err := crypto.RandomHex(randomNameBytes)
	if err != nil {
		return "", fmt.Errorf("storage: generate filename: %w", err)
	}

	name := fmt.Sprintf("%s_%s%s", s.now().Format("20060102150405"), suffix, ext)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write upload: %w", err)
	}

	s.log.Debug("upload stored", zap.String("file", name), zap.Int("bytes", len(data)))
	return name, nil
}

// Path resolves a stored filename to its absolute location on disk.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

// URL returns the public path a stored file is served from.
func URL(name string) string {
	if name == "" {
		return ""
	}
	return URLPrefix + filepath.Base(name)
}

// Files lists the names of all stored files.
func (s *Store) Files() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list uploads: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}

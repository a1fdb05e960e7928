package library

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// DefaultExtensions are the lower-cased photo extensions picked up by a scan
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif", ".tiff", ".tif", ".bmp", ".webp"}

// Scanner walks a photo library
type Scanner struct {
	fs         afero.Fs
	root       string
	extensions map[string]bool
	logger     logger.Logger
}

// NewScanner creates a scanner over root using DefaultExtensions
func NewScanner(fs afero.Fs, root string, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	exts := make(map[string]bool, len(DefaultExtensions))
	for _, e := range DefaultExtensions {
		exts[e] = true
	}
	return &Scanner{
		fs:         fs,
		root:       root,
		extensions: exts,
		logger:     log.WithField("component", "library"),
	}
}

// IsPhoto reports whether name has one of the scanned extensions
func (s *Scanner) IsPhoto(name string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// Scan returns every photo under the root in a stable order
func (s *Scanner) Scan() ([]models.Item, error) {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("photo library %s is not a directory", s.root)
	}

	var items []models.Item
	if err := s.walk(s.root, "", &items, true); err != nil {
		return nil, err
	}

	s.logger.DebugWithFields("Library scanned", map[string]interface{}{
		"root":   s.root,
		"photos": len(items),
	})
	return items, nil
}

func (s *Scanner) walk(dir, rel string, items *[]models.Item, isRoot bool) error {
	// afero.ReadDir returns entries sorted by name
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if isRoot {
			return fmt.Errorf("failed to read photo library: %w", err)
		}
		s.logger.WithError(err).WarnWithFields("Skipping unreadable directory", map[string]interface{}{
			"dir": dir,
		})
		return nil
	}

	var subdirs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			subdirs = append(subdirs, name)
			continue
		}
		if !entry.Mode().IsRegular() || !s.IsPhoto(name) {
			continue
		}
		*items = append(*items, models.Item{
			Key:  path.Join(rel, name),
			Path: filepath.Join(dir, name),
		})
	}

	for _, name := range subdirs {
		if err := s.walk(filepath.Join(dir, name), path.Join(rel, name), items, false); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of photos under the root
func (s *Scanner) Count() (int, error) {
	items, err := s.Scan()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

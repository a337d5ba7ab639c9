// Package folders manages the folder tree documents are filed under.
package folders

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Manager creates, lists and deletes folders.
type Manager struct {
	fs   storage.Provider
	docs *docstore.Store
}

// New creates a folder manager.
func New(fs storage.Provider, docs *docstore.Store) *Manager {
	return &Manager{fs: fs, docs: docs}
}

// Sanitize turns a user supplied folder name into a filesystem-safe path.
// Both slash kinds separate components; every component is transliterated to
// ASCII, whitespace becomes "_", other unsafe characters are stripped.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	var parts []string
	for _, part := range strings.Split(name, "/") {
		part = unidecode.Unidecode(part)
		part = strings.Join(strings.Fields(part), "_")
		part = unsafeChars.ReplaceAllString(part, "")
		part = strings.Trim(part, "._")
		if part == "" {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "/")
}

// ListDirs returns the root folder label followed by every folder path.
func (m *Manager) ListDirs() ([]string, error) {
	dirs, err := m.fs.Dirs()
	if err != nil {
		return nil, fmt.Errorf("folders: list: %w", err)
	}
	return append([]string{models.RootFolder}, dirs...), nil
}

// Exists reports whether path names the root or an existing folder.
func (m *Manager) Exists(path string) (bool, error) {
	path = models.NormalizePath(path)
	if path == "" {
		return true, nil
	}
	ok, isDir, err := m.fs.Exists(path)
	if err != nil {
		return false, fmt.Errorf("folders: stat: %w", err)
	}
	return ok && isDir, nil
}

// CreateDir creates a folder and returns its sanitized name.
func (m *Manager) CreateDir(name string) (string, error) {
	clean := Sanitize(name)
	if clean == "" {
		return "", apperr.Validation("folder name %q has no usable characters", name)
	}
	ok, _, err := m.fs.Exists(clean)
	if err != nil {
		return "", fmt.Errorf("folders: stat: %w", err)
	}
	if ok {
		return "", fmt.Errorf("folders: %q: %w", clean, apperr.ErrAlreadyExists)
	}
	if err := m.fs.Mkdir(clean); err != nil {
		return "", fmt.Errorf("folders: create: %w", err)
	}
	return clean, nil
}

// DeleteDir removes a folder and its subfolders. Documents inside are moved to
// the root first and returned so callers can update derived indexes.
func (m *Manager) DeleteDir(name string) ([]docstore.Moved, error) {
	path := models.NormalizePath(name)
	if path == "" {
		return nil, fmt.Errorf("folders: cannot delete the root folder: %w", apperr.ErrRefused)
	}
	ok, isDir, err := m.fs.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("folders: stat: %w", err)
	}
	if !ok || !isDir {
		return nil, fmt.Errorf("folders: %q: %w", path, apperr.ErrNotFound)
	}

	entries, err := m.docs.ListIn(path)
	if err != nil {
		return nil, err
	}
	moved := make([]docstore.Moved, 0, len(entries))
	for _, e := range entries {
		mv, err := m.docs.Relocate(e.Summary.ID, "")
		if err != nil {
			return moved, fmt.Errorf("folders: relocate %d: %w", e.Summary.ID, err)
		}
		moved = append(moved, mv)
	}
	if err := m.fs.RemoveAll(path); err != nil {
		return moved, fmt.Errorf("folders: delete: %w", err)
	}
	return moved, nil
}

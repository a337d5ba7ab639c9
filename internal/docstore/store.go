// Package docstore persists DataObjs as one front-matter document per file,
// laid out by folder under the data root.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/gosimple/slug"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

const maxSlugLen = 60

// Entry describes one document found on disk.
type Entry struct {
	Summary  models.Summary
	RelPath  string
	Checksum string
}

// Store is the document store. It is the source of truth for every DataObj.
type Store struct {
	files storage.Provider

	mu    sync.Mutex
	paths map[int]string // id -> relative file path
	ready bool
}

// New creates a Store on top of files.
func New(files storage.Provider) *Store {
	return &Store{files: files, paths: make(map[int]string)}
}

// FileName returns the file name used for obj: <id>-<yyyymmdd>[-<slug>].md.
func FileName(obj *models.DataObj) string {
	name := strconv.Itoa(obj.ID) + "-" + obj.Date.UTC().Format("20060102")
	s := slug.Make(obj.Title)
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s != "" {
		name += "-" + s
	}
	return name + ".md"
}

func relPath(obj *models.DataObj) string {
	if obj.Path == "" {
		return FileName(obj)
	}
	return obj.Path + "/" + FileName(obj)
}

// idFromName extracts the id prefix of a document file name.
func idFromName(rel string) (int, bool) {
	base := path.Base(rel)
	if !strings.HasSuffix(base, ".md") {
		return 0, false
	}
	head, _, _ := strings.Cut(strings.TrimSuffix(base, ".md"), "-")
	id, err := strconv.Atoi(head)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Write persists obj and returns where it landed. A previous file for the
// same id is removed once the new one is in place.
func (s *Store) Write(obj *models.DataObj) (Entry, error) {
	if obj.ID <= 0 {
		return Entry{}, apperr.Validation("document id must be positive")
	}
	data, err := parser.Encode(obj)
	if err != nil {
		return Entry{}, err
	}
	rel := relPath(obj)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Entry{}, err
	}
	if err := s.files.Write(rel, data); err != nil {
		return Entry{}, fmt.Errorf("docstore: write %d: %w", obj.ID, err)
	}
	if old, ok := s.paths[obj.ID]; ok && old != rel {
		if err := s.files.Delete(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("docstore: remove stale file for %d: %w", obj.ID, err)
		}
	}
	s.paths[obj.ID] = rel
	return Entry{Summary: obj.Summary(), RelPath: rel, Checksum: checksum.Sum(data)}, nil
}

// Read returns the document with the given id or apperr.ErrNotFound.
func (s *Store) Read(id int) (*models.DataObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id int) (*models.DataObj, error) {
	rel, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	data, err := s.files.Read(rel)
	if errors.Is(err, fs.ErrNotExist) {
		delete(s.paths, id)
		if rel, err = s.lookupLocked(id); err != nil {
			return nil, err
		}
		data, err = s.files.Read(rel)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: read %d: %w", id, err)
	}
	obj, err := parser.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", rel, err)
	}
	obj.ID = id
	return obj, nil
}

// Delete removes the document with the given id. A second call returns apperr.ErrNotFound.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, err := s.lookupLocked(id)
	if err != nil {
		return err
	}
	delete(s.paths, id)
	if err := s.files.Delete(rel); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("docstore: document %d: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("docstore: delete %d: %w", id, err)
	}
	return nil
}

// Moved is a document rewritten by Relocate.
type Moved struct {
	Obj      *models.DataObj
	Checksum string
}

// Relocate moves the document to folder dir. The front-matter path is
// rewritten in place, then the file is renamed into dir.
func (s *Store) Relocate(id int, dir string) (Moved, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.readLocked(id)
	if err != nil {
		return Moved{}, err
	}
	old := s.paths[id]
	obj.Path = dir
	data, err := parser.Encode(obj)
	if err != nil {
		return Moved{}, err
	}
	if err := s.files.Write(old, data); err != nil {
		return Moved{}, fmt.Errorf("docstore: rewrite %d: %w", id, err)
	}
	if rel := relPath(obj); rel != old {
		if err := s.files.Move(old, rel); err != nil {
			return Moved{}, fmt.Errorf("docstore: move %d: %w", id, err)
		}
		s.paths[id] = rel
	}
	return Moved{Obj: obj, Checksum: checksum.Sum(data)}, nil
}

// ListAll returns every document in the store.
func (s *Store) ListAll() ([]Entry, error) {
	return s.ListIn("")
}

// ListIn returns every document below dir.
func (s *Store) ListIn(dir string) ([]Entry, error) {
	metas, err := s.files.List(dir)
	if err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}
	out := make([]Entry, 0, len(metas))
	for _, m := range metas {
		id, ok := idFromName(m.Path)
		if !ok {
			continue
		}
		data, err := s.files.Read(m.Path)
		if err != nil {
			return nil, fmt.Errorf("docstore: read %s: %w", m.Path, err)
		}
		obj, err := parser.Decode(data)
		if err != nil {
			continue
		}
		obj.ID = id
		// The file location wins over a stale front-matter path.
		obj.Path = models.NormalizePath(path.Dir(m.Path))
		out = append(out, Entry{Summary: obj.Summary(), RelPath: m.Path, Checksum: m.Checksum})
	}
	return out, nil
}

// Forget drops cached locations so the next lookup rescans the tree.
func (s *Store) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = make(map[int]string)
	s.ready = false
}

func (s *Store) lookupLocked(id int) (string, error) {
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	if rel, ok := s.paths[id]; ok {
		return rel, nil
	}
	// Files may have been added behind our back; rescan once.
	s.ready = false
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	if rel, ok := s.paths[id]; ok {
		return rel, nil
	}
	return "", fmt.Errorf("docstore: document %d: %w", id, apperr.ErrNotFound)
}

func (s *Store) loadLocked() error {
	if s.ready {
		return nil
	}
	metas, err := s.files.List("")
	if err != nil {
		return fmt.Errorf("docstore: scan: %w", err)
	}
	paths := make(map[int]string, len(metas))
	for _, m := range metas {
		if id, ok := idFromName(m.Path); ok {
			paths[id] = m.Path
		}
	}
	s.paths = paths
	s.ready = true
	return nil
}

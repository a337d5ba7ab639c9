// Package dataobj is the façade over the document store, the metadata index
// and the search projection. The document store is authoritative; the two
// indexes are derived and can always be rebuilt from it.
package dataobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/folders"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

// Event kinds passed to an EventHook.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventHook is called after a change reached the document store. It runs
// while the Service holds its write lock and must not call back into it.
type EventHook func(kind string, id int)

// Index is the subset of the metadata index the façade depends on.
type Index interface {
	NextID() (int, error)
	EnsureCounter(n int) error
	Upsert(s models.Summary, checksum string) error
	Remove(id int) error
	Query(f index.Filter) ([]models.Summary, int, error)
	AllChecksums() (map[int]string, error)
}

var _ Index = (*index.DB)(nil)

// Service coordinates the document store, folders, metadata index and search.
// Mutations and Rebuild are serialized; reads go straight to the stores.
type Service struct {
	mu sync.Mutex

	docs    *docstore.Store
	folders *folders.Manager
	idx     Index
	search  *search.Synchronizer
	logger  *slog.Logger

	hook EventHook
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEventHook registers fn to be told about every change.
func WithEventHook(fn EventHook) Option {
	return func(s *Service) { s.hook = fn }
}

// WithClock overrides the time source used for creation dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the façade.
func New(docs *docstore.Store, dirs *folders.Manager, idx Index, sync *search.Synchronizer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		docs:    docs,
		folders: dirs,
		idx:     idx,
		search:  sync,
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Insert stores a new DataObj and returns its id. obj is updated in place with
// the assigned id and date. If only the metadata index write fails the id is
// returned together with an error wrapping apperr.ErrIndexInconsistency.
func (s *Service) Insert(ctx context.Context, obj *models.DataObj) (int, error) {
	obj.ID = 0
	obj.Normalize()
	if err := obj.Validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.folders.Exists(obj.Path)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.Validation("folder %q does not exist", obj.Path)
	}

	id, err := s.idx.NextID()
	if err != nil {
		return 0, fmt.Errorf("dataobj: allocate id: %w", err)
	}
	obj.ID = id
	if obj.Date.IsZero() {
		obj.Date = s.now().UTC().Truncate(time.Second)
	}

	entry, err := s.docs.Write(obj)
	if err != nil {
		obj.ID = 0
		return 0, err
	}
	s.logger.Info("dataobj: created", slog.Int("id", id), slog.String("type", string(obj.Type)))

	idxErr := s.project(ctx, obj, entry.Checksum)
	s.emit(EventCreated, id)
	return id, idxErr
}

// Get reads a DataObj from the document store.
func (s *Service) Get(_ context.Context, id int) (*models.DataObj, error) {
	return s.docs.Read(id)
}

// GetAll lists summaries from the metadata index with the total match count.
func (s *Service) GetAll(_ context.Context, f index.Filter) ([]models.Summary, int, error) {
	return s.idx.Query(f)
}

// Delete removes a DataObj from the document store, then the metadata index,
// then search. Index failures after the document is gone are only logged.
func (s *Service) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.docs.Delete(id); err != nil {
		return err
	}
	if err := s.idx.Remove(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.inconsistent("remove", id, err)
	}
	s.search.Remove(ctx, id)
	s.logger.Info("dataobj: deleted", slog.Int("id", id))
	s.emit(EventDeleted, id)
	return nil
}

// Update changes the mutable fields of a DataObj. Id, type, date and path are fixed.
func (s *Service) Update(ctx context.Context, id int, upd models.DataObjUpdate) (*models.DataObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, err := s.docs.Read(id)
	if err != nil {
		return nil, err
	}
	upd.Apply(obj)
	obj.Normalize()
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.docs.Write(obj)
	if err != nil {
		return nil, err
	}
	idxErr := s.project(ctx, obj, entry.Checksum)
	s.emit(EventUpdated, id)
	return obj, idxErr
}

// ListDirs returns the folder tree, root first.
func (s *Service) ListDirs(_ context.Context) ([]string, error) {
	return s.folders.ListDirs()
}

// CreateDir creates a folder and returns its sanitized name.
func (s *Service) CreateDir(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders.CreateDir(name)
}

// DeleteDir removes a folder. Documents inside are moved to the root folder
// and re-projected into both indexes.
func (s *Service) DeleteDir(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved, err := s.folders.DeleteDir(name)
	for _, mv := range moved {
		_ = s.project(ctx, mv.Obj, mv.Checksum)
		s.emit(EventUpdated, mv.Obj.ID)
	}
	if err != nil {
		return err
	}
	s.logger.Info("dataobj: folder deleted", slog.String("folder", name), slog.Int("relocated", len(moved)))
	return nil
}

// Search runs a full-text query. A disabled search engine yields no hits.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]search.Hit, error) {
	return s.search.Query(ctx, q, limit)
}

// project writes obj to the metadata index and search. Only the metadata
// index failure is reported.
func (s *Service) project(ctx context.Context, obj *models.DataObj, checksum string) error {
	var idxErr error
	if err := s.idx.Upsert(obj.Summary(), checksum); err != nil {
		s.inconsistent("upsert", obj.ID, err)
		idxErr = fmt.Errorf("dataobj: %d: %w: %w", obj.ID, apperr.ErrIndexInconsistency, err)
	}
	s.search.Index(ctx, obj)
	return idxErr
}

func (s *Service) inconsistent(op string, id int, err error) {
	s.logger.Warn("dataobj: metadata index "+op+" failed",
		slog.Int("id", id),
		slog.String("kind", "index_inconsistency"),
		slog.String("error", err.Error()))
}

func (s *Service) emit(kind string, id int) {
	if s.hook != nil {
		s.hook(kind, id)
	}
}

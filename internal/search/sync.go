package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/quire/internal/models"
)

// Synchronizer forwards document changes to an optional Engine. A nil engine
// disables search: writes are dropped and queries return no hits.
type Synchronizer struct {
	engine Engine
	logger *slog.Logger
}

// NewSynchronizer wraps engine, which may be nil.
func NewSynchronizer(engine Engine, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{engine: engine, logger: logger}
}

// Enabled reports whether an engine is configured.
func (s *Synchronizer) Enabled() bool {
	return s != nil && s.engine != nil
}

// Index projects obj into the engine. Failures are logged, never returned.
func (s *Synchronizer) Index(ctx context.Context, obj *models.DataObj) {
	if !s.Enabled() {
		return
	}
	if err := s.engine.Index(ctx, DocumentOf(obj)); err != nil {
		s.logger.Warn("search: index failed",
			slog.Int("id", obj.ID),
			slog.String("kind", "index_inconsistency"),
			slog.String("error", err.Error()))
	}
}

// Remove drops id from the engine. Failures are logged, never returned.
func (s *Synchronizer) Remove(ctx context.Context, id int) {
	if !s.Enabled() {
		return
	}
	if err := s.engine.Remove(ctx, id); err != nil {
		s.logger.Warn("search: remove failed",
			slog.Int("id", id),
			slog.String("kind", "index_inconsistency"),
			slog.String("error", err.Error()))
	}
}

// Query runs text against the engine.
func (s *Synchronizer) Query(ctx context.Context, text string, limit int) ([]Hit, error) {
	if !s.Enabled() || text == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	hits, err := s.engine.Query(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	return hits, nil
}

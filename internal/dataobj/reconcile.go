package dataobj

import (
	"context"
	"log/slog"

	"github.com/starford/quire/internal/index"
)

// RebuildReport summarises a Rebuild pass.
type RebuildReport struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Rebuild walks the document store and brings both indexes up to date:
//   - new/changed documents are upserted (full re-pushes every document)
//   - index records without a document are removed
//   - the id counter is raised past every id seen on disk
func (s *Service) Rebuild(ctx context.Context, full bool) (RebuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep RebuildReport
	s.docs.Forget()
	entries, err := s.docs.ListAll()
	if err != nil {
		return rep, err
	}
	checksums, err := s.idx.AllChecksums()
	if err != nil {
		return rep, err
	}
	records, _, err := s.idx.Query(index.Filter{})
	if err != nil {
		return rep, err
	}
	paths := make(map[int]string, len(records))
	for _, r := range records {
		paths[r.ID] = r.Path
	}

	maxID := 0
	disk := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		id := e.Summary.ID
		disk[id] = struct{}{}
		maxID = max(maxID, id)

		old, known := checksums[id]
		if known && old == e.Checksum && paths[id] == e.Summary.Path && !full {
			rep.Unchanged++
			continue
		}
		obj, err := s.docs.Read(id)
		if err != nil {
			s.logger.Warn("rebuild: read failed", slog.Int("id", id), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		sum := e.Checksum
		if obj.Path != e.Summary.Path {
			// The file was moved by hand; its location wins.
			obj.Path = e.Summary.Path
			written, err := s.docs.Write(obj)
			if err != nil {
				s.logger.Warn("rebuild: rewrite failed", slog.Int("id", id), slog.String("error", err.Error()))
				rep.Failed++
				continue
			}
			sum = written.Checksum
		}
		if err := s.idx.Upsert(obj.Summary(), sum); err != nil {
			s.logger.Warn("rebuild: index failed", slog.Int("id", id), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		s.search.Index(ctx, obj)
		rep.Indexed++
		s.logger.Debug("rebuild: indexed", slog.Int("id", id))

		if known {
			s.emit(EventUpdated, id)
		} else {
			s.emit(EventCreated, id)
		}
	}

	for id := range checksums {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := s.idx.Remove(id); err != nil {
			s.logger.Warn("rebuild: delete failed", slog.Int("id", id), slog.String("error", err.Error()))
			continue
		}
		s.search.Remove(ctx, id)
		rep.Removed++
		s.logger.Debug("rebuild: removed stale", slog.Int("id", id))
		s.emit(EventDeleted, id)
	}

	if err := s.idx.EnsureCounter(maxID); err != nil {
		return rep, err
	}
	s.logger.Info("rebuild: done",
		slog.Int("indexed", rep.Indexed),
		slog.Int("unchanged", rep.Unchanged),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

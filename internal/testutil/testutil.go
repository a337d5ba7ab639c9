// Package testutil provides shared test helpers for setting up document
// stores, index databases and a wired façade.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/folders"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/storage"
)

// Logger returns a logger that drops everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFS creates a temporary data directory with a storage provider.
func TestFS(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Env is a fully wired façade over temporary stores.
type Env struct {
	Dir     string
	FS      *storage.FS
	Docs    *docstore.Store
	Folders *folders.Manager
	DB      *index.DB
	Svc     *dataobj.Service
}

// NewEnv wires a façade with the embedded full-text engine enabled.
func NewEnv(t *testing.T, opts ...dataobj.Option) *Env {
	t.Helper()
	dir, fs := TestFS(t)
	db := TestDB(t)
	docs := docstore.New(fs)
	dirs := folders.New(fs, docs)
	sync := search.NewSynchronizer(index.NewFullText(db), Logger())
	return &Env{
		Dir:     dir,
		FS:      fs,
		Docs:    docs,
		Folders: dirs,
		DB:      db,
		Svc:     dataobj.New(docs, dirs, db, sync, Logger(), opts...),
	}
}

package dataobj_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/folders"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/testutil"
)

var fixed = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixed }

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) hook(kind string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func TestInsertGetRoundTrip(t *testing.T) {
	env := testutil.NewEnv(t, dataobj.WithClock(clock))
	ctx := context.Background()

	in := &models.DataObj{Type: models.TypeNote, Title: "Groceries", Tags: []string{"home"}, Content: "- milk\n- eggs\n"}
	id, err := env.Svc.Insert(ctx, in)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	got, err := env.Svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := &models.DataObj{
		ID: 1, Type: models.TypeNote, Title: "Groceries", Tags: []string{"home"},
		Path: "", Date: fixed, Content: "- milk\n- eggs\n",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get (-want +got):\n%s", diff)
	}

	rows, _, err := env.Svc.GetAll(ctx, index.Filter{Types: []models.Type{models.TypeNote}})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 || rows[0].Title != "Groceries" {
		t.Errorf("GetAll = %+v", rows)
	}

	hits, err := env.Svc.Search(ctx, "eggs", 10)
	if err != nil || len(hits) != 1 || hits[0].ID != 1 {
		t.Errorf("Search = %+v, %v", hits, err)
	}
}

func TestInsertMetadataMatchesIndex(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, _ = env.Svc.CreateDir(ctx, "Projects")

	obj := &models.DataObj{Type: models.TypeBookmark, Title: "Go", URL: "https://go.dev", Path: "Projects", Tags: []string{"b", "a", "a"}}
	id, err := env.Svc.Insert(ctx, obj)
	if err != nil {
		t.Fatal(err)
	}
	onDisk, _ := env.Svc.Get(ctx, id)
	rec, err := env.DB.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(onDisk.Summary(), *rec); diff != "" {
		t.Errorf("index diverges from document (-doc +index):\n%s", diff)
	}
}

func TestInsertValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	cases := []struct {
		name string
		obj  *models.DataObj
	}{
		{"unknown type", &models.DataObj{Type: "video", Title: "x"}},
		{"note without title", &models.DataObj{Type: models.TypeNote}},
		{"bookmark without url", &models.DataObj{Type: models.TypeBookmark, Title: "x"}},
		{"missing folder", &models.DataObj{Type: models.TypeNote, Title: "x", Path: "nope"}},
		{"escaping path", &models.DataObj{Type: models.TypeNote, Title: "x", Path: "../etc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.Svc.Insert(ctx, tc.obj); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	// Rejected inputs must not consume ids.
	if id, _ := env.DB.NextID(); id != 1 {
		t.Errorf("NextID = %d, want 1", id)
	}
}

func TestDeleteThenGet(t *testing.T) {
	rec := &recorder{}
	env := testutil.NewEnv(t, dataobj.WithEventHook(rec.hook))
	ctx := context.Background()

	id, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "temp", Content: "zebra"})
	if err := env.Svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.Svc.Get(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := env.Svc.Delete(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
	if _, err := env.DB.Get(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("index still has %d", id)
	}
	if hits, _ := env.Svc.Search(ctx, "zebra", 10); len(hits) != 0 {
		t.Errorf("search still has %d", id)
	}

	next, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "again"})
	if next == id {
		t.Errorf("id %d reused", id)
	}
	if want := []string{"created", "deleted", "created"}; !cmp.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestConcurrentInsertsGetDistinctIDs(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	const n = 20
	var (
		mu  sync.Mutex
		ids = map[int]bool{}
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "same"})
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Errorf("distinct ids = %d, want %d", len(ids), n)
	}
}

// failingFS refuses every write.
type failingFS struct {
	storage.Provider
}

func (failingFS) Write(string, []byte) error { return errors.New("disk full") }

func TestDocstoreFailureSkipsIndexes(t *testing.T) {
	_, fs := testutil.TestFS(t)
	db := testutil.TestDB(t)
	bad := failingFS{fs}
	docs := docstore.New(bad)
	svc := dataobj.New(docs, folders.New(bad, docs), db,
		search.NewSynchronizer(index.NewFullText(db), testutil.Logger()), testutil.Logger())

	obj := &models.DataObj{Type: models.TypeNote, Title: "lost", Content: "unicorn"}
	if _, err := svc.Insert(context.Background(), obj); err == nil {
		t.Fatal("expected error")
	}
	rows, _, _ := db.Query(index.Filter{})
	if len(rows) != 0 {
		t.Errorf("index has rows: %+v", rows)
	}
	hits, _ := index.NewFullText(db).Query(context.Background(), "unicorn", 10)
	if len(hits) != 0 {
		t.Errorf("search has hits: %+v", hits)
	}
}

// brokenIndex accepts ids but fails every upsert.
type brokenIndex struct {
	*index.DB
}

func (brokenIndex) Upsert(models.Summary, string) error { return errors.New("database is locked") }

func TestIndexFailureKeepsDocument(t *testing.T) {
	_, fs := testutil.TestFS(t)
	db := testutil.TestDB(t)
	docs := docstore.New(fs)
	svc := dataobj.New(docs, folders.New(fs, docs), brokenIndex{db}, search.NewSynchronizer(nil, testutil.Logger()), testutil.Logger())

	id, err := svc.Insert(context.Background(), &models.DataObj{Type: models.TypeNote, Title: "kept"})
	if !errors.Is(err, apperr.ErrIndexInconsistency) {
		t.Fatalf("err = %v, want ErrIndexInconsistency", err)
	}
	if id == 0 {
		t.Fatal("id should still be reported")
	}
	got, err := svc.Get(context.Background(), id)
	if err != nil || got.Title != "kept" {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestUpdate(t *testing.T) {
	env := testutil.NewEnv(t, dataobj.WithClock(clock))
	ctx := context.Background()
	id, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "draft", Content: "v1"})

	title, content := "final", "v2"
	tags := []string{"done"}
	got, err := env.Svc.Update(ctx, id, models.DataObjUpdate{Title: &title, Content: &content, Tags: &tags})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "final" || got.Content != "v2" || !got.Date.Equal(fixed) {
		t.Errorf("Update = %+v", got)
	}
	rec, _ := env.DB.Get(id)
	if rec.Title != "final" || len(rec.Tags) != 1 {
		t.Errorf("index = %+v", rec)
	}

	empty := ""
	if _, err := env.Svc.Update(ctx, id, models.DataObjUpdate{Title: &empty}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v", err)
	}
	if _, err := env.Svc.Update(ctx, 404, models.DataObjUpdate{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}
}

func TestDeleteDirReprojects(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	if _, err := env.Svc.CreateDir(ctx, "Projects"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Svc.CreateDir(ctx, "Projects"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second CreateDir err = %v", err)
	}
	id, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "plan", Path: "Projects"})

	if err := env.Svc.DeleteDir(ctx, ""); !errors.Is(err, apperr.ErrRefused) {
		t.Errorf("DeleteDir(root) err = %v", err)
	}
	if err := env.Svc.DeleteDir(ctx, "Projects"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}
	rec, _ := env.DB.Get(id)
	if rec.Path != "" {
		t.Errorf("index path = %q", rec.Path)
	}
	dirs, _ := env.Svc.ListDirs(ctx)
	if !cmp.Equal(dirs, []string{models.RootFolder}) {
		t.Errorf("ListDirs = %v", dirs)
	}
}

func TestSearchDisabled(t *testing.T) {
	_, fs := testutil.TestFS(t)
	db := testutil.TestDB(t)
	docs := docstore.New(fs)
	svc := dataobj.New(docs, folders.New(fs, docs), db, search.NewSynchronizer(nil, testutil.Logger()), testutil.Logger())

	id, err := svc.Insert(context.Background(), &models.DataObj{Type: models.TypeNote, Title: "quiet"})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := svc.Search(context.Background(), "quiet", 10)
	if err != nil || len(hits) != 0 {
		t.Errorf("Search = %+v, %v", hits, err)
	}
	if _, err := svc.Get(context.Background(), id); err != nil {
		t.Errorf("document missing: %v", err)
	}
}

func TestRebuild(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "alpha"})
	b, _ := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "beta"})

	// Drift: drop a record, add a foreign file, remove a document behind the index's back.
	_ = env.DB.Remove(a)
	foreign := "---\ntype: note\ntitle: imported\ntags: []\npath: \"\"\ndate: 2024-01-01T00:00:00Z\n---\nhello\n"
	if err := os.WriteFile(filepath.Join(env.Dir, "40-20240101-imported.md"), []byte(foreign), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, _ := env.DB.Get(b)
	_ = os.Remove(filepath.Join(env.Dir, docstore.FileName(&models.DataObj{ID: b, Title: "beta", Date: rec.Date})))

	rep, err := env.Svc.Rebuild(ctx, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rep.Indexed != 2 || rep.Removed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := env.DB.Get(40); err != nil {
		t.Errorf("imported file not indexed: %v", err)
	}
	if _, err := env.DB.Get(b); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale record kept: %v", err)
	}
	if id, _ := env.DB.NextID(); id != 41 {
		t.Errorf("NextID after rebuild = %d, want 41", id)
	}

	rep, _ = env.Svc.Rebuild(ctx, false)
	if rep.Indexed != 0 || rep.Unchanged != 2 {
		t.Errorf("second pass report = %+v", rep)
	}
}

func TestInsertKeepsCRLFContent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	content := "line one\r\nline two\r\n"
	id, err := env.Svc.Insert(ctx, &models.DataObj{Type: models.TypeNote, Title: "windows", Content: content})
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != content {
		t.Errorf("content = %q, want %q", got.Content, content)
	}
}

// racingIndex starts an insert while Rebuild is between listing the
// documents and reading the index.
type racingIndex struct {
	*index.DB
	svc     *dataobj.Service
	started chan struct{}
	done    chan error
}

func (r *racingIndex) AllChecksums() (map[int]string, error) {
	if r.started == nil {
		r.started = make(chan struct{})
		r.done = make(chan error, 1)
		go func() {
			close(r.started)
			_, err := r.svc.Insert(context.Background(), &models.DataObj{Type: models.TypeNote, Title: "late"})
			r.done <- err
		}()
		<-r.started
		time.Sleep(50 * time.Millisecond)
	}
	return r.DB.AllChecksums()
}

func TestInsertDuringRebuildKeepsRecord(t *testing.T) {
	_, fs := testutil.TestFS(t)
	db := testutil.TestDB(t)
	docs := docstore.New(fs)
	idx := &racingIndex{DB: db}
	svc := dataobj.New(docs, folders.New(fs, docs), idx,
		search.NewSynchronizer(index.NewFullText(db), testutil.Logger()), testutil.Logger())
	idx.svc = svc

	if _, err := svc.Rebuild(context.Background(), false); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := <-idx.done; err != nil {
		t.Fatalf("Insert: %v", err)
	}

	entries, err := docs.ListAll()
	if err != nil || len(entries) != 1 {
		t.Fatalf("documents = %+v, %v", entries, err)
	}
	id := entries[0].Summary.ID
	if _, err := db.Get(id); err != nil {
		t.Errorf("document %d on disk but index record missing: %v", id, err)
	}
	if hits, _ := svc.Search(context.Background(), "late", 10); len(hits) != 1 {
		t.Errorf("search hits = %+v, want the late insert", hits)
	}
}

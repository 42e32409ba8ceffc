package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/extract"
	"github.com/hyperjump/libris/internal/extract/pdftest"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/search"
	"github.com/hyperjump/libris/internal/storage"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps a real store and fails selected operations.
type faultyStore struct {
	storage.Storage
	failInsert     bool
	failUpdate     bool
	failCreate     bool
	failDeleteSegs bool
	// failFindCall fails the n-th FindBookBySlug call (1-based); zero disables it.
	failFindCall int
	finds        int
	// beforeCreate runs inside CreateBook before the real insert.
	beforeCreate func(ctx context.Context)
}

func (f *faultyStore) CreateBook(ctx context.Context, book *models.Book) error {
	if f.failCreate {
		return errInjected
	}
	if f.beforeCreate != nil {
		f.beforeCreate(ctx)
	}
	return f.Storage.CreateBook(ctx, book)
}

func (f *faultyStore) FindBookBySlug(ctx context.Context, slug string) (*models.Book, error) {
	f.finds++
	if f.failFindCall > 0 && f.finds == f.failFindCall {
		return nil, errInjected
	}
	return f.Storage.FindBookBySlug(ctx, slug)
}

func (f *faultyStore) InsertSegments(ctx context.Context, segs []*models.BookSegment) error {
	if f.failInsert {
		return errInjected
	}
	return f.Storage.InsertSegments(ctx, segs)
}

func (f *faultyStore) UpdateBookSegmentCount(ctx context.Context, id string, n int64) error {
	if f.failUpdate {
		return errInjected
	}
	return f.Storage.UpdateBookSegmentCount(ctx, id, n)
}

func (f *faultyStore) DeleteSegmentsByBookID(ctx context.Context, id string) error {
	if f.failDeleteSegs {
		return errInjected
	}
	return f.Storage.DeleteSegmentsByBookID(ctx, id)
}

// faultyBlobs fails every Put after the first okPuts calls.
type faultyBlobs struct {
	blob.Store
	okPuts int
	puts   int
}

func (f *faultyBlobs) Put(ctx context.Context, name string, data []byte, ct string) (*blob.Object, error) {
	f.puts++
	if f.puts > f.okPuts {
		return nil, errInjected
	}
	return f.Store.Put(ctx, name, data, ct)
}

type failingIndex struct{}

func (failingIndex) IndexBook(context.Context, *models.Book, []*models.BookSegment) error {
	return errInjected
}

func (failingIndex) DeleteBook(context.Context, string) error { return errInjected }

type env struct {
	store   *storage.SQLiteStorage
	blobs   blob.Store
	blobDir string
	index   *search.Index
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "libris.db"))
	require.NoError(t, err)
	blobDir := filepath.Join(dir, "blobs")
	blobs, err := blob.NewDiskStore(blobDir, "/blobs")
	require.NoError(t, err)
	idx, err := search.NewIndex(filepath.Join(dir, "index"), 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
		_ = blobs.Close()
		_ = store.Close()
	})
	return &env{store: store, blobs: blobs, blobDir: blobDir, index: idx}
}

func (e *env) coordinator(store storage.Storage, blobs blob.Store, opts ...Option) *Coordinator {
	if store == nil {
		store = e.store
	}
	if blobs == nil {
		blobs = e.blobs
	}
	opts = append([]Option{WithIndex(e.index)}, opts...)
	return NewCoordinator(store, blobs, extract.NewPDFExtractor(), opts...)
}

func (e *env) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.blobDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (e *env) counts(t *testing.T) (books, segments int64) {
	t.Helper()
	books, err := e.store.CountBooks(context.Background())
	require.NoError(t, err)
	segments, err = e.store.CountSegments(context.Background())
	require.NoError(t, err)
	return books, segments
}

// threePagePDF has 600 words: with the default 500/50 segmenter it yields two
// segments starting on pages 1 and 3.
func threePagePDF() []byte {
	return pdftest.Build(
		pdftest.Lines(pdftest.Words("alpha", 200), 10),
		pdftest.Lines(pdftest.Words("beta", 200), 10),
		pdftest.Lines(pdftest.Words("gamma", 200), 10),
	)
}

func newRequest(title string, pdf []byte) *Request {
	return &Request{
		OwnerID: "owner-1",
		Title:   title,
		Author:  "Robert Kiyosaki",
		Persona: "rachel",
		PDF:     pdf,
		File:    models.FileMeta{Name: title + ".pdf", Size: int64(len(pdf)), ContentType: "application/pdf"},
	}
}

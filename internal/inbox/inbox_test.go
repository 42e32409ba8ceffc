package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
)

type recordingIngester struct {
	mu   sync.Mutex
	reqs []*ingest.Request
	seen chan string
}

func newRecorder() *recordingIngester {
	return &recordingIngester{seen: make(chan string, 16)}
}

func (r *recordingIngester) Ingest(_ context.Context, req *ingest.Request) (*ingest.Result, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	r.seen <- req.Title
	return &ingest.Result{Status: ingest.StatusCreated, Book: &models.Book{Slug: req.Title}}, nil
}

func waitFor(t *testing.T, r *recordingIngester, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for import of %q", want)
		}
	}
}

func TestImportFile_BuildsRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Rich Dad Poor Dad.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newRecorder()
	imp := NewImporter(dir, "owner-1", "Unknown", r)

	res, err := imp.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != ingest.StatusCreated {
		t.Errorf("status = %s", res.Status)
	}
	req := r.reqs[0]
	if req.Title != "Rich Dad Poor Dad.pdf" || req.OwnerID != "owner-1" || req.Author != "Unknown" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.File.Size != 8 || req.File.ContentType != "application/pdf" {
		t.Errorf("unexpected file meta %+v", req.File)
	}
}

func TestImporter_ImportsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.pdf"), []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newRecorder()
	imp := NewImporter(dir, "owner-1", "Unknown", r, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := imp.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer imp.Stop()

	waitFor(t, r, "existing.pdf")

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "New Book.PDF"), []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, "New Book.PDF")

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.reqs {
		if req.Title == "notes.txt" {
			t.Error("non-PDF file should not be imported")
		}
	}
}

// blockingIngester holds each import until release is closed.
type blockingIngester struct {
	started  chan struct{}
	release  chan struct{}
	finished chan struct{}
}

func (b *blockingIngester) Ingest(_ context.Context, req *ingest.Request) (*ingest.Result, error) {
	close(b.started)
	<-b.release
	close(b.finished)
	return &ingest.Result{Status: ingest.StatusCreated, Book: &models.Book{Slug: req.Title}}, nil
}

func TestImporter_StopWaitsForRunningImport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "slow.pdf"), []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	b := &blockingIngester{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	imp := NewImporter(dir, "o", "a", b, WithDebounce(10*time.Millisecond))
	if err := imp.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("import did not start")
	}

	stopped := make(chan struct{})
	go func() {
		imp.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while an import was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(b.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the import finished")
	}
	select {
	case <-b.finished:
	default:
		t.Error("import should have finished before Stop returned")
	}
}

func TestImporter_StartCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	imp := NewImporter(dir, "o", "a", newRecorder())
	if err := imp.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	imp.Stop()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("inbox directory not created: %v", err)
	}
}

func TestIsPDF(t *testing.T) {
	cases := map[string]bool{
		"a.pdf":         true,
		"/x/B.PDF":      true,
		".hidden.pdf":   false,
		"a.pdf.part":    false,
		"document.docx": false,
	}
	for path, want := range cases {
		if got := isPDF(path); got != want {
			t.Errorf("isPDF(%q) = %v, want %v", path, got, want)
		}
	}
}

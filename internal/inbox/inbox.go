// Package inbox imports PDFs dropped into a watched directory.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester is the subset of ingest.Coordinator used by the importer.
type Ingester interface {
	Ingest(ctx context.Context, req *ingest.Request) (*ingest.Result, error)
}

// Importer watches one directory and ingests every .pdf written to it once the
// file has been quiet for the debounce interval. Files are left in place.
type Importer struct {
	dir      string
	ingester Ingester
	owner    string
	author   string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.debounce = d
		}
	}
}

// NewImporter returns an importer for dir. Imported books are attributed to owner
// and author.
func NewImporter(dir, owner, author string, ingester Ingester, opts ...Option) *Importer {
	i := &Importer{
		dir:      filepath.Clean(dir),
		ingester: ingester,
		owner:    owner,
		author:   author,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start creates the directory if needed, imports the PDFs already in it and then
// watches for new ones until ctx is done or Stop is called.
func (i *Importer) Start(ctx context.Context) error {
	if err := os.MkdirAll(i.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(i.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	i.mu.Lock()
	i.watcher = w
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.mu.Unlock()

	i.logger.Info("inbox watching", zap.String("dir", i.dir))

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		i.Stop()
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isPDF(e.Name()) {
			i.schedule(filepath.Join(i.dir, e.Name()))
		}
	}

	i.wg.Add(1)
	go i.run(w)
	return nil
}

func (i *Importer) run(w *fsnotify.Watcher) {
	defer i.wg.Done()
	for {
		select {
		case <-i.ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			i.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			i.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (i *Importer) handleEvent(ev fsnotify.Event) {
	if !isPDF(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		i.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		i.cancelTimer(ev.Name)
	}
}

// schedule (re)starts the debounce timer for path.
func (i *Importer) schedule(path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ctx == nil || i.ctx.Err() != nil {
		return
	}
	if t, ok := i.timers[path]; ok {
		t.Stop()
	}
	ctx := i.ctx
	i.timers[path] = time.AfterFunc(i.debounce, func() {
		i.mu.Lock()
		delete(i.timers, path)
		if ctx.Err() != nil {
			i.mu.Unlock()
			return
		}
		// Registered under mu so Stop, which cancels under mu, always waits for it.
		i.wg.Add(1)
		i.mu.Unlock()
		defer i.wg.Done()
		_, _ = i.ImportFile(ctx, path)
	})
}

func (i *Importer) cancelTimer(path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if t, ok := i.timers[path]; ok {
		t.Stop()
		delete(i.timers, path)
	}
}

// ImportFile ingests the PDF at path, titled after its file name.
func (i *Importer) ImportFile(ctx context.Context, path string) (*ingest.Result, error) {
	log := i.logger.With(zap.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("inbox read failed", zap.Error(err))
		return nil, err
	}
	name := filepath.Base(path)
	res, err := i.ingester.Ingest(ctx, &ingest.Request{
		OwnerID: i.owner,
		Title:   name,
		Author:  i.author,
		PDF:     data,
		File:    models.FileMeta{Name: name, Size: int64(len(data)), ContentType: "application/pdf"},
	})
	if err != nil {
		log.Warn("inbox import failed", zap.Error(err))
		return nil, err
	}
	log.Info("inbox import finished", zap.String("status", string(res.Status)), zap.String("slug", res.Book.Slug))
	return res, nil
}

// Stop stops watching and waits for the event loop and any running import to exit.
// Imports still waiting on their debounce timer are dropped.
func (i *Importer) Stop() {
	i.mu.Lock()
	w := i.watcher
	i.watcher = nil
	if i.cancel != nil {
		i.cancel()
	}
	for path, t := range i.timers {
		t.Stop()
		delete(i.timers, path)
	}
	i.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	i.wg.Wait()
}

func isPDF(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".pdf")
}

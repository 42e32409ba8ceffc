package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/models"
)

// Opener creates a new backend connection.
type Opener func(ctx context.Context) (Storage, error)

// Lazy is a process-wide Storage handle that connects on first use and reuses the
// connection afterwards. A failed open is not cached, so the next call retries.
// Reset drops the current connection; Ping resets it when the backend is unreachable.
type Lazy struct {
	open   Opener
	logger *zap.Logger

	mu      sync.Mutex
	current Storage
}

// NewLazy returns a handle that opens connections with open.
func NewLazy(open Opener, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{open: open, logger: logger}
}

// Get returns the shared connection, opening it if needed.
func (l *Lazy) Get(ctx context.Context) (Storage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return l.current, nil
	}
	s, err := l.open(ctx)
	if err != nil {
		l.logger.Warn("storage open failed", zap.Error(err))
		return nil, err
	}
	l.logger.Debug("storage connection opened")
	l.current = s
	return s, nil
}

// Reset closes and forgets the current connection.
func (l *Lazy) Reset() {
	l.mu.Lock()
	s := l.current
	l.current = nil
	l.mu.Unlock()
	if s != nil {
		if err := s.Close(); err != nil {
			l.logger.Warn("storage close on reset failed", zap.Error(err))
		}
	}
}

// Ping checks the connection and resets it on failure.
func (l *Lazy) Ping(ctx context.Context) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	if err := s.Ping(ctx); err != nil {
		l.logger.Warn("storage ping failed, resetting connection", zap.Error(err))
		l.Reset()
		return err
	}
	return nil
}

// Close closes the current connection, if any.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}

func (l *Lazy) CreateBook(ctx context.Context, book *models.Book) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return s.CreateBook(ctx, book)
}

func (l *Lazy) GetBook(ctx context.Context, id string) (*models.Book, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

func (l *Lazy) FindBookBySlug(ctx context.Context, slug string) (*models.Book, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindBookBySlug(ctx, slug)
}

func (l *Lazy) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ListBooks(ctx, offset, limit)
}

func (l *Lazy) UpdateBookSegmentCount(ctx context.Context, id string, count int64) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return s.UpdateBookSegmentCount(ctx, id, count)
}

func (l *Lazy) DeleteBook(ctx context.Context, id string) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return s.DeleteBook(ctx, id)
}

func (l *Lazy) InsertSegments(ctx context.Context, segments []*models.BookSegment) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return s.InsertSegments(ctx, segments)
}

func (l *Lazy) GetSegments(ctx context.Context, bookID string, offset, limit int) ([]*models.BookSegment, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetSegments(ctx, bookID, offset, limit)
}

func (l *Lazy) DeleteSegmentsByBookID(ctx context.Context, bookID string) error {
	s, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return s.DeleteSegmentsByBookID(ctx, bookID)
}

func (l *Lazy) CountBooks(ctx context.Context) (int64, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return 0, err
	}
	return s.CountBooks(ctx)
}

func (l *Lazy) CountSegments(ctx context.Context) (int64, error) {
	s, err := l.Get(ctx)
	if err != nil {
		return 0, err
	}
	return s.CountSegments(ctx)
}

var _ Storage = (*Lazy)(nil)

package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/slug"
	"github.com/hyperjump/libris/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	reindexPageSize = 50
)

// Library answers read queries over stored books and handles deletion and reindexing.
type Library struct {
	store  storage.Storage
	blobs  blob.Store
	index  Indexer
	logger *zap.Logger
}

// NewLibrary returns a Library. idx may be nil when search is disabled.
func NewLibrary(store storage.Storage, blobs blob.Store, idx Indexer, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{store: store, blobs: blobs, index: idx, logger: logger}
}

// ListBooks returns books newest first. limit is clamped to [1, 100].
func (l *Library) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	books, err := l.store.ListBooks(ctx, offset, limit)
	if err != nil {
		return nil, liberrors.Persistence("failed to list books", err)
	}
	if books == nil {
		books = []*models.Book{}
	}
	return books, nil
}

// CheckBookExists reports the book whose slug matches title's slug, if any.
func (l *Library) CheckBookExists(ctx context.Context, title string) (bool, *models.Book, error) {
	s := slug.Make(title)
	if s == "" {
		return false, nil, liberrors.Validation("title must contain at least one letter or digit")
	}
	book, err := l.store.FindBookBySlug(ctx, s)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, liberrors.Persistence("failed to look up book", err)
	}
	return true, book, nil
}

// GetBook returns the book with the given slug.
func (l *Library) GetBook(ctx context.Context, bookSlug string) (*models.Book, error) {
	book, err := l.store.FindBookBySlug(ctx, bookSlug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, liberrors.NotFoundf("book %q not found", bookSlug)
	}
	if err != nil {
		return nil, liberrors.Persistence("failed to load book", err)
	}
	return book, nil
}

// GetSegments returns a window of a book's segments ordered by index.
func (l *Library) GetSegments(ctx context.Context, bookSlug string, offset, limit int) ([]*models.BookSegment, error) {
	book, err := l.GetBook(ctx, bookSlug)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	segs, err := l.store.GetSegments(ctx, book.ID, offset, limit)
	if err != nil {
		return nil, liberrors.Persistence("failed to load segments", err)
	}
	if segs == nil {
		segs = []*models.BookSegment{}
	}
	return segs, nil
}

// DeleteBook removes a book with its segments, search entries and blobs. It is the
// cleanup path for books left with zero segments by a failed ingest.
func (l *Library) DeleteBook(ctx context.Context, bookSlug string) (*models.Book, error) {
	book, err := l.GetBook(ctx, bookSlug)
	if err != nil {
		return nil, err
	}
	log := l.logger.With(zap.String("slug", bookSlug), zap.String("book_id", book.ID))

	if err := l.store.DeleteSegmentsByBookID(ctx, book.ID); err != nil {
		return nil, liberrors.Persistence("failed to delete segments", err)
	}
	if err := l.store.DeleteBook(ctx, book.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, liberrors.Persistence("failed to delete book", err)
	}
	if l.index != nil {
		if err := l.index.DeleteBook(ctx, book.ID); err != nil {
			log.Warn("failed to remove book from search index", zap.Error(err))
		}
	}
	for _, key := range []string{book.FileBlobKey, book.CoverBlobKey} {
		if key == "" {
			continue
		}
		if err := l.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
		}
	}
	log.Info("book deleted")
	return book, nil
}

// Reindex rebuilds the search entries of every book from stored segments and
// returns the number of books indexed.
func (l *Library) Reindex(ctx context.Context) (int, error) {
	if l.index == nil {
		return 0, liberrors.Validation("search is disabled")
	}
	indexed := 0
	for offset := 0; ; offset += reindexPageSize {
		books, err := l.store.ListBooks(ctx, offset, reindexPageSize)
		if err != nil {
			return indexed, liberrors.Persistence("failed to list books", err)
		}
		for _, book := range books {
			if err := ctx.Err(); err != nil {
				return indexed, liberrors.Canceled("reindex", err)
			}
			segs, err := l.store.GetSegments(ctx, book.ID, 0, 0)
			if err != nil {
				return indexed, liberrors.Persistence("failed to load segments", err)
			}
			if err := l.index.DeleteBook(ctx, book.ID); err != nil {
				return indexed, liberrors.Internal("failed to clear search entries", err)
			}
			if err := l.index.IndexBook(ctx, book, segs); err != nil {
				return indexed, liberrors.Internal("failed to index book", err)
			}
			indexed++
			l.logger.Debug("book reindexed", zap.String("slug", book.Slug), zap.Int("segments", len(segs)))
		}
		if len(books) < reindexPageSize {
			return indexed, nil
		}
	}
}

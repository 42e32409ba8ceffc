// Package storage defines the persistence interface for books and their segments.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/libris/internal/models"
)

var (
	// ErrNotFound is returned when a book does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint
	// (book slug, or book id + segment index).
	ErrDuplicate = errors.New("duplicate key")
)

// Storage defines book and segment persistence operations.
type Storage interface {
	// Book operations
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	FindBookBySlug(ctx context.Context, slug string) (*models.Book, error)
	ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error)
	UpdateBookSegmentCount(ctx context.Context, id string, count int64) error
	DeleteBook(ctx context.Context, id string) error

	// Segment operations
	InsertSegments(ctx context.Context, segments []*models.BookSegment) error
	GetSegments(ctx context.Context, bookID string, offset, limit int) ([]*models.BookSegment, error)
	DeleteSegmentsByBookID(ctx context.Context, bookID string) error

	// Stats
	CountBooks(ctx context.Context) (int64, error)
	CountSegments(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

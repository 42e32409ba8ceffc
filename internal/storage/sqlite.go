package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/libris/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		author TEXT NOT NULL,
		persona TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL,
		file_blob_key TEXT NOT NULL,
		cover_url TEXT NOT NULL DEFAULT '',
		cover_blob_key TEXT NOT NULL DEFAULT '',
		cover_blurhash TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL,
		total_segments INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_books_created_at ON books(created_at);

	CREATE TABLE IF NOT EXISTS book_segments (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		page_number INTEGER,
		word_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
		UNIQUE (book_id, segment_index)
	);

	CREATE INDEX IF NOT EXISTS idx_segments_book_id ON book_segments(book_id);
	`
	_, err := db.Exec(schema)
	return err
}

const bookColumns = `id, owner_id, title, slug, author, persona, file_url, file_blob_key,
	cover_url, cover_blob_key, cover_blurhash, file_size, total_segments, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Slug, &b.Author, &b.Persona, &b.FileURL, &b.FileBlobKey,
		&b.CoverURL, &b.CoverBlobKey, &b.CoverBlurHash, &b.FileSize, &b.TotalSegments, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateBook inserts a book. A slug already in use yields ErrDuplicate.
func (s *SQLiteStorage) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.OwnerID, book.Title, book.Slug, book.Author, book.Persona, book.FileURL, book.FileBlobKey,
		book.CoverURL, book.CoverBlobKey, book.CoverBlurHash, book.FileSize, book.TotalSegments, book.CreatedAt, book.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("book %q: %w", book.Slug, ErrDuplicate)
	}
	return err
}

// GetBook returns a book by ID.
func (s *SQLiteStorage) GetBook(ctx context.Context, id string) (*models.Book, error) {
	return scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
}

// FindBookBySlug returns the book with the given slug.
func (s *SQLiteStorage) FindBookBySlug(ctx context.Context, slug string) (*models.Book, error) {
	return scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE slug = ?`, slug))
}

// ListBooks returns books newest first.
func (s *SQLiteStorage) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBookSegmentCount sets total_segments for a book.
func (s *SQLiteStorage) UpdateBookSegmentCount(ctx context.Context, id string, count int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE books SET total_segments = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book and, by cascade, its segments.
func (s *SQLiteStorage) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertSegments inserts all segments in one transaction; either all rows land or none do.
func (s *SQLiteStorage) InsertSegments(ctx context.Context, segments []*models.BookSegment) error {
	if len(segments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO book_segments (id, book_id, owner_id, content, segment_index, page_number, word_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, seg := range segments {
		seg.CreatedAt = now
		seg.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, seg.ID, seg.BookID, seg.OwnerID, seg.Content, seg.SegmentIndex,
			seg.PageNumber, seg.WordCount, seg.CreatedAt, seg.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("segment %d of book %s: %w", seg.SegmentIndex, seg.BookID, ErrDuplicate)
			}
			return err
		}
	}
	return tx.Commit()
}

// GetSegments returns segments of a book ordered by segment_index. A limit <= 0 returns all.
func (s *SQLiteStorage) GetSegments(ctx context.Context, bookID string, offset, limit int) ([]*models.BookSegment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, owner_id, content, segment_index, page_number, word_count, created_at, updated_at
		 FROM book_segments WHERE book_id = ? ORDER BY segment_index LIMIT ? OFFSET ?`,
		bookID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []*models.BookSegment
	for rows.Next() {
		var seg models.BookSegment
		var page sql.NullInt64
		if err := rows.Scan(&seg.ID, &seg.BookID, &seg.OwnerID, &seg.Content, &seg.SegmentIndex,
			&page, &seg.WordCount, &seg.CreatedAt, &seg.UpdatedAt); err != nil {
			return nil, err
		}
		if page.Valid {
			p := int(page.Int64)
			seg.PageNumber = &p
		}
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}

// DeleteSegmentsByBookID removes all segments for a book.
func (s *SQLiteStorage) DeleteSegmentsByBookID(ctx context.Context, bookID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM book_segments WHERE book_id = ?`, bookID)
	return err
}

// CountBooks returns the total number of books.
func (s *SQLiteStorage) CountBooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count)
	return count, err
}

// CountSegments returns the total number of segments.
func (s *SQLiteStorage) CountSegments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_segments`).Scan(&count)
	return count, err
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

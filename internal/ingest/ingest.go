// Package ingest turns an uploaded PDF into a stored book with searchable segments.
//
// Ingest runs the pipeline in order: dedup by slug, extract, upload blobs, create
// the book with a zero segment count, bulk insert segments, finalize the count,
// then index for search. A failure while inserting segments leaves the book in
// place with zero segments; a failure while finalizing deletes the inserted
// segments. No step is retried.
package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/cover"
	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/extract"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/slug"
	"github.com/hyperjump/libris/internal/storage"
	"github.com/hyperjump/libris/internal/validation"
)

// DefaultMaxFileSize is the largest accepted PDF (50 MiB).
const DefaultMaxFileSize int64 = 50 << 20

// Pipeline stages, used as the "stage" log field and in CANCELED errors.
const (
	StageValidate = "validate"
	StageDedup    = "dedup"
	StageExtract  = "extract"
	StageCover    = "cover"
	StageUpload   = "upload"
	StageCreate   = "create"
	StageInsert   = "insert_segments"
	StageFinalize = "finalize"
	StageIndex    = "index"
)

// Status is the outcome of a successful Ingest call.
type Status string

const (
	StatusCreated       Status = "created"
	StatusAlreadyExists Status = "already_exists"
)

// Request is one book upload.
type Request struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=300,slugable"`
	Author  string `json:"author" validate:"required,max=200"`
	Persona string `json:"persona,omitempty" validate:"omitempty,max=64"`

	PDF   []byte          `json:"-"`
	Cover []byte          `json:"-"`
	File  models.FileMeta `json:"file"`
}

// Result is returned for created and already-existing books.
type Result struct {
	Status Status       `json:"status"`
	Book   *models.Book `json:"book"`
}

// Extractor produces segments and a rendered cover from PDF bytes.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (*extract.Result, error)
}

// Indexer makes a book's segments searchable.
type Indexer interface {
	IndexBook(ctx context.Context, book *models.Book, segments []*models.BookSegment) error
	DeleteBook(ctx context.Context, bookID string) error
}

// Coordinator runs the ingestion pipeline. It is safe for concurrent use; each call
// runs its steps sequentially.
type Coordinator struct {
	store       storage.Storage
	blobs       blob.Store
	extractor   Extractor
	index       Indexer
	validator   *validation.Validator
	logger      *zap.Logger
	maxFileSize int64
	newID       func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithIndex enables search indexing after a book is finalized.
func WithIndex(idx Indexer) Option {
	return func(c *Coordinator) { c.index = idx }
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithIDGenerator overrides uuid-based ids for books and segments.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// NewCoordinator returns a Coordinator writing to store and blobs.
func NewCoordinator(store storage.Storage, blobs blob.Store, extractor Extractor, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		blobs:       blobs,
		extractor:   extractor,
		validator:   validation.New(),
		logger:      zap.NewNop(),
		maxFileSize: DefaultMaxFileSize,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest stores req as a new book, or reports the existing book with the same slug.
//
// Errors carry one of the codes VALIDATION, PARSE_ERROR, EMPTY_CONTENT,
// UPLOAD_ERROR, PERSISTENCE_ERROR or CANCELED.
func (c *Coordinator) Ingest(ctx context.Context, req *Request) (*Result, error) {
	bookSlug := slug.Make(req.Title)
	log := c.logger.With(zap.String("slug", bookSlug), zap.String("owner_id", req.OwnerID))

	if err := c.validator.Validate(req); err != nil {
		log.Info("ingest rejected", zap.String("stage", StageValidate), zap.Error(err))
		return nil, err
	}

	// 1. dedup
	if err := c.checkCtx(ctx, log, StageDedup); err != nil {
		return nil, err
	}
	existing, err := c.store.FindBookBySlug(ctx, bookSlug)
	switch {
	case err == nil:
		log.Info("book already exists", zap.String("book_id", existing.ID))
		return &Result{Status: StatusAlreadyExists, Book: existing}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, c.fail(log, StageDedup, liberrors.Persistence("failed to look up book", err))
	}
	if err := c.validatePDF(req.PDF); err != nil {
		log.Info("ingest rejected", zap.String("stage", StageValidate), zap.Error(err))
		return nil, err
	}

	// 2. extract
	if err := c.checkCtx(ctx, log, StageExtract); err != nil {
		return nil, err
	}
	extracted, err := c.extractor.Extract(ctx, req.PDF)
	if err != nil {
		return nil, c.fail(log, StageExtract, asDomain(err, "failed to extract PDF"))
	}
	coverImg, err := c.pickCover(req.Cover, extracted.Cover, log)
	if err != nil {
		return nil, c.fail(log, StageCover, err)
	}

	// 3. upload
	if err := c.checkCtx(ctx, log, StageUpload); err != nil {
		return nil, err
	}
	up, err := c.upload(ctx, bookSlug, req.PDF, coverImg, log)
	if err != nil {
		return nil, c.fail(log, StageUpload, err)
	}

	// 4. create
	if err := c.checkCtx(ctx, log, StageCreate); err != nil {
		up.discard(log)
		return nil, err
	}
	existing, err = c.store.FindBookBySlug(ctx, bookSlug)
	switch {
	case err == nil:
		up.discard(log)
		log.Info("book created concurrently", zap.String("book_id", existing.ID))
		return &Result{Status: StatusAlreadyExists, Book: existing}, nil
	case !errors.Is(err, storage.ErrNotFound):
		// CreateBook still enforces slug uniqueness.
		log.Warn("slug re-check failed", zap.String("stage", StageCreate), zap.Error(err))
	}
	book := c.newBook(req, bookSlug, up, coverImg)
	if err := c.store.CreateBook(ctx, book); err != nil {
		up.discard(log)
		if errors.Is(err, storage.ErrDuplicate) {
			winner, findErr := c.store.FindBookBySlug(ctx, bookSlug)
			if findErr != nil {
				return nil, c.fail(log, StageCreate, liberrors.Persistence("failed to read existing book", findErr))
			}
			log.Info("book created concurrently", zap.String("book_id", winner.ID))
			return &Result{Status: StatusAlreadyExists, Book: winner}, nil
		}
		return nil, c.fail(log, StageCreate, liberrors.Persistence("failed to create book", err))
	}
	log = log.With(zap.String("book_id", book.ID))

	// 5. insert segments; on failure the book stays with zero segments
	if err := c.checkCtx(ctx, log, StageInsert); err != nil {
		return nil, err
	}
	segments := models.ToBookSegments(book.ID, req.OwnerID, extracted.Segments, c.newID)
	if err := c.store.InsertSegments(ctx, segments); err != nil {
		return nil, c.fail(log, StageInsert, liberrors.Persistence("failed to save book segments", err))
	}

	// 6. finalize; on failure the inserted segments are removed
	if err := c.checkCtx(ctx, log, StageFinalize); err != nil {
		c.deleteSegments(book.ID, log)
		return nil, err
	}
	count := int64(len(segments))
	if err := c.store.UpdateBookSegmentCount(ctx, book.ID, count); err != nil {
		c.deleteSegments(book.ID, log)
		return nil, c.fail(log, StageFinalize, liberrors.Persistence("failed to update book segment count", err))
	}
	book.TotalSegments = count

	// 7. index
	if c.index != nil {
		if err := c.index.IndexBook(ctx, book, segments); err != nil {
			log.Warn("search indexing failed; run reindex to repair",
				zap.String("stage", StageIndex), zap.Error(err))
		}
	}

	log.Info("book ingested",
		zap.Int64("segments", count),
		zap.Int("pages", extracted.PageCount),
		zap.Int64("file_size", book.FileSize),
	)
	return &Result{Status: StatusCreated, Book: book}, nil
}

// validatePDF runs after the dedup lookup so a known title short-circuits
// regardless of the uploaded file.
func (c *Coordinator) validatePDF(pdf []byte) error {
	if len(pdf) == 0 {
		return liberrors.ValidationWithDetails("validation failed", map[string]string{"pdf": "is required"})
	}
	if int64(len(pdf)) > c.maxFileSize {
		return liberrors.ValidationWithDetails("validation failed", map[string]string{
			"pdf": "exceeds the maximum file size",
		})
	}
	return nil
}

// pickCover prefers the caller's cover and falls back to the rendered first page.
// A caller cover that is not a supported image is rejected; a rendered cover that
// cannot be processed is stored as-is without a BlurHash.
func (c *Coordinator) pickCover(provided, rendered []byte, log *zap.Logger) (*cover.Image, error) {
	if len(provided) > 0 {
		return cover.Process(provided)
	}
	img, err := cover.Process(rendered)
	if err != nil {
		log.Warn("rendered cover could not be processed", zap.String("stage", StageCover), zap.Error(err))
		return &cover.Image{Data: rendered, ContentType: "image/png", Ext: ".png"}, nil
	}
	return img, nil
}

func (c *Coordinator) newBook(req *Request, bookSlug string, up *uploads, coverImg *cover.Image) *models.Book {
	return &models.Book{
		ID:            c.newID(),
		OwnerID:       req.OwnerID,
		Title:         req.Title,
		Slug:          bookSlug,
		Author:        req.Author,
		Persona:       req.Persona,
		FileURL:       up.file.URL,
		FileBlobKey:   up.file.Key,
		CoverURL:      up.cover.URL,
		CoverBlobKey:  up.cover.Key,
		CoverBlurHash: coverImg.BlurHash,
		FileSize:      int64(len(req.PDF)),
		TotalSegments: 0,
	}
}

func (c *Coordinator) deleteSegments(bookID string, log *zap.Logger) {
	// Runs even when the request context is done.
	if err := c.store.DeleteSegmentsByBookID(context.Background(), bookID); err != nil {
		log.Error("failed to delete segments after finalize failure",
			zap.String("stage", StageFinalize), zap.Error(err))
	}
}

func (c *Coordinator) checkCtx(ctx context.Context, log *zap.Logger, stage string) error {
	if err := ctx.Err(); err != nil {
		return c.fail(log, stage, liberrors.Canceled(stage, err))
	}
	return nil
}

func (c *Coordinator) fail(log *zap.Logger, stage string, err error) error {
	switch liberrors.CodeOf(err) {
	case liberrors.CodeParse, liberrors.CodeEmptyContent, liberrors.CodeValidation, liberrors.CodeCanceled:
		log.Info("ingest failed", zap.String("stage", stage), zap.Error(err))
	default:
		log.Error("ingest failed", zap.String("stage", stage), zap.Error(err))
	}
	return err
}

// asDomain keeps domain errors as they are and wraps anything else as INTERNAL.
func asDomain(err error, msg string) error {
	var de *liberrors.Error
	if liberrors.As(err, &de) {
		return err
	}
	return liberrors.Internal(msg, err)
}

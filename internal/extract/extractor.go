// Package extract turns an uploaded PDF into ordered text segments and a cover image.
package extract

import (
	"context"
	"time"

	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/segment"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCoverScale renders the cover at twice the PDF's nominal 72 DPI.
const DefaultCoverScale = 2.0

const nominalDPI = 72.0

// EmptyContentMessage is shown to users whose PDF has no text layer.
const EmptyContentMessage = "No text could be extracted from this PDF. It may be a scanned or image-only document; please upload a PDF with selectable text."

// Result is the output of a successful extraction.
type Result struct {
	Segments  []models.TextSegment
	Cover     []byte // PNG
	PageCount int
}

// PDFExtractor extracts segments and a rendered cover from PDF bytes.
type PDFExtractor struct {
	segmenter  *segment.Segmenter
	coverScale float64
	logger     *zap.Logger
}

// Option configures a PDFExtractor.
type Option func(*PDFExtractor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *PDFExtractor) { e.logger = l }
}

// WithSegmenter overrides the default 500/50 segmenter.
func WithSegmenter(s *segment.Segmenter) Option {
	return func(e *PDFExtractor) { e.segmenter = s }
}

// WithCoverScale sets the cover upscale factor relative to 72 DPI.
func WithCoverScale(scale float64) Option {
	return func(e *PDFExtractor) {
		if scale > 0 {
			e.coverScale = scale
		}
	}
}

// NewPDFExtractor returns a PDFExtractor.
func NewPDFExtractor(opts ...Option) *PDFExtractor {
	e := &PDFExtractor{
		segmenter:  segment.Default(),
		coverScale: DefaultCoverScale,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract opens content as a PDF, renders page 1 as a PNG cover and segments the
// text of every page. Text extraction and rendering run concurrently; each decoder
// is closed before Extract returns.
//
// Errors: PARSE_ERROR for invalid or corrupted PDFs, EMPTY_CONTENT when no text
// could be segmented, CANCELED when ctx ends first.
func (e *PDFExtractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	if len(content) == 0 {
		return nil, liberrors.Parse("file is empty", nil)
	}
	start := time.Now()

	var (
		pages []string
		cover []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := extractPages(gctx, content)
		pages = p
		return err
	})
	g.Go(func() error {
		c, err := renderCover(content, 0, nominalDPI*e.coverScale)
		cover = c
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, liberrors.Canceled("extract", ctx.Err())
		}
		return nil, err
	}

	segs := e.segmenter.SplitPages(pages)
	if len(segs) == 0 {
		return nil, liberrors.EmptyContent(EmptyContentMessage)
	}

	e.logger.Debug("pdf extracted",
		zap.Int("pages", len(pages)),
		zap.Int("segments", len(segs)),
		zap.Int("cover_bytes", len(cover)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Result{Segments: segs, Cover: cover, PageCount: len(pages)}, nil
}

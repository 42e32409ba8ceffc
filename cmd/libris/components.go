package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/config"
	"github.com/hyperjump/libris/internal/extract"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/search"
	"github.com/hyperjump/libris/internal/segment"
	"github.com/hyperjump/libris/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Storage     *storage.Lazy
	Blobs       blob.Store
	Index       *search.Index
	Extractor   *extract.PDFExtractor
	Coordinator *ingest.Coordinator
	Library     *ingest.Library
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Blobs != nil {
		_ = c.Blobs.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// newExtractor builds the PDF extractor for the configured segment window.
func newExtractor(cfg *config.Config, logger *zap.Logger) (*extract.PDFExtractor, error) {
	seg, err := segment.New(cfg.Ingest.SegmentSize, cfg.Ingest.SegmentOverlap)
	if err != nil {
		return nil, err
	}
	return extract.NewPDFExtractor(
		extract.WithSegmenter(seg),
		extract.WithCoverScale(cfg.Ingest.CoverScale),
		extract.WithLogger(logger),
	), nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	opener, err := storage.Open(storage.Options{
		Backend:    cfg.Storage.Backend,
		SQLitePath: cfg.Storage.SQLitePath,
		MongoURI:   cfg.Storage.MongoURI,
		MongoDB:    cfg.Storage.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: storage.NewLazy(opener, logger)}

	c.Blobs, err = blob.Open(blob.Options{
		Backend: cfg.Blob.Backend,
		Path:    cfg.Blob.Path,
		BaseURL: cfg.Blob.BaseURL,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	coordOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithMaxFileSize(cfg.Ingest.MaxFileSize),
	}
	// A nil *search.Index must not reach the Indexer interface.
	var indexer ingest.Indexer
	if cfg.Search.EnabledOrDefault() {
		c.Index, err = search.NewIndex(cfg.Search.IndexPath, cfg.Search.Fuzziness)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize search index: %w", err)
		}
		indexer = c.Index
		coordOpts = append(coordOpts, ingest.WithIndex(c.Index))
	}

	c.Extractor, err = newExtractor(cfg, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}
	c.Coordinator = ingest.NewCoordinator(c.Storage, c.Blobs, c.Extractor, coordOpts...)
	c.Library = ingest.NewLibrary(c.Storage, c.Blobs, indexer, logger)

	logger.Debug("components initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("blob", cfg.Blob.Backend),
		zap.Bool("search", c.Index != nil))
	return c, nil
}

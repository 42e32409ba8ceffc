package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/slug"
	"github.com/hyperjump/libris/internal/storage"
)

// multipartMemory is how much of an upload is buffered before spilling to temp files.
const multipartMemory = 32 << 20

type uploadResponse struct {
	Status        ingest.Status `json:"status"`
	AlreadyExists bool          `json:"already_exists"`
	Book          *models.Book  `json:"book"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondErrorStatus(w, http.StatusRequestEntityTooLarge,
				liberrors.Validationf("upload exceeds %d bytes", s.maxUploadBytes()))
			return
		}
		s.respondError(w, liberrors.Validation("invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	pdfData, header, err := readFormFile(r, "pdf")
	if err != nil {
		s.respondError(w, liberrors.ValidationWithDetails("pdf file is required", map[string]string{"pdf": "required"}))
		return
	}
	if header.Size > s.config.Ingest.MaxFileSize && s.config.Ingest.MaxFileSize > 0 {
		s.respondErrorStatus(w, http.StatusRequestEntityTooLarge,
			liberrors.Validationf("pdf exceeds %d bytes", s.config.Ingest.MaxFileSize))
		return
	}
	coverData, _, err := readFormFile(r, "cover")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		s.respondError(w, liberrors.Validation("unreadable cover file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(pdfData).String()
	}
	req := &ingest.Request{
		OwnerID: ownerFrom(r.Context()),
		Title:   strings.TrimSpace(r.FormValue("title")),
		Author:  strings.TrimSpace(r.FormValue("author")),
		Persona: strings.TrimSpace(r.FormValue("persona")),
		PDF:     pdfData,
		Cover:   coverData,
		File: models.FileMeta{
			Name:        header.Filename,
			Size:        int64(len(pdfData)),
			ContentType: contentType,
		},
	}
	s.logger.Debug("upload request",
		zap.String("owner", req.OwnerID),
		zap.String("title", req.Title),
		zap.Int("pdf_bytes", len(pdfData)),
		zap.Bool("has_cover", len(coverData) > 0))

	res, err := s.ingester.Ingest(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Status == ingest.StatusAlreadyExists {
		status = http.StatusOK
	}
	s.respondJSON(w, status, uploadResponse{
		Status:        res.Status,
		AlreadyExists: res.Status == ingest.StatusAlreadyExists,
		Book:          res.Book,
	})
}

// readFormFile returns the content of the named multipart file field.
func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	books, err := s.library.ListBooks(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"books":  books,
		"offset": offset,
		"count":  len(books),
	})
}

func (s *Server) handleBookExists(w http.ResponseWriter, r *http.Request) {
	exists, book, err := s.library.CheckBookExists(r.Context(), r.URL.Query().Get("title"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"exists": exists,
		"book":   book,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.library.GetBook(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	segs, err := s.library.GetSegments(r.Context(), chi.URLParam(r, "slug"), offset, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"segments": segs,
		"offset":   offset,
		"count":    len(segs),
	})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	bookSlug := chi.URLParam(r, "slug")
	s.logger.Debug("delete book request", zap.String("slug", bookSlug), zap.String("owner", ownerFrom(r.Context())))
	book, err := s.library.DeleteBook(r.Context(), bookSlug)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "book": book})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.respondError(w, liberrors.Validation("search is disabled"))
		return
	}
	q := r.URL.Query()
	query := &models.SearchQuery{
		Query:    strings.TrimSpace(q.Get("q")),
		BookSlug: q.Get("book"),
	}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.FuzzyEnabled, _ = strconv.ParseBool(q.Get("fuzzy"))
	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.respondError(w, liberrors.Validationf("invalid min_score %q", v))
			return
		}
		query.MinScore = score
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSlug(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	generated := slug.Make(title)
	if generated == "" {
		s.respondError(w, liberrors.ValidationWithDetails("title produces an empty slug",
			map[string]string{"title": "must contain at least one letter or digit"}))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"title": title, "slug": generated})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	data, contentType, err := s.blobs.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		s.respondError(w, liberrors.NotFound("blob not found"))
		return
	}
	if err != nil {
		s.logger.Error("blob read failed", zap.String("key", key), zap.Error(err))
		s.respondError(w, liberrors.Internal("failed to read blob", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Books        int64          `json:"books"`
	Segments     int64          `json:"segments"`
	IndexedDocs  *uint64        `json:"indexed_segments,omitempty"`
	DiskUsage    *storage.Usage `json:"disk_usage,omitempty"`
	StoreBackend string         `json:"storage_backend"`
	BlobBackend  string         `json:"blob_backend"`
	SegmentSize  int            `json:"segment_size"`
	Overlap      int            `json:"segment_overlap"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	books, err := s.store.CountBooks(ctx)
	if err != nil {
		s.logger.Error("status: count books failed", zap.Error(err))
		s.respondError(w, liberrors.Persistence("failed to count books", err))
		return
	}
	segments, err := s.store.CountSegments(ctx)
	if err != nil {
		s.logger.Error("status: count segments failed", zap.Error(err))
		s.respondError(w, liberrors.Persistence("failed to count segments", err))
		return
	}
	resp := statusResponse{
		Books:        books,
		Segments:     segments,
		StoreBackend: s.config.Storage.Backend,
		BlobBackend:  s.config.Blob.Backend,
		SegmentSize:  s.config.Ingest.SegmentSize,
		Overlap:      s.config.Ingest.SegmentOverlap,
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp.IndexedDocs = &n
		}
	}
	usage, err := storage.DiskUsage(s.localPaths())
	if err == nil {
		resp.DiskUsage = &usage
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// localPaths lists the on-disk data locations for the configured backends.
func (s *Server) localPaths() map[string]string {
	paths := map[string]string{"blobs": s.config.Blob.Path}
	if s.config.Storage.Backend == storage.BackendSQLite {
		paths["database"] = s.config.Storage.SQLitePath
	}
	if s.index != nil {
		paths["index"] = s.config.Search.IndexPath
	}
	return paths
}

// pageParams reads offset and limit; the library clamps out-of-range values.
func pageParams(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return offset, limit
}

type errorEnvelope struct {
	Error *liberrors.Error `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes err in the error envelope with the status of its code.
// Errors without a domain code are reported as INTERNAL without their cause.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var domainErr *liberrors.Error
	if !errors.As(err, &domainErr) {
		s.logger.Error("unhandled error", zap.Error(err))
		domainErr = liberrors.ErrInternal
	}
	s.respondErrorStatus(w, domainErr.HTTPStatus(), domainErr)
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, status int, e *liberrors.Error) {
	s.respondJSON(w, status, errorEnvelope{Error: &liberrors.Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}})
}

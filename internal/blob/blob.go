// Package blob stores uploaded files (PDFs and cover images) and hands back
// public URLs for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hyperjump/libris/internal/slug"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("blob not found")

const (
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLength   = 12
)

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Store persists blobs. Implementations are safe for concurrent use.
type Store interface {
	// Put stores data under a new unique key derived from name.
	Put(ctx context.Context, name string, data []byte, contentType string) (*Object, error)
	// Get returns the data and content type stored under key.
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewKey derives a storage key from name: the directory is kept, the base name is
// slugified and a random suffix is appended so repeated uploads never collide.
// "books/Rich Dad.PDF" becomes "books/rich-dad-<suffix>.pdf".
func NewKey(name string) (string, error) {
	dir, file := path.Split(path.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	ext := strings.ToLower(path.Ext(file))
	base := slug.Make(strings.TrimSuffix(file, path.Ext(file)))
	if base == "" {
		base = "file"
	}
	suffix, err := gonanoid.Generate(suffixAlphabet, suffixLength)
	if err != nil {
		return "", fmt.Errorf("generate blob suffix: %w", err)
	}
	return strings.TrimPrefix(dir, "/") + base + "-" + suffix + ext, nil
}

// validKey rejects keys that could escape the store's namespace.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// detectContentType returns contentType when set, otherwise sniffs data.
func detectContentType(data []byte, contentType string) string {
	if contentType != "" {
		return contentType
	}
	return mimetype.Detect(data).String()
}

func urlFor(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}

// Backend names accepted by Open.
const (
	BackendDisk = "disk"
	BackendBolt = "bolt"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is a directory for disk, a database file for bolt.
	Path string
	// BaseURL prefixes every object URL, e.g. "/blobs".
	BaseURL string
}

// Open returns the configured Store.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendDisk:
		return NewDiskStore(opts.Path, opts.BaseURL)
	case BackendBolt:
		return NewBoltStore(opts.Path, opts.BaseURL)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}

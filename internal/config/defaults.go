package config

import (
	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/extract"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/segment"
	"github.com/hyperjump/libris/internal/storage"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendSQLite
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "/usr/local/var/libris/data/db/books.db"
	}
	if cfg.Storage.MongoDatabase == "" {
		cfg.Storage.MongoDatabase = "libris"
	}
	if cfg.Blob.Backend == "" {
		cfg.Blob.Backend = blob.BackendDisk
	}
	if cfg.Blob.Path == "" {
		if cfg.Blob.Backend == blob.BackendBolt {
			cfg.Blob.Path = "/usr/local/var/libris/data/blobs.db"
		} else {
			cfg.Blob.Path = "/usr/local/var/libris/data/blobs"
		}
	}
	if cfg.Blob.BaseURL == "" {
		cfg.Blob.BaseURL = "/blobs"
	}
	if cfg.Search.IndexPath == "" {
		cfg.Search.IndexPath = "/usr/local/var/libris/data/indices/segments"
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 1
	}
	if cfg.Ingest.SegmentSize == 0 {
		cfg.Ingest.SegmentSize = segment.DefaultSize
	}
	if cfg.Ingest.SegmentOverlap == 0 {
		cfg.Ingest.SegmentOverlap = segment.DefaultOverlap
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = ingest.DefaultMaxFileSize
	}
	if cfg.Ingest.CoverScale == 0 {
		cfg.Ingest.CoverScale = extract.DefaultCoverScale
	}
	if cfg.Inbox.Owner == "" {
		cfg.Inbox.Owner = "inbox"
	}
	if cfg.Inbox.Author == "" {
		cfg.Inbox.Author = "Unknown"
	}
	if cfg.Auth.OwnerHeader == "" {
		cfg.Auth.OwnerHeader = "X-Owner-ID"
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 1
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}
}

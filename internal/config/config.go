// Package config provides configuration loading and structs for the libris server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects the book store backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// BlobConfig selects where uploaded PDFs and covers are kept.
type BlobConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	BaseURL string `yaml:"base_url"`
}

// SearchConfig holds full-text index settings.
type SearchConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
	Fuzziness int    `yaml:"fuzziness"`
}

// EnabledOrDefault returns whether the segment index is used; defaults to true when unset.
func (s *SearchConfig) EnabledOrDefault() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// IngestConfig holds segmentation and upload limits.
type IngestConfig struct {
	SegmentSize    int     `yaml:"segment_size"`
	SegmentOverlap int     `yaml:"segment_overlap"`
	MaxFileSize    int64   `yaml:"max_file_size"`
	CoverScale     float64 `yaml:"cover_scale"`
}

// InboxConfig enables the drop-folder importer when Directory is set.
type InboxConfig struct {
	Directory string `yaml:"directory"`
	Owner     string `yaml:"owner"`
	Author    string `yaml:"author"`
}

// AuthConfig names the request header that carries the caller's owner id.
type AuthConfig struct {
	OwnerHeader string `yaml:"owner_header"`
}

// RateLimitConfig is the per-owner upload budget.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := finish(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists: environment
// overrides on top of defaults, with "./" paths resolved against the working directory.
func Default() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	var cfg Config
	if err := finish(&cfg, cwd); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config, baseDir string) error {
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return err
	}
	ApplyDefaults(cfg)

	cfg.Storage.SQLitePath = expandPath(cfg.Storage.SQLitePath, baseDir)
	cfg.Blob.Path = expandPath(cfg.Blob.Path, baseDir)
	cfg.Search.IndexPath = expandPath(cfg.Search.IndexPath, baseDir)
	if cfg.Inbox.Directory != "" {
		cfg.Inbox.Directory = expandPath(cfg.Inbox.Directory, baseDir)
	}
	return nil
}

// applyEnv overrides file values with LIBRIS_* variables. Secrets such as the Mongo URI
// are expected to come from the environment rather than the file.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LIBRIS_STORAGE_BACKEND": &cfg.Storage.Backend,
		"LIBRIS_SQLITE_PATH":     &cfg.Storage.SQLitePath,
		"LIBRIS_MONGO_URI":       &cfg.Storage.MongoURI,
		"LIBRIS_MONGO_DATABASE":  &cfg.Storage.MongoDatabase,
		"LIBRIS_BLOB_BACKEND":    &cfg.Blob.Backend,
		"LIBRIS_BLOB_PATH":       &cfg.Blob.Path,
		"LIBRIS_HOST":            &cfg.Server.Host,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("LIBRIS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LIBRIS_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("LIBRIS_DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LIBRIS_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

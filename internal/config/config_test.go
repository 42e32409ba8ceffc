package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  sqlite_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.SQLitePath == "" {
		t.Error("sqlite_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("storage backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Blob.Backend != "disk" || cfg.Blob.BaseURL != "/blobs" {
		t.Errorf("unexpected blob config: %+v", cfg.Blob)
	}
	if cfg.Ingest.SegmentSize != 500 || cfg.Ingest.SegmentOverlap != 50 {
		t.Errorf("segment window = %d/%d, want 500/50", cfg.Ingest.SegmentSize, cfg.Ingest.SegmentOverlap)
	}
	if cfg.Ingest.MaxFileSize != 50<<20 {
		t.Errorf("max_file_size = %d", cfg.Ingest.MaxFileSize)
	}
	if cfg.Auth.OwnerHeader != "X-Owner-ID" {
		t.Errorf("owner header = %q", cfg.Auth.OwnerHeader)
	}
	if !cfg.Search.EnabledOrDefault() {
		t.Error("search should be enabled by default")
	}
	if cfg.Inbox.Directory != "" {
		t.Errorf("inbox should be disabled by default, got %q", cfg.Inbox.Directory)
	}
}

func TestLoad_boltBlobDefaultPath(t *testing.T) {
	path := writeConfig(t, "blob:\n  backend: bolt\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(cfg.Blob.Path) != ".db" {
		t.Errorf("bolt blob path = %q, want a .db file", cfg.Blob.Path)
	}
}

func TestLoad_searchDisabled(t *testing.T) {
	path := writeConfig(t, "search:\n  enabled: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.EnabledOrDefault() {
		t.Error("search should be disabled when set to false")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  sqlite_path: "./data/db/books.db"
blob:
  path: "./data/blobs"
search:
  index_path: "./data/indices/segments"
inbox:
  directory: "./inbox"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string][2]string{
		"sqlite_path": {cfg.Storage.SQLitePath, filepath.Join(dir, "data", "db", "books.db")},
		"blob.path":   {cfg.Blob.Path, filepath.Join(dir, "data", "blobs")},
		"index_path":  {cfg.Search.IndexPath, filepath.Join(dir, "data", "indices", "segments")},
		"inbox":       {cfg.Inbox.Directory, filepath.Join(dir, "inbox")},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %s, want %s", name, c[0], c[1])
		}
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("LIBRIS_MONGO_URI", "mongodb://db.internal:27017")
	t.Setenv("LIBRIS_STORAGE_BACKEND", "mongo")
	t.Setenv("LIBRIS_PORT", "9100")
	path := writeConfig(t, `
server:
  port: 8000
storage:
  backend: sqlite
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.MongoURI != "mongodb://db.internal:27017" {
		t.Errorf("mongo uri = %q", cfg.Storage.MongoURI)
	}
	if cfg.Storage.Backend != "mongo" {
		t.Errorf("backend = %q, want mongo", cfg.Storage.Backend)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
}

func TestLoad_invalidEnvPort(t *testing.T) {
	t.Setenv("LIBRIS_PORT", "eighty")
	path := writeConfig(t, "debug: false\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric LIBRIS_PORT")
	}
}

func TestDefault_appliesEnv(t *testing.T) {
	dir := t.TempDir()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIBRIS_STORAGE_BACKEND", "mongo")
	t.Setenv("LIBRIS_MONGO_URI", "mongodb://db:27017")
	t.Setenv("LIBRIS_PORT", "9999")
	t.Setenv("LIBRIS_SQLITE_PATH", "./local.db")

	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != "mongo" || cfg.Storage.MongoURI != "mongodb://db:27017" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Storage.MongoDatabase == "" || cfg.Blob.Path == "" {
		t.Error("defaults should still be applied")
	}
	cwd, _ := os.Getwd()
	if want := filepath.Join(cwd, "local.db"); cfg.Storage.SQLitePath != want {
		t.Errorf("sqlite path = %s, want %s", cfg.Storage.SQLitePath, want)
	}
}

func TestDefault_invalidEnvPort(t *testing.T) {
	t.Setenv("LIBRIS_PORT", "eighty")
	if _, err := Default(); err == nil {
		t.Fatal("expected error for non-numeric LIBRIS_PORT")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

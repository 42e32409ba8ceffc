package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/config"
	"github.com/hyperjump/libris/internal/extract/pdftest"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"cashflow quadrant", "-limit", "5"},
			expected: []string{"-limit", "5", "cashflow quadrant"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "cashflow quadrant"},
			expected: []string{"-limit", "5", "cashflow quadrant"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"cashflow quadrant"},
			expected: []string{"cashflow quadrant"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "file then flags",
			args:     []string{"book.pdf", "-author", "Robert Kiyosaki"},
			expected: []string{"-author", "Robert Kiyosaki", "book.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"cashflow"}, "cashflow"},
		{"multiple words", []string{"rich", "dad"}, "rich dad"},
		{"single quoted phrase", []string{"rich dad"}, "rich dad"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestTitleFromPath(t *testing.T) {
	tests := map[string]string{
		"/books/Rich Dad Poor Dad.pdf": "Rich Dad Poor Dad",
		"cashflow_quadrant.PDF":        "cashflow quadrant",
		"notes":                        "notes",
	}
	for path, want := range tests {
		if got := titleFromPath(path); got != want {
			t.Errorf("titleFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  sqlite_path: "./libris.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_defaultsOnlyHonorsEnv(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("default config path exists on this machine")
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIBRIS_STORAGE_BACKEND", "mongo")
	t.Setenv("LIBRIS_MONGO_URI", "mongodb://db:27017")
	t.Setenv("LIBRIS_PORT", "9999")

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Storage.Backend != "mongo" || cfg.Storage.MongoURI != "mongodb://db:27017" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{SQLitePath: filepath.Join(dir, "libris.db")},
		Blob:    config.BlobConfig{Backend: "bolt", Path: filepath.Join(dir, "blobs.db")},
		Search:  config.SearchConfig{IndexPath: filepath.Join(dir, "index")},
		Ingest:  config.IngestConfig{SegmentSize: 100, SegmentOverlap: 10},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitializeComponents_ingestAndReindex(t *testing.T) {
	cfg := testConfig(t)
	components, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()

	pdf := pdftest.Build(pdftest.Lines(pdftest.Words("word", 250), 10))
	ctx := context.Background()
	res, err := components.Coordinator.Ingest(ctx, &ingest.Request{
		OwnerID: defaultOwner,
		Title:   "Wired Together",
		Author:  "Someone",
		PDF:     pdf,
		File:    models.FileMeta{Name: "wired.pdf", Size: int64(len(pdf)), ContentType: "application/pdf"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != ingest.StatusCreated || res.Book.TotalSegments != 3 {
		t.Fatalf("unexpected result: %s, %d segments", res.Status, res.Book.TotalSegments)
	}

	n, err := components.Library.Reindex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reindexed %d books, want 1", n)
	}
	if err := components.Storage.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestInitializeComponents_searchDisabled(t *testing.T) {
	cfg := testConfig(t)
	disabled := false
	cfg.Search.Enabled = &disabled
	components, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()
	if components.Index != nil {
		t.Error("index should not be opened when search is disabled")
	}
	if _, err := components.Library.Reindex(context.Background()); err == nil {
		t.Error("reindex should fail without an index")
	}
}

func TestInitializeComponents_badSegmentWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingest.SegmentOverlap = cfg.Ingest.SegmentSize
	if _, err := initializeComponents(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for overlap >= size")
	}
}

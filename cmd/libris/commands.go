package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/cli"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
	"github.com/hyperjump/libris/internal/search"
	"github.com/hyperjump/libris/internal/slug"
)

const defaultOwner = "cli"

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseFormat(s)
	if err != nil {
		fail("%v", err)
	}
	return f
}

// titleFromPath derives a book title from a file name: the extension is dropped
// and underscores become spaces.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
}

// buildQuery joins all positional args with spaces so multi-word arguments
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument, so "libris search cashflow -limit 5" would otherwise
// leave -limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	title := fs.String("title", "", "book title (default: file name without extension)")
	author := fs.String("author", "", "book author")
	persona := fs.String("persona", "", "persona the book is attached to")
	owner := fs.String("owner", defaultOwner, "owner id")
	coverPath := fs.String("cover", "", "cover image file (png, jpeg or webp)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fail("Usage: libris ingest [flags] <file.pdf>")
	}
	path := fs.Arg(0)
	format := outputFormat(*output)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		fail("Failed to read %s: %v", path, err)
	}
	var coverData []byte
	if *coverPath != "" {
		if coverData, err = os.ReadFile(*coverPath); err != nil {
			fail("Failed to read cover %s: %v", *coverPath, err)
		}
	}
	if *title == "" {
		*title = titleFromPath(path)
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	res, err := components.Coordinator.Ingest(context.Background(), &ingest.Request{
		OwnerID: *owner,
		Title:   *title,
		Author:  *author,
		Persona: *persona,
		PDF:     data,
		Cover:   coverData,
		File: models.FileMeta{
			Name:        filepath.Base(path),
			Size:        int64(len(data)),
			ContentType: mimetype.Detect(data).String(),
		},
	})
	if err != nil {
		fail("Ingestion failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	offset := fs.Int("offset", 0, "number of books to skip")
	limit := fs.Int("limit", 20, "number of books to list (max 100)")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	books, err := components.Library.ListBooks(context.Background(), *offset, *limit)
	if err != nil {
		fail("List failed: %v", err)
	}
	if err := cli.WriteBooks(os.Stdout, books, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = search the local index directly)")
	owner := fs.String("owner", defaultOwner, "owner id sent to the server")
	book := fs.String("book", "", "restrict results to one book slug")
	limit := fs.Int("limit", 10, "number of results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fail("Usage: libris search [flags] <query>")
	}
	format := outputFormat(*output)
	query := &models.SearchQuery{
		Query:        queryStr,
		BookSlug:     *book,
		Limit:        *limit,
		FuzzyEnabled: *fuzzy,
	}

	var response *models.SearchResponse
	var err error
	if *serverURL != "" {
		// The server holds the index lock, so go through its API while it runs.
		response, err = searchViaHTTP(*serverURL, *owner, query)
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		if !cfg.Search.EnabledOrDefault() {
			fail("Search is disabled in config")
		}
		idx, openErr := search.NewIndex(cfg.Search.IndexPath, cfg.Search.Fuzziness)
		if openErr != nil {
			fail("Failed to open search index: %v", openErr)
		}
		defer idx.Close()
		response, err = search.NewEngine(idx).Search(context.Background(), query)
	}
	if err != nil {
		fail("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL, owner string, query *models.SearchQuery) (*models.SearchResponse, error) {
	params := url.Values{}
	params.Set("q", query.Query)
	if query.BookSlug != "" {
		params.Set("book", query.BookSlug)
	}
	params.Set("limit", strconv.Itoa(query.Limit))
	params.Set("fuzzy", strconv.FormatBool(query.FuzzyEnabled))

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Owner-ID", owner)
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runSlug() {
	title := buildQuery(os.Args[2:])
	if title == "" {
		fail("Usage: libris slug <title>")
	}
	s := slug.Make(title)
	if s == "" {
		fail("Title %q produces an empty slug", title)
	}
	fmt.Println(s)
}

func runSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	size := fs.Int("size", 0, "words per segment (default from config)")
	overlap := fs.Int("overlap", -1, "words shared by consecutive segments (default from config)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fail("Usage: libris segment [flags] <file.pdf>")
	}
	format := outputFormat(*output)
	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	if *size > 0 {
		cfg.Ingest.SegmentSize = *size
	}
	if *overlap >= 0 {
		cfg.Ingest.SegmentOverlap = *overlap
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fail("Failed to read %s: %v", fs.Arg(0), err)
	}
	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		fail("Invalid segment window: %v", err)
	}
	res, err := extractor.Extract(context.Background(), data)
	if err != nil {
		fail("Extraction failed: %v", err)
	}
	if format != cli.OutputJSON {
		fmt.Printf("%d pages, %d segments\n", res.PageCount, len(res.Segments))
	}
	if err := cli.WriteSegments(os.Stdout, res.Segments, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	n, err := components.Library.Reindex(context.Background())
	if err != nil {
		fail("Reindex failed: %v", err)
	}
	fmt.Printf("Reindexed %d book(s)\n", n)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fail("Usage: libris delete [flags] <slug>")
	}
	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	book, err := components.Library.DeleteBook(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Deletion failed: %v", err)
	}
	fmt.Printf("Book deleted: %s (%s)\n", book.Title, book.Slug)
}

// Package cli provides output helpers for the libris command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, hit := range response.Hits {
			fmt.Fprintf(w, "%d\t%.4f\t%s#%d\t%s\n", hit.Rank, hit.Score, hit.BookSlug, hit.SegmentIndex,
				Truncate(hit.Snippet, 80))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for _, hit := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", hit.Rank, hit.Score)
		fmt.Fprintf(w, "Book: %s (%s)\n", hit.BookTitle, hit.BookSlug)
		if hit.PageNumber != nil {
			fmt.Fprintf(w, "Segment: %d | Page: %d\n", hit.SegmentIndex, *hit.PageNumber)
		} else {
			fmt.Fprintf(w, "Segment: %d\n", hit.SegmentIndex)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(hit.Snippet, 240))
	}
}

// WriteBooks writes a book listing.
func WriteBooks(w io.Writer, books []*models.Book, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, books)
	case OutputCompact:
		for _, b := range books {
			fmt.Fprintf(w, "%s\t%s\t%d\n", b.Slug, b.Title, b.TotalSegments)
		}
		return nil
	default:
		if len(books) == 0 {
			fmt.Fprintln(w, "No books.")
			return nil
		}
		for _, b := range books {
			writeBook(w, b)
		}
		return nil
	}
}

func writeBook(w io.Writer, b *models.Book) {
	fmt.Fprintf(w, "%s\n", b.Title)
	fmt.Fprintf(w, "  slug:      %s\n", b.Slug)
	fmt.Fprintf(w, "  author:    %s\n", b.Author)
	if b.Persona != "" {
		fmt.Fprintf(w, "  persona:   %s\n", b.Persona)
	}
	fmt.Fprintf(w, "  segments:  %d\n", b.TotalSegments)
	fmt.Fprintf(w, "  size:      %d bytes\n", b.FileSize)
	fmt.Fprintf(w, "  created:   %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
}

// WriteIngestResult reports the outcome of one upload.
func WriteIngestResult(w io.Writer, res *ingest.Result, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	switch res.Status {
	case ingest.StatusAlreadyExists:
		fmt.Fprintf(w, "Already exists: %s (%s)\n", res.Book.Title, res.Book.Slug)
	default:
		fmt.Fprintf(w, "Created: %s (%s), %d segments\n", res.Book.Title, res.Book.Slug, res.Book.TotalSegments)
	}
	return nil
}

// WriteSegments writes text segments, e.g. the output of the segment command.
func WriteSegments(w io.Writer, segs []models.TextSegment, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, segs)
	default:
		for _, s := range segs {
			page := "-"
			if s.PageNumber != nil {
				page = fmt.Sprint(*s.PageNumber)
			}
			fmt.Fprintf(w, "[%d] page=%s words=%d\t%s\n", s.SegmentIndex, page, s.WordCount, TruncateWords(s.Text, 12))
		}
		return nil
	}
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

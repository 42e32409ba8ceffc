package models

import "fmt"

// SearchQuery is a full-text search over book segments.
type SearchQuery struct {
	Query        string  `json:"query"`
	BookSlug     string  `json:"book,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	FuzzyEnabled bool    `json:"fuzzy_enabled,omitempty"`
	MinScore     float64 `json:"min_score,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes limit.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// SearchHit is one matching segment.
type SearchHit struct {
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	BookID       string  `json:"book_id"`
	BookSlug     string  `json:"book_slug"`
	BookTitle    string  `json:"book_title"`
	SegmentID    string  `json:"segment_id"`
	SegmentIndex int     `json:"segment_index"`
	PageNumber   *int    `json:"page_number,omitempty"`
	Snippet      string  `json:"snippet"`
}

// SearchResponse is the response for a segment search.
type SearchResponse struct {
	Query     string       `json:"query"`
	Hits      []*SearchHit `json:"hits"`
	Total     int          `json:"total"`
	QueryTime int64        `json:"query_time_ms"`
}

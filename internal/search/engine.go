package search

import (
	"context"
	"time"

	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/models"
)

// snippetLength is the rune budget for snippets built without a highlighted fragment.
const snippetLength = 240

// Engine answers SearchQuery requests against the segment index.
type Engine struct {
	index *Index
}

// NewEngine creates a search engine over index.
func NewEngine(index *Index) *Engine {
	return &Engine{index: index}
}

// Search validates query, runs it and returns ranked segment hits.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, liberrors.Validation(err.Error())
	}

	hits, total, err := e.index.Search(ctx, query.Query, query.BookSlug, query.Limit, query.FuzzyEnabled)
	if err != nil {
		return nil, liberrors.Internal("search failed", err)
	}

	response := &models.SearchResponse{
		Query: query.Query,
		Hits:  make([]*models.SearchHit, 0, len(hits)),
		Total: int(total),
	}
	for _, h := range hits {
		if query.MinScore > 0 && h.Score < query.MinScore {
			continue
		}
		snippet := h.Fragment
		if snippet == "" {
			snippet = Highlight(h.Content, snippetLength)
		}
		response.Hits = append(response.Hits, &models.SearchHit{
			Rank:         len(response.Hits) + 1,
			Score:        h.Score,
			BookID:       h.BookID,
			BookSlug:     h.BookSlug,
			BookTitle:    h.BookTitle,
			SegmentID:    h.SegmentID,
			SegmentIndex: h.SegmentIndex,
			PageNumber:   h.PageNumber,
			Snippet:      snippet,
		})
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

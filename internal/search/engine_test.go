package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/models"
)

func TestEngine_Search(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	book, segs := bookWithSegments("b1", "the-hobbit",
		"In a hole in the ground there lived a hobbit.",
		"The hobbit went on an unexpected journey.",
		"Dwarves sang about gold.",
	)
	require.NoError(t, idx.IndexBook(ctx, book, segs))

	e := NewEngine(idx)
	resp, err := e.Search(ctx, &models.SearchQuery{Query: "hobbit"})
	require.NoError(t, err)

	assert.Equal(t, "hobbit", resp.Query)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, 1, resp.Hits[0].Rank)
	assert.Equal(t, 2, resp.Hits[1].Rank)
	assert.Equal(t, "the hobbit", resp.Hits[0].BookTitle)
	assert.Contains(t, resp.Hits[0].Snippet, "<mark>hobbit</mark>")
}

func TestEngine_EmptyQuery(t *testing.T) {
	e := NewEngine(newTestIndex(t))
	_, err := e.Search(context.Background(), &models.SearchQuery{})
	require.Error(t, err)
	assert.Equal(t, liberrors.CodeValidation, liberrors.CodeOf(err))
}

func TestEngine_MinScore(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	book, segs := bookWithSegments("b1", "book", "alpha beta", "alpha")
	require.NoError(t, idx.IndexBook(ctx, book, segs))

	resp, err := NewEngine(idx).Search(ctx, &models.SearchQuery{Query: "alpha", MinScore: 1e9})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
}

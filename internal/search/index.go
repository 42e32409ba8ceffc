// Package search provides full-text search over book segments.
package search

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/libris/internal/models"
)

const (
	batchSize        = 500
	defaultFuzziness = 1
)

// segmentDoc is the indexed form of a BookSegment.
type segmentDoc struct {
	BookID       string `json:"book_id"`
	BookSlug     string `json:"book_slug"`
	BookTitle    string `json:"book_title"`
	Content      string `json:"content"`
	SegmentIndex int    `json:"segment_index"`
	PageNumber   int    `json:"page_number"`
}

// Hit is a single matching segment.
type Hit struct {
	SegmentID    string
	BookID       string
	BookSlug     string
	BookTitle    string
	SegmentIndex int
	PageNumber   *int
	Score        float64
	Fragment     string
	Content      string
}

// Index is a Bleve index of book segments, one document per segment.
type Index struct {
	index     bleve.Index
	fuzziness int
}

// NewIndex creates or opens a Bleve index at path. An existing index is reused; after
// changing the mapping, remove the directory and run reindex.
func NewIndex(path string, fuzziness int) (*Index, error) {
	if fuzziness <= 0 || fuzziness > 2 {
		fuzziness = defaultFuzziness
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &Index{index: index, fuzziness: fuzziness}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index, fuzziness: fuzziness}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so exact words match.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("book_title", text)

	keyword := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("book_id", keyword)
	docMapping.AddFieldMappingsAt("book_slug", keyword)

	numeric := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("segment_index", numeric)
	docMapping.AddFieldMappingsAt("page_number", numeric)

	im.AddDocumentMapping("segment", docMapping)
	im.DefaultType = "segment"
	im.DefaultMapping = docMapping
	return im
}

// IndexBook adds every segment of book in batches.
func (x *Index) IndexBook(ctx context.Context, book *models.Book, segments []*models.BookSegment) error {
	batch := x.index.NewBatch()
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := segmentDoc{
			BookID:       book.ID,
			BookSlug:     book.Slug,
			BookTitle:    book.Title,
			Content:      seg.Content,
			SegmentIndex: seg.SegmentIndex,
		}
		if seg.PageNumber != nil {
			doc.PageNumber = *seg.PageNumber
		}
		if err := batch.Index(seg.ID, doc); err != nil {
			return fmt.Errorf("failed to index segment %s: %w", seg.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := x.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to write index batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := x.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to write index batch: %w", err)
		}
	}
	return nil
}

// DeleteBook removes every segment of bookID from the index.
func (x *Index) DeleteBook(ctx context.Context, bookID string) error {
	q := bleve.NewTermQuery(bookID)
	q.SetField("book_id")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := bleve.NewSearchRequest(q)
		req.Size = batchSize
		res, err := x.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := x.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := x.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete segments: %w", err)
		}
	}
}

// Search runs a match query over segment content, optionally restricted to one book.
// With fuzzy set, each term matches within the index's edit distance.
func (x *Index) Search(ctx context.Context, query, bookSlug string, limit int, fuzzy bool) ([]*Hit, uint64, error) {
	var q blevequery.Query
	if fuzzy {
		q = buildFuzzyQuery(query, x.fuzziness, "content")
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("content")
		q = mq
	}
	if bookSlug != "" {
		tq := bleve.NewTermQuery(bookSlug)
		tq.SetField("book_slug")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := &Hit{
			SegmentID: h.ID,
			Score:     h.Score,
			BookID:    stringField(h.Fields, "book_id"),
			BookSlug:  stringField(h.Fields, "book_slug"),
			BookTitle: stringField(h.Fields, "book_title"),
			Content:   stringField(h.Fields, "content"),
		}
		hit.SegmentIndex = int(numberField(h.Fields, "segment_index"))
		if p := int(numberField(h.Fields, "page_number")); p > 0 {
			hit.PageNumber = &p
		}
		if frags := h.Fragments["content"]; len(frags) > 0 {
			hit.Fragment = frags[0]
		}
		hits = append(hits, hit)
	}
	return hits, res.Total, nil
}

// DocCount returns the number of indexed segments.
func (x *Index) DocCount() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the Bleve index.
func (x *Index) Close() error {
	return x.index.Close()
}

func stringField(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}

func numberField(fields map[string]interface{}, name string) float64 {
	f, _ := fields[name].(float64)
	return f
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term, on field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		return mq
	}
	if len(terms) == 1 {
		fq := bleve.NewFuzzyQuery(terms[0])
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		return fq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Package segment splits document text into overlapping word-bounded segments.
package segment

import (
	"strings"

	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/hyperjump/libris/internal/models"
)

const (
	// DefaultSize is the maximum number of words per segment.
	DefaultSize = 500
	// DefaultOverlap is the number of words shared by consecutive segments.
	DefaultOverlap = 50
)

// Segmenter splits text into overlapping word windows.
type Segmenter struct {
	size    int
	overlap int
}

// New returns a Segmenter for the given window size and overlap, in words.
// It fails with an INVALID_ARGUMENT error when size <= 0, overlap < 0 or overlap >= size;
// any of those would make the window never advance.
func New(size, overlap int) (*Segmenter, error) {
	if size <= 0 {
		return nil, liberrors.InvalidArgumentf("segment size must be greater than 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, liberrors.InvalidArgumentf("segment overlap must be >= 0 and < size (%d), got %d", size, overlap)
	}
	return &Segmenter{size: size, overlap: overlap}, nil
}

// Default returns a Segmenter with DefaultSize and DefaultOverlap.
func Default() *Segmenter {
	return &Segmenter{size: DefaultSize, overlap: DefaultOverlap}
}

// Split tokenizes text on whitespace and returns the ordered segments.
func (s *Segmenter) Split(text string) []models.TextSegment {
	words := strings.Fields(text)
	segs := make([]models.TextSegment, 0, s.count(len(words)))
	s.walk(len(words), func(index, start, end int) {
		segs = append(segs, models.TextSegment{
			Text:         strings.Join(words[start:end], " "),
			SegmentIndex: index,
			WordCount:    end - start,
		})
	})
	return segs
}

// SplitPages segments the pages as if they were joined with newlines, and sets each
// segment's PageNumber to the 1-based page holding the segment's first word.
func (s *Segmenter) SplitPages(pages []string) []models.TextSegment {
	var words []string
	var wordPage []int
	for i, p := range pages {
		for _, w := range strings.Fields(p) {
			words = append(words, w)
			wordPage = append(wordPage, i+1)
		}
	}
	segs := make([]models.TextSegment, 0, s.count(len(words)))
	s.walk(len(words), func(index, start, end int) {
		page := wordPage[start]
		segs = append(segs, models.TextSegment{
			Text:         strings.Join(words[start:end], " "),
			SegmentIndex: index,
			PageNumber:   &page,
			WordCount:    end - start,
		})
	})
	return segs
}

// walk emits [start, end) windows over n tokens. It stops after the window
// that reaches n, so the tail is never emitted twice.
func (s *Segmenter) walk(n int, emit func(index, start, end int)) {
	step := s.size - s.overlap
	index := 0
	for start := 0; start < n; start += step {
		end := start + s.size
		if end > n {
			end = n
		}
		emit(index, start, end)
		index++
		if end >= n {
			return
		}
	}
}

func (s *Segmenter) count(n int) int {
	if n <= s.size {
		if n == 0 {
			return 0
		}
		return 1
	}
	step := s.size - s.overlap
	return (n-s.size+step-1)/step + 1
}

// Split segments text with the given size and overlap.
func Split(text string, size, overlap int) ([]models.TextSegment, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// SplitDefault segments text with DefaultSize and DefaultOverlap.
func SplitDefault(text string) []models.TextSegment {
	return Default().Split(text)
}

// SplitPages segments pages with the given size and overlap.
func SplitPages(pages []string, size, overlap int) ([]models.TextSegment, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.SplitPages(pages), nil
}

package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
	}{
		{"empty query", &SearchQuery{Query: ""}, true},
		{"valid query", &SearchQuery{Query: "hello"}, false},
		{"sets default limit", &SearchQuery{Query: "x", Limit: 0}, false},
		{"caps limit at 100", &SearchQuery{Query: "x", Limit: 200}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if tt.query.Limit == 0 {
					t.Error("expected default limit to be set")
				}
				if tt.query.Limit > 100 {
					t.Errorf("expected limit capped at 100, got %d", tt.query.Limit)
				}
			}
		})
	}
}

func TestToBookSegments(t *testing.T) {
	page := 2
	segs := []TextSegment{
		{Text: "a b", SegmentIndex: 0, WordCount: 2},
		{Text: "b c", SegmentIndex: 1, WordCount: 2, PageNumber: &page},
	}
	n := 0
	out := ToBookSegments("book-1", "user-1", segs, func() string {
		n++
		return "seg-" + string(rune('0'+n))
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	for i, rec := range out {
		if rec.BookID != "book-1" || rec.OwnerID != "user-1" {
			t.Errorf("record %d has wrong owner/book: %+v", i, rec)
		}
		if rec.SegmentIndex != i || rec.Content != segs[i].Text || rec.WordCount != 2 {
			t.Errorf("record %d mismatch: %+v", i, rec)
		}
	}
	if out[0].PageNumber != nil || out[1].PageNumber == nil || *out[1].PageNumber != 2 {
		t.Error("page numbers should be carried through unchanged")
	}
	if out[0].ID != "seg-1" || out[1].ID != "seg-2" {
		t.Errorf("ids: %s %s", out[0].ID, out[1].ID)
	}
}

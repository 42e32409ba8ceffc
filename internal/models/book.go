// Package models defines the records persisted for books and their text segments,
// plus the transient DTOs passed between extraction and persistence.
package models

import "time"

// Book is a single uploaded book. Slug is unique and derived from Title at creation time.
type Book struct {
	ID            string    `json:"id" db:"id" bson:"_id"`
	OwnerID       string    `json:"owner_id" db:"owner_id" bson:"owner_id"`
	Title         string    `json:"title" db:"title" bson:"title"`
	Slug          string    `json:"slug" db:"slug" bson:"slug"`
	Author        string    `json:"author" db:"author" bson:"author"`
	Persona       string    `json:"persona,omitempty" db:"persona" bson:"persona,omitempty"`
	FileURL       string    `json:"file_url" db:"file_url" bson:"file_url"`
	FileBlobKey   string    `json:"file_blob_key" db:"file_blob_key" bson:"file_blob_key"`
	CoverURL      string    `json:"cover_url,omitempty" db:"cover_url" bson:"cover_url,omitempty"`
	CoverBlobKey  string    `json:"cover_blob_key,omitempty" db:"cover_blob_key" bson:"cover_blob_key,omitempty"`
	CoverBlurHash string    `json:"cover_blurhash,omitempty" db:"cover_blurhash" bson:"cover_blurhash,omitempty"`
	FileSize      int64     `json:"file_size" db:"file_size" bson:"file_size"`
	TotalSegments int64     `json:"total_segments" db:"total_segments" bson:"total_segments"`
	CreatedAt     time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// BookSegment is a persisted chunk of a book's text. (BookID, SegmentIndex) is unique.
type BookSegment struct {
	ID           string    `json:"id" db:"id" bson:"_id"`
	BookID       string    `json:"book_id" db:"book_id" bson:"book_id"`
	OwnerID      string    `json:"owner_id" db:"owner_id" bson:"owner_id"`
	Content      string    `json:"content" db:"content" bson:"content"`
	SegmentIndex int       `json:"segment_index" db:"segment_index" bson:"segment_index"`
	PageNumber   *int      `json:"page_number,omitempty" db:"page_number" bson:"page_number,omitempty"`
	WordCount    int       `json:"word_count" db:"word_count" bson:"word_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// TextSegment is produced by the segmenter and consumed by ingestion. It is never stored directly.
type TextSegment struct {
	Text         string `json:"text"`
	SegmentIndex int    `json:"segment_index"`
	PageNumber   *int   `json:"page_number,omitempty"`
	WordCount    int    `json:"word_count"`
}

// ToBookSegments converts transient segments into records owned by bookID.
func ToBookSegments(bookID, ownerID string, segs []TextSegment, newID func() string) []*BookSegment {
	out := make([]*BookSegment, len(segs))
	for i, s := range segs {
		out[i] = &BookSegment{
			ID:           newID(),
			BookID:       bookID,
			OwnerID:      ownerID,
			Content:      s.Text,
			SegmentIndex: s.SegmentIndex,
			PageNumber:   s.PageNumber,
			WordCount:    s.WordCount,
		}
	}
	return out
}

// FileMeta describes the uploaded source file.
type FileMeta struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// Runs only against a live server: LIBRIS_TEST_MONGO_URI=mongodb://localhost:27017
func newMongoTestStore(t *testing.T) *MongoStorage {
	t.Helper()
	uri := os.Getenv("LIBRIS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LIBRIS_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewMongoStorage(ctx, uri, "libris_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = store.books.Database().Drop(context.Background())
		_ = store.Close()
	})
	return store
}

func TestMongoStorage_BooksAndSegments(t *testing.T) {
	store := newMongoTestStore(t)
	ctx := context.Background()

	if err := store.CreateBook(ctx, testBook("b1", "book")); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateBook(ctx, testBook("b2", "book")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := store.InsertSegments(ctx, testSegments("b1", 3)); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateBookSegmentCount(ctx, "b1", 3); err != nil {
		t.Fatal(err)
	}

	got, err := store.FindBookBySlug(ctx, "book")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalSegments != 3 {
		t.Errorf("expected 3 segments, got %d", got.TotalSegments)
	}
	segs, err := store.GetSegments(ctx, "b1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 3 || segs[2].SegmentIndex != 2 {
		t.Errorf("unexpected segments %+v", segs)
	}

	if err := store.DeleteBook(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetBook(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	n, _ := store.CountSegments(ctx)
	if n != 0 {
		t.Errorf("expected segments deleted, got %d", n)
	}
}

func TestInsertedPrefix(t *testing.T) {
	bulk := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 2, Code: 11000}}},
	}
	if got := insertedPrefix(bulk, 5); got != 2 {
		t.Errorf("bulk write error: got %d, want 2", got)
	}
	if got := insertedPrefix(fmt.Errorf("insert: %w", bulk), 5); got != 2 {
		t.Errorf("wrapped bulk write error: got %d, want 2", got)
	}
	if got := insertedPrefix(errors.New("connection reset"), 5); got != 5 {
		t.Errorf("opaque error: got %d, want 5", got)
	}
}

func TestMongoStorage_InsertSegmentsRemovesPartialInsert(t *testing.T) {
	store := newMongoTestStore(t)
	ctx := context.Background()

	if err := store.InsertSegments(ctx, testSegments("other", 1)); err != nil {
		t.Fatal(err)
	}
	segs := testSegments("b1", 3)
	// The third document collides with the segment already stored.
	segs[2].ID = "other-s0"
	if err := store.InsertSegments(ctx, segs); err == nil {
		t.Fatal("expected duplicate key error")
	}

	got, err := store.GetSegments(ctx, "b1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected partial insert removed, got %d segments", len(got))
	}
	if others, _ := store.GetSegments(ctx, "other", 0, 0); len(others) != 1 {
		t.Errorf("pre-existing segment should survive, got %d", len(others))
	}
}

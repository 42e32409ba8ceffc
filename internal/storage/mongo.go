package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hyperjump/libris/internal/models"
)

const (
	booksCollection    = "books"
	segmentsCollection = "book_segments"
)

// MongoStorage implements Storage on MongoDB. Uniqueness of book slugs and of
// (book_id, segment_index) is enforced by unique indexes created on open.
type MongoStorage struct {
	client   *mongo.Client
	books    *mongo.Collection
	segments *mongo.Collection
}

// NewMongoStorage connects to uri, selects database and ensures indexes exist.
func NewMongoStorage(ctx context.Context, uri, database string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStorage{
		client:   client,
		books:    db.Collection(booksCollection),
		segments: db.Collection(segmentsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := s.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.segments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "book_id", Value: 1}, {Key: "segment_index", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func mapMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%v: %w", err, ErrDuplicate)
	default:
		return err
	}
}

// CreateBook inserts a book. A slug already in use yields ErrDuplicate.
func (s *MongoStorage) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	book.CreatedAt = now
	book.UpdatedAt = now
	_, err := s.books.InsertOne(ctx, book)
	return mapMongoErr(err)
}

// GetBook returns a book by ID.
func (s *MongoStorage) GetBook(ctx context.Context, id string) (*models.Book, error) {
	return s.findBook(ctx, bson.M{"_id": id})
}

// FindBookBySlug returns the book with the given slug.
func (s *MongoStorage) FindBookBySlug(ctx context.Context, slug string) (*models.Book, error) {
	return s.findBook(ctx, bson.M{"slug": slug})
}

func (s *MongoStorage) findBook(ctx context.Context, filter bson.M) (*models.Book, error) {
	var book models.Book
	if err := s.books.FindOne(ctx, filter).Decode(&book); err != nil {
		return nil, mapMongoErr(err)
	}
	return &book, nil
}

// ListBooks returns books newest first.
func (s *MongoStorage) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.books.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var books []*models.Book
	if err := cur.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// UpdateBookSegmentCount sets total_segments for a book.
func (s *MongoStorage) UpdateBookSegmentCount(ctx context.Context, id string, count int64) error {
	res, err := s.books.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"total_segments": count,
		"updated_at":     time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book and its segments.
func (s *MongoStorage) DeleteBook(ctx context.Context, id string) error {
	if err := s.DeleteSegmentsByBookID(ctx, id); err != nil {
		return err
	}
	res, err := s.books.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertSegments inserts all segments in one ordered bulk write. InsertMany is not
// atomic, so on failure the documents written before the error are removed again.
func (s *MongoStorage) InsertSegments(ctx context.Context, segments []*models.BookSegment) error {
	if len(segments) == 0 {
		return nil
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, len(segments))
	for i, seg := range segments {
		seg.CreatedAt = now
		seg.UpdatedAt = now
		docs[i] = seg
	}
	_, err := s.segments.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if cleanupErr := s.removePartialInsert(ctx, segments, insertedPrefix(err, len(segments))); cleanupErr != nil {
		return fmt.Errorf("%w (cleanup of partial insert failed: %v)", mapMongoErr(err), cleanupErr)
	}
	return mapMongoErr(err)
}

// insertedPrefix reports how many documents of an ordered InsertMany were written
// before err. Without per-document detail every document is assumed written.
func insertedPrefix(err error, n int) int {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		return bwe.WriteErrors[0].Index
	}
	return n
}

func (s *MongoStorage) removePartialInsert(ctx context.Context, segments []*models.BookSegment, n int) error {
	if n <= 0 {
		return nil
	}
	ids := make([]string, n)
	for i, seg := range segments[:n] {
		ids[i] = seg.ID
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_, err := s.segments.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

// GetSegments returns segments of a book ordered by segment_index. A limit <= 0 returns all.
func (s *MongoStorage) GetSegments(ctx context.Context, bookID string, offset, limit int) ([]*models.BookSegment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "segment_index", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.segments.Find(ctx, bson.M{"book_id": bookID}, opts)
	if err != nil {
		return nil, err
	}
	var segments []*models.BookSegment
	if err := cur.All(ctx, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// DeleteSegmentsByBookID removes all segments for a book.
func (s *MongoStorage) DeleteSegmentsByBookID(ctx context.Context, bookID string) error {
	_, err := s.segments.DeleteMany(ctx, bson.M{"book_id": bookID})
	return err
}

// CountBooks returns the total number of books.
func (s *MongoStorage) CountBooks(ctx context.Context) (int64, error) {
	return s.books.CountDocuments(ctx, bson.M{})
}

// CountSegments returns the total number of segments.
func (s *MongoStorage) CountSegments(ctx context.Context) (int64, error) {
	return s.segments.CountDocuments(ctx, bson.M{})
}

// Ping verifies the server is reachable.
func (s *MongoStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

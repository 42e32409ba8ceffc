package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	dataBucket = []byte("blobs")
	typeBucket = []byte("content_types")
)

// BoltStore keeps all blobs in a single bbolt database file.
type BoltStore struct {
	db      *bolt.DB
	baseURL string
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path, baseURL string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("blob database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for blob database: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{dataBucket, typeBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db, baseURL: baseURL}, nil
}

// Put stores data under a new key.
func (s *BoltStore) Put(ctx context.Context, name string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := NewKey(name)
	if err != nil {
		return nil, err
	}
	contentType = detectContentType(data, contentType)

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(dataBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(typeBucket).Put([]byte(key), []byte(contentType))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	return &Object{
		Key:         key,
		URL:         urlFor(s.baseURL, key),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Get returns a copy of the blob stored under key.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction.
		data = append([]byte(nil), v...)
		contentType = string(tx.Bucket(typeBucket).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// Delete removes the blob stored under key.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(typeBucket).Delete([]byte(key))
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	SQLitePath string
	MongoURI   string
	MongoDB    string
}

// Open returns an Opener for the configured backend, for use with NewLazy.
func Open(opts Options) (Opener, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return func(context.Context) (Storage, error) {
			return NewSQLiteStorage(opts.SQLitePath)
		}, nil
	case BackendMongo:
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo backend requires a uri")
		}
		return func(ctx context.Context) (Storage, error) {
			return NewMongoStorage(ctx, opts.MongoURI, opts.MongoDB)
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

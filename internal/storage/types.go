package storage

import (
	"context"
	"errors"
	"time"

	"schedbot/internal/post"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNoID     = errors.New("storage: id is required")
)

// Config configures storage.
//
// Driver values: "sqlite" (default), "postgres", "memory".
type Config struct {
	Driver      string
	Path        string        // sqlite file
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int           // postgres pool size; 0 means pgx default
}

// Store is the full persistence surface of the service.
type Store interface {
	post.Store
	post.History
	post.Admin
	Close() error
}

// Pinger is implemented by stores backed by a network database.
type Pinger interface {
	Ping(ctx context.Context) error
}

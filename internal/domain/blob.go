package domain

import (
	"context"
	"io"
	"time"
)

// BlobReader reads objects by key. A missing key reports ErrNotFound from
// Get and false from Exists.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// BlobWriter stores objects by key.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error
}

// Archiver copies persisted history for [since, until) to cold storage and
// returns how many entries it wrote.
type Archiver interface {
	ArchiveHistory(ctx context.Context, since, until time.Time) (int64, error)
}

// Package storage provides the byte store behind uploaded chunks, file
// versions and thumbnails. Keys are opaque slash-separated strings; the
// helpers in keys.go define the namespaces used by the server.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/homecloud/internal/server/config"
)

// ErrNotFound is returned by Get and Exists callers when a key has no blob.
// It is never replaced by an empty reader.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a flat key/value blob store.
//
// Put streams r to key, replacing any existing blob. size is the expected
// length in bytes or -1 when unknown; a short or long stream fails the write
// and leaves the previous blob untouched.
//
// Delete of a missing key succeeds. List returns every key that starts with
// prefix, in lexical order.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		return NewLocalBackend(cfg.LocalStorageRoot)
	case config.StorageS3:
		return NewS3Backend(ctx, S3Options{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ErrSizeMismatch fails a Put whose stream is not exactly the declared size.
var ErrSizeMismatch = errors.New("storage: stream length does not match declared size")

// sizeCheckingReader fails with ErrSizeMismatch when the wrapped stream is
// not exactly want bytes long.
type sizeCheckingReader struct {
	r    io.Reader
	want int64
	n    int64
}

func (s *sizeCheckingReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	if s.n > s.want {
		return n, ErrSizeMismatch
	}
	if err == io.EOF && s.n != s.want {
		return n, ErrSizeMismatch
	}
	return n, err
}

func limitStream(r io.Reader, size int64) io.Reader {
	if size < 0 {
		return r
	}
	return &sizeCheckingReader{r: r, want: size}
}

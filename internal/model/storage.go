package model

import (
	"context"
	"io"
)

// BlobStore keeps uploaded file bytes outside of the dump store.
// Delete returns ErrBlobNotFound when the named blob is already gone.
type BlobStore interface {
	Put(ctx context.Context, name string, reader io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/dtroode/ttldump/internal/model"
)

var _ model.BlobStore = (*BlobStore)(nil)

// BlobStore is an in-memory model.BlobStore for tests.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string

	PutErr    error
	DeleteErr error
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs: make(map[string][]byte),
		types: make(map[string]string),
	}
}

func (s *BlobStore) Put(_ context.Context, name string, reader io.Reader, _ int64, contentType string) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = data
	s.types[name] = contentType
	return nil
}

func (s *BlobStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, model.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *BlobStore) Delete(_ context.Context, name string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return model.ErrBlobNotFound
	}
	delete(s.blobs, name)
	delete(s.types, name)
	return nil
}

// Names returns the stored blob names.
func (s *BlobStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	return names
}

// ContentType returns the content type recorded for name.
func (s *BlobStore) ContentType(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[name]
}

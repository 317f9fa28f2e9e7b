package blobsvc

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

// MemoryStore keeps the uploaded objects in memory. Used in development and tests.
type MemoryStore struct {
	bucket  string
	baseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

var _ core.BlobStore = (*MemoryStore)(nil)

func NewMemoryStore(bucket, baseURL string) *MemoryStore {
	return &MemoryStore{bucket: bucket, baseURL: baseURL, objects: make(map[string][]byte)}
}

func (s *MemoryStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (core.BlobHandle, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return core.BlobHandle{}, errors.Wrap(err, "reading content")
	}
	if size >= 0 && int64(len(content)) != size {
		return core.BlobHandle{}, errors.Errorf("read %d bytes, expected %d", len(content), size)
	}

	s.mu.Lock()
	s.objects[path] = content
	s.mu.Unlock()
	return core.BlobHandle{Bucket: s.bucket, Key: path, Size: int64(len(content)), ContentType: contentType}, nil
}

func (s *MemoryStore) PublicURL(h core.BlobHandle) string {
	return objectURL(s.baseURL, h)
}

// Object returns the content stored at path.
func (s *MemoryStore) Object(path string) (io.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.objects[path]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(content), true
}

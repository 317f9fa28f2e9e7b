package core

import (
	"context"
	"io"
)

// BlobHandle identifies an uploaded object.
type BlobHandle struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// BlobStore stores uploaded course content (videos, pdfs..).
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (BlobHandle, error)
	PublicURL(h BlobHandle) string
}

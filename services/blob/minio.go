// Package blobsvc stores the uploaded course content.
package blobsvc

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  core.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

var _ core.BlobStore = (*MinioStore)(nil)

func NewMinioStore(conf *core.Config, logger core.Logger) (*MinioStore, error) {
	client, err := minio.New(conf.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.Minio.AccessKey, conf.Minio.SecretKey, ""),
		Secure: conf.Minio.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating MinIO client")
	}

	scheme := "http"
	if conf.Minio.UseSSL {
		scheme = "https"
	}
	return &MinioStore{
		client:  client,
		bucket:  conf.Minio.Bucket,
		baseURL: scheme + "://" + conf.Minio.Endpoint,
		logger:  logger,
	}, nil
}

// ensureBucket creates the bucket on first use.
func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return core.NewRemoteError("checking bucket", err)
	}
	if !exists {
		if err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return core.NewRemoteError("creating bucket", err)
		}
		s.logger.Info("created bucket " + s.bucket)
	}
	s.bucketEnsured = true
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (core.BlobHandle, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return core.BlobHandle{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return core.BlobHandle{}, core.NewRemoteError("uploading "+path, err)
	}
	s.logger.Debug("uploaded "+path, map[string]interface{}{"etag": info.ETag, "size": info.Size})
	return core.BlobHandle{Bucket: s.bucket, Key: path, Size: info.Size, ContentType: contentType}, nil
}

func (s *MinioStore) PublicURL(h core.BlobHandle) string {
	return objectURL(s.baseURL, h)
}

func objectURL(baseURL string, h core.BlobHandle) string {
	segments := strings.Split(h.Key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + url.PathEscape(h.Bucket) + "/" + strings.Join(segments, "/")
}

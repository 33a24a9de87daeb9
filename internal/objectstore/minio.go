// Package objectstore wraps S3-compatible object storage for large archive
// uploads. Clients push archive parts through the multipart handshake and the
// ingestion runner pulls completed objects back down for processing.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/electrohub/askveeva/internal/config"
)

// Part identifies one uploaded part of a multipart upload.
type Part struct {
	Number int    `json:"number"`
	ETag   string `json:"etag"`
}

// Store provides multipart upload and retrieval of archive objects.
type Store struct {
	core   *minio.Core
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg *config.ObjectStoreConfig) (*Store, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store: %w", err)
	}

	exists, err := core.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := core.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Store{core: core, bucket: cfg.Bucket}, nil
}

// CreateMultipartUpload starts a multipart upload for object and returns the
// upload ID clients use for subsequent part uploads.
func (s *Store) CreateMultipartUpload(ctx context.Context, object string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, object, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("failed to start multipart upload: %w", err)
	}
	return uploadID, nil
}

// UploadPart streams one part of a multipart upload. Part numbers start at 1.
func (s *Store) UploadPart(ctx context.Context, object, uploadID string, partNumber int, r io.Reader, size int64) (*Part, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, object, uploadID, partNumber, r, size, minio.PutObjectPartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	return &Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

// CompleteMultipartUpload finalizes the upload from its parts.
func (s *Store) CompleteMultipartUpload(ctx context.Context, object, uploadID string, parts []*Part) error {
	sorted := make([]*Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	complete := make([]minio.CompletePart, len(sorted))
	for i, p := range sorted {
		complete[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}
	if _, err := s.core.CompleteMultipartUpload(ctx, s.bucket, object, uploadID, complete, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// AbortMultipartUpload discards an in-progress upload and its parts.
func (s *Store) AbortMultipartUpload(ctx context.Context, object, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, object, uploadID); err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

// DownloadToFile fetches object into the local path.
func (s *Store) DownloadToFile(ctx context.Context, object, path string) error {
	if err := s.core.Client.FGetObject(ctx, s.bucket, object, path, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", object, err)
	}
	return nil
}

// RemoveObject deletes object from the bucket.
func (s *Store) RemoveObject(ctx context.Context, object string) error {
	return s.core.Client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{})
}

package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/CleanOps/internal/config"
)

// Storage wraps MinIO/S3 interactions for evidence photos and exported reports.
type Storage struct {
	client       *minio.Client
	photoBucket  string
	exportBucket string
	region       string
	publicBase   string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	publicBase := cfg.PublicAssetBase
	if publicBase == "" {
		publicBase = client.EndpointURL().String()
	}
	return &Storage{
		client:       client,
		photoBucket:  cfg.PhotoBucket,
		exportBucket: cfg.ExportBucket,
		region:       cfg.S3Region,
		publicBase:   strings.TrimRight(publicBase, "/"),
	}, nil
}

// EnsureBuckets makes sure the photo/export buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.photoBucket, s.exportBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// PutPhoto uploads an evidence photo and returns the URL it is served from.
// The photo bucket is expected to allow anonymous reads.
func (s *Storage) PutPhoto(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.photoBucket, objectKey, reader, size, opts); err != nil {
		return "", fmt.Errorf("upload photo object: %w", err)
	}
	return s.PhotoURL(objectKey), nil
}

// PhotoURL is the public address of a photo object.
func (s *Storage) PhotoURL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.photoBucket, objectKey)
}

// UploadExport stores a rendered report PDF in the export bucket.
func (s *Storage) UploadExport(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	_, err := s.client.PutObject(ctx, s.exportBucket, objectKey, reader, int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload export object: %w", err)
	}
	return nil
}

// DownloadExport fetches an exported PDF.
func (s *Storage) DownloadExport(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.exportBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get export object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read export object: %w", err)
	}
	return buf, nil
}

// PresignExportURL returns a signed GET URL for an exported PDF.
func (s *Storage) PresignExportURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", objectKeyBase(objectKey)))
	u, err := s.client.PresignedGetObject(ctx, s.exportBucket, objectKey, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign export object: %w", err)
	}
	return u.String(), nil
}

func objectKeyBase(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

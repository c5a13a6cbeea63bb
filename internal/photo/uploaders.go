package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// ImageHost posts photos to an unsigned-upload image host: multipart form
// fields "file" and "upload_preset", answered with {"secure_url": ...}.
type ImageHost struct {
	http   *resty.Client
	url    string
	preset string
}

// NewImageHost builds an ImageHost uploader.
func NewImageHost(uploadURL, preset string, timeout time.Duration) *ImageHost {
	return &ImageHost{http: resty.New().SetTimeout(timeout), url: uploadURL, preset: preset}
}

func (h *ImageHost) Upload(ctx context.Context, _ model.PhotoSlot, name, _ string, data []byte) (string, error) {
	if h.url == "" {
		return "", errors.New("image host upload url is not configured")
	}
	if name == "" {
		name = "photo"
	}
	var out struct {
		SecureURL string `json:"secure_url"`
	}
	resp, err := h.http.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetFormData(map[string]string{"upload_preset": h.preset}).
		SetResult(&out).
		Post(h.url)
	if err != nil {
		return "", fmt.Errorf("post to image host: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("image host answered %s", resp.Status())
	}
	if out.SecureURL == "" {
		return "", errors.New("image host response has no secure_url")
	}
	return out.SecureURL, nil
}

// ObjectStore is the part of s3storage.Storage the S3 uploader needs.
type ObjectStore interface {
	PutPhoto(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)
}

// S3Uploader keeps photos in the object store's photo bucket.
type S3Uploader struct {
	store ObjectStore
}

// NewS3Uploader wraps store.
func NewS3Uploader(store ObjectStore) *S3Uploader {
	return &S3Uploader{store: store}
}

func (u *S3Uploader) Upload(ctx context.Context, slot model.PhotoSlot, name, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s%s", slot, uuid.NewString(), path.Ext(name))
	return u.store.PutPhoto(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

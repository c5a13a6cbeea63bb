// Package photo validates and uploads evidence photos and records where they
// landed in the user's session.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

// DefaultMaxBytes is the upload ceiling when none is configured.
const DefaultMaxBytes = 5 << 20

// DefaultAllowedTypes are the accepted image MIME types. WebP is left out
// because exported PDFs can only embed these three.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif"}

// File is a photo handed in by the user. ContentType is the declared type and
// may be empty, in which case it is sniffed from the content.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Uploader stores a validated photo and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, slot model.PhotoSlot, name, contentType string, data []byte) (string, error)
}

// Options tunes validation.
type Options struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Manager owns the per-slot "saved" flags of one session.
type Manager struct {
	uploader Uploader
	sess     *session.Session
	opts     Options
	logger   *zap.Logger

	mu    sync.Mutex
	saved map[model.PhotoSlot]bool
}

// NewManager builds a Manager. Slots that already have a URL in sess start out
// saved.
func NewManager(ctx context.Context, uploader Uploader, sess *session.Session, opts Options, logger *zap.Logger) *Manager {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = DefaultAllowedTypes
	}
	m := &Manager{uploader: uploader, sess: sess, opts: opts, logger: logger, saved: map[model.PhotoSlot]bool{}}
	for _, slot := range model.Slots {
		_, ok := sess.PhotoURL(ctx, slot)
		m.saved[slot] = ok
	}
	return m
}

// Saved reports whether slot holds an uploaded photo.
func (m *Manager) Saved(slot model.PhotoSlot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[slot]
}

// Upload validates f, sends it to the asset host and records the URL under the
// slot's session key. Validation failures never reach the network. On upload
// failure nothing is written and the slot stays unsaved.
func (m *Manager) Upload(ctx context.Context, f *File, slot model.PhotoSlot) (string, error) {
	if f == nil || f.Content == nil {
		return "", apperr.Validation("no file selected")
	}
	if f.Size > m.opts.MaxBytes {
		return "", apperr.Validation(tooLarge(f.Size, m.opts.MaxBytes))
	}
	data, err := io.ReadAll(io.LimitReader(f.Content, m.opts.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > m.opts.MaxBytes {
		return "", apperr.Validation(tooLarge(int64(len(data)), m.opts.MaxBytes))
	}
	if len(data) == 0 {
		return "", apperr.Validation("file is empty")
	}
	contentType := detectType(f.ContentType, data)
	if !slices.Contains(m.opts.AllowedTypes, contentType) {
		return "", apperr.Validation(fmt.Sprintf("file type %s is not allowed", contentType))
	}

	url, err := m.uploader.Upload(ctx, slot, f.Name, contentType, data)
	if err != nil {
		m.logger.Warn("photo upload failed", zap.String("slot", string(slot)), zap.Error(err))
		return "", &apperr.UploadError{Slot: string(slot), Err: err}
	}
	if !m.sess.SetPhotoURL(ctx, slot, url) {
		return "", &apperr.UploadError{Slot: string(slot), Err: errors.New("photo url could not be cached")}
	}

	m.mu.Lock()
	m.saved[slot] = true
	m.mu.Unlock()
	m.logger.Info("photo uploaded", zap.String("slot", string(slot)), zap.Int("bytes", len(data)))
	return url, nil
}

// Missing lists the required slots that have no URL yet.
func Missing(ctx context.Context, sess *session.Session, required []model.PhotoSlot) []model.PhotoSlot {
	var out []model.PhotoSlot
	for _, slot := range required {
		if _, ok := sess.PhotoURL(ctx, slot); !ok {
			out = append(out, slot)
		}
	}
	return out
}

// ParseSlots converts configured slot names, skipping unknown ones.
func ParseSlots(names []string) []model.PhotoSlot {
	out := make([]model.PhotoSlot, 0, len(names))
	for _, n := range names {
		if slot, err := model.ParseSlot(n); err == nil {
			out = append(out, slot)
		}
	}
	return out
}

func detectType(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && !strings.EqualFold(mt, "application/octet-stream") {
			return strings.ToLower(mt)
		}
	}
	sniffed := http.DetectContentType(data[:min(len(data), 512)])
	mt, _, _ := mime.ParseMediaType(sniffed)
	return mt
}

func tooLarge(size, limit int64) string {
	return fmt.Sprintf("file is %d bytes, limit is %d", size, limit)
}

// FromBytes wraps an in-memory photo.
func FromBytes(name, contentType string, data []byte) *File {
	return &File{Name: name, ContentType: contentType, Size: int64(len(data)), Content: bytes.NewReader(data)}
}

// Package session is the typed view over the cache store that holds one
// user's login and in-progress reporting work. Every key it touches is listed
// here; clearing work never removes authentication keys.
package session

import (
	"context"
	"time"

	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// SchemaVersion is bumped whenever the shape of a work key changes.
const SchemaVersion = 1

// Cache keys.
const (
	KeyVersion = "version"

	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyRole         = "role"
	KeyUserID       = "userId"

	KeyArea                  = "area"
	KeyTasks                 = "tasks"
	KeyContingencies         = "contingencies"
	KeySelectedTasks         = "selectedTasks"
	KeySelectedContingencies = "selectedContingencies"
	KeyTaskProgress          = "taskProgress"
	KeyContingencyProgress   = "contingencyProgress"
	KeyBeforePhotoURL        = "beforePhotoUrl"
	KeyDuringPhotoURL        = "duringPhotoUrl"
	KeyAfterPhotoURL         = "afterPhotoUrl"
	KeyProgressBucketID      = "progressBucketId"
	KeyReportType            = "reportType"
)

// AuthKeys are the keys written at login.
var AuthKeys = []string{KeyToken, KeyRefreshToken, KeyRole, KeyUserID}

// WorkKeys are the keys describing in-progress work.
var WorkKeys = []string{
	KeyArea, KeyTasks, KeyContingencies,
	KeySelectedTasks, KeySelectedContingencies,
	KeyTaskProgress, KeyContingencyProgress,
	KeyBeforePhotoURL, KeyDuringPhotoURL, KeyAfterPhotoURL,
	KeyProgressBucketID, KeyReportType,
}

// SelectionKeys are the work keys cleared after a successful submission.
var SelectionKeys = []string{
	KeySelectedTasks, KeySelectedContingencies,
	KeyTaskProgress, KeyContingencyProgress,
	KeyBeforePhotoURL, KeyDuringPhotoURL, KeyAfterPhotoURL,
}

// PhotoKey returns the cache key for a photo slot.
func PhotoKey(slot model.PhotoSlot) string {
	return string(slot) + "PhotoUrl"
}

// Session reads and writes one user's state.
type Session struct {
	store *cache.Store
	ttl   time.Duration
}

// Open wraps store. When the stored schema version differs, work keys from the
// older layout are dropped and the current version is recorded.
func Open(ctx context.Context, store *cache.Store, ttl time.Duration) *Session {
	s := &Session{store: store, ttl: ttl}
	var version int
	if !store.Get(ctx, KeyVersion, &version) || version != SchemaVersion {
		s.ClearWork(ctx)
		store.Set(ctx, KeyVersion, SchemaVersion, 0)
	}
	return s
}

// Credentials is the authentication state kept after login.
type Credentials struct {
	Token        string
	RefreshToken string
	Role         string
	UserID       model.ID
}

// SaveCredentials stores the auth keys.
func (s *Session) SaveCredentials(ctx context.Context, c Credentials) bool {
	ok := s.store.Set(ctx, KeyToken, c.Token, 0)
	ok = s.store.Set(ctx, KeyRefreshToken, c.RefreshToken, 0) && ok
	ok = s.store.Set(ctx, KeyRole, c.Role, 0) && ok
	return s.store.Set(ctx, KeyUserID, c.UserID, 0) && ok
}

// Credentials loads the auth keys; ok is false when no token is stored.
func (s *Session) Credentials(ctx context.Context) (Credentials, bool) {
	var c Credentials
	if !s.store.Get(ctx, KeyToken, &c.Token) || c.Token == "" {
		return Credentials{}, false
	}
	s.store.Get(ctx, KeyRefreshToken, &c.RefreshToken)
	s.store.Get(ctx, KeyRole, &c.Role)
	s.store.Get(ctx, KeyUserID, &c.UserID)
	return c, true
}

// Area returns the cached assigned area.
func (s *Session) Area(ctx context.Context) (model.Area, bool) {
	var a model.Area
	ok := s.store.Get(ctx, KeyArea, &a)
	return a, ok
}

// SetArea caches the assigned area.
func (s *Session) SetArea(ctx context.Context, a model.Area) bool {
	return s.store.Set(ctx, KeyArea, a, s.ttl)
}

// Tasks returns the cached filtered task list.
func (s *Session) Tasks(ctx context.Context) []model.Task {
	var out []model.Task
	s.store.Get(ctx, KeyTasks, &out)
	return out
}

// SetTasks caches the filtered task list.
func (s *Session) SetTasks(ctx context.Context, tasks []model.Task) bool {
	return s.store.Set(ctx, KeyTasks, tasks, s.ttl)
}

// Contingencies returns the cached filtered contingency list.
func (s *Session) Contingencies(ctx context.Context) []model.Contingency {
	var out []model.Contingency
	s.store.Get(ctx, KeyContingencies, &out)
	return out
}

// SetContingencies caches the filtered contingency list.
func (s *Session) SetContingencies(ctx context.Context, items []model.Contingency) bool {
	return s.store.Set(ctx, KeyContingencies, items, s.ttl)
}

// Selection returns the selected ids stored under a selection key.
func (s *Session) Selection(ctx context.Context, key string) []model.ID {
	var ids []model.ID
	s.store.Get(ctx, key, &ids)
	return ids
}

// SaveSelection writes a selection set and its progress list together.
func (s *Session) SaveSelection(ctx context.Context, selectionKey, progressKey string, ids []model.ID, progress []model.ProgressItem) bool {
	if ids == nil {
		ids = []model.ID{}
	}
	ok := s.store.Set(ctx, selectionKey, ids, s.ttl)
	return s.store.Set(ctx, progressKey, progress, s.ttl) && ok
}

// Progress returns the progress list stored under key.
func (s *Session) Progress(ctx context.Context, key string) []model.ProgressItem {
	var items []model.ProgressItem
	s.store.Get(ctx, key, &items)
	return items
}

// PhotoURL returns the uploaded URL for slot.
func (s *Session) PhotoURL(ctx context.Context, slot model.PhotoSlot) (string, bool) {
	var url string
	if !s.store.Get(ctx, PhotoKey(slot), &url) || url == "" {
		return "", false
	}
	return url, true
}

// SetPhotoURL records an uploaded photo URL.
func (s *Session) SetPhotoURL(ctx context.Context, slot model.PhotoSlot, url string) bool {
	return s.store.Set(ctx, PhotoKey(slot), url, s.ttl)
}

// Photos collects every slot into a PhotoMap.
func (s *Session) Photos(ctx context.Context) model.PhotoMap {
	var m model.PhotoMap
	for _, slot := range model.Slots {
		if url, ok := s.PhotoURL(ctx, slot); ok {
			u := url
			m.Set(slot, &u)
		}
	}
	return m
}

// ProgressBucketID returns the progress-bucket record behind the assignment.
func (s *Session) ProgressBucketID(ctx context.Context) (model.ID, bool) {
	var id model.ID
	ok := s.store.Get(ctx, KeyProgressBucketID, &id)
	return id, ok
}

// SetProgressBucketID caches the progress-bucket record id.
func (s *Session) SetProgressBucketID(ctx context.Context, id model.ID) bool {
	return s.store.Set(ctx, KeyProgressBucketID, id, s.ttl)
}

// ReportType returns the reporting flow the user is working in.
func (s *Session) ReportType(ctx context.Context) model.ReportType {
	var t model.ReportType
	if !s.store.Get(ctx, KeyReportType, &t) || t == "" {
		return model.ReportStandard
	}
	return t
}

// SetReportType records the reporting flow.
func (s *Session) SetReportType(ctx context.Context, t model.ReportType) bool {
	return s.store.Set(ctx, KeyReportType, t, s.ttl)
}

// ClearSelections drops selections and photos after a submission.
func (s *Session) ClearSelections(ctx context.Context) bool {
	return s.store.Delete(ctx, SelectionKeys...)
}

// ClearWork drops every work key.
func (s *Session) ClearWork(ctx context.Context) bool {
	return s.store.Delete(ctx, WorkKeys...)
}

// ClearAuth drops the login keys.
func (s *Session) ClearAuth(ctx context.Context) bool {
	return s.store.Delete(ctx, AuthKeys...)
}

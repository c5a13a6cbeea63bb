package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/config"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/repository"
)

type fakeBackend struct {
	mu       sync.Mutex
	nextID   model.ID
	created  []model.ProgressRecord
	reports  map[model.ID]model.Report
	assigned map[model.ID]model.ID
	checkins int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:   100,
		assigned: map[model.ID]model.ID{},
		reports: map[model.ID]model.Report{
			5: {ID: 5, UserID: 42, BucketID: 3, Content: []byte(`"{\"Report_Type\":\"Standard\",\"tasks\":[{\"id\":1,\"text\":\"old\",\"status\":1}],\"contingencies\":[],\"photos\":{}}"`)},
			6: {ID: 6, UserID: 7, BucketID: 4, Content: []byte(`"{\"tasks\":[],\"contingencies\":[],\"photos\":{}}"`)},
		},
	}
}

func (f *fakeBackend) Login(_ context.Context, username, password string) (model.Session, error) {
	if password != "secret" {
		return model.Session{}, &apperr.RequestError{Kind: apperr.ErrAuth, Op: "POST /Users/login", Status: 401}
	}
	return model.Session{AccessToken: "tok", User: model.User{ID: 42, Username: username, Role: "user"}}, nil
}

func (f *fakeBackend) Areas(context.Context) ([]model.Area, error) {
	return []model.Area{{ID: 3, Name: "Gate A", Type: "1"}, {ID: 4, Name: "Lounge", Type: "2"}}, nil
}

func (f *fakeBackend) Tasks(context.Context) ([]model.Task, error) {
	return []model.Task{{ID: 1, Text: "Mop", Type: "1"}, {ID: 2, Text: "Dust", Type: "1"}, {ID: 3, Text: "Polish", Type: "2"}}, nil
}

func (f *fakeBackend) Contingencies(context.Context) ([]model.Contingency, error) {
	return []model.Contingency{{ID: 9, Name: "Spill", Type: "1"}}, nil
}

func (f *fakeBackend) ProgressRecords(_ context.Context, kind model.ProgressKind, userID model.ID) ([]model.ProgressRecord, error) {
	if kind != model.ProgressBucket || userID != 42 {
		return nil, nil
	}
	return []model.ProgressRecord{{ID: 10, Kind: model.ProgressBucket, DefinitionID: 3, UserID: 42, Date: model.DayOf(time.Now())}}, nil
}

func (f *fakeBackend) CreateProgress(_ context.Context, rec model.ProgressRecord) (model.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	f.created = append(f.created, rec)
	return rec, nil
}

func (f *fakeBackend) UpdateProgressStatus(context.Context, model.ProgressKind, model.ID, model.Status) error {
	return nil
}

func (f *fakeBackend) DeleteProgress(context.Context, model.ProgressKind, model.ID) error { return nil }

func (f *fakeBackend) CreateReport(_ context.Context, r model.NewReport) (model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rep := model.Report{ID: 77, UserID: r.UserID, BucketID: r.BucketID, Content: []byte(r.Content)}
	f.reports[rep.ID] = rep
	return rep, nil
}

func (f *fakeBackend) Reports(_ context.Context, userID model.ID) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Report
	for _, id := range []model.ID{5, 6, 77} {
		if r, ok := f.reports[id]; ok && (userID == 0 || r.UserID == userID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) Report(_ context.Context, id model.ID) (model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return model.Report{}, &apperr.RequestError{Kind: apperr.ErrNotFound, Op: "GET /reports", Status: 404}
	}
	return r, nil
}

func (f *fakeBackend) AttendanceToday(context.Context, model.ID) (bool, error) {
	return f.checkins > 0, nil
}

func (f *fakeBackend) CreateAttendance(context.Context, model.Attendance) error {
	f.checkins++
	return nil
}

func (f *fakeBackend) AssignArea(_ context.Context, userID, areaID model.ID) error {
	f.assigned[userID] = areaID
	return nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, slot model.PhotoSlot, _, _ string, _ []byte) (string, error) {
	return "https://img.example/" + string(slot) + ".png", nil
}

type fakeLedger struct {
	exports map[string]*repository.Export
}

func (f *fakeLedger) Create(_ context.Context, exp *repository.Export) error {
	exp.Status = repository.StatusQueued
	f.exports[exp.ID] = exp
	return nil
}

func (f *fakeLedger) Get(_ context.Context, id string) (*repository.Export, error) {
	exp, ok := f.exports[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return exp, nil
}

type fakeLinks struct{}

func (fakeLinks) PresignExportURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.example/" + key + "?sig=1", nil
}

type fakeQueue struct{ tasks []*asynq.Task }

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

type harness struct {
	srv     *httptest.Server
	api     *fakeBackend
	ledger  *fakeLedger
	queue   *fakeQueue
	user    string
	admin   string
	cfg     *config.Config
	handler http.Handler
}

func newHarness(t *testing.T, withExports bool) *harness {
	t.Helper()
	return newHarnessOn(t, withExports, cache.NewMemoryKV())
}

func newHarnessOn(t *testing.T, withExports bool, kv cache.KV) *harness {
	t.Helper()
	cfg := &config.Config{
		CacheTTL:           time.Hour,
		MaxPhotoBytes:      1 << 20,
		AllowedPhotoTypes:  []string{"image/png", "image/jpeg"},
		RequiredPhotoSlots: []string{"before", "after"},
		FanoutLimit:        4,
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
		SignedURLTTL:       time.Minute,
	}
	h := &harness{api: newFakeBackend(), ledger: &fakeLedger{exports: map[string]*repository.Export{}}, queue: &fakeQueue{}, cfg: cfg}
	deps := Deps{
		Backend:  func(string) Backend { return h.api },
		Store:    cache.New(kv, zap.NewNop()),
		Uploader: fakeUploader{},
	}
	if withExports {
		deps.Exports, deps.Links, deps.Queue = h.ledger, fakeLinks{}, h.queue
	}
	h.handler = New(cfg, deps, zap.NewNop()).Handler()
	h.srv = httptest.NewServer(h.handler)
	t.Cleanup(h.srv.Close)
	h.user = sign(t, jwt.MapClaims{"id": 42, "role": "user", "exp": time.Now().Add(time.Hour).Unix()})
	h.admin = sign(t, jwt.MapClaims{"id": 1, "role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	return h
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body []byte, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func photoBody(t *testing.T, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="shot.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealthAndAuth(t *testing.T) {
	h := newHarness(t, false)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "", nil, "").StatusCode)
	require.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/workspace", "", nil, "").StatusCode)
	require.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/workspace", "garbage", nil, "").StatusCode)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, false)
	resp := h.do(t, http.MethodPost, "/login", "", []byte(`{"username":"ana","password":"secret"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "tok", decode[model.Session](t, resp).AccessToken)

	resp = h.do(t, http.MethodPost, "/login", "", []byte(`{"username":"ana","password":"nope"}`), "application/json")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/login", "", []byte(`{}`), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Len(t, body["reasons"], 2)
}

func TestReportingFlow(t *testing.T) {
	h := newHarness(t, false)

	resp := h.do(t, http.MethodPost, "/attendance", h.user, []byte(`{"lat":1,"lng":2}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/attendance", h.user, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/workspace", h.user, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ws := decode[map[string]any](t, resp)
	require.Equal(t, true, ws["assigned"])
	require.Len(t, ws["tasks"], 2)

	resp = h.do(t, http.MethodPost, "/workspace/tasks/1/toggle", h.user, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toggled := decode[progressPayload](t, resp)
	require.True(t, toggled.Selected)
	require.Len(t, toggled.Progress, 2)

	for _, slot := range []string{"before", "after"} {
		body, ct := photoBody(t, "image/png", pngBytes)
		resp = h.do(t, http.MethodPost, "/workspace/photos/"+slot, h.user, body, ct)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp = h.do(t, http.MethodPost, "/workspace/submit", h.user, nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, model.ID(77), decode[model.Report](t, resp).ID)
	require.Len(t, h.api.created, 1)
	require.Equal(t, model.ProgressTask, h.api.created[0].Kind)

	resp = h.do(t, http.MethodGet, "/workspace?cached=1", h.user, nil, "")
	cached := decode[map[string]any](t, resp)
	require.Empty(t, cached["selectedTasks"])
}

func TestSubmitListsEveryMissingPiece(t *testing.T) {
	h := newHarness(t, false)
	resp := h.do(t, http.MethodPost, "/workspace/submit?type=contingency", h.user, nil, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Equal(t, []any{"no area assigned", "no contingencies selected", "before photo missing", "after photo missing"}, body["reasons"])
}

func TestPhotoRejectedBeforeUpload(t *testing.T) {
	h := newHarness(t, false)
	body, ct := photoBody(t, "application/pdf", []byte("%PDF-1.4"))
	resp := h.do(t, http.MethodPost, "/workspace/photos/before", h.user, body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body, ct = photoBody(t, "image/png", pngBytes)
	resp = h.do(t, http.MethodPost, "/workspace/photos/sideways", h.user, body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAssignmentsRequireAdmin(t *testing.T) {
	h := newHarness(t, false)
	resp := h.do(t, http.MethodPut, "/assignments/42", h.user, []byte(`{"bucketId":4}`), "application/json")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodPut, "/assignments/42", h.admin, []byte(`{"bucketId":4}`), "application/json")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, model.ID(4), h.api.assigned[42])
}

func TestPreviewVisibility(t *testing.T) {
	h := newHarness(t, false)
	resp := h.do(t, http.MethodGet, "/reports/5/preview", h.user, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var md bytes.Buffer
	_, err := md.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, md.String(), "[x] Mop")

	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/reports/6/preview", h.user, nil, "").StatusCode)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/reports/6/preview?format=json", h.admin, nil, "").StatusCode)
}

func TestReportListAndIndex(t *testing.T) {
	h := newHarness(t, false)
	resp := h.do(t, http.MethodGet, "/reports", h.user, nil, "")
	require.Len(t, decode[[]reportListItem](t, resp), 1)

	resp = h.do(t, http.MethodGet, "/reports", h.admin, nil, "")
	require.Len(t, decode[[]reportListItem](t, resp), 2)

	require.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/reports/index.xlsx", h.user, nil, "").StatusCode)
	resp = h.do(t, http.MethodGet, "/reports/index.xlsx", h.admin, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
}

func TestExports(t *testing.T) {
	h := newHarness(t, true)
	resp := h.do(t, http.MethodPost, "/reports/5/exports", h.user, nil, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	require.Len(t, h.queue.tasks, 1)

	id := created["id"]
	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodGet, "/exports/"+id+"/url", h.user, nil, "").StatusCode)

	key := "reports/5/" + id + ".pdf"
	h.ledger.exports[id].Status = repository.StatusCompleted
	h.ledger.exports[id].ObjectKey = &key
	resp = h.do(t, http.MethodGet, "/exports/"+id+"/url", h.user, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, decode[map[string]string](t, resp)["url"], key)

	other := sign(t, jwt.MapClaims{"id": 7})
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/exports/"+id, other, nil, "").StatusCode)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/reports/5/exports", other, nil, "").StatusCode)
}

func TestExportsDisabled(t *testing.T) {
	h := newHarness(t, false)
	require.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/reports/5/exports", h.user, nil, "").StatusCode)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, false)
	h.cfg.RateLimitRequests = 2
	handler := New(h.cfg, Deps{Store: cache.New(cache.NewMemoryKV(), zap.NewNop())}, zap.NewNop()).Handler()
	var codes []int
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

// laggyKV widens the window between a read and the write that follows it.
type laggyKV struct{ *cache.MemoryKV }

func (l laggyKV) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(2 * time.Millisecond)
	return l.MemoryKV.Get(ctx, key)
}

func TestConcurrentTogglesKeepEverySelection(t *testing.T) {
	h := newHarnessOn(t, false, laggyKV{MemoryKV: cache.NewMemoryKV()})

	ids := []string{"1", "2", "3", "4", "5", "6"}
	var wg sync.WaitGroup
	statuses := make([]int, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/workspace/tasks/"+id+"/toggle", nil)
			if err != nil {
				return
			}
			req.Header.Set("Authorization", "Bearer "+h.user)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()
	for _, code := range statuses {
		require.Equal(t, http.StatusOK, code)
	}

	resp := h.do(t, http.MethodGet, "/workspace?cached=1", h.user, nil, "")
	snap := decode[struct {
		SelectedTasks []model.ID `json:"selectedTasks"`
	}](t, resp)
	require.ElementsMatch(t, []model.ID{1, 2, 3, 4, 5, 6}, snap.SelectedTasks)
}

package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 5*time.Second, zap.NewNop()).WithToken("tok")
}

func TestListDecodesEnvelopeAndSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "/api/tasks", r.URL.Path)
		io.WriteString(w, `{"body":[{"ID":1,"info":"Mop","Type":"1"},{"id":"2","text":"Dust","type":2}]}`)
	})
	tasks, err := c.Tasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Task{{ID: 1, Text: "Mop", Type: "1"}, {ID: 2, Text: "Dust", Type: "2"}}, tasks)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   error
	}{
		{http.StatusUnauthorized, `{"error":"jwt expired"}`, apperr.ErrAuth},
		{http.StatusForbidden, ``, apperr.ErrAuth},
		{http.StatusNotFound, `{"error":{"message":"no bucket"}}`, apperr.ErrNotFound},
		{http.StatusInternalServerError, `oops`, apperr.ErrNetwork},
		{http.StatusOK, `{"body":null,"error":"db down"}`, apperr.ErrNetwork},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, tc.body)
		})
		_, err := c.Areas(context.Background())
		require.ErrorIs(t, err, tc.kind, "status %d", tc.status)
	}

	unreachable := New("http://127.0.0.1:1/api", time.Second, zap.NewNop())
	_, err := unreachable.Areas(context.Background())
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestGetOneAcceptsArrayOrObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/buckets/3":
			io.WriteString(w, `{"body":[{"ID":3,"Area":"Lobby","Type":"1"}]}`)
		case "/api/tasks/1":
			io.WriteString(w, `{"body":{"ID":1,"info":"Mop","Type":"1"}}`)
		default:
			io.WriteString(w, `{"body":[]}`)
		}
	})
	ctx := context.Background()
	area, err := c.Area(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "Lobby", area.Name)

	task, err := c.Task(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Mop", task.Text)

	_, err = c.Contingency(ctx, 9)
	require.True(t, IsNotFound(err))
}

func TestProgressRoundTrip(t *testing.T) {
	var posted map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Equal(t, "42", r.URL.Query().Get("user_id"))
			io.WriteString(w, `{"body":[{"id":10,"bucket_id":3,"user_id":42,"status":"1","date":"2024-01-01"}]}`)
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			io.WriteString(w, `{"body":{"insertId":77}}`)
		}
	})
	ctx := context.Background()
	recs, err := c.ProgressRecords(ctx, model.ProgressBucket, 42)
	require.NoError(t, err)
	require.Equal(t, []model.ProgressRecord{{ID: 10, Kind: model.ProgressBucket, DefinitionID: 3, UserID: 42, Status: 1, Date: "2024-01-01"}}, recs)

	created, err := c.CreateProgress(ctx, model.ProgressRecord{Kind: model.ProgressTask, DefinitionID: 5, UserID: 42, Status: 1, Date: "2024-01-02"})
	require.NoError(t, err)
	require.Equal(t, model.ID(77), created.ID)
	require.Equal(t, map[string]any{"task_id": 5.0, "status": 1.0, "user_id": 42.0, "date": "2024-01-02"}, posted)
}

func TestLoginWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Users/login", r.URL.Path)
		io.WriteString(w, `{"accessToken":"a","refreshToken":"r","user":{"id":42,"username":"ana","role":"user"}}`)
	})
	s, err := c.Login(context.Background(), "ana", "pw")
	require.NoError(t, err)
	require.Equal(t, "a", s.AccessToken)
	require.Equal(t, model.ID(42), s.User.ID)
}

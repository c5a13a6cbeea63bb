// Package api exposes the cleaning report workflow over HTTP for the web
// console. Each request acts on behalf of the bearer of its token; work in
// progress is cached per user.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/attendance"
	"github.com/dharsanguruparan/CleanOps/internal/auth"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/config"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/photo"
	"github.com/dharsanguruparan/CleanOps/internal/progress"
	"github.com/dharsanguruparan/CleanOps/internal/queue"
	"github.com/dharsanguruparan/CleanOps/internal/report"
	"github.com/dharsanguruparan/CleanOps/internal/repository"
	"github.com/dharsanguruparan/CleanOps/internal/session"
	"github.com/dharsanguruparan/CleanOps/internal/workspace"
)

// Backend is the subset of the REST backend the server calls. *backend.Client
// satisfies it.
type Backend interface {
	workspace.Backend
	report.Backend
	attendance.Backend
	Login(ctx context.Context, username, password string) (model.Session, error)
	Reports(ctx context.Context, userID model.ID) ([]model.Report, error)
	Report(ctx context.Context, id model.ID) (model.Report, error)
	AssignArea(ctx context.Context, userID, areaID model.ID) error
}

// ExportLedger records export jobs; *repository.ExportRepository implements it.
type ExportLedger interface {
	Create(ctx context.Context, exp *repository.Export) error
	Get(ctx context.Context, id string) (*repository.Export, error)
}

// ExportLinks signs download URLs; *s3storage.Storage implements it.
type ExportLinks interface {
	PresignExportURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Deps are the collaborators of a Server. Exports, Links and Queue may be nil,
// in which case the export routes answer 503.
type Deps struct {
	// Backend returns a client that authenticates as token.
	Backend  func(token string) Backend
	Store    *cache.Store
	Uploader photo.Uploader
	Exports  ExportLedger
	Links    ExportLinks
	Queue    queue.Enqueuer
}

// Server exposes HTTP endpoints for the reporting workflow.
type Server struct {
	cfg     *config.Config
	deps    Deps
	logger  *zap.Logger
	limiter *rateLimiter
	users   *userLocks
	now     func() time.Time
	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		limiter: newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		users:   newUserLocks(),
		now:     time.Now,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", s.handleHealth)
		mux.HandleFunc("POST /login", s.handleLogin)

		mux.HandleFunc("POST /attendance", s.authed(s.exclusive(s.handleCheckIn)))
		mux.HandleFunc("GET /workspace", s.authed(s.exclusive(s.handleWorkspace)))
		mux.HandleFunc("DELETE /workspace", s.authed(s.exclusive(s.handleClearWorkspace)))
		mux.HandleFunc("POST /workspace/tasks/{id}/toggle", s.authed(s.exclusive(s.handleToggle(model.ProgressTask))))
		mux.HandleFunc("POST /workspace/contingencies/{id}/toggle", s.authed(s.exclusive(s.handleToggle(model.ProgressContingency))))
		mux.HandleFunc("POST /workspace/photos/{slot}", s.authed(s.exclusive(s.handlePhoto)))
		mux.HandleFunc("POST /workspace/submit", s.authed(s.exclusive(s.handleSubmit)))

		mux.HandleFunc("GET /reports", s.authed(s.handleReports))
		mux.HandleFunc("GET /reports/index.xlsx", s.authed(s.handleIndex))
		mux.HandleFunc("GET /reports/{id}/preview", s.authed(s.handlePreview))
		mux.HandleFunc("POST /reports/{id}/exports", s.authed(s.handleCreateExport))
		mux.HandleFunc("GET /exports/{id}", s.authed(s.handleExport))
		mux.HandleFunc("GET /exports/{id}/url", s.authed(s.handleExportURL))

		mux.HandleFunc("PUT /assignments/{user}", s.authed(s.handleAssign))

		s.handler = corsMiddleware(loggingMiddleware(s.logger, s.limiter.middleware(mux)))
	})
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = s.server.Shutdown(shutdownCtx)
				return
			case <-ticker.C:
				s.limiter.reset()
			}
		}
	}()
	s.logger.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller is the authenticated context of one request.
type caller struct {
	identity auth.Identity
	api      Backend
	sess     *session.Session
}

type authedHandler func(w http.ResponseWriter, r *http.Request, c caller)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		id, err := auth.Inspect(token, s.now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		sess := session.Open(r.Context(), s.deps.Store.Namespace("user:"+id.UserID.String()), s.cfg.CacheTTL)
		h(w, r, caller{identity: id, api: s.deps.Backend(token), sess: sess})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperr.Validation("request body must be JSON"))
		return
	}
	var reasons []string
	if body.Username == "" {
		reasons = append(reasons, "username is required")
	}
	if body.Password == "" {
		reasons = append(reasons, "password is required")
	}
	if err := apperr.Validation(reasons...); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.deps.Backend("").Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	store := session.Open(r.Context(), s.deps.Store.Namespace("user:"+sess.User.ID.String()), s.cfg.CacheTTL)
	store.SaveCredentials(r.Context(), session.Credentials{
		Token:        sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		Role:         sess.User.Role,
		UserID:       sess.User.ID,
	})
	respondJSON(w, http.StatusOK, sess)
}

var errForbidden = errors.New("admin role required")

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		respondError(w, http.StatusUnprocessableEntity, "validation failed", apperr.Reasons(err))
	case errors.Is(err, errForbidden):
		respondError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, apperr.ErrAuth):
		respondError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, apperr.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, progress.ErrPersist):
		respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.Is(err, errExportsDisabled):
		respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.Is(err, apperr.ErrUpload), errors.Is(err, apperr.ErrNetwork):
		s.logger.Warn("upstream failure", zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error(), nil)
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func respondError(w http.ResponseWriter, status int, msg string, reasons []string) {
	body := map[string]any{"error": msg}
	if len(reasons) > 0 {
		body["reasons"] = reasons
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathID(r *http.Request, name string) (model.ID, error) {
	id, err := model.ParseID(r.PathValue(name))
	if err != nil {
		return 0, apperr.Validation(err.Error())
	}
	return id, nil
}

// progressPayload is the body of a toggle response.
type progressPayload struct {
	ID       model.ID             `json:"id"`
	Selected bool                 `json:"selected"`
	Progress []model.ProgressItem `json:"progress"`
}

func (s *Server) handleToggle(kind model.ProgressKind) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, c caller) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, err)
			return
		}
		tracker := progress.New(r.Context(), c.sess)
		out := progressPayload{ID: id}
		if kind == model.ProgressContingency {
			out.Selected, err = tracker.ToggleContingency(r.Context(), id)
			out.Progress = tracker.ContingencyProgress(r.Context())
		} else {
			out.Selected, err = tracker.ToggleTask(r.Context(), id)
			out.Progress = tracker.TaskProgress(r.Context())
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

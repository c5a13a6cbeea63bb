package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/queue"
	"github.com/dharsanguruparan/CleanOps/internal/render"
	"github.com/dharsanguruparan/CleanOps/internal/repository"
)

var errExportsDisabled = errors.New("exports are not configured")

type reportListItem struct {
	Report  model.Report         `json:"report"`
	Content *model.ReportContent `json:"content,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// handleReports lists the caller's reports. Admins see everyone's, or one
// user's with ?user=.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request, c caller) {
	reports, err := s.listReports(r, c)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]reportListItem, 0, len(reports))
	for _, row := range render.IndexRows(reports) {
		item := reportListItem{Report: row.Report}
		if row.Err != nil {
			item.Error = row.Err.Error()
		} else {
			content := row.Content
			item.Content = &content
		}
		out = append(out, item)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, c caller) {
	if !c.identity.IsAdmin() {
		s.writeError(w, errForbidden)
		return
	}
	reports, err := s.listReports(r, c)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.ExportIndexXLSX(render.IndexRows(reports), &buf); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="reports.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

func (s *Server) listReports(r *http.Request, c caller) ([]model.Report, error) {
	userID := c.identity.UserID
	if c.identity.IsAdmin() {
		userID = 0
		if raw := r.URL.Query().Get("user"); raw != "" {
			id, err := model.ParseID(raw)
			if err != nil {
				return nil, apperr.Validation(err.Error())
			}
			userID = id
		}
	}
	return c.api.Reports(r.Context(), userID)
}

// visibleReport fetches a report the caller may read. Other users' reports
// look missing to non-admins.
func visibleReport(ctx context.Context, c caller, id model.ID) (model.Report, error) {
	rep, err := c.api.Report(ctx, id)
	if err != nil {
		return model.Report{}, err
	}
	if !c.identity.IsAdmin() && rep.UserID != c.identity.UserID {
		return model.Report{}, fmt.Errorf("%w: report %d", apperr.ErrNotFound, id)
	}
	return rep, nil
}

// handlePreview renders a report as Markdown, or as parsed JSON with
// ?format=json. Task and contingency names are refreshed from the catalogs
// unless ?hydrate=0.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, c caller) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := visibleReport(r.Context(), c, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	content, err := render.Parse(rep)
	if err != nil {
		s.writeError(w, apperr.Validation(err.Error()))
		return
	}
	q := r.URL.Query()
	if q.Get("hydrate") != "0" {
		if content, err = render.Hydrate(r.Context(), c.api, content); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if q.Get("format") == "json" {
		respondJSON(w, http.StatusOK, content)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, render.Preview(content))
}

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request, c caller) {
	if s.deps.Exports == nil || s.deps.Queue == nil {
		s.writeError(w, errExportsDisabled)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := visibleReport(r.Context(), c, id); err != nil {
		s.writeError(w, err)
		return
	}
	exp := &repository.Export{
		ID:          uuid.NewString(),
		ReportID:    id,
		RequestedBy: c.identity.UserID,
	}
	if err := s.deps.Exports.Create(r.Context(), exp); err != nil {
		s.writeError(w, fmt.Errorf("record export: %w", err))
		return
	}
	payload := queue.ExportPayload{
		ExportID: exp.ID,
		ReportID: id,
		Hydrate:  r.URL.Query().Get("hydrate") != "0",
	}
	if err := queue.EnqueueExport(r.Context(), s.deps.Queue, payload); err != nil {
		s.writeError(w, fmt.Errorf("queue export: %w", err))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     exp.ID,
		"status": string(repository.StatusQueued),
	})
}

func (s *Server) visibleExport(r *http.Request, c caller) (*repository.Export, error) {
	if s.deps.Exports == nil {
		return nil, errExportsDisabled
	}
	exp, err := s.deps.Exports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if !c.identity.IsAdmin() && exp.RequestedBy != c.identity.UserID {
		return nil, fmt.Errorf("%w: export %s", apperr.ErrNotFound, exp.ID)
	}
	return exp, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, c caller) {
	exp, err := s.visibleExport(r, c)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleExportURL(w http.ResponseWriter, r *http.Request, c caller) {
	exp, err := s.visibleExport(r, c)
	if err != nil {
		s.writeError(w, err)
		return
	}
	switch {
	case exp.Status == repository.StatusFailed:
		msg := "export failed"
		if exp.ErrorMessage != nil {
			msg = *exp.ErrorMessage
		}
		respondError(w, http.StatusConflict, msg, nil)
		return
	case exp.Status != repository.StatusCompleted || exp.ObjectKey == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": string(exp.Status)})
		return
	}
	if s.deps.Links == nil {
		s.writeError(w, errExportsDisabled)
		return
	}
	url, err := s.deps.Links.PresignExportURL(r.Context(), *exp.ObjectKey, s.cfg.SignedURLTTL)
	if err != nil {
		s.writeError(w, fmt.Errorf("sign export url: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

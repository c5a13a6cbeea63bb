package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/attendance"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/photo"
	"github.com/dharsanguruparan/CleanOps/internal/report"
	"github.com/dharsanguruparan/CleanOps/internal/workspace"
)

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request, c caller) {
	var loc model.Location
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
			s.writeError(w, apperr.Validation("location must be JSON with lat and lng"))
			return
		}
	}
	created, err := attendance.New(c.api, s.logger).EnsureCheckedIn(r.Context(), c.identity.UserID, loc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]bool{"created": created})
}

// handleWorkspace loads the caller's assignment and catalogs. With cached=1
// it answers from the cache without calling the backend.
func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request, c caller) {
	q := r.URL.Query()
	if q.Get("cached") == "1" {
		respondJSON(w, http.StatusOK, workspace.Snapshot(r.Context(), c.sess))
		return
	}
	typ, err := model.ParseReportType(q.Get("type"))
	if err != nil {
		s.writeError(w, apperr.Validation(err.Error()))
		return
	}
	opts := workspace.Options{Type: typ}
	if raw := q.Get("area"); raw != "" {
		if opts.AreaID, err = model.ParseID(raw); err != nil {
			s.writeError(w, apperr.Validation(err.Error()))
			return
		}
	}
	state, err := workspace.New(c.api, s.logger).Load(r.Context(), c.sess, c.identity.UserID, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleClearWorkspace(w http.ResponseWriter, r *http.Request, c caller) {
	c.sess.ClearWork(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request, c caller) {
	slot, err := model.ParseSlot(r.PathValue("slot"))
	if err != nil {
		s.writeError(w, apperr.Validation(err.Error()))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxPhotoBytes+64<<10)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, apperr.Validation("expecting multipart form"))
		return
	}
	var file *photo.File
	part, err := nextFilePart(mr)
	switch {
	case err == nil:
		defer part.Close()
		file = &photo.File{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        -1,
			Content:     part,
		}
	case errors.Is(err, io.EOF):
	default:
		s.writeError(w, apperr.Validation("malformed multipart body"))
		return
	}

	mgr := photo.NewManager(r.Context(), s.deps.Uploader, c.sess, photo.Options{
		MaxBytes:     s.cfg.MaxPhotoBytes,
		AllowedTypes: s.cfg.AllowedPhotoTypes,
	}, s.logger)
	url, err := mgr.Upload(r.Context(), file, slot)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = apperr.Validation("file exceeds upload limit")
		}
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"slot": slot, "url": url, "saved": true})
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// handleSubmit assembles the cached work into a report. The flow comes from
// the type query parameter, else from the last loaded workspace.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, c caller) {
	typ := c.sess.ReportType(r.Context())
	if raw := r.URL.Query().Get("type"); raw != "" {
		var err error
		if typ, err = model.ParseReportType(raw); err != nil {
			s.writeError(w, apperr.Validation(err.Error()))
			return
		}
	}
	asm := report.New(c.api, photo.ParseSlots(s.cfg.RequiredPhotoSlots), s.logger, report.WithFanout(s.cfg.FanoutLimit))
	rep, err := asm.Submit(r.Context(), c.sess, typ, c.identity.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request, c caller) {
	if !c.identity.IsAdmin() {
		s.writeError(w, errForbidden)
		return
	}
	userID, err := pathID(r, "user")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		BucketID model.ID `json:"bucketId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BucketID == 0 {
		s.writeError(w, apperr.Validation("bucketId is required"))
		return
	}
	if err := c.api.AssignArea(r.Context(), userID, body.BucketID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

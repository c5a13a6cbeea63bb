// Package report turns a user's selections and photos into one submitted
// report. Progress records are upserted by (kind, definition, user, date) and
// every record created during a submission is deleted again if the submission
// fails.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/catalog"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

// Backend is the subset of the REST client used during submission.
type Backend interface {
	ProgressRecords(ctx context.Context, kind model.ProgressKind, userID model.ID) ([]model.ProgressRecord, error)
	CreateProgress(ctx context.Context, rec model.ProgressRecord) (model.ProgressRecord, error)
	UpdateProgressStatus(ctx context.Context, kind model.ProgressKind, id model.ID, status model.Status) error
	DeleteProgress(ctx context.Context, kind model.ProgressKind, id model.ID) error
	CreateReport(ctx context.Context, r model.NewReport) (model.Report, error)
}

// Request is everything one submission needs.
type Request struct {
	Type          model.ReportType
	UserID        model.ID
	Area          *model.Area
	Tasks         []model.TaskSummary
	Contingencies []model.ContingencySummary
	Photos        model.PhotoMap
}

// Assembler submits reports.
type Assembler struct {
	api      Backend
	required []model.PhotoSlot
	fanout   int
	now      func() time.Time
	logger   *zap.Logger
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithClock overrides the time source for record dates and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithFanout bounds the number of concurrent progress-record requests.
func WithFanout(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.fanout = n
		}
	}
}

// New constructs an Assembler. required lists the photo slots a report
// cannot be submitted without.
func New(api Backend, required []model.PhotoSlot, logger *zap.Logger, opts ...Option) *Assembler {
	a := &Assembler{api: api, required: required, fanout: 8, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prepare builds a Request from the cached workspace of sess.
func Prepare(ctx context.Context, sess *session.Session, typ model.ReportType, userID model.ID) Request {
	req := Request{Type: typ, UserID: userID, Photos: sess.Photos(ctx)}
	if area, ok := sess.Area(ctx); ok {
		req.Area = &area
	}
	tasks := catalog.IndexByID(sess.Tasks(ctx), func(t model.Task) model.ID { return t.ID })
	for _, id := range sess.Selection(ctx, session.KeySelectedTasks) {
		req.Tasks = append(req.Tasks, model.TaskSummary{ID: id, Text: tasks[id].Text, Status: model.StatusCompleted})
	}
	contingencies := catalog.IndexByID(sess.Contingencies(ctx), func(c model.Contingency) model.ID { return c.ID })
	for _, id := range sess.Selection(ctx, session.KeySelectedContingencies) {
		req.Contingencies = append(req.Contingencies, model.ContingencySummary{ID: id, Name: contingencies[id].Name, Status: model.StatusCompleted})
	}
	return req
}

// Validate lists every rule req violates.
func (a *Assembler) Validate(req Request) error {
	var reasons []string
	if req.UserID == 0 {
		reasons = append(reasons, "no user id")
	}
	if req.Area == nil {
		reasons = append(reasons, "no area assigned")
	}
	switch req.Type {
	case model.ReportContingency:
		if len(req.Contingencies) == 0 {
			reasons = append(reasons, "no contingencies selected")
		}
	default:
		if len(req.Tasks) == 0 {
			reasons = append(reasons, "no tasks selected")
		}
	}
	for _, slot := range a.required {
		if url := req.Photos.Get(slot); url == nil || *url == "" {
			reasons = append(reasons, fmt.Sprintf("%s photo missing", slot))
		}
	}
	return apperr.Validation(reasons...)
}

// Submit validates the cached workspace, submits it and on success clears the
// selection and photo keys. Authentication keys are never touched. On failure
// the cache is left as it was.
func (a *Assembler) Submit(ctx context.Context, sess *session.Session, typ model.ReportType, userID model.ID) (model.Report, error) {
	report, err := a.Assemble(ctx, Prepare(ctx, sess, typ, userID))
	if err != nil {
		return model.Report{}, err
	}
	if !sess.ClearSelections(ctx) {
		a.logger.Warn("submitted report but selections were not cleared", zap.Int64("report_id", int64(report.ID)))
	}
	return report, nil
}

// Assemble runs one submission: upsert the progress records, post the report,
// and compensate on failure.
func (a *Assembler) Assemble(ctx context.Context, req Request) (model.Report, error) {
	if req.Type == "" {
		req.Type = model.ReportStandard
	}
	if err := a.Validate(req); err != nil {
		return model.Report{}, err
	}
	now := a.now()
	s := &saga{id: uuid.NewString(), api: a.api, logger: a.logger}
	log := a.logger.With(zap.String("submission", s.id), zap.Int64("user_id", int64(req.UserID)))

	index, err := a.index(ctx, req)
	if err != nil {
		return model.Report{}, fmt.Errorf("submit report: %w", err)
	}

	day := model.DayOf(now)
	// A failed sibling must not cancel requests already in flight: a create
	// the backend committed has to come back and be recorded for compensation.
	var g errgroup.Group
	g.SetLimit(a.fanout)
	for _, t := range req.Tasks {
		key := model.ProgressKey{Kind: model.ProgressTask, DefinitionID: t.ID, UserID: req.UserID, Date: day}
		g.Go(func() error { return s.upsert(ctx, index, key) })
	}
	for _, c := range req.Contingencies {
		key := model.ProgressKey{Kind: model.ProgressContingency, DefinitionID: c.ID, UserID: req.UserID, Date: day}
		g.Go(func() error { return s.upsert(ctx, index, key) })
	}
	if err := g.Wait(); err != nil {
		return model.Report{}, a.fail(ctx, s, err)
	}

	content := model.ReportContent{
		Type:          req.Type,
		Area:          req.Area,
		Tasks:         nonNil(req.Tasks),
		Contingencies: nonNil(req.Contingencies),
		Photos:        req.Photos,
		CreatedAt:     now.UTC(),
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return model.Report{}, a.fail(ctx, s, fmt.Errorf("encode report content: %w", err))
	}
	payload := model.NewReport{UserID: req.UserID, BucketID: req.Area.ID, Content: string(encoded)}
	if req.Type == model.ReportContingency && len(req.Contingencies) > 0 {
		id := req.Contingencies[0].ID
		payload.ContingencyID = &id
	}
	created, err := a.api.CreateReport(ctx, payload)
	if err != nil {
		return model.Report{}, a.fail(ctx, s, err)
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = content.CreatedAt
	}
	log.Info("report submitted",
		zap.Int64("report_id", int64(created.ID)),
		zap.String("type", string(req.Type)),
		zap.Int("tasks", len(req.Tasks)),
		zap.Int("contingencies", len(req.Contingencies)),
		zap.Int("records_created", s.created()),
	)
	return created, nil
}

// index lists the user's existing records once per kind the request touches.
func (a *Assembler) index(ctx context.Context, req Request) (map[model.ProgressKey]model.ProgressRecord, error) {
	var kinds []model.ProgressKind
	if len(req.Tasks) > 0 {
		kinds = append(kinds, model.ProgressTask)
	}
	if len(req.Contingencies) > 0 {
		kinds = append(kinds, model.ProgressContingency)
	}
	lists := make([][]model.ProgressRecord, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() (err error) {
			lists[i], err = a.api.ProgressRecords(gctx, kind, req.UserID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[model.ProgressKey]model.ProgressRecord)
	for _, list := range lists {
		for _, rec := range list {
			if rec.UserID != req.UserID {
				continue
			}
			key := rec.Key()
			// Duplicates from older clients exist; the newest one wins.
			if prev, ok := out[key]; !ok || rec.ID > prev.ID {
				out[key] = rec
			}
		}
	}
	return out, nil
}

func (a *Assembler) fail(ctx context.Context, s *saga, cause error) error {
	a.logger.Warn("report submission failed", zap.String("submission", s.id), zap.Error(cause))
	if err := s.compensate(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("submit report: %w", errors.Join(cause, err))
	}
	return fmt.Errorf("submit report: %w", cause)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

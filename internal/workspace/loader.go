// Package workspace prepares a user's reporting workspace: it resolves the
// assigned area, narrows the catalogs to it and caches the result in the
// session.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/assignment"
	"github.com/dharsanguruparan/CleanOps/internal/catalog"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

// Backend is the subset of the REST client the loader calls.
type Backend interface {
	Areas(ctx context.Context) ([]model.Area, error)
	Tasks(ctx context.Context) ([]model.Task, error)
	Contingencies(ctx context.Context) ([]model.Contingency, error)
	ProgressRecords(ctx context.Context, kind model.ProgressKind, userID model.ID) ([]model.ProgressRecord, error)
}

// State is what the reporting screen shows.
type State struct {
	Assigned              bool                 `json:"assigned"`
	Type                  model.ReportType     `json:"reportType"`
	Area                  *model.Area          `json:"area"`
	ProgressBucketID      model.ID             `json:"progressBucketId,omitempty"`
	Tasks                 []model.Task         `json:"tasks"`
	Contingencies         []model.Contingency  `json:"contingencies"`
	SelectedTasks         []model.ID           `json:"selectedTasks"`
	SelectedContingencies []model.ID           `json:"selectedContingencies"`
	TaskProgress          []model.ProgressItem `json:"taskProgress"`
	ContingencyProgress   []model.ProgressItem `json:"contingencyProgress"`
	Photos                model.PhotoMap       `json:"photos"`
}

// Options selects the reporting flow. AreaID, when set, replaces the resolved
// assignment with an area picked by the user; the contingency screen allows
// reporting an incident anywhere.
type Options struct {
	Type   model.ReportType
	AreaID model.ID
}

// Loader fetches and caches workspaces.
type Loader struct {
	api    Backend
	logger *zap.Logger
}

// New constructs a Loader.
func New(api Backend, logger *zap.Logger) *Loader {
	return &Loader{api: api, logger: logger}
}

type batch struct {
	areas         []model.Area
	tasks         []model.Task
	contingencies []model.Contingency
	records       []model.ProgressRecord
}

// fetch issues the four catalog reads concurrently. Any failure fails the
// whole batch.
func (l *Loader) fetch(ctx context.Context, userID model.ID) (batch, error) {
	var b batch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.areas, err = l.api.Areas(gctx)
		return err
	})
	g.Go(func() (err error) {
		b.tasks, err = l.api.Tasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		b.contingencies, err = l.api.Contingencies(gctx)
		return err
	})
	g.Go(func() (err error) {
		b.records, err = l.api.ProgressRecords(gctx, model.ProgressBucket, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return batch{}, fmt.Errorf("load workspace: %w", err)
	}
	return b, nil
}

// Load resolves the workspace of userID and writes it into sess. A user
// without an assignment gets an empty, unassigned state rather than an error.
func (l *Loader) Load(ctx context.Context, sess *session.Session, userID model.ID, opts Options) (State, error) {
	if userID == 0 {
		return State{}, fmt.Errorf("%w: no user id", apperr.ErrAuth)
	}
	if opts.Type == "" {
		opts.Type = model.ReportStandard
	}
	b, err := l.fetch(ctx, userID)
	if err != nil {
		return State{}, err
	}

	var (
		area     model.Area
		recordID model.ID
	)
	if opts.AreaID != 0 {
		idx := catalog.IndexByID(b.areas, func(a model.Area) model.ID { return a.ID })
		picked, ok := idx[opts.AreaID]
		if !ok {
			return State{}, apperr.Validation(fmt.Sprintf("area %d does not exist", opts.AreaID))
		}
		area = picked
		if latest, err := assignment.Latest(userID, b.records); err == nil {
			recordID = latest.ID
		}
	} else {
		resolved, err := assignment.Resolve(userID, b.records, b.areas)
		if errors.Is(err, apperr.ErrNotFound) {
			l.logger.Info("no assignment", zap.Int64("user_id", int64(userID)), zap.Error(err))
			sess.ClearWork(ctx)
			return State{Type: opts.Type, Photos: model.PhotoMap{}}, nil
		}
		if err != nil {
			return State{}, err
		}
		area, recordID = resolved.Area, resolved.Record.ID
	}

	if cached, ok := sess.Area(ctx); ok && cached.ID != area.ID {
		l.logger.Info("assignment changed, dropping cached work",
			zap.Int64("user_id", int64(userID)),
			zap.Int64("from_area", int64(cached.ID)),
			zap.Int64("to_area", int64(area.ID)),
		)
		sess.ClearWork(ctx)
	}

	tasks := catalog.FilterByType(b.tasks, area.Type)
	contingencies := catalog.FilterByType(b.contingencies, area.Type)
	ok := sess.SetArea(ctx, area)
	ok = sess.SetTasks(ctx, tasks) && ok
	ok = sess.SetContingencies(ctx, contingencies) && ok
	ok = sess.SetReportType(ctx, opts.Type) && ok
	if recordID != 0 {
		ok = sess.SetProgressBucketID(ctx, recordID) && ok
	}
	if !ok {
		l.logger.Warn("workspace only partially cached", zap.Int64("user_id", int64(userID)))
	}
	return Snapshot(ctx, sess), nil
}

// Snapshot reads the cached workspace without touching the network.
func Snapshot(ctx context.Context, sess *session.Session) State {
	st := State{
		Type:                  sess.ReportType(ctx),
		Tasks:                 sess.Tasks(ctx),
		Contingencies:         sess.Contingencies(ctx),
		SelectedTasks:         sess.Selection(ctx, session.KeySelectedTasks),
		SelectedContingencies: sess.Selection(ctx, session.KeySelectedContingencies),
		TaskProgress:          sess.Progress(ctx, session.KeyTaskProgress),
		ContingencyProgress:   sess.Progress(ctx, session.KeyContingencyProgress),
		Photos:                sess.Photos(ctx),
	}
	if area, ok := sess.Area(ctx); ok {
		st.Assigned = true
		st.Area = &area
	}
	if id, ok := sess.ProgressBucketID(ctx); ok {
		st.ProgressBucketID = id
	}
	return st
}

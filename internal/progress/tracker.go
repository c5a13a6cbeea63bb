// Package progress tracks which tasks and contingencies the user has marked
// done. Every toggle is written through to the session before it returns.
// A Tracker only guards its own copy; callers serving one session from
// several trackers must serialize them.
package progress

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

// ErrPersist is returned when a toggle could not be written to the cache. The
// in-memory selection is rolled back so both stay equal.
var ErrPersist = errors.New("selection not persisted")

// Tracker holds the two selection sets.
type Tracker struct {
	mu            sync.Mutex
	sess          *session.Session
	tasks         []model.ID
	contingencies []model.ID
}

// New loads the current selections from sess.
func New(ctx context.Context, sess *session.Session) *Tracker {
	return &Tracker{
		sess:          sess,
		tasks:         dedupe(sess.Selection(ctx, session.KeySelectedTasks)),
		contingencies: dedupe(sess.Selection(ctx, session.KeySelectedContingencies)),
	}
}

// ToggleTask flips id in the task selection and reports whether it is now
// selected.
func (t *Tracker) ToggleTask(ctx context.Context, id model.ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	universe := idsOf(t.sess.Tasks(ctx), func(x model.Task) model.ID { return x.ID })
	return t.toggle(ctx, &t.tasks, id, universe, session.KeySelectedTasks, session.KeyTaskProgress)
}

// ToggleContingency flips id in the contingency selection.
func (t *Tracker) ToggleContingency(ctx context.Context, id model.ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	universe := idsOf(t.sess.Contingencies(ctx), func(x model.Contingency) model.ID { return x.ID })
	return t.toggle(ctx, &t.contingencies, id, universe, session.KeySelectedContingencies, session.KeyContingencyProgress)
}

func (t *Tracker) toggle(ctx context.Context, set *[]model.ID, id model.ID, universe []model.ID, selKey, progKey string) (bool, error) {
	prev := slices.Clone(*set)
	next, selected := flip(prev, id)
	if !t.sess.SaveSelection(ctx, selKey, progKey, next, progressData(universe, next)) {
		// Put back whatever was cached before so the two copies agree again.
		t.sess.SaveSelection(ctx, selKey, progKey, prev, progressData(universe, prev))
		return !selected, fmt.Errorf("%w: %s %d", ErrPersist, selKey, id)
	}
	*set = next
	return selected, nil
}

// SelectedTasks returns the selected task ids in selection order.
func (t *Tracker) SelectedTasks() []model.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.tasks)
}

// SelectedContingencies returns the selected contingency ids.
func (t *Tracker) SelectedContingencies() []model.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.contingencies)
}

// TaskProgress is the {id, status} list over the area's tasks.
func (t *Tracker) TaskProgress(ctx context.Context) []model.ProgressItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	universe := idsOf(t.sess.Tasks(ctx), func(x model.Task) model.ID { return x.ID })
	return progressData(universe, t.tasks)
}

// ContingencyProgress is the {id, status} list over the area's contingencies.
func (t *Tracker) ContingencyProgress(ctx context.Context) []model.ProgressItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	universe := idsOf(t.sess.Contingencies(ctx), func(x model.Contingency) model.ID { return x.ID })
	return progressData(universe, t.contingencies)
}

func flip(set []model.ID, id model.ID) ([]model.ID, bool) {
	if i := slices.Index(set, id); i >= 0 {
		return slices.Delete(slices.Clone(set), i, i+1), false
	}
	return append(slices.Clone(set), id), true
}

// progressData marks every id of universe with 1 when selected and 0 when
// not. Selected ids missing from universe (catalog not loaded) are appended.
func progressData(universe, selected []model.ID) []model.ProgressItem {
	out := make([]model.ProgressItem, 0, len(universe)+len(selected))
	seen := make(map[model.ID]bool, len(universe))
	for _, id := range universe {
		seen[id] = true
		out = append(out, model.ProgressItem{ID: id, Status: model.StatusOf(slices.Contains(selected, id))})
	}
	for _, id := range selected {
		if !seen[id] {
			out = append(out, model.ProgressItem{ID: id, Status: model.StatusCompleted})
		}
	}
	return out
}

func idsOf[T any](items []T, id func(T) model.ID) []model.ID {
	out := make([]model.ID, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

func dedupe(ids []model.ID) []model.ID {
	out := make([]model.ID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

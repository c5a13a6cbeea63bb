package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// step is one side effect of a submission and how to undo it.
type step struct {
	kind     model.ProgressKind
	id       model.ID
	created  bool
	previous model.Status
}

// saga records the side effects of one submission.
type saga struct {
	id     string
	api    Backend
	logger *zap.Logger

	mu    sync.Mutex
	steps []step
}

func (s *saga) record(st step) {
	s.mu.Lock()
	s.steps = append(s.steps, st)
	s.mu.Unlock()
}

func (s *saga) created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.steps {
		if st.created {
			n++
		}
	}
	return n
}

// upsert makes sure a completed record exists for key. An existing record is
// reused and only updated when still pending.
func (s *saga) upsert(ctx context.Context, index map[model.ProgressKey]model.ProgressRecord, key model.ProgressKey) error {
	if rec, ok := index[key]; ok {
		if rec.Status.Completed() {
			return nil
		}
		if err := s.api.UpdateProgressStatus(ctx, key.Kind, rec.ID, model.StatusCompleted); err != nil {
			return err
		}
		s.record(step{kind: key.Kind, id: rec.ID, previous: rec.Status})
		return nil
	}
	rec, err := s.api.CreateProgress(ctx, model.ProgressRecord{
		Kind:         key.Kind,
		DefinitionID: key.DefinitionID,
		Status:       model.StatusCompleted,
		UserID:       key.UserID,
		Date:         key.Date,
	})
	if err != nil {
		return err
	}
	s.record(step{kind: key.Kind, id: rec.ID, created: true})
	return nil
}

// compensate undoes every recorded step, newest first. It keeps going past
// failures and returns them joined.
func (s *saga) compensate(ctx context.Context) error {
	s.mu.Lock()
	steps := append([]step(nil), s.steps...)
	s.steps = nil
	s.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		var err error
		if st.created {
			err = s.api.DeleteProgress(ctx, st.kind, st.id)
		} else {
			err = s.api.UpdateProgressStatus(ctx, st.kind, st.id, st.previous)
		}
		if err != nil {
			s.logger.Error("compensation failed",
				zap.String("submission", s.id),
				zap.String("kind", string(st.kind)),
				zap.Int64("record_id", int64(st.id)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("undo %s record %d: %w", st.kind, st.id, err))
			continue
		}
		s.logger.Info("compensated", zap.String("submission", s.id), zap.String("kind", string(st.kind)), zap.Int64("record_id", int64(st.id)))
	}
	return errors.Join(errs...)
}

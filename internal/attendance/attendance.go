// Package attendance records the daily check-in made at login.
package attendance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Backend is the attendance part of the REST client.
type Backend interface {
	AttendanceToday(ctx context.Context, userID model.ID) (bool, error)
	CreateAttendance(ctx context.Context, a model.Attendance) error
}

// Service checks users in.
type Service struct {
	api    Backend
	now    func() time.Time
	logger *zap.Logger
}

// New constructs a Service.
func New(api Backend, logger *zap.Logger) *Service {
	return &Service{api: api, now: time.Now, logger: logger}
}

// EnsureCheckedIn posts a check-in for userID unless one already exists
// today. It reports whether a new check-in was created.
func (s *Service) EnsureCheckedIn(ctx context.Context, userID model.ID, loc model.Location) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("%w: no user id", apperr.ErrAuth)
	}
	exists, err := s.api.AttendanceToday(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	if exists {
		return false, nil
	}
	rec := model.Attendance{UserID: userID, CheckIn: s.now().UTC(), Location: loc}
	if err := s.api.CreateAttendance(ctx, rec); err != nil {
		return false, fmt.Errorf("record attendance: %w", err)
	}
	s.logger.Info("checked in", zap.Int64("user_id", int64(userID)))
	return true, nil
}

package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

type fakeBackend struct {
	areas         []model.Area
	tasks         []model.Task
	contingencies []model.Contingency
	records       []model.ProgressRecord
	failTasks     error
}

func (f *fakeBackend) Areas(context.Context) ([]model.Area, error) { return f.areas, nil }

func (f *fakeBackend) Tasks(context.Context) ([]model.Task, error) {
	if f.failTasks != nil {
		return nil, f.failTasks
	}
	return f.tasks, nil
}

func (f *fakeBackend) Contingencies(context.Context) ([]model.Contingency, error) {
	return f.contingencies, nil
}

func (f *fakeBackend) ProgressRecords(_ context.Context, kind model.ProgressKind, userID model.ID) ([]model.ProgressRecord, error) {
	if kind != model.ProgressBucket {
		return nil, errors.New("unexpected kind")
	}
	return f.records, nil
}

func scenario() *fakeBackend {
	today := model.DayOf(time.Now())
	return &fakeBackend{
		areas: []model.Area{
			{ID: 3, Name: "Gate A", Type: "1"},
			{ID: 4, Name: "Lounge", Type: "2"},
		},
		tasks: []model.Task{
			{ID: 1, Text: "Mop", Type: "1"},
			{ID: 2, Text: "Dust", Type: "1"},
			{ID: 3, Text: "Polish", Type: "2"},
			{ID: 4, Text: "Empty bins", Type: "1"},
		},
		contingencies: []model.Contingency{{ID: 9, Name: "Spill", Type: "1"}, {ID: 10, Name: "Leak", Type: "2"}},
		records:       []model.ProgressRecord{{ID: 10, Kind: model.ProgressBucket, DefinitionID: 3, UserID: 42, Date: today}},
	}
}

func openSession() *session.Session {
	return session.Open(context.Background(), cache.New(cache.NewMemoryKV(), zap.NewNop()), 0)
}

func TestLoadResolvesAndFilters(t *testing.T) {
	ctx := context.Background()
	sess := openSession()
	st, err := New(scenario(), zap.NewNop()).Load(ctx, sess, 42, Options{})
	require.NoError(t, err)

	require.True(t, st.Assigned)
	require.Equal(t, model.ID(3), st.Area.ID)
	require.Equal(t, model.ID(10), st.ProgressBucketID)
	require.Equal(t, model.ReportStandard, st.Type)
	require.Equal(t, []model.ID{1, 2, 4}, []model.ID{st.Tasks[0].ID, st.Tasks[1].ID, st.Tasks[2].ID})
	require.Len(t, st.Tasks, 3)
	require.Equal(t, []model.Contingency{{ID: 9, Name: "Spill", Type: "1"}}, st.Contingencies)

	require.Len(t, sess.Tasks(ctx), 3)
	cached, ok := sess.Area(ctx)
	require.True(t, ok)
	require.Equal(t, "Gate A", cached.Name)
}

func TestAssignmentChangeDropsWork(t *testing.T) {
	ctx := context.Background()
	sess := openSession()
	api := scenario()
	loader := New(api, zap.NewNop())
	_, err := loader.Load(ctx, sess, 42, Options{})
	require.NoError(t, err)
	require.True(t, sess.SaveSelection(ctx, session.KeySelectedTasks, session.KeyTaskProgress, []model.ID{1}, nil))

	// Same area keeps the selection.
	st, err := loader.Load(ctx, sess, 42, Options{})
	require.NoError(t, err)
	require.Equal(t, []model.ID{1}, st.SelectedTasks)

	api.records = append(api.records, model.ProgressRecord{ID: 11, DefinitionID: 4, UserID: 42, Date: api.records[0].Date})
	st, err = loader.Load(ctx, sess, 42, Options{})
	require.NoError(t, err)
	require.Equal(t, model.ID(4), st.Area.ID)
	require.Empty(t, st.SelectedTasks)
	require.Equal(t, []model.Task{{ID: 3, Text: "Polish", Type: "2"}}, st.Tasks)
}

func TestNoAssignmentIsEmptyState(t *testing.T) {
	ctx := context.Background()
	sess := openSession()
	sess.SaveCredentials(ctx, session.Credentials{Token: "tok", UserID: 7})
	st, err := New(scenario(), zap.NewNop()).Load(ctx, sess, 7, Options{})
	require.NoError(t, err)
	require.False(t, st.Assigned)
	require.Nil(t, st.Area)

	creds, ok := sess.Credentials(ctx)
	require.True(t, ok)
	require.Equal(t, "tok", creds.Token)
}

func TestBatchFailureFailsLoad(t *testing.T) {
	api := scenario()
	api.failTasks = &apperr.RequestError{Kind: apperr.ErrNetwork, Op: "GET /tasks", Status: 500}
	sess := openSession()
	_, err := New(api, zap.NewNop()).Load(context.Background(), sess, 42, Options{})
	require.ErrorIs(t, err, apperr.ErrNetwork)
	_, ok := sess.Area(context.Background())
	require.False(t, ok)
}

func TestContingencyAreaOverride(t *testing.T) {
	ctx := context.Background()
	loader := New(scenario(), zap.NewNop())
	st, err := loader.Load(ctx, openSession(), 42, Options{Type: model.ReportContingency, AreaID: 4})
	require.NoError(t, err)
	require.Equal(t, model.ReportContingency, st.Type)
	require.Equal(t, model.ID(4), st.Area.ID)
	require.Equal(t, []model.Contingency{{ID: 10, Name: "Leak", Type: "2"}}, st.Contingencies)

	_, err = loader.Load(ctx, openSession(), 42, Options{AreaID: 99})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMissingUser(t *testing.T) {
	_, err := New(scenario(), zap.NewNop()).Load(context.Background(), openSession(), 0, Options{})
	require.ErrorIs(t, err, apperr.ErrAuth)
}

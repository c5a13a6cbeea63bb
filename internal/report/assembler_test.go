package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/progress"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	nextID  model.ID
	records map[model.ProgressKind][]model.ProgressRecord
	calls   []string
	reports []model.NewReport
	failOn  string
}

func newFake() *fakeBackend {
	return &fakeBackend{nextID: 100, records: map[model.ProgressKind][]model.ProgressRecord{}}
}

func (f *fakeBackend) hit(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn == call {
		return &apperr.RequestError{Kind: apperr.ErrNetwork, Op: call, Status: 500, Message: "boom"}
	}
	return nil
}

func (f *fakeBackend) ProgressRecords(_ context.Context, kind model.ProgressKind, _ model.ID) ([]model.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("list " + string(kind)); err != nil {
		return nil, err
	}
	return append([]model.ProgressRecord(nil), f.records[kind]...), nil
}

func (f *fakeBackend) CreateProgress(_ context.Context, rec model.ProgressRecord) (model.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit(fmt.Sprintf("create %s %d", rec.Kind, rec.DefinitionID)); err != nil {
		return model.ProgressRecord{}, err
	}
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.Kind] = append(f.records[rec.Kind], rec)
	return rec, nil
}

func (f *fakeBackend) UpdateProgressStatus(_ context.Context, kind model.ProgressKind, id model.ID, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit(fmt.Sprintf("update %s %d %d", kind, id, status)); err != nil {
		return err
	}
	for i, rec := range f.records[kind] {
		if rec.ID == id {
			f.records[kind][i].Status = status
		}
	}
	return nil
}

func (f *fakeBackend) DeleteProgress(_ context.Context, kind model.ProgressKind, id model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit(fmt.Sprintf("delete %s %d", kind, id)); err != nil {
		return err
	}
	kept := f.records[kind][:0]
	for _, rec := range f.records[kind] {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	f.records[kind] = kept
	return nil
}

func (f *fakeBackend) CreateReport(_ context.Context, r model.NewReport) (model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("create report"); err != nil {
		return model.Report{}, err
	}
	f.reports = append(f.reports, r)
	return model.Report{ID: 500, UserID: r.UserID, BucketID: r.BucketID, Content: json.RawMessage(fmt.Sprintf("%q", r.Content))}, nil
}

func (f *fakeBackend) count(kind model.ProgressKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[kind])
}

func newAssembler(api Backend) *Assembler {
	return New(api, []model.PhotoSlot{model.SlotBefore, model.SlotAfter}, zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }), WithFanout(2))
}

// workspace seeds a session the way the workspace loader leaves it for user
// 42 assigned to area 3.
func workspace(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()
	sess := session.Open(ctx, cache.New(cache.NewMemoryKV(), zap.NewNop()), 0)
	require.True(t, sess.SaveCredentials(ctx, session.Credentials{Token: "tok", Role: "user", UserID: 42}))
	require.True(t, sess.SetArea(ctx, model.Area{ID: 3, Name: "Gate A", Type: "1"}))
	require.True(t, sess.SetTasks(ctx, []model.Task{
		{ID: 1, Text: "Mop", Type: "1"},
		{ID: 2, Text: "Dust", Type: "1"},
		{ID: 4, Text: "Empty bins", Type: "1"},
	}))
	require.True(t, sess.SetContingencies(ctx, []model.Contingency{{ID: 9, Name: "Spill", Type: "1"}}))
	return sess
}

func selectAndPhotograph(t *testing.T, sess *session.Session, tasks ...model.ID) {
	t.Helper()
	ctx := context.Background()
	tr := progress.New(ctx, sess)
	for _, id := range tasks {
		_, err := tr.ToggleTask(ctx, id)
		require.NoError(t, err)
	}
	require.True(t, sess.SetPhotoURL(ctx, model.SlotBefore, "https://img/before.jpg"))
	require.True(t, sess.SetPhotoURL(ctx, model.SlotAfter, "https://img/after.jpg"))
}

func TestSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1, 4)

	rep, err := newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.NoError(t, err)
	require.Equal(t, model.ID(500), rep.ID)

	require.Len(t, api.reports, 1)
	posted := api.reports[0]
	require.Equal(t, model.ID(42), posted.UserID)
	require.Equal(t, model.ID(3), posted.BucketID)
	require.Nil(t, posted.ContingencyID)

	var content model.ReportContent
	require.NoError(t, json.Unmarshal([]byte(posted.Content), &content))
	require.Equal(t, model.ReportStandard, content.Type)
	require.Len(t, content.Tasks, 2)
	require.Equal(t, "Mop", content.Tasks[0].Text)
	require.Equal(t, model.StatusCompleted, content.Tasks[1].Status)
	require.NotNil(t, content.Photos.Before)
	require.NotNil(t, content.Photos.After)
	require.Nil(t, content.Photos.During)
	require.Empty(t, content.Contingencies)
	require.Equal(t, fixedNow, content.CreatedAt)

	require.Equal(t, 2, api.count(model.ProgressTask))
	for _, rec := range api.records[model.ProgressTask] {
		require.Equal(t, model.Day("2024-03-05"), rec.Date)
		require.Equal(t, model.ID(42), rec.UserID)
	}

	require.Empty(t, sess.Selection(ctx, session.KeySelectedTasks))
	_, ok := sess.PhotoURL(ctx, model.SlotBefore)
	require.False(t, ok)
	creds, ok := sess.Credentials(ctx)
	require.True(t, ok)
	require.Equal(t, "tok", creds.Token)
	_, ok = sess.Area(ctx)
	require.True(t, ok)
}

func TestPreconditionsListEveryViolation(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	sess := workspace(t)

	_, err := newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, []string{"no tasks selected", "before photo missing", "after photo missing"}, apperr.Reasons(err))
	require.Empty(t, api.calls)

	_, err = newAssembler(api).Assemble(ctx, Request{Type: model.ReportContingency})
	require.Equal(t, []string{"no user id", "no area assigned", "no contingencies selected", "before photo missing", "after photo missing"}, apperr.Reasons(err))
	require.Empty(t, api.calls)
}

func TestUpsertReusesExistingRecords(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	today := model.DayOf(fixedNow)
	api.records[model.ProgressTask] = []model.ProgressRecord{
		{ID: 1, Kind: model.ProgressTask, DefinitionID: 1, UserID: 42, Status: model.StatusCompleted, Date: today},
		{ID: 2, Kind: model.ProgressTask, DefinitionID: 2, UserID: 42, Status: model.StatusPending, Date: today},
		{ID: 3, Kind: model.ProgressTask, DefinitionID: 4, UserID: 42, Status: model.StatusCompleted, Date: "2024-03-04"},
		{ID: 4, Kind: model.ProgressTask, DefinitionID: 4, UserID: 7, Status: model.StatusCompleted, Date: today},
	}
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1, 2, 4)

	_, err := newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.NoError(t, err)
	require.Contains(t, api.calls, "update task 2 1")
	require.Contains(t, api.calls, "create task 4")
	require.NotContains(t, api.calls, "create task 1")
	require.NotContains(t, api.calls, "create task 2")
	require.Equal(t, 5, api.count(model.ProgressTask))

	// Submitting the same work again creates nothing new.
	selectAndPhotograph(t, sess, 1, 2, 4)
	_, err = newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.NoError(t, err)
	require.Equal(t, 5, api.count(model.ProgressTask))
}

func TestFailureCompensatesAndKeepsCache(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	api.records[model.ProgressTask] = []model.ProgressRecord{
		{ID: 7, Kind: model.ProgressTask, DefinitionID: 2, UserID: 42, Status: model.StatusPending, Date: model.DayOf(fixedNow)},
	}
	api.failOn = "create report"
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1, 2)

	_, err := newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.ErrorIs(t, err, apperr.ErrNetwork)

	// The created record is gone and the reused one is pending again.
	require.Equal(t, []model.ProgressRecord{
		{ID: 7, Kind: model.ProgressTask, DefinitionID: 2, UserID: 42, Status: model.StatusPending, Date: model.DayOf(fixedNow)},
	}, api.records[model.ProgressTask])
	require.Contains(t, api.calls, "delete task 101")
	require.Contains(t, api.calls, "update task 7 0")

	require.ElementsMatch(t, []model.ID{1, 2}, sess.Selection(ctx, session.KeySelectedTasks))
	_, ok := sess.PhotoURL(ctx, model.SlotAfter)
	require.True(t, ok)
}

func TestFailedRecordAbortsBeforeReport(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	api.failOn = "create task 4"
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1, 4)

	_, err := newAssembler(api).Submit(ctx, sess, model.ReportStandard, 42)
	require.ErrorIs(t, err, apperr.ErrNetwork)
	require.NotContains(t, api.calls, "create report")
	require.Zero(t, api.count(model.ProgressTask))
	require.Len(t, sess.Selection(ctx, session.KeySelectedTasks), 2)
}

func TestCompensationFailureIsReported(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1)
	api.failOn = "create report"

	a := newAssembler(&failingDelete{fakeBackend: api})
	_, err := a.Submit(ctx, sess, model.ReportStandard, 42)
	require.ErrorIs(t, err, apperr.ErrNetwork)
	require.ErrorContains(t, err, "undo task record 101")
}

type failingDelete struct{ *fakeBackend }

func (failingDelete) DeleteProgress(context.Context, model.ProgressKind, model.ID) error {
	return fmt.Errorf("backend gone")
}

func TestContingencyFlow(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	sess := workspace(t)
	tr := progress.New(ctx, sess)
	_, err := tr.ToggleContingency(ctx, 9)
	require.NoError(t, err)
	selectAndPhotograph(t, sess)

	_, err = newAssembler(api).Submit(ctx, sess, model.ReportContingency, 42)
	require.NoError(t, err)
	require.Len(t, api.reports, 1)
	require.NotNil(t, api.reports[0].ContingencyID)
	require.Equal(t, model.ID(9), *api.reports[0].ContingencyID)

	var content model.ReportContent
	require.NoError(t, json.Unmarshal([]byte(api.reports[0].Content), &content))
	require.Equal(t, model.ReportContingency, content.Type)
	require.Equal(t, []model.ContingencySummary{{ID: 9, Name: "Spill", Status: model.StatusCompleted}}, content.Contingencies)
	require.Empty(t, content.Tasks)
	require.Equal(t, 1, api.count(model.ProgressContingency))
}

// slowAck commits task 2 at once but takes a while to acknowledge it, and
// fails task 1 after a short delay.
type slowAck struct{ *fakeBackend }

func (s slowAck) CreateProgress(ctx context.Context, rec model.ProgressRecord) (model.ProgressRecord, error) {
	if rec.DefinitionID == 1 {
		time.Sleep(20 * time.Millisecond)
		return s.fakeBackend.CreateProgress(ctx, rec)
	}
	created, err := s.fakeBackend.CreateProgress(ctx, rec)
	if err != nil {
		return created, err
	}
	select {
	case <-ctx.Done():
		return model.ProgressRecord{}, ctx.Err()
	case <-time.After(80 * time.Millisecond):
		return created, nil
	}
}

func TestSiblingFailureStillCompensatesCommittedRecords(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	api.failOn = "create task 1"
	sess := workspace(t)
	selectAndPhotograph(t, sess, 1, 2)

	_, err := newAssembler(slowAck{fakeBackend: api}).Submit(ctx, sess, model.ReportStandard, 42)
	require.ErrorIs(t, err, apperr.ErrNetwork)
	require.Zero(t, api.count(model.ProgressTask), "calls %v", api.calls)
	require.Contains(t, api.calls, "delete task 101")
	require.NotContains(t, api.calls, "create report")
}

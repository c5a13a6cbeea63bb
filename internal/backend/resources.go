package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	var s model.Session
	err := c.call(ctx, http.MethodPost, "/Users/login", nil, map[string]string{
		"username": username,
		"password": password,
	}, &s)
	return s, err
}

// Users lists console accounts.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	return get[model.User](ctx, c, "/users", nil)
}

// Areas lists the area (bucket) catalog.
func (c *Client) Areas(ctx context.Context) ([]model.Area, error) {
	return get[model.Area](ctx, c, "/buckets", nil)
}

// Area fetches one area.
func (c *Client) Area(ctx context.Context, id model.ID) (model.Area, error) {
	return getOne[model.Area](ctx, c, pathf("/buckets/%d", id))
}

// Tasks lists the task catalog.
func (c *Client) Tasks(ctx context.Context) ([]model.Task, error) {
	return get[model.Task](ctx, c, "/tasks", nil)
}

// Task fetches one task definition.
func (c *Client) Task(ctx context.Context, id model.ID) (model.Task, error) {
	return getOne[model.Task](ctx, c, pathf("/tasks/%d", id))
}

// Contingencies lists the contingency catalog.
func (c *Client) Contingencies(ctx context.Context) ([]model.Contingency, error) {
	return get[model.Contingency](ctx, c, "/contingencies", nil)
}

// Contingency fetches one contingency definition.
func (c *Client) Contingency(ctx context.Context, id model.ID) (model.Contingency, error) {
	return getOne[model.Contingency](ctx, c, pathf("/contingencies/%d", id))
}

// ProgressRecords lists progress records of kind. A non-zero userID is sent as
// the user_id filter; the caller must not assume the backend honoured it.
func (c *Client) ProgressRecords(ctx context.Context, kind model.ProgressKind, userID model.ID) ([]model.ProgressRecord, error) {
	var query url.Values
	if userID != 0 {
		query = url.Values{"user_id": {userID.String()}}
	}
	var raw []json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/"+kind.Resource(), query, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.ProgressRecord, 0, len(raw))
	for _, item := range raw {
		rec := model.ProgressRecord{Kind: kind}
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateProgress posts a new progress record and returns it with its id.
func (c *Client) CreateProgress(ctx context.Context, rec model.ProgressRecord) (model.ProgressRecord, error) {
	payload := map[string]any{
		rec.Kind.ForeignKey(): rec.DefinitionID,
		"status":              rec.Status,
		"user_id":             rec.UserID,
		"date":                rec.Date,
	}
	created := model.ProgressRecord{Kind: rec.Kind}
	if err := c.call(ctx, http.MethodPost, "/"+rec.Kind.Resource(), nil, payload, &created); err != nil {
		return model.ProgressRecord{}, err
	}
	out := rec
	out.ID = created.ID
	return out, nil
}

// UpdateProgressStatus sets the status of an existing progress record.
func (c *Client) UpdateProgressStatus(ctx context.Context, kind model.ProgressKind, id model.ID, status model.Status) error {
	return c.call(ctx, http.MethodPut, pathf("/%s/%d", kind.Resource(), id), nil, map[string]any{"status": status}, nil)
}

// DeleteProgress removes a progress record.
func (c *Client) DeleteProgress(ctx context.Context, kind model.ProgressKind, id model.ID) error {
	return c.call(ctx, http.MethodDelete, pathf("/%s/%d", kind.Resource(), id), nil, nil, nil)
}

// Reports lists submitted reports, optionally for one user.
func (c *Client) Reports(ctx context.Context, userID model.ID) ([]model.Report, error) {
	var query url.Values
	if userID != 0 {
		query = url.Values{"user_id": {userID.String()}}
	}
	return get[model.Report](ctx, c, "/reports", query)
}

// Report fetches one submitted report.
func (c *Client) Report(ctx context.Context, id model.ID) (model.Report, error) {
	return getOne[model.Report](ctx, c, pathf("/reports/%d", id))
}

// CreateReport submits a report document.
func (c *Client) CreateReport(ctx context.Context, r model.NewReport) (model.Report, error) {
	var created model.Report
	if err := c.call(ctx, http.MethodPost, "/reports", nil, r, &created); err != nil {
		return model.Report{}, err
	}
	created.UserID = r.UserID
	created.BucketID = r.BucketID
	created.ContingencyID = r.ContingencyID
	created.Content = json.RawMessage(mustQuote(r.Content))
	return created, nil
}

// AttendanceToday reports whether userID already checked in today.
func (c *Client) AttendanceToday(ctx context.Context, userID model.ID) (bool, error) {
	var out struct {
		Exists bool `json:"attendanceExists"`
	}
	if err := c.call(ctx, http.MethodGet, pathf("/attendance/today/%d", userID), nil, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// CreateAttendance records a check-in.
func (c *Client) CreateAttendance(ctx context.Context, a model.Attendance) error {
	return c.call(ctx, http.MethodPost, "/attendance", nil, a, nil)
}

// AssignArea assigns userID to an area.
func (c *Client) AssignArea(ctx context.Context, userID, areaID model.ID) error {
	return c.call(ctx, http.MethodPut, pathf("/user_buckets/%d", userID), nil, map[string]any{"bucketId": areaID}, nil)
}

func mustQuote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

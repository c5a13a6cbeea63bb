// Package model contains the typed shapes shared across packages. Every
// backend payload is decoded into these types on receipt.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Area is a work area (bucket) a cleaner is assigned to. Its Type decides
// which tasks and contingencies apply.
type Area struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Type     Code   `json:"type"`
	Terminal string `json:"terminal,omitempty"`
	Level    string `json:"level,omitempty"`
}

func (a *Area) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Area
	if err := f.get(&out.ID, "id", "ID"); err != nil {
		return err
	}
	if err := f.get(&out.Type, "type", "Type", "type_code"); err != nil {
		return err
	}
	if out.Name, err = f.text("name", "Area", "area", "Name"); err != nil {
		return err
	}
	if out.Terminal, err = f.text("terminal", "Terminal"); err != nil {
		return err
	}
	if out.Level, err = f.text("level", "Nivel", "nivel", "Level"); err != nil {
		return err
	}
	*a = out
	return nil
}

// TypeCode implements catalog.Typed.
func (a Area) TypeCode() Code { return a.Type }

// Label is the human readable description used in reports.
func (a Area) Label() string {
	var extra []string
	if a.Terminal != "" {
		extra = append(extra, a.Terminal)
	}
	if a.Level != "" {
		extra = append(extra, "Level "+a.Level)
	}
	if len(extra) == 0 {
		return a.Name
	}
	return fmt.Sprintf("%s (%s)", a.Name, strings.Join(extra, ", "))
}

// Task is an entry of the global task catalog.
type Task struct {
	ID   ID     `json:"id"`
	Text string `json:"text"`
	Type Code   `json:"type"`
}

func (t *Task) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Task
	if err := f.get(&out.ID, "id", "ID"); err != nil {
		return err
	}
	if err := f.get(&out.Type, "type", "Type"); err != nil {
		return err
	}
	if out.Text, err = f.text("text", "info", "Info", "description"); err != nil {
		return err
	}
	*t = out
	return nil
}

// TypeCode implements catalog.Typed.
func (t Task) TypeCode() Code { return t.Type }

// Contingency is an entry of the global contingency (incident) catalog.
type Contingency struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Type Code   `json:"type"`
}

func (c *Contingency) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Contingency
	if err := f.get(&out.ID, "id", "ID"); err != nil {
		return err
	}
	if err := f.get(&out.Type, "type", "Type"); err != nil {
		return err
	}
	if out.Name, err = f.text("name", "Name"); err != nil {
		return err
	}
	*c = out
	return nil
}

// TypeCode implements catalog.Typed.
func (c Contingency) TypeCode() Code { return c.Type }

// ProgressKind names the definition a progress record tracks.
type ProgressKind string

const (
	ProgressBucket      ProgressKind = "bucket"
	ProgressTask        ProgressKind = "task"
	ProgressContingency ProgressKind = "contingency"
)

// Resource is the backend collection holding records of this kind.
func (k ProgressKind) Resource() string {
	switch k {
	case ProgressBucket:
		return "progress_buckets"
	case ProgressTask:
		return "progress_tasks"
	default:
		return "progress_contingencies"
	}
}

// ForeignKey is the JSON field referencing the definition.
func (k ProgressKind) ForeignKey() string {
	return string(k) + "_id"
}

// ProgressRecord is one user's work against one definition on one date.
type ProgressRecord struct {
	ID           ID           `json:"id"`
	Kind         ProgressKind `json:"-"`
	DefinitionID ID           `json:"definition_id"`
	Status       Status       `json:"status"`
	UserID       ID           `json:"user_id"`
	Date         Day          `json:"date"`
}

func (p *ProgressRecord) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	out := ProgressRecord{Kind: p.Kind}
	if err := f.get(&out.ID, "id", "ID", "insertId"); err != nil {
		return err
	}
	if err := f.get(&out.DefinitionID, "definition_id", "bucket_id", "task_id", "contingency_id"); err != nil {
		return err
	}
	if err := f.get(&out.Status, "status", "Status"); err != nil {
		return err
	}
	if err := f.get(&out.UserID, "user_id", "userId", "User_ID"); err != nil {
		return err
	}
	if err := f.get(&out.Date, "date", "Date", "created_at"); err != nil {
		return err
	}
	*p = out
	return nil
}

// Key is the composite identity (kind, definition, user, date).
func (p ProgressRecord) Key() ProgressKey {
	return ProgressKey{Kind: p.Kind, DefinitionID: p.DefinitionID, UserID: p.UserID, Date: p.Date}
}

// ProgressKey is the uniqueness key for progress records.
type ProgressKey struct {
	Kind         ProgressKind
	DefinitionID ID
	UserID       ID
	Date         Day
}

// ProgressItem pairs a definition with its selection status.
type ProgressItem struct {
	ID     ID     `json:"id"`
	Status Status `json:"status"`
}

// ReportType discriminates the two reporting flows.
type ReportType string

const (
	ReportStandard    ReportType = "Standard"
	ReportContingency ReportType = "Contingency"
)

// ParseReportType accepts the discriminator case-insensitively.
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ReportStandard, nil
	case "contingency":
		return ReportContingency, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// PhotoSlot is one of the evidence photo positions.
type PhotoSlot string

const (
	SlotBefore PhotoSlot = "before"
	SlotDuring PhotoSlot = "during"
	SlotAfter  PhotoSlot = "after"
)

// Slots lists every slot in display order.
var Slots = []PhotoSlot{SlotBefore, SlotDuring, SlotAfter}

// ParseSlot validates a slot name.
func ParseSlot(s string) (PhotoSlot, error) {
	slot := PhotoSlot(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Slots {
		if slot == known {
			return slot, nil
		}
	}
	return "", fmt.Errorf("unknown photo slot %q", s)
}

// PhotoMap holds the URL uploaded for each slot; nil means not uploaded.
type PhotoMap struct {
	Before *string `json:"before"`
	During *string `json:"during"`
	After  *string `json:"after"`
}

// Get returns the URL stored for slot.
func (m PhotoMap) Get(slot PhotoSlot) *string {
	switch slot {
	case SlotBefore:
		return m.Before
	case SlotDuring:
		return m.During
	case SlotAfter:
		return m.After
	}
	return nil
}

// Set stores url for slot.
func (m *PhotoMap) Set(slot PhotoSlot, url *string) {
	switch slot {
	case SlotBefore:
		m.Before = url
	case SlotDuring:
		m.During = url
	case SlotAfter:
		m.After = url
	}
}

// TaskSummary is a task as embedded in a report.
type TaskSummary struct {
	ID     ID     `json:"id"`
	Text   string `json:"text"`
	Status Status `json:"status"`
}

func (s *TaskSummary) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out TaskSummary
	if err := f.get(&out.ID, "id", "ID"); err != nil {
		return err
	}
	if err := f.get(&out.Status, "status", "Status"); err != nil {
		return err
	}
	if out.Text, err = f.text("text", "info", "Info", "Name"); err != nil {
		return err
	}
	*s = out
	return nil
}

// ContingencySummary is a contingency as embedded in a report.
type ContingencySummary struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

func (s *ContingencySummary) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out ContingencySummary
	if err := f.get(&out.ID, "id", "ID"); err != nil {
		return err
	}
	if err := f.get(&out.Status, "status", "Status"); err != nil {
		return err
	}
	if out.Name, err = f.text("name", "Name"); err != nil {
		return err
	}
	*s = out
	return nil
}

// ReportContent is the normalized report document payload.
type ReportContent struct {
	Type          ReportType           `json:"Report_Type"`
	Area          *Area                `json:"area,omitempty"`
	Tasks         []TaskSummary        `json:"tasks"`
	Contingencies []ContingencySummary `json:"contingencies"`
	Photos        PhotoMap             `json:"photos"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Report is a submitted report as stored by the backend. Content keeps the raw
// stored payload; render.Parse turns it into a ReportContent.
type Report struct {
	ID            ID              `json:"id"`
	UserID        ID              `json:"user_id"`
	BucketID      ID              `json:"bucket_id"`
	ContingencyID *ID             `json:"contingencies_id,omitempty"`
	Content       json.RawMessage `json:"content"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (r *Report) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Report
	if err := f.get(&out.ID, "id", "ID", "insertId"); err != nil {
		return err
	}
	if err := f.get(&out.UserID, "user_id", "userId"); err != nil {
		return err
	}
	if err := f.get(&out.BucketID, "bucket_id", "bucketId"); err != nil {
		return err
	}
	var contingency ID
	if err := f.get(&contingency, "contingencies_id", "contingency_id"); err != nil {
		return err
	}
	if contingency != 0 {
		out.ContingencyID = &contingency
	}
	out.Content = f["content"]
	created, err := f.text("created_at", "createdAt")
	if err != nil {
		return err
	}
	if out.CreatedAt, err = ParseTimestamp(created); err != nil {
		return err
	}
	*r = out
	return nil
}

// NewReport is the payload posted to create a report.
type NewReport struct {
	UserID        ID     `json:"user_id"`
	BucketID      ID     `json:"bucket_id"`
	ContingencyID *ID    `json:"contingencies_id"`
	Content       string `json:"content"`
}

// User is a console account.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Session is what a successful login yields.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Location is a check-in coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Attendance is a daily check-in.
type Attendance struct {
	ID       ID        `json:"id,omitempty"`
	UserID   ID        `json:"user_id"`
	CheckIn  time.Time `json:"check_in"`
	Location Location  `json:"location"`
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

const (
	// ExportReportTask is scheduled each time a PDF export is requested.
	ExportReportTask = "report:export"
)

// ExportPayload is serialized into the task payload so the worker knows which
// report to render and which export row to update.
type ExportPayload struct {
	ExportID string   `json:"export_id"`
	ReportID model.ID `json:"report_id"`
	Hydrate  bool     `json:"hydrate"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewExportTask builds the asynq task for payload.
func NewExportTask(payload ExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExportReportTask, data), nil
}

// EnqueueExport enqueues a report export job. The export id doubles as the
// task id so a repeated request cannot queue the same export twice.
func EnqueueExport(ctx context.Context, client Enqueuer, payload ExportPayload) error {
	task, err := NewExportTask(payload)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.Timeout(2 * time.Minute), asynq.TaskID(payload.ExportID)}
	if _, err := client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue export task: %w", err)
	}
	return nil
}

// DecodeExport reads the payload of an export task.
func DecodeExport(task *asynq.Task) (ExportPayload, error) {
	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExportPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	if payload.ExportID == "" || payload.ReportID == 0 {
		return ExportPayload{}, fmt.Errorf("export payload missing ids: %s", task.Payload())
	}
	return payload, nil
}

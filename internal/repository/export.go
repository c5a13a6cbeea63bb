package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// ExportStatus enumerates the lifecycle of a PDF export job.
type ExportStatus string

const (
	StatusQueued     ExportStatus = "queued"
	StatusProcessing ExportStatus = "processing"
	StatusCompleted  ExportStatus = "completed"
	StatusFailed     ExportStatus = "failed"
)

// Export represents a row in the report_exports table.
type Export struct {
	ID           string       `json:"id"`
	ReportID     model.ID     `json:"reportId"`
	RequestedBy  model.ID     `json:"requestedBy"`
	ObjectKey    *string      `json:"objectKey,omitempty"`
	Status       ExportStatus `json:"status"`
	Pages        int          `json:"pages"`
	Text         string       `json:"text,omitempty"`
	ErrorMessage *string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ExportRepository wraps all SQL used by the API and the export worker.
type ExportRepository struct {
	pool *pgxpool.Pool
}

// NewExportRepository constructs a repository.
func NewExportRepository(pool *pgxpool.Pool) *ExportRepository {
	return &ExportRepository{pool: pool}
}

// Create inserts a queued export before the job is enqueued.
func (r *ExportRepository) Create(ctx context.Context, exp *Export) error {
	now := time.Now().UTC()
	exp.Status = StatusQueued
	exp.CreatedAt = now
	exp.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_exports (id, report_id, requested_by, status, pages, text, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,'',NULL,$5,$6)
	`, exp.ID, int64(exp.ReportID), int64(exp.RequestedBy), exp.Status, exp.CreatedAt, exp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

// Get returns an export by id.
func (r *ExportRepository) Get(ctx context.Context, id string) (*Export, error) {
	var (
		exp         Export
		reportID    int64
		requestedBy int64
		objectKey   sql.NullString
		errorMsg    sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, report_id, requested_by, object_key, status, pages, COALESCE(text,''), error_message, created_at, updated_at
		FROM report_exports WHERE id=$1
	`, id)
	if err := row.Scan(&exp.ID, &reportID, &requestedBy, &objectKey, &exp.Status, &exp.Pages, &exp.Text, &errorMsg, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("export %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("select export: %w", err)
	}
	exp.ReportID = model.ID(reportID)
	exp.RequestedBy = model.ID(requestedBy)
	if objectKey.Valid {
		key := objectKey.String
		exp.ObjectKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		exp.ErrorMessage = &msg
	}
	return &exp, nil
}

// MarkProcessing sets the status to processing.
func (r *ExportRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, StatusProcessing, nil, nil, nil, nil)
}

// MarkFailed records why the export could not be produced.
func (r *ExportRepository) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.update(ctx, id, StatusFailed, nil, nil, nil, &msg)
}

// MarkCompleted stores where the PDF landed and its extracted text.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id, objectKey, text string, pages int) error {
	return r.update(ctx, id, StatusCompleted, &objectKey, &text, &pages, nil)
}

func (r *ExportRepository) update(ctx context.Context, id string, status ExportStatus, objectKey, text *string, pages *int, errorMsg *string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_exports
		SET status=$1,
			object_key = COALESCE($2, object_key),
			text = COALESCE($3, text),
			pages = COALESCE($4, pages),
			error_message = $5,
			updated_at=$6
		WHERE id=$7
	`, status, objectKey, text, pages, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("update export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

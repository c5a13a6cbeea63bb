package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	pdfutil "github.com/dharsanguruparan/CleanOps/internal/pdf"
	"github.com/dharsanguruparan/CleanOps/internal/queue"
	"github.com/dharsanguruparan/CleanOps/internal/render"
)

// Ledger tracks export status; *repository.ExportRepository implements it.
type Ledger interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, msg string) error
	MarkCompleted(ctx context.Context, id, objectKey, text string, pages int) error
}

// Reports reads reports and catalogs from the backend.
type Reports interface {
	render.Catalog
	Report(ctx context.Context, id model.ID) (model.Report, error)
}

// Artifacts stores rendered PDFs; *s3storage.Storage implements it.
type Artifacts interface {
	UploadExport(ctx context.Context, objectKey string, data []byte) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	ledger   Ledger
	reports  Reports
	store    Artifacts
	exporter *render.Exporter
	logger   *zap.Logger
	retries  func(ctx context.Context) (count, max int, ok bool)
}

// NewProcessor constructs a worker processor.
func NewProcessor(ledger Ledger, reports Reports, store Artifacts, exporter *render.Exporter, logger *zap.Logger) *Processor {
	return &Processor{ledger: ledger, reports: reports, store: store, exporter: exporter, logger: logger, retries: taskRetries}
}

// taskRetries reads the attempt counters asynq puts on the handler context.
// Outside a worker ok is false.
func taskRetries(ctx context.Context) (count, max int, ok bool) {
	count, ok = asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	max, ok = asynq.GetMaxRetry(ctx)
	return count, max, ok
}

// Handler registers the export job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExportReportTask, p.handleExport)
	return mux
}

func (p *Processor) handleExport(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeExport(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.Process(ctx, payload)
}

// Process renders one report export and records the outcome. A report that
// no longer exists or cannot be parsed fails the export without retrying.
// Other errors leave the export processing until asynq runs out of retries.
func (p *Processor) Process(ctx context.Context, payload queue.ExportPayload) error {
	log := p.logger.With(zap.String("export_id", payload.ExportID), zap.Int64("report_id", int64(payload.ReportID)))
	failure := func(err error) error {
		permanent := errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAuth) || errors.Is(err, apperr.ErrValidation)
		if count, max, ok := p.retries(ctx); !permanent && ok && count < max {
			log.Warn("export will retry", zap.Int("retry", count), zap.Int("max_retry", max), zap.Error(err))
			return err
		}
		log.Error("export failed", zap.Error(err))
		if markErr := p.ledger.MarkFailed(ctx, payload.ExportID, err.Error()); markErr != nil {
			log.Warn("mark failed", zap.Error(markErr))
		}
		if permanent {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if err := p.ledger.MarkProcessing(ctx, payload.ExportID); err != nil {
		return failure(err)
	}
	rep, err := p.reports.Report(ctx, payload.ReportID)
	if err != nil {
		return failure(err)
	}
	content, err := render.Parse(rep)
	if err != nil {
		return failure(fmt.Errorf("%w: %v", apperr.ErrValidation, err))
	}
	if payload.Hydrate {
		if content, err = render.Hydrate(ctx, p.reports, content); err != nil {
			return failure(err)
		}
	}
	var buf bytes.Buffer
	if err := p.exporter.Export(ctx, content, &buf); err != nil {
		return failure(err)
	}
	pages, err := pdfutil.Pages(buf.Bytes())
	if err != nil {
		return failure(err)
	}
	text := pdfutil.Join(pages)
	key := ObjectKey(payload)
	if err := p.store.UploadExport(ctx, key, buf.Bytes()); err != nil {
		return failure(err)
	}
	if err := p.ledger.MarkCompleted(ctx, payload.ExportID, key, text, len(pages)); err != nil {
		return failure(err)
	}
	log.Info("report exported", zap.String("object_key", key), zap.Int("pages", len(pages)), zap.Int("bytes", buf.Len()))
	return nil
}

// ObjectKey is where the PDF of an export is stored.
func ObjectKey(payload queue.ExportPayload) string {
	return fmt.Sprintf("reports/%d/%s.pdf", payload.ReportID, payload.ExportID)
}

// Package render reads submitted reports back into their normalized content
// and presents them as a Markdown preview, a paginated PDF or a spreadsheet
// index.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/CleanOps/internal/catalog"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Parse decodes the stored content of r. The backend keeps content as a JSON
// string holding the document; an embedded object is accepted as well.
func Parse(r model.Report) (model.ReportContent, error) {
	raw := bytes.TrimSpace(r.Content)
	if len(raw) == 0 || string(raw) == "null" {
		return model.ReportContent{}, fmt.Errorf("report %d has no content", r.ID)
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return model.ReportContent{}, fmt.Errorf("report %d content: %w", r.ID, err)
		}
		raw = []byte(inner)
	}
	var content model.ReportContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return model.ReportContent{}, fmt.Errorf("report %d content: %w", r.ID, err)
	}
	if content.Type == "" {
		content.Type = model.ReportStandard
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = r.CreatedAt
	}
	return content, nil
}

// Catalog supplies current definitions for hydration.
type Catalog interface {
	Tasks(ctx context.Context) ([]model.Task, error)
	Contingencies(ctx context.Context) ([]model.Contingency, error)
}

// Hydrate refreshes task texts and contingency names from the catalogs,
// fetched together. Entries no longer in a catalog keep their stored text.
func Hydrate(ctx context.Context, cat Catalog, content model.ReportContent) (model.ReportContent, error) {
	var (
		tasks         []model.Task
		contingencies []model.Contingency
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = cat.Tasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		contingencies, err = cat.Contingencies(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return content, fmt.Errorf("hydrate report: %w", err)
	}

	taskIdx := catalog.IndexByID(tasks, func(t model.Task) model.ID { return t.ID })
	out := content
	out.Tasks = make([]model.TaskSummary, len(content.Tasks))
	for i, t := range content.Tasks {
		if def, ok := taskIdx[t.ID]; ok && def.Text != "" {
			t.Text = def.Text
		}
		out.Tasks[i] = t
	}
	contIdx := catalog.IndexByID(contingencies, func(c model.Contingency) model.ID { return c.ID })
	out.Contingencies = make([]model.ContingencySummary, len(content.Contingencies))
	for i, c := range content.Contingencies {
		if def, ok := contIdx[c.ID]; ok && def.Name != "" {
			c.Name = def.Name
		}
		out.Contingencies[i] = c
	}
	return out, nil
}

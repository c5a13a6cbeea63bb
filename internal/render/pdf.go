package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// ImageFetcher downloads a photo for embedding.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches photos over HTTP.
type HTTPFetcher struct {
	http *resty.Client
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{http: resty.New().SetTimeout(timeout)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	return resp.Body(), nil
}

// Exporter writes reports as PDF documents.
type Exporter struct {
	images ImageFetcher
	logger *zap.Logger
}

// NewExporter constructs an Exporter.
func NewExporter(images ImageFetcher, logger *zap.Logger) *Exporter {
	return &Exporter{images: images, logger: logger}
}

type fetched struct {
	data    []byte
	imgType string
	err     error
}

// Export lays content out with Plan and writes the PDF to w. A photo that
// cannot be fetched or decoded is replaced by a placeholder line.
func (e *Exporter) Export(ctx context.Context, content model.ReportContent, w io.Writer) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(Margin, Margin, Margin)
	doc.SetAutoPageBreak(false, BottomMargin)
	doc.SetTitle(fmt.Sprintf("%s report", content.Type), true)
	doc.SetCreator("CleanOps", true)
	if !content.CreatedAt.IsZero() {
		doc.SetCreationDate(content.CreatedAt)
		doc.SetModificationDate(content.CreatedAt)
	}
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "", 11)
	measure := func(s string) int {
		return max(len(doc.SplitLines([]byte(tr(s)), ContentWidth)), 1)
	}
	pages := Plan(content, measure)
	images := e.prefetch(ctx, pages)

	for _, page := range pages {
		doc.AddPage()
		for _, b := range page.Blocks {
			switch b.Kind {
			case BlockHeading:
				doc.SetFont("Helvetica", "B", 14)
				doc.SetXY(Margin, b.Y)
				doc.CellFormat(ContentWidth, headingHeight, tr(b.Text), "B", 0, "L", false, 0, "")
			case BlockText:
				doc.SetFont("Helvetica", "", 11)
				doc.SetXY(Margin, b.Y)
				doc.MultiCell(ContentWidth, lineHeight, tr(b.Text), "", "L", false)
			case BlockImage:
				e.drawImage(doc, b, images[b.Slot])
			}
		}
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// prefetch downloads every photo of the plan concurrently. Failures are kept
// per slot; they never fail the export.
func (e *Exporter) prefetch(ctx context.Context, pages []Page) map[model.PhotoSlot]*fetched {
	out := make(map[model.PhotoSlot]*fetched)
	var g errgroup.Group
	for _, page := range pages {
		for _, b := range page.Blocks {
			if b.Kind != BlockImage {
				continue
			}
			res := &fetched{}
			out[b.Slot] = res
			g.Go(func() error {
				if e.images == nil {
					res.err = fmt.Errorf("no image fetcher")
					return nil
				}
				res.data, res.err = e.images.Fetch(ctx, b.URL)
				if res.err == nil {
					res.imgType, res.err = imageType(res.data)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

func (e *Exporter) drawImage(doc *fpdf.Fpdf, b Block, img *fetched) {
	placeholder := func(err error) {
		e.logger.Warn("report photo unavailable", zap.String("slot", string(b.Slot)), zap.String("url", b.URL), zap.Error(err))
		doc.SetFont("Helvetica", "I", 11)
		doc.SetXY(Margin, b.Y)
		doc.CellFormat(ContentWidth, lineHeight, fmt.Sprintf("[image unavailable: %s]", b.Slot), "", 0, "L", false, 0, "")
	}
	if img == nil || img.err != nil {
		var err error
		if img != nil {
			err = img.err
		}
		placeholder(err)
		return
	}
	opts := fpdf.ImageOptions{ImageType: img.imgType, ReadDpi: false}
	name := "photo-" + string(b.Slot)
	info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
	if doc.Err() || info == nil {
		err := doc.Error()
		doc.ClearError()
		placeholder(err)
		return
	}
	w, h := 0.0, b.Height
	if iw, ih := info.Width(), info.Height(); ih > 0 && iw/ih*h > ContentWidth {
		w, h = ContentWidth, 0
	}
	doc.ImageOptions(name, Margin, b.Y, w, h, false, opts, 0, "")
}

// imageType validates data and returns the fpdf image type for it.
func imageType(data []byte) (string, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "JPG", nil
	case "image/png":
		return "PNG", nil
	case "image/gif":
		return "GIF", nil
	}
	return "", fmt.Errorf("unsupported image type %s", http.DetectContentType(data))
}

package render

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// IndexRow is one line of the report index sheet.
type IndexRow struct {
	Report  model.Report
	Content model.ReportContent
	// Err is set when the stored content could not be parsed.
	Err error
}

var indexHeaders = []string{"Report ID", "Submitted", "User ID", "Area", "Type", "Tasks done", "Tasks total", "Contingencies", "Photos"}

var indexWidths = []float64{12, 20, 10, 36, 14, 12, 12, 16, 10}

const indexSheet = "Reports"

// ExportIndexXLSX writes a spreadsheet listing rows to w.
func ExportIndexXLSX(rows []IndexRow, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(indexSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for col, header := range indexHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(indexSheet, cell, header); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(indexSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(indexSheet, name, name, indexWidths[col]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, row := range rows {
		values := indexValues(row)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(indexSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(indexSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func indexValues(row IndexRow) []any {
	r, c := row.Report, row.Content
	submitted := ""
	if !r.CreatedAt.IsZero() {
		submitted = r.CreatedAt.UTC().Format("2006-01-02 15:04")
	} else if !c.CreatedAt.IsZero() {
		submitted = c.CreatedAt.UTC().Format("2006-01-02 15:04")
	}
	if row.Err != nil {
		return []any{int64(r.ID), submitted, int64(r.UserID), fmt.Sprintf("#%d", r.BucketID), "unreadable", "", "", "", ""}
	}
	area := fmt.Sprintf("#%d", r.BucketID)
	if c.Area != nil {
		area = c.Area.Label()
	}
	photos := 0
	for _, slot := range model.Slots {
		if u := c.Photos.Get(slot); u != nil && *u != "" {
			photos++
		}
	}
	return []any{
		int64(r.ID), submitted, int64(r.UserID), area, string(c.Type),
		completed(c.Tasks), len(c.Tasks), len(c.Contingencies), photos,
	}
}

// IndexRows parses each report for the index; parse failures become rows
// marked unreadable.
func IndexRows(reports []model.Report) []IndexRow {
	rows := make([]IndexRow, len(reports))
	for i, r := range reports {
		content, err := Parse(r)
		rows[i] = IndexRow{Report: r, Content: content, Err: err}
	}
	return rows
}

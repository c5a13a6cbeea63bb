package render

import (
	"fmt"
	"unicode/utf8"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// A4 portrait geometry in millimetres.
const (
	PageWidth    = 210.0
	PageHeight   = 297.0
	Margin       = 15.0
	BottomMargin = 20.0
	ContentWidth = PageWidth - 2*Margin

	headingHeight = 10.0
	lineHeight    = 6.0
	imageHeight   = 70.0
	blockGap      = 2.0
)

// BlockKind tells the writer how to draw a block.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockText
	BlockImage
)

// Block is one positioned piece of the document.
type Block struct {
	Kind   BlockKind
	Text   string
	Slot   model.PhotoSlot
	URL    string
	Y      float64
	Height float64
}

// Page is a laid out page. Section names the logical section it belongs to.
type Page struct {
	Section string
	Blocks  []Block
}

// Measure returns how many lines text wraps to across ContentWidth.
type Measure func(text string) int

// approxMeasure assumes about 95 body-font characters per line.
func approxMeasure(text string) int {
	n := (utf8.RuneCountInString(text) + 94) / 95
	return max(n, 1)
}

// Plan lays content out over pages. Every section starts a new page and a
// block that would cross the bottom margin moves to a continuation page.
// The same content and measure always yield the same plan.
func Plan(content model.ReportContent, measure Measure) []Page {
	if measure == nil {
		measure = approxMeasure
	}
	text := func(s string) Block {
		return Block{Kind: BlockText, Text: s, Height: float64(measure(s)) * lineHeight}
	}
	heading := func(s string) Block {
		return Block{Kind: BlockHeading, Text: s, Height: headingHeight}
	}

	summary := []Block{heading(fmt.Sprintf("%s report", content.Type))}
	if content.Area != nil {
		summary = append(summary, text("Area: "+content.Area.Label()))
	}
	if !content.CreatedAt.IsZero() {
		summary = append(summary, text("Submitted: "+content.CreatedAt.UTC().Format("2006-01-02 15:04 MST")))
	}
	summary = append(summary,
		text(fmt.Sprintf("Tasks completed: %d of %d", completed(content.Tasks), len(content.Tasks))),
		text(fmt.Sprintf("Contingencies reported: %d", len(content.Contingencies))),
	)

	tasks := []Block{heading("Tasks")}
	if len(content.Tasks) == 0 {
		tasks = append(tasks, text("No tasks."))
	}
	for _, t := range content.Tasks {
		tasks = append(tasks, text(marker(t.Status)+" "+label(t.Text, t.ID)))
	}

	var contingencies []Block
	if len(content.Contingencies) > 0 {
		contingencies = []Block{heading("Contingencies")}
		for _, c := range content.Contingencies {
			contingencies = append(contingencies, text(marker(c.Status)+" "+label(c.Name, c.ID)))
		}
	}

	photos := []Block{heading("Photos")}
	for _, slot := range model.Slots {
		title := slotTitle(slot)
		url := content.Photos.Get(slot)
		if url == nil || *url == "" {
			photos = append(photos, text(title+": not provided"))
			continue
		}
		photos = append(photos, text(title+":"), Block{Kind: BlockImage, Slot: slot, URL: *url, Height: imageHeight})
	}

	var pages []Page
	for _, section := range []struct {
		name   string
		blocks []Block
	}{
		{"Summary", summary},
		{"Tasks", tasks},
		{"Contingencies", contingencies},
		{"Photos", photos},
	} {
		if len(section.blocks) == 0 {
			continue
		}
		pages = append(pages, paginate(section.name, section.blocks)...)
	}
	return pages
}

func paginate(section string, blocks []Block) []Page {
	limit := PageHeight - BottomMargin
	pages := []Page{{Section: section}}
	y := Margin
	for _, b := range blocks {
		cur := &pages[len(pages)-1]
		if y+b.Height > limit && len(cur.Blocks) > 0 {
			pages = append(pages, Page{Section: section})
			cur = &pages[len(pages)-1]
			y = Margin
		}
		b.Y = y
		cur.Blocks = append(cur.Blocks, b)
		y += b.Height + blockGap
	}
	return pages
}

func completed(tasks []model.TaskSummary) int {
	n := 0
	for _, t := range tasks {
		if t.Status.Completed() {
			n++
		}
	}
	return n
}

package render

import (
	"fmt"
	"strings"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Preview renders content as Markdown.
func Preview(content model.ReportContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s report\n\n", content.Type)
	if content.Area != nil {
		fmt.Fprintf(&b, "**Area:** %s\n\n", content.Area.Label())
	}
	if !content.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "**Submitted:** %s\n\n", content.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	b.WriteString("## Tasks\n\n")
	if len(content.Tasks) == 0 {
		b.WriteString("_No tasks._\n\n")
	}
	for _, t := range content.Tasks {
		fmt.Fprintf(&b, "- %s %s\n", marker(t.Status), label(t.Text, t.ID))
	}
	if len(content.Tasks) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Contingencies\n\n")
	if len(content.Contingencies) == 0 {
		b.WriteString("_No contingencies._\n\n")
	}
	for _, c := range content.Contingencies {
		fmt.Fprintf(&b, "- %s %s\n", marker(c.Status), label(c.Name, c.ID))
	}
	if len(content.Contingencies) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Photos\n\n")
	for _, slot := range model.Slots {
		title := slotTitle(slot)
		if url := content.Photos.Get(slot); url != nil && *url != "" {
			fmt.Fprintf(&b, "- %s: ![%s](%s)\n", title, title, *url)
		} else {
			fmt.Fprintf(&b, "- %s: _not provided_\n", title)
		}
	}
	return b.String()
}

func marker(s model.Status) string {
	if s.Completed() {
		return "[x]"
	}
	return "[ ]"
}

func label(text string, id model.ID) string {
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("#%d", id)
	}
	return text
}

func slotTitle(slot model.PhotoSlot) string {
	s := string(slot)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Package pdfutil reads text back out of rendered report PDFs so exports can
// be searched and verified.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Pages returns the plain text of every page of a PDF, in page order.
func Pages(data []byte) ([]string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	pages := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, content)
	}
	return pages, nil
}

// ExtractText joins the text of all pages.
func ExtractText(data []byte) (string, error) {
	pages, err := Pages(data)
	if err != nil {
		return "", err
	}
	return Join(pages), nil
}

// Join concatenates page texts, one page per line block.
func Join(pages []string) string {
	return strings.Join(pages, "\n")
}

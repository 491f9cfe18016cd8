package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"examrag/internal/logger"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted text of one document page.
type Page struct {
	Number int
	Text   string
}

// ExtractPDFText extracts text page by page, one line per text row so that
// question numbering at the start of a line survives extraction.
func ExtractPDFText(filePath string) (pages []Page, err error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	// the pdf reader panics on unsupported stream filters
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader panic in %s: %v", filepath.Base(filePath), rec)
		}
	}()

	numPages := r.NumPage()
	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text := pageText(p)
		if strings.TrimSpace(text) != "" {
			pages = append(pages, Page{Number: pageIndex, Text: text})
		}
	}

	logger.Debug("Extracted PDF text", "file", filepath.Base(filePath), "pages", numPages, "with_text", len(pages))
	return pages, nil
}

func pageText(p pdf.Page) string {
	rows, err := p.GetTextByRow()
	if err == nil && len(rows) > 0 {
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			var sb strings.Builder
			for _, t := range row.Content {
				sb.WriteString(t.S)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	str, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return str
}

package extractor

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// ExtractDOCX extracts text from a DOCX file. DOCX has no physical pages, so
// paragraphs are grouped into ~3000-character logical pages. Each paragraph
// stays on its own line to keep question boundaries detectable.
func ExtractDOCX(filePath string) ([]Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	paragraphs := splitDOCXParagraphs(r.Editable().GetContent())

	const charsPerPage = 3000
	var pages []Page
	var pageBuf strings.Builder
	pageNum := 1

	for _, para := range paragraphs {
		if pageBuf.Len() > 0 && pageBuf.Len()+len(para) > charsPerPage {
			pages = append(pages, Page{Number: pageNum, Text: pageBuf.String()})
			pageNum++
			pageBuf.Reset()
		}
		if pageBuf.Len() > 0 {
			pageBuf.WriteString("\n")
		}
		pageBuf.WriteString(para)
	}
	if pageBuf.Len() > 0 {
		pages = append(pages, Page{Number: pageNum, Text: pageBuf.String()})
	}

	return pages, nil
}

// splitDOCXParagraphs splits document XML on <w:p paragraph tags and returns
// the non-empty text of each paragraph.
func splitDOCXParagraphs(xmlStr string) []string {
	var paragraphs []string
	for i, part := range strings.Split(xmlStr, "<w:p") {
		if i > 0 {
			part = "<w:p" + part
		}
		cleaned := strings.TrimSpace(unescapeXML(stripTags(part)))
		if cleaned != "" {
			paragraphs = append(paragraphs, cleaned)
		}
	}
	return paragraphs
}

func stripTags(xmlStr string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range xmlStr {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

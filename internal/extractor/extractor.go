package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"examrag/internal/logger"
	"examrag/internal/ocr"
	"examrag/internal/outcome"

	"golang.org/x/sync/errgroup"
)

// Recognizer is the part of the OCR router the extractor needs.
type Recognizer interface {
	Available() bool
	Route(ctx context.Context, image []byte) outcome.Outcome[ocr.Recognition]
}

// Document is the raw material extracted from one source file.
type Document struct {
	Name   string
	Pages  []Page
	Images []Image
}

// Text joins page texts with newlines.
func (d *Document) Text() string {
	var sb strings.Builder
	for _, p := range d.Pages {
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// CombinedText is the page text followed by every image's OCR text.
func (d *Document) CombinedText() string {
	var sb strings.Builder
	sb.WriteString(d.Text())
	for _, img := range d.Images {
		if img.OCRText != "" {
			sb.WriteString("\n[Image OCR]: ")
			sb.WriteString(img.OCRText)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Extractor pulls text and images from documents and OCRs the images.
type Extractor struct {
	Router     Recognizer
	OCRWorkers int
	// ImageSource overrides image extraction; nil means Poppler.
	ImageSource func(ctx context.Context, path string) ([]Image, error)
}

func New(router Recognizer, workers int) *Extractor {
	if workers <= 0 {
		workers = 3
	}
	return &Extractor{Router: router, OCRWorkers: workers}
}

// Extract reads a PDF or DOCX. Text and images are extracted concurrently;
// either side failing is logged and leaves that side empty. A PDF whose text
// extraction failed is an error unless the image side produced images.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	name := filepath.Base(path)
	doc := &Document{Name: name}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		pages, err := ExtractDOCX(path)
		if err != nil {
			return nil, err
		}
		doc.Pages = pages
		return doc, nil
	case ".pdf":
	default:
		return nil, fmt.Errorf("unsupported file type: %s", name)
	}

	var textErr, imgErr error
	var images []Image
	var g errgroup.Group
	g.Go(func() error {
		doc.Pages, textErr = ExtractPDFText(path)
		return nil
	})
	g.Go(func() error {
		if e.Router == nil || !e.Router.Available() {
			return nil
		}
		source := e.ImageSource
		if source == nil {
			source = ExtractPDFImages
		}
		images, imgErr = source(ctx, path)
		return nil
	})
	_ = g.Wait()

	if textErr != nil {
		logger.Warn("Text extraction failed", "file", name, "err", textErr)
	}
	if imgErr != nil {
		logger.Warn("Image extraction failed", "file", name, "err", imgErr)
	}
	if textErr != nil && len(images) == 0 {
		return nil, fmt.Errorf("extract %s: %w", name, textErr)
	}

	if len(images) > 0 {
		doc.Images = e.recognize(ctx, name, images)
	}
	return doc, nil
}

// recognize OCRs images in a bounded pool. Completion order is arbitrary;
// results are sorted by page and index after the join. Images whose OCR
// produced no text are dropped.
func (e *Extractor) recognize(ctx context.Context, name string, images []Image) []Image {
	logger.Info("Processing OCR for images", "file", name, "images", len(images), "workers", e.OCRWorkers)

	results := make(chan Image, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.OCRWorkers)
	for _, img := range images {
		img := img
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out := e.Router.Route(gctx, img.Data)
			if !out.HasValue() {
				return nil
			}
			img.OCRText = out.Value.Text
			img.IsMathHeavy = out.Value.MathHeavy
			results <- img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("OCR interrupted", "file", name, "err", err)
	}
	close(results)

	var processed []Image
	for img := range results {
		processed = append(processed, img)
	}
	sort.Slice(processed, func(i, j int) bool {
		if processed[i].Page != processed[j].Page {
			return processed[i].Page < processed[j].Page
		}
		return processed[i].Index < processed[j].Index
	})

	logger.Info("Processed images", "file", name, "with_text", len(processed), "total", len(images))
	return processed
}

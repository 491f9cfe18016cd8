package extractor

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"examrag/internal/ocr"
	"examrag/internal/outcome"
)

// ========== stripTags ==========

func TestStripTags_BasicXML(t *testing.T) {
	input := "<w:t>Hello</w:t> <w:t>World</w:t>"
	got := stripTags(input)
	if got != "Hello World" {
		t.Errorf("stripTags = %q, want 'Hello World'", got)
	}
}

func TestStripTags_NoTags(t *testing.T) {
	input := "Just plain text"
	got := stripTags(input)
	if got != input {
		t.Errorf("stripTags = %q, want %q", got, input)
	}
}

func TestStripTags_EmptyString(t *testing.T) {
	got := stripTags("")
	if got != "" {
		t.Errorf("stripTags of empty = %q, want empty", got)
	}
}

func TestStripTags_NestedTags(t *testing.T) {
	input := "<root><child>Content</child></root>"
	got := stripTags(input)
	if got != "Content" {
		t.Errorf("stripTags = %q, want 'Content'", got)
	}
}

func TestStripTags_SelfClosingTags(t *testing.T) {
	input := "Text<br/>More"
	got := stripTags(input)
	if got != "TextMore" {
		t.Errorf("stripTags = %q, want 'TextMore'", got)
	}
}

// ========== splitDOCXParagraphs ==========

func TestSplitDOCXParagraphs(t *testing.T) {
	xml := `<w:body><w:p><w:pPr><w:jc/></w:pPr><w:r><w:t>1. Define velocity.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>(a) State the unit &amp; symbol.</w:t></w:r></w:p><w:p></w:p></w:body>`
	got := splitDOCXParagraphs(xml)
	want := []string{"1. Define velocity.", "(a) State the unit & symbol."}
	if len(got) != len(want) {
		t.Fatalf("got %d paragraphs %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitDOCXParagraphs_NoPropertyLeak(t *testing.T) {
	got := splitDOCXParagraphs(`<w:p><w:pPr/><w:r><w:t>Hello</w:t></w:r></w:p>`)
	if len(got) != 1 || got[0] != "Hello" {
		t.Errorf("got %q, want [Hello]", got)
	}
}

// ========== image file ordering ==========

func TestSortImageFiles_NumericOrder(t *testing.T) {
	files := []string{
		"/tmp/img-10-000.png",
		"/tmp/img-2-001.png",
		"/tmp/img-2-000.png",
		"/tmp/img-1-003.png",
	}
	sortImageFiles(files, pdfimagesName)
	want := []string{
		"/tmp/img-1-003.png",
		"/tmp/img-2-000.png",
		"/tmp/img-2-001.png",
		"/tmp/img-10-000.png",
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestExtractNums_NoMatch(t *testing.T) {
	if nums := extractNums("cover.jpg", regexp.MustCompile(`-(\d+)\.png$`)); nums != nil {
		t.Errorf("extractNums = %v, want nil", nums)
	}
}

// ========== Document ==========

func TestCombinedText_AppendsImageOCR(t *testing.T) {
	doc := &Document{
		Pages: []Page{{Number: 1, Text: "1. Solve for x."}},
		Images: []Image{
			{Page: 1, OCRText: "x^2 = 4"},
			{Page: 2, OCRText: ""},
		},
	}
	got := doc.CombinedText()
	want := "1. Solve for x.\n\n[Image OCR]: x^2 = 4\n"
	if got != want {
		t.Errorf("CombinedText = %q, want %q", got, want)
	}
}

// ========== OCR fan-out ==========

type fakeRecognizer struct {
	texts map[string]string
	calls atomic.Int32
}

func (f *fakeRecognizer) Available() bool { return true }

func (f *fakeRecognizer) Route(ctx context.Context, image []byte) outcome.Outcome[ocr.Recognition] {
	f.calls.Add(1)
	// vary completion order
	time.Sleep(time.Duration(len(image)%3) * time.Millisecond)
	text := f.texts[string(image)]
	if text == "" {
		return outcome.None[ocr.Recognition]("no text")
	}
	return outcome.Ok(ocr.Recognition{Text: text, MathHeavy: strings.Contains(text, "=")})
}

func TestRecognize_SortedAndEmptyDropped(t *testing.T) {
	rec := &fakeRecognizer{texts: map[string]string{
		"p2i0":  "second page",
		"p1i1":  "y = mx + c",
		"p1i0":  "first",
		"blank": "",
	}}
	e := New(rec, 2)
	images := []Image{
		{Page: 2, Index: 0, Data: []byte("p2i0")},
		{Page: 1, Index: 1, Data: []byte("p1i1")},
		{Page: 3, Index: 0, Data: []byte("blank")},
		{Page: 1, Index: 0, Data: []byte("p1i0")},
	}

	got := e.recognize(context.Background(), "paper.pdf", images)
	if rec.calls.Load() != 4 {
		t.Errorf("recognizer called %d times, want 4", rec.calls.Load())
	}
	if len(got) != 3 {
		t.Fatalf("got %d images, want 3", len(got))
	}
	wantText := []string{"first", "y = mx + c", "second page"}
	for i, w := range wantText {
		if got[i].OCRText != w {
			t.Errorf("image %d text = %q, want %q", i, got[i].OCRText, w)
		}
	}
	if !got[1].IsMathHeavy {
		t.Error("equation image should carry the math-heavy flag")
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	e := New(nil, 1)
	if _, err := e.Extract(context.Background(), "notes.txt"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtract_BothSidesFail(t *testing.T) {
	e := New(&fakeRecognizer{}, 1)
	e.ImageSource = func(ctx context.Context, path string) ([]Image, error) {
		return nil, errors.New("no poppler")
	}
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	if _, err := e.Extract(context.Background(), missing); err == nil {
		t.Error("expected error when text and image extraction both fail")
	}
}

func TestExtract_TextFailureWithoutRouterFails(t *testing.T) {
	e := New(nil, 1)
	called := false
	e.ImageSource = func(ctx context.Context, path string) ([]Image, error) {
		called = true
		return nil, nil
	}
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	doc, err := e.Extract(context.Background(), missing)
	if called {
		t.Error("image source should be skipped when no OCR router is configured")
	}
	if err == nil {
		t.Errorf("text failure with no image side should fail, got doc %+v", doc)
	}
}

func TestExtract_TextFailureWithImagesDegrades(t *testing.T) {
	e := New(&fakeRecognizer{texts: map[string]string{"img": "x = 2"}}, 1)
	e.ImageSource = func(ctx context.Context, path string) ([]Image, error) {
		return []Image{{Page: 1, Index: 0, Data: []byte("img")}}, nil
	}
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	doc, err := e.Extract(context.Background(), missing)
	if err != nil {
		t.Fatalf("images should carry the document, got %v", err)
	}
	if len(doc.Pages) != 0 || len(doc.Images) != 1 || doc.Images[0].OCRText != "x = 2" {
		t.Errorf("doc = %+v", doc)
	}
}

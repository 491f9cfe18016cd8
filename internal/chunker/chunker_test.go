package chunker

import (
	"fmt"
	"strings"
	"testing"

	"examrag/internal/extractor"
	"examrag/internal/metadata"
)

// ========== question chunking ==========

func TestSplit_TwoQuestions(t *testing.T) {
	c := New(500, 100)
	pieces := c.Split("1. Solve x+2=4\n2. Solve 3x=9", Question)
	if len(pieces) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(pieces), pieces)
	}
	if pieces[0].Text != "1. Solve x+2=4" || pieces[1].Text != "2. Solve 3x=9" {
		t.Errorf("unexpected chunks: %q, %q", pieces[0].Text, pieces[1].Text)
	}
	if pieces[0].QuestionID != "1." || pieces[1].QuestionID != "2." {
		t.Errorf("question ids = %q, %q", pieces[0].QuestionID, pieces[1].QuestionID)
	}
}

func TestSplit_NBoundariesNChunks(t *testing.T) {
	c := New(500, 100)
	for n := 1; n <= 12; n++ {
		var lines []string
		lines = append(lines, "SECTION A", "Answer ALL questions.")
		for i := 1; i <= n; i++ {
			lines = append(lines, fmt.Sprintf("Question %d", i), "Explain the relevant principle briefly")
		}
		pieces := c.Split(strings.Join(lines, "\n"), Question)
		if len(pieces) != n {
			t.Fatalf("n=%d: got %d chunks", n, len(pieces))
		}
		for i, p := range pieces {
			want := fmt.Sprintf("Question %d", i+1)
			if !strings.HasPrefix(p.Text, want) {
				t.Errorf("n=%d chunk %d starts %q, want %q", n, i, p.Text, want)
			}
		}
	}
}

func TestSplit_SubPartsAndContinuation(t *testing.T) {
	text := "Preamble text dropped\n(a) Define momentum.\ncontinued on this line\nii) State the law.\nProblem 4\nA car accelerates"
	pieces := New(500, 100).Split(text, Question)
	if len(pieces) != 3 {
		t.Fatalf("got %d chunks: %+v", len(pieces), pieces)
	}
	if pieces[0].Text != "(a) Define momentum.\ncontinued on this line" {
		t.Errorf("chunk 0 = %q", pieces[0].Text)
	}
	if pieces[0].QuestionID != "(a)" || pieces[1].QuestionID != "ii)" || pieces[2].QuestionID != "Problem 4" {
		t.Errorf("ids = %q %q %q", pieces[0].QuestionID, pieces[1].QuestionID, pieces[2].QuestionID)
	}
}

func TestSplit_NoBoundaryFallsBackToSentences(t *testing.T) {
	text := strings.Repeat("Explain why the current in a series circuit is constant everywhere. ", 20)
	pieces := New(500, 10).Split(text, Question)
	if len(pieces) == 0 {
		t.Fatal("expected sentence fallback chunks")
	}
	for _, p := range pieces {
		if p.QuestionID != "" {
			t.Errorf("sentence chunk carries question id %q", p.QuestionID)
		}
	}
}

// ========== sentence chunking ==========

func sentence(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestSplitSentences_RespectsBudget(t *testing.T) {
	c := New(50, 0)
	// each sentence ~ 100 chars = 25 tokens
	var parts []string
	for i := 0; i < 10; i++ {
		parts = append(parts, sentence(20))
	}
	chunks := c.splitSentences(strings.Join(parts, ". ") + ".")
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	for _, ch := range chunks {
		if EstimateTokens(ch) > 50+1 {
			t.Errorf("chunk exceeds budget: %d tokens", EstimateTokens(ch))
		}
	}
}

func TestSplitSentences_FloorDropsSmallChunks(t *testing.T) {
	c := New(100, 60)
	// big sentence ~ 75 tokens, then a short trailing one
	text := sentence(60) + ". " + sentence(60) + ". Short end."
	chunks := c.splitSentences(text)
	for i, ch := range chunks {
		if EstimateTokens(ch) < c.MinTokens {
			t.Errorf("chunk %d below floor: %d tokens", i, EstimateTokens(ch))
		}
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestSplitSentences_ShortDocumentKeepsFinalChunk(t *testing.T) {
	c := New(500, 100)
	chunks := c.splitSentences("Module 1: Algebra. Module 2: Calculus!")
	if len(chunks) != 1 || chunks[0] != "Module 1: Algebra Module 2: Calculus" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestSplitSentences_Empty(t *testing.T) {
	if chunks := New(500, 100).splitSentences("  ...!!! "); len(chunks) != 0 {
		t.Errorf("chunks = %q, want none", chunks)
	}
}

// ========== Build ==========

func TestBuild_AttachesMetadataAndImages(t *testing.T) {
	doc := &extractor.Document{
		Name:   "physics 2019 paper 2.pdf",
		Pages:  []extractor.Page{{Number: 1, Text: "1. Find $v = u + at$\n2. Evaluate $$\\int_0^1 x\\,dx$$"}},
		Images: []extractor.Image{{Page: 1, OCRText: "diagram"}},
	}
	md := metadata.Metadata{Subject: "Physics", Year: 2019, Paper: "PAPER 2"}
	chunks := New(500, 100).Build(doc, md)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.Contains(chunks[1].Content, "[Image OCR]: diagram") {
		t.Errorf("OCR text should continue the last question, got %q", chunks[1].Content)
	}
	if len(chunks[0].Images) != 1 || len(chunks[1].Images) != 0 {
		t.Error("images should attach to the first chunk only")
	}
	seen := map[string]bool{}
	for _, ch := range chunks {
		if ch.Subject != "Physics" || ch.Year != 2019 || ch.Paper != "PAPER 2" || ch.Type != Question {
			t.Errorf("metadata not propagated: %+v", ch)
		}
		if ch.ConfidenceScore != 0.9 {
			t.Errorf("confidence = %v", ch.ConfidenceScore)
		}
		if ch.ID == "" || seen[ch.ID] {
			t.Errorf("chunk id %q missing or duplicated", ch.ID)
		}
		seen[ch.ID] = true
	}
	if len(chunks[0].Equations) != 1 || chunks[0].Equations[0].Type != "inline" {
		t.Errorf("chunk 0 equations = %+v", chunks[0].Equations)
	}
	if len(chunks[1].Equations) != 1 || chunks[1].Equations[0].Type != "display" {
		t.Errorf("chunk 1 equations = %+v", chunks[1].Equations)
	}
}

func TestBuild_EmptyDocument(t *testing.T) {
	if chunks := New(500, 100).Build(&extractor.Document{Name: "blank.pdf"}, metadata.Metadata{}); chunks != nil {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

// ========== ExtractEquations ==========

func TestExtractEquations_DisplayNotDoubleCounted(t *testing.T) {
	eqs := ExtractEquations(`Given $x^2$ and $$ \frac{a}{b} $$ then $y$.`)
	if len(eqs) != 3 {
		t.Fatalf("got %d equations: %+v", len(eqs), eqs)
	}
	if eqs[0].Type != "display" || eqs[0].LaTeX != `\frac{a}{b}` || eqs[0].Text != `$$ \frac{a}{b} $$` {
		t.Errorf("display = %+v", eqs[0])
	}
	if eqs[1].LaTeX != "x^2" || eqs[2].LaTeX != "y" || eqs[1].Type != "inline" {
		t.Errorf("inline = %+v %+v", eqs[1], eqs[2])
	}
}

func TestExtractEquations_None(t *testing.T) {
	if eqs := ExtractEquations("No math here."); len(eqs) != 0 {
		t.Errorf("got %+v", eqs)
	}
}

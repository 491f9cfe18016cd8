// Package chunker splits document text into bounded, retrievable chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"examrag/internal/extractor"
	"examrag/internal/metadata"
)

// questionPatterns are tried in order against the start of each line.
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\d+\.?\s*`),     // 1. or 1
	regexp.MustCompile(`^\s*\([a-z]+\)\s*`), // (a)
	regexp.MustCompile(`^\s*[a-z]+\)\s*`),   // a)
	regexp.MustCompile(`^\s*[ivx]+\)\s*`),   // ii)
	regexp.MustCompile(`^Question\s+\d+`),
	regexp.MustCompile(`^Problem\s+\d+`),
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

const maxQuestionIDLen = 20

// pdfConfidence is the confidence assigned to chunks of extracted documents.
const pdfConfidence = 0.9

// Piece is a chunk of text before metadata is attached.
type Piece struct {
	Text       string
	QuestionID string
}

type Chunker struct {
	MaxTokens int
	MinTokens int
}

func New(maxTokens, minTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if minTokens < 0 {
		minTokens = 0
	}
	return &Chunker{MaxTokens: maxTokens, MinTokens: minTokens}
}

// EstimateTokens approximates tokens as characters / 4.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

// Split chunks text. Question content is split at question boundaries and
// falls back to sentence chunking when none are found.
func (c *Chunker) Split(text string, typ Type) []Piece {
	if typ == Question {
		if pieces := splitQuestions(text); len(pieces) > 0 {
			return pieces
		}
	}
	sentences := c.splitSentences(text)
	pieces := make([]Piece, len(sentences))
	for i, s := range sentences {
		pieces[i] = Piece{Text: s}
	}
	return pieces
}

// Build turns a document into chunks carrying its metadata. Images are
// attached to the first chunk only.
func (c *Chunker) Build(doc *extractor.Document, md metadata.Metadata) []Chunk {
	text := doc.CombinedText()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	typ := Question
	if md.IsSyllabus {
		typ = Syllabus
	}

	pieces := c.Split(text, typ)
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		ch := Chunk{
			ID:              newID(),
			Content:         p.Text,
			Type:            typ,
			Subject:         md.Subject,
			Year:            md.Year,
			Paper:           md.Paper,
			QuestionID:      p.QuestionID,
			Equations:       ExtractEquations(p.Text),
			ConfidenceScore: pdfConfidence,
			Source:          doc.Name,
		}
		if i == 0 {
			ch.Images = doc.Images
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// boundary returns the trimmed marker if line starts a new question.
func boundary(line string) (string, bool) {
	for _, re := range questionPatterns {
		if m := re.FindString(line); m != "" {
			return strings.TrimSpace(m), true
		}
	}
	return "", false
}

func splitQuestions(text string) []Piece {
	var pieces []Piece
	var current []string
	var id string
	started := false

	flush := func() {
		if started && len(current) > 0 {
			pieces = append(pieces, Piece{Text: strings.Join(current, "\n"), QuestionID: id})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if marker, ok := boundary(line); ok {
			flush()
			started = true
			id = truncate(marker, maxQuestionIDLen)
			current = []string{line}
			continue
		}
		if started {
			current = append(current, line)
		}
	}
	flush()
	return pieces
}

// splitSentences accumulates sentences up to MaxTokens and drops flushed
// chunks under MinTokens. When every chunk would be dropped, the final one
// is kept so short documents are not lost entirely.
func (c *Chunker) splitSentences(text string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	for _, s := range sentenceEnd.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		tokens := EstimateTokens(s)
		if currentTokens+tokens > c.MaxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
		current = append(current, s)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	kept := chunks[:0:0]
	for _, ch := range chunks {
		if EstimateTokens(ch) >= c.MinTokens {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 && len(chunks) > 0 {
		kept = append(kept, chunks[len(chunks)-1])
	}
	return kept
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package chunker

import (
	"examrag/internal/extractor"

	"github.com/google/uuid"
)

// Type is the kind of content a chunk holds.
type Type string

const (
	Question Type = "question"
	Syllabus Type = "syllabus"
	Mixed    Type = "mixed"
)

// Chunk is one retrievable unit. It is created here, enriched by the topic
// linker, embedded and persisted; it is not modified after persistence.
type Chunk struct {
	ID              string
	Content         string
	Type            Type
	Subject         string
	Year            int
	Paper           string
	QuestionID      string
	Topic           string
	SubTopic        string
	Images          []extractor.Image
	Equations       []Equation
	ConfidenceScore float64
	Source          string
}

// Equation is a math fragment found in chunk text.
type Equation struct {
	LaTeX string `json:"latex"`
	Text  string `json:"text"`
	Type  string `json:"type"`
}

func newID() string {
	return uuid.NewString()
}

// Package store persists chunks, embeddings and topic mappings and serves
// similarity, keyword and filtered queries over them.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Table names one of the two chunk corpora.
type Table string

const (
	Questions Table = "question_chunks"
	Syllabus  Table = "syllabus_chunks"
)

// Filter is an equality filter. Empty fields do not filter.
type Filter struct {
	Subject string
}

// QuestionRow is a persisted question chunk.
type QuestionRow struct {
	ID              string
	Content         string
	Embedding       []float32
	Subject         string
	Year            int
	Paper           string
	QuestionID      string
	Topic           string
	SubTopic        string
	Images          []byte // JSON
	Equations       []byte // JSON
	IsMathHeavy     bool
	ConfidenceScore float64
	Source          string
}

// SyllabusRow is a persisted syllabus chunk.
type SyllabusRow struct {
	ID         string
	Subject    string
	TopicTitle string
	ChunkText  string
	Embedding  []float32
	Module     string
	Source     string
}

// MappingRow is a persisted question-to-syllabus topic mapping.
type MappingRow struct {
	QuestionID      string
	TopicID         string
	ConfidenceScore float64
	MappingType     string
	Reasoning       string
}

// MappingDetail is a mapping joined with its question and syllabus rows.
type MappingDetail struct {
	QuestionID      string  `db:"question_id"`
	TopicID         string  `db:"topic_id"`
	ConfidenceScore float64 `db:"confidence_score"`
	MappingType     string  `db:"mapping_type"`
	Subject         string  `db:"subject"`
	Year            int     `db:"year"`
	Paper           string  `db:"paper"`
	IsMathHeavy     bool    `db:"is_math_heavy"`
	Module          string  `db:"module"`
	TopicTitle      string  `db:"topic_title"`
}

// Store is the persistence contract of the pipeline and the retriever.
type Store interface {
	InsertQuestions(ctx context.Context, rows []QuestionRow) error
	InsertSyllabus(ctx context.Context, rows []SyllabusRow) error
	InsertMappings(ctx context.Context, rows []MappingRow) error

	// SimilaritySearch returns rows with cosine similarity >= threshold,
	// best first, at most limit.
	SimilaritySearch(ctx context.Context, table Table, embedding []float32, f Filter, threshold float64, limit int) ([]Result, error)
	// FilteredFetch returns unranked rows matching f.
	FilteredFetch(ctx context.Context, table Table, f Filter, limit int) ([]Result, error)
	// KeywordSearch returns unranked rows whose text contains keyword.
	KeywordSearch(ctx context.Context, table Table, f Filter, keyword string, limit int) ([]Result, error)

	// SyllabusFor returns every syllabus chunk of a subject.
	SyllabusFor(ctx context.Context, subject string) ([]Result, error)
	// CountIDs returns how many of ids exist in table.
	CountIDs(ctx context.Context, table Table, ids []string) (int, error)
	// UnmappedQuestions returns the most recent question chunks without mappings.
	UnmappedQuestions(ctx context.Context, limit int) ([]Result, error)
	// MappingDetails returns mappings joined with their chunks, optionally for one subject.
	MappingDetails(ctx context.Context, subject string) ([]MappingDetail, error)

	Close() error
}

// Open returns the store selected by kind ("postgres" or "sqlite") with its
// schema created for embeddings of dimension dim.
func Open(ctx context.Context, kind, dsn string, dim int) (Store, error) {
	switch strings.ToLower(kind) {
	case "postgres", "":
		return NewPostgres(ctx, dsn, dim)
	case "sqlite":
		return NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store: %s", kind)
	}
}

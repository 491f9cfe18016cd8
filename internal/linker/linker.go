// Package linker maps question chunks to the syllabus objectives they test.
// An LLM proposes matches when one is configured; keyword overlap is the
// fallback. Both paths go through the same confidence validation.
package linker

import (
	"context"
	"errors"
	"fmt"

	"examrag/internal/config"
	"examrag/internal/keywords"
	"examrag/internal/llm"
	"examrag/internal/logger"
	"examrag/internal/outcome"
	"examrag/internal/store"
)

// ErrParse is returned when a model response holds no usable structure.
var ErrParse = errors.New("linker: unparsable model output")

// MappingType records how a mapping was produced.
type MappingType string

const (
	LLMEnhanced  MappingType = "llm_enhanced"
	KeywordBased MappingType = "keyword_based"
)

// TopicMapping links one question chunk to one syllabus chunk.
type TopicMapping struct {
	QuestionID      string      `json:"question_id"`
	TopicID         string      `json:"topic_id"`
	ConfidenceScore float64     `json:"confidence_score"`
	MappingType     MappingType `json:"mapping_type"`
	Reasoning       string      `json:"reasoning,omitempty"`
	CommonKeywords  []string    `json:"common_keywords,omitempty"`
	Notes           string      `json:"validation_notes,omitempty"`
}

// Row converts the mapping to its persisted shape.
func (m TopicMapping) Row() store.MappingRow {
	return store.MappingRow{
		QuestionID:      m.QuestionID,
		TopicID:         m.TopicID,
		ConfidenceScore: m.ConfidenceScore,
		MappingType:     string(m.MappingType),
		Reasoning:       m.Reasoning,
	}
}

// SyllabusSource returns every syllabus chunk of a subject.
type SyllabusSource interface {
	SyllabusFor(ctx context.Context, subject string) ([]store.Result, error)
}

// Linker is safe for concurrent use once built.
type Linker struct {
	Syllabus SyllabusSource
	// LLM is optional; nil means keyword matching only.
	LLM      llm.Completer
	Keywords *keywords.Extractor
	Tuning   config.LinkerTuning
}

func New(src SyllabusSource, completer llm.Completer, kw *keywords.Extractor, tuning config.LinkerTuning) *Linker {
	if kw == nil {
		kw = keywords.Default
	}
	return &Linker{Syllabus: src, LLM: completer, Keywords: kw, Tuning: tuning}
}

// Link returns validated mappings for one question chunk. It never fails:
// a missing syllabus gives an empty outcome and any LLM problem degrades to
// keyword matching.
func (l *Linker) Link(ctx context.Context, questionID, content, subject string) outcome.Outcome[[]TopicMapping] {
	syllabus, err := l.Syllabus.SyllabusFor(ctx, subject)
	if err != nil {
		logger.Warn("Syllabus fetch failed", "subject", subject, "err", err)
		return outcome.None[[]TopicMapping](fmt.Sprintf("syllabus fetch: %v", err))
	}
	if len(syllabus) == 0 {
		logger.Warn("No syllabus chunks for subject", "subject", subject)
		return outcome.None[[]TopicMapping]("no syllabus for " + subject)
	}

	if l.LLM == nil {
		mappings := l.Validate(l.keywordMappings(questionID, content, syllabus))
		return outcome.Degrade(mappings, "llm not configured")
	}

	mappings, err := l.llmMappings(ctx, questionID, content, subject, syllabus)
	if err != nil {
		logger.Warn("LLM topic matching failed, using keyword matching", "question", questionID, "err", err)
		return outcome.Degrade(l.Validate(l.keywordMappings(questionID, content, syllabus)), err.Error())
	}
	logger.Debug("LLM topic mappings", "question", questionID, "count", len(mappings))
	return outcome.Ok(l.Validate(mappings))
}

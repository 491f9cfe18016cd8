package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"examrag/internal/llm"
	"examrag/internal/logger"
	"examrag/internal/store"

	"github.com/xeipuuv/gojsonschema"
)

const (
	maxQuestionChars = 1000
	maxSyllabusChars = 200
)

// Analysis is the educational metadata the model extracts from a question.
type Analysis struct {
	Topics           []string  `json:"topics"`
	DifficultyLevel  looseText `json:"difficulty_level"`
	KeyConcepts      []string  `json:"key_concepts"`
	QuestionType     looseText `json:"question_type"`
	SyllabusKeywords []string  `json:"syllabus_keywords"`
}

// looseText accepts a string, a list of strings, a number or null. Lists are
// joined with ", " and null becomes "".
type looseText string

func (t *looseText) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = ""
	case string:
		*t = looseText(x)
	case float64:
		*t = looseText(strconv.FormatFloat(x, 'f', -1, 64))
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if e != nil {
				parts = append(parts, fmt.Sprint(e))
			}
		}
		*t = looseText(strings.Join(parts, ", "))
	default:
		return fmt.Errorf("unsupported value %s", b)
	}
	return nil
}

func (a Analysis) empty() bool {
	return len(a.Topics) == 0 && len(a.KeyConcepts) == 0 && len(a.SyllabusKeywords) == 0 &&
		a.DifficultyLevel == "" && a.QuestionType == ""
}

// Match is one model-proposed syllabus objective.
type Match struct {
	SyllabusID string
	Confidence float64
	Reasoning  string
}

var analysisSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"properties": {
		"topics":            {"type": "array", "items": {"type": "string"}},
		"difficulty_level":  {"type": ["string", "array", "number", "null"]},
		"key_concepts":      {"type": "array", "items": {"type": "string"}},
		"question_type":     {"type": ["string", "array", "number", "null"]},
		"syllabus_keywords": {"type": "array", "items": {"type": "string"}}
	}
}`)

var matchSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["syllabus_id", "confidence"],
	"properties": {
		"syllabus_id": {"type": ["string", "integer"]},
		"confidence":  {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning":   {"type": "string"}
	}
}`)

func (l *Linker) llmMappings(ctx context.Context, questionID, content, subject string, syllabus []store.Result) ([]TopicMapping, error) {
	analysis, err := l.analyze(ctx, content, subject)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	matches, err := l.match(ctx, analysis, subject, syllabus)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}

	known := make(map[string]bool, len(syllabus))
	for _, s := range syllabus {
		known[s.ID] = true
	}
	var mappings []TopicMapping
	for _, m := range matches {
		if m.Confidence < l.Tuning.LLMMinConfidence {
			continue
		}
		if !known[m.SyllabusID] {
			logger.Debug("Dropping match for unknown syllabus id", "id", m.SyllabusID)
			continue
		}
		mappings = append(mappings, TopicMapping{
			QuestionID:      questionID,
			TopicID:         m.SyllabusID,
			ConfidenceScore: m.Confidence,
			MappingType:     LLMEnhanced,
			Reasoning:       m.Reasoning,
		})
	}
	return mappings, nil
}

func (l *Linker) analyze(ctx context.Context, content, subject string) (Analysis, error) {
	prompt := fmt.Sprintf(`Analyze this CAPE %s question and extract educational metadata:

QUESTION: %s...

Please provide a JSON response with the following fields:
1. "topics": List of main mathematical/scientific topics covered (e.g., ["Differentiation", "Polynomial Functions"])
2. "difficulty_level": One of ["Basic", "Intermediate", "Advanced"]
3. "key_concepts": List of specific concepts tested (e.g., ["Power Rule", "Chain Rule"])
4. "question_type": Type of question (e.g., "Problem Solving", "Proof", "Calculation")
5. "syllabus_keywords": Keywords that would help match to syllabus objectives

Respond with valid JSON only.`, subject, truncateRunes(content, maxQuestionChars))

	raw, err := l.LLM.Complete(ctx, llm.Request{
		System:      fmt.Sprintf("You are an expert CAPE %s curriculum analyst. Analyze questions and provide structured educational metadata.", subject),
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		return Analysis{}, err
	}
	return parseAnalysis(raw)
}

func parseAnalysis(raw string) (Analysis, error) {
	var doc json.RawMessage
	if err := llm.DecodeLenient(raw, '{', '}', &doc); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := validateJSON(analysisSchema, doc); err != nil {
		return Analysis{}, err
	}
	var a Analysis
	if err := json.Unmarshal(doc, &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if a.empty() {
		return Analysis{}, fmt.Errorf("%w: empty analysis", ErrParse)
	}
	return a, nil
}

func (l *Linker) match(ctx context.Context, a Analysis, subject string, syllabus []store.Result) ([]Match, error) {
	limit := l.Tuning.MaxSyllabusInPrompt
	if limit <= 0 || limit > len(syllabus) {
		limit = len(syllabus)
	}
	var objectives strings.Builder
	for _, s := range syllabus[:limit] {
		fmt.Fprintf(&objectives, "ID:%s | %s | %s...\n", s.ID, s.TopicTitle, truncateRunes(s.Content, maxSyllabusChars))
	}

	difficulty := string(a.DifficultyLevel)
	if difficulty == "" {
		difficulty = "Unknown"
	}
	prompt := fmt.Sprintf(`Match this CAPE %s question to relevant syllabus objectives:

QUESTION ANALYSIS:
- Topics: %s
- Key Concepts: %s
- Keywords: %s
- Difficulty: %s

AVAILABLE SYLLABUS OBJECTIVES:
%s
Provide a JSON array of matches with confidence scores:
[
  {"syllabus_id": "<id>", "confidence": 0.95, "reasoning": "Direct match for differentiation concepts"},
  {"syllabus_id": "<id>", "confidence": 0.75, "reasoning": "Related to polynomial functions"}
]

Only include matches with confidence >= %.1f. Respond with valid JSON only.`,
		subject, list(a.Topics), list(a.KeyConcepts), list(a.SyllabusKeywords), difficulty,
		objectives.String(), l.Tuning.LLMMinConfidence)

	raw, err := l.LLM.Complete(ctx, llm.Request{
		System:      fmt.Sprintf("You are an expert CAPE %s curriculum specialist. Match questions to syllabus objectives with high accuracy.", subject),
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, err
	}
	return parseMatches(raw)
}

// parseMatches keeps every array element that satisfies the match schema.
// An empty array means no matches; a non-empty array with no usable element
// is a parse failure.
func parseMatches(raw string) ([]Match, error) {
	var items []json.RawMessage
	if err := llm.DecodeLenient(raw, '[', ']', &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var out []Match
	for _, item := range items {
		if err := validateJSON(matchSchema, item); err != nil {
			logger.Debug("Skipping malformed match", "err", err)
			continue
		}
		var m struct {
			SyllabusID json.RawMessage `json:"syllabus_id"`
			Confidence float64         `json:"confidence"`
			Reasoning  string          `json:"reasoning"`
		}
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		out = append(out, Match{
			SyllabusID: syllabusID(m.SyllabusID),
			Confidence: m.Confidence,
			Reasoning:  m.Reasoning,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid matches", ErrParse)
	}
	return out, nil
}

// syllabusID unquotes a string or numeric id and drops the "ID:" prefix
// models copy from the prompt.
func syllabusID(raw json.RawMessage) string {
	id := strings.TrimSpace(strings.Trim(string(raw), `"`))
	return strings.TrimSpace(strings.TrimPrefix(id, "ID:"))
}

func validateJSON(schema gojsonschema.JSONLoader, doc []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrParse, strings.Join(msgs, "; "))
	}
	return nil
}

func list(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

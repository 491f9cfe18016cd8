package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning collects the heuristic constants of the pipeline. They are
// observed values, not derived ones, so all of them can be overridden
// from a YAML file.
type Tuning struct {
	Chunker   ChunkerTuning   `yaml:"chunker"`
	Linker    LinkerTuning    `yaml:"linker"`
	Retriever RetrieverTuning `yaml:"retriever"`
	Pools     PoolTuning      `yaml:"pools"`
	Upload    UploadTuning    `yaml:"upload"`
	Keywords  KeywordTuning   `yaml:"keywords"`
}

type ChunkerTuning struct {
	MaxTokens int `yaml:"max_tokens"`
	MinTokens int `yaml:"min_tokens"`
}

type LinkerTuning struct {
	LLMMinConfidence     float64 `yaml:"llm_min_confidence"`
	KeywordMinConfidence float64 `yaml:"keyword_min_confidence"`
	KeywordMaxConfidence float64 `yaml:"keyword_max_confidence"`
	KeywordTopN          int     `yaml:"keyword_top_n"`
	KeepOnErrorMin       float64 `yaml:"keep_on_error_min"`
	MaxSyllabusInPrompt  int     `yaml:"max_syllabus_in_prompt"`
	MaxMappings          int     `yaml:"max_mappings"`
	LLMBoost             float64 `yaml:"llm_boost"`
	ReasoningBoost       float64 `yaml:"reasoning_boost"`
	FewKeywordsPenalty   float64 `yaml:"few_keywords_penalty"`
	FloorConfidence      float64 `yaml:"floor_confidence"`
	CeilConfidence       float64 `yaml:"ceil_confidence"`
}

type RetrieverTuning struct {
	Threshold        float64 `yaml:"threshold"`
	RelaxedThreshold float64 `yaml:"relaxed_threshold"`
	QuestionLimit    int     `yaml:"question_limit"`
	SyllabusLimit    int     `yaml:"syllabus_limit"`
	QuestionFloor    int     `yaml:"question_floor"`
	SyllabusFloor    int     `yaml:"syllabus_floor"`
	MaxKeywords      int     `yaml:"max_keywords"`
	PerKeyword       int     `yaml:"per_keyword"`
}

type PoolTuning struct {
	OCRWorkers      int `yaml:"ocr_workers"`
	EmbedWorkers    int `yaml:"embed_workers"`
	LinkWorkers     int `yaml:"link_workers"`
	BackfillDefault int `yaml:"backfill_default"`
}

type UploadTuning struct {
	BatchSize int           `yaml:"batch_size"`
	Pause     time.Duration `yaml:"pause"`
}

// KeywordTuning extends the built-in vocabulary.
type KeywordTuning struct {
	ExtraTerms  []string            `yaml:"extra_terms"`
	ExtraGroups map[string][]string `yaml:"extra_groups"`
}

// DefaultTuning returns the values the pipeline was calibrated with.
func DefaultTuning() Tuning {
	return Tuning{
		Chunker: ChunkerTuning{MaxTokens: 500, MinTokens: 100},
		Linker: LinkerTuning{
			LLMMinConfidence:     0.6,
			KeywordMinConfidence: 0.05,
			KeywordMaxConfidence: 0.9,
			KeywordTopN:          5,
			KeepOnErrorMin:       0.4,
			MaxSyllabusInPrompt:  20,
			MaxMappings:          10,
			LLMBoost:             0.10,
			ReasoningBoost:       0.05,
			FewKeywordsPenalty:   0.05,
			FloorConfidence:      0.1,
			CeilConfidence:       0.95,
		},
		Retriever: RetrieverTuning{
			Threshold:        0.7,
			RelaxedThreshold: 0.5,
			QuestionLimit:    8,
			SyllabusLimit:    5,
			QuestionFloor:    5,
			SyllabusFloor:    3,
			MaxKeywords:      5,
			PerKeyword:       3,
		},
		Pools:  PoolTuning{OCRWorkers: 3, EmbedWorkers: 4, LinkWorkers: 2, BackfillDefault: 50},
		Upload: UploadTuning{BatchSize: 10, Pause: 500 * time.Millisecond},
	}
}

// LoadTuning overlays the YAML file at path on top of DefaultTuning.
// An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Validate rejects combinations the pipeline cannot run with.
func (t Tuning) Validate() error {
	r := t.Retriever
	if r.RelaxedThreshold > r.Threshold {
		return fmt.Errorf("relaxed_threshold %.2f above threshold %.2f", r.RelaxedThreshold, r.Threshold)
	}
	if r.QuestionLimit <= 0 || r.SyllabusLimit <= 0 {
		return fmt.Errorf("retriever limits must be positive")
	}
	if t.Chunker.MaxTokens <= 0 || t.Chunker.MinTokens < 0 {
		return fmt.Errorf("chunker budgets must be positive")
	}
	if t.Chunker.MinTokens > t.Chunker.MaxTokens {
		return fmt.Errorf("min_tokens %d above max_tokens %d", t.Chunker.MinTokens, t.Chunker.MaxTokens)
	}
	l := t.Linker
	if l.FloorConfidence > l.CeilConfidence {
		return fmt.Errorf("floor_confidence above ceil_confidence")
	}
	if t.Upload.BatchSize <= 0 {
		return fmt.Errorf("upload batch_size must be positive")
	}
	return nil
}

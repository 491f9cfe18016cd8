package linker

import (
	"fmt"
	"math"
	"sort"

	"examrag/internal/logger"
	"examrag/internal/store"
)

// keywordMappings scores every syllabus chunk by the share of the
// question's keywords it contains.
func (l *Linker) keywordMappings(questionID, content string, syllabus []store.Result) []TopicMapping {
	question := l.Keywords.Set(content)
	denom := float64(max(len(question), 1))
	terms := l.Keywords.Extract(content)

	var mappings []TopicMapping
	for _, s := range syllabus {
		topic := l.Keywords.Set(s.TopicTitle + " " + s.Content)
		var common []string
		for _, k := range terms {
			if topic[k] {
				common = append(common, k)
			}
		}
		if len(common) == 0 {
			continue
		}
		conf := math.Min(float64(len(common))/denom, l.Tuning.KeywordMaxConfidence)
		if conf < l.Tuning.KeywordMinConfidence {
			continue
		}
		mappings = append(mappings, TopicMapping{
			QuestionID:      questionID,
			TopicID:         s.ID,
			ConfidenceScore: conf,
			MappingType:     KeywordBased,
			CommonKeywords:  common,
		})
	}

	sort.SliceStable(mappings, func(i, j int) bool {
		return mappings[i].ConfidenceScore > mappings[j].ConfidenceScore
	})
	if n := l.Tuning.KeywordTopN; n > 0 && len(mappings) > n {
		mappings = mappings[:n]
	}
	return mappings
}

// Validate adjusts confidences by mapping quality, clamps them to the
// configured bounds and keeps the best MaxMappings, best first.
func (l *Linker) Validate(mappings []TopicMapping) []TopicMapping {
	t := l.Tuning
	out := make([]TopicMapping, 0, len(mappings))
	for _, m := range mappings {
		adjusted, err := l.adjust(m)
		if err != nil {
			if !math.IsNaN(m.ConfidenceScore) && m.ConfidenceScore >= t.KeepOnErrorMin {
				m.ConfidenceScore = l.clamp(m.ConfidenceScore)
				m.Notes = "kept unvalidated"
				out = append(out, m)
			} else {
				logger.Debug("Dropping invalid mapping", "topic", m.TopicID, "err", err)
			}
			continue
		}
		out = append(out, adjusted)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConfidenceScore > out[j].ConfidenceScore
	})
	if t.MaxMappings > 0 && len(out) > t.MaxMappings {
		out = out[:t.MaxMappings]
	}
	return out
}

func (l *Linker) adjust(m TopicMapping) (TopicMapping, error) {
	t := l.Tuning
	if math.IsNaN(m.ConfidenceScore) || math.IsInf(m.ConfidenceScore, 0) {
		return m, fmt.Errorf("confidence %v is not finite", m.ConfidenceScore)
	}

	var delta float64
	switch m.MappingType {
	case LLMEnhanced:
		delta += t.LLMBoost
	case KeywordBased:
		if len(m.CommonKeywords) < 2 {
			delta -= t.FewKeywordsPenalty
		}
	default:
		return m, fmt.Errorf("unknown mapping type %q", m.MappingType)
	}
	if len([]rune(m.Reasoning)) > 20 {
		delta += t.ReasoningBoost
	}

	m.ConfidenceScore = l.clamp(m.ConfidenceScore + delta)
	m.Notes = fmt.Sprintf("Adjusted confidence by %+.2f", delta)
	return m, nil
}

func (l *Linker) clamp(c float64) float64 {
	return math.Max(l.Tuning.FloorConfidence, math.Min(c, l.Tuning.CeilConfidence))
}

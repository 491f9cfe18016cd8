package store

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Result is the one strict shape for rows coming back from a store.
// Scored is false for rows that came from unranked fetches.
type Result struct {
	ID          string  `json:"id"`
	Table       Table   `json:"table"`
	Subject     string  `json:"subject"`
	Content     string  `json:"content"`
	Year        int     `json:"year,omitempty"`
	Paper       string  `json:"paper,omitempty"`
	QuestionID  string  `json:"question_id,omitempty"`
	Topic       string  `json:"topic,omitempty"`
	SubTopic    string  `json:"sub_topic,omitempty"`
	TopicTitle  string  `json:"topic_title,omitempty"`
	Module      string  `json:"module,omitempty"`
	IsMathHeavy bool    `json:"is_math_heavy,omitempty"`
	Similarity  float64 `json:"similarity"`
	Scored      bool    `json:"scored"`
}

// Normalize converts a loosely-shaped row into a Result. Fields may be
// missing, carry driver-specific types, or sit under a nested "metadata"
// map; top-level values win over nested ones.
func Normalize(table Table, row map[string]any) Result {
	if nested, ok := row["metadata"].(map[string]any); ok {
		merged := make(map[string]any, len(row)+len(nested))
		for k, v := range nested {
			merged[k] = v
		}
		for k, v := range row {
			if v != nil {
				merged[k] = v
			}
		}
		row = merged
	}

	r := Result{
		ID:          asString(row["id"]),
		Table:       table,
		Subject:     asString(row["subject"]),
		Content:     firstString(row, "content", "chunk_text", "text"),
		Year:        asInt(row["year"]),
		Paper:       asString(row["paper"]),
		QuestionID:  asString(row["question_id"]),
		Topic:       asString(row["topic"]),
		SubTopic:    asString(row["sub_topic"]),
		TopicTitle:  asString(row["topic_title"]),
		Module:      asString(row["module"]),
		IsMathHeavy: asBool(row["is_math_heavy"]),
	}
	if sim, ok := asFloat(row["similarity"]); ok && !math.IsNaN(sim) {
		r.Similarity = sim
		r.Scored = true
	}
	return r
}

// NormalizeAll normalizes every row of a result set.
func NormalizeAll(table Table, rows []map[string]any) []Result {
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, Normalize(table, row))
	}
	return out
}

// Rank sorts results by similarity, best first. Unscored results keep their
// relative order after all scored ones.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Scored != b.Scored {
			return a.Scored
		}
		return a.Scored && a.Similarity > b.Similarity
	})
}

func firstString(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(row[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float32:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(x))
		return n
	case []byte:
		n, _ := strconv.Atoi(strings.TrimSpace(string(x)))
		return n
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	default:
		return false
	}
}

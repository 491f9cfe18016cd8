package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response holds no parsable JSON value.
var ErrNoJSON = errors.New("llm: no JSON in response")

// StripFences removes a surrounding markdown code fence.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// DecodeLenient unmarshals raw into v. It tries the fence-stripped text
// first, then the span from the first open delimiter to the last matching
// close delimiter ('{'..'}' or '['..']').
func DecodeLenient(raw string, openDelim, closeDelim byte, v any) error {
	text := StripFences(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start := strings.IndexByte(raw, openDelim)
	end := strings.LastIndexByte(raw, closeDelim)
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return errors.Join(ErrNoJSON, err)
	}
	return nil
}

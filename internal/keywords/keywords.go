// Package keywords extracts normalized subject keywords and math tokens
// from text. The topic linker and the retriever share it.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

var importantTerms = []string{
	"derivative", "integral", "limit", "function", "equation", "matrix",
	"vector", "probability", "statistics", "geometry", "algebra", "calculus",
	"differentiate", "integrate", "solve", "find", "calculate", "prove",
	"force", "velocity", "acceleration", "energy", "momentum", "frequency",
	"reaction", "compound", "element", "molecule", "atom", "bond",
	"polynomial", "quadratic", "logarithmic", "exponential", "trigonometric",
	"factorization", "roots", "coefficients", "continuity",
}

// termGroups maps a canonical keyword to the words normalized onto it.
// Order matters when a word appears in more than one group.
var termGroups = []struct {
	canonical string
	members   []string
}{
	{"differentiation", []string{"derivative", "differentiate", "differentiation"}},
	{"integration", []string{"integral", "integrate", "integration"}},
	{"quadratic", []string{"quadratic", "parabola", "square"}},
	{"polynomial", []string{"polynomial", "monomial", "binomial"}},
	{"function", []string{"function", "functions"}},
	{"equation", []string{"equation", "equations"}},
	{"chemical", []string{"chemical", "chemistry", "reaction", "reactions"}},
}

var (
	wordPattern   = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
	symbolPattern = regexp.MustCompile(`[+\-*/=^()∫∑√π∞≤≥≠±∂∇]|\d+`)
)

// longWord is the length above which any word counts as a keyword.
const longWord = 6

// Extractor holds a vocabulary. The zero value is not usable; use New.
type Extractor struct {
	important map[string]bool
	canonical map[string]string
}

// New builds an Extractor from the built-in vocabulary extended with extra
// terms and groups. Built-in groups win over extra groups for the same word.
func New(extraTerms []string, extraGroups map[string][]string) *Extractor {
	e := &Extractor{
		important: make(map[string]bool, len(importantTerms)+len(extraTerms)),
		canonical: make(map[string]string),
	}
	for _, t := range importantTerms {
		e.important[t] = true
	}
	for _, t := range extraTerms {
		e.important[strings.ToLower(t)] = true
	}
	for _, g := range termGroups {
		for _, m := range g.members {
			if _, ok := e.canonical[m]; !ok {
				e.canonical[m] = g.canonical
			}
		}
	}

	names := make([]string, 0, len(extraGroups))
	for name := range extraGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		canonical := strings.ToLower(name)
		for _, m := range extraGroups[name] {
			m = strings.ToLower(m)
			e.important[m] = true
			if _, ok := e.canonical[m]; !ok {
				e.canonical[m] = canonical
			}
		}
	}
	return e
}

// Default is the built-in vocabulary.
var Default = New(nil, nil)

// Extract returns distinct keywords in first-seen order: vocabulary words
// (normalized to their group), other words longer than six letters, then
// math symbols and numbers.
func (e *Extractor) Extract(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		switch {
		case e.important[w]:
			if c, ok := e.canonical[w]; ok {
				w = c
			}
			add(w)
		case len(w) > longWord:
			add(w)
		}
	}
	for _, s := range symbolPattern.FindAllString(text, -1) {
		add(s)
	}
	return out
}

// Set returns the keywords of text as a set.
func (e *Extractor) Set(text string) map[string]bool {
	kws := e.Extract(text)
	set := make(map[string]bool, len(kws))
	for _, k := range kws {
		set[k] = true
	}
	return set
}

// Top returns the first limit keywords of Extract (all when limit <= 0).
// Words come before symbols, so symbols only fill a short query.
func (e *Extractor) Top(text string, limit int) []string {
	out := e.Extract(text)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

package ocr

import (
	"regexp"
	"unicode/utf8"
)

// mathPatterns are fixed expressions; recognized text is only ever matched
// against them, never compiled, so LaTeX backslashes in the input are inert.
var mathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[+\-*/=^()∫∑√π∞≤≥≠±∂∇]`),
	regexp.MustCompile(`\$[^$]*\$`),
	regexp.MustCompile(`\$\$[^$]*\$\$`),
	regexp.MustCompile(`\\[a-zA-Z]+\{[^}]*\}`),
	regexp.MustCompile(`\d+/\d+`),
	regexp.MustCompile(`[a-zA-Z]\s*=\s*[^a-zA-Z\s]`),
	regexp.MustCompile(`(?i)sin|cos|tan|log|ln|exp|lim|∀|∃`),
}

const (
	mathRatioThreshold = 0.05
	mathCountThreshold = 10
)

// MathSymbolCount returns the number of math-pattern matches in text.
func MathSymbolCount(text string) int {
	count := 0
	for _, re := range mathPatterns {
		count += len(re.FindAllStringIndex(text, -1))
	}
	return count
}

// IsMathHeavy reports whether text needs math-aware OCR: more than 5% of
// its characters are math matches, or there are at least 10 matches.
func IsMathHeavy(text string) bool {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return false
	}
	count := MathSymbolCount(text)
	ratio := float64(count) / float64(total)
	return ratio > mathRatioThreshold || count >= mathCountThreshold
}

package chunker

import (
	"regexp"
	"strings"
)

var (
	displayMath = regexp.MustCompile(`\$\$([^$]*)\$\$`)
	inlineMath  = regexp.MustCompile(`\$([^$]*)\$`)
)

// ExtractEquations returns display equations in position order followed by
// inline ones. Display spans are masked before the inline scan so a $$..$$
// block is never also reported as inline.
func ExtractEquations(text string) []Equation {
	var eqs []Equation

	masked := []byte(text)
	for _, loc := range displayMath.FindAllStringSubmatchIndex(text, -1) {
		eqs = append(eqs, Equation{
			LaTeX: strings.TrimSpace(text[loc[2]:loc[3]]),
			Text:  text[loc[0]:loc[1]],
			Type:  "display",
		})
		for i := loc[0]; i < loc[1]; i++ {
			masked[i] = ' '
		}
	}

	maskedText := string(masked)
	for _, loc := range inlineMath.FindAllStringSubmatchIndex(maskedText, -1) {
		eqs = append(eqs, Equation{
			LaTeX: strings.TrimSpace(text[loc[2]:loc[3]]),
			Text:  text[loc[0]:loc[1]],
			Type:  "inline",
		})
	}
	return eqs
}

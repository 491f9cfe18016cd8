// Package metadata infers subject, year, paper code and document type from a
// file name, with the document content as a secondary signal.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"examrag/internal/logger"
)

const UnknownSubject = "Unknown"

// Metadata is the classification of one document. Year is 0 and Paper is
// empty when they could not be inferred.
type Metadata struct {
	Subject    string
	Year       int
	Paper      string
	IsSyllabus bool
	Warnings   []Warning
}

// Warning is a non-fatal classification diagnostic.
type Warning struct {
	Severe  bool
	Message string
}

func (w Warning) String() string {
	if w.Severe {
		return "VALIDATION ERROR: " + w.Message
	}
	return "VALIDATION WARNING: " + w.Message
}

// Overrides replace inferred values when set.
type Overrides struct {
	Subject string
	Year    int
	Paper   string
}

var syllabusPhrases = []string{
	"syllabus",
	"curriculum",
	"cape pure mathematics (1)",
	"cape applied mathematics (1)",
	"cape physics (1)",
	"cape chemistry (1)",
	"specification",
	"outline",
	"course description",
}

var subjectPatterns = []struct {
	re      *regexp.Regexp
	subject string
}{
	{regexp.MustCompile(`pure\s*math|pure\s*mathematics`), "Pure Mathematics"},
	{regexp.MustCompile(`applied\s*math|applied\s*mathematics`), "Applied Mathematics"},
	{regexp.MustCompile(`physics`), "Physics"},
	{regexp.MustCompile(`chemistry`), "Chemistry"},
}

var (
	yearPattern     = regexp.MustCompile(`\d{4}`)
	paperPattern    = regexp.MustCompile(`u\d+\s*p\d+|unit\s*\d+\s*paper\s*\d+|paper\s*\d+`)
	numberedLine    = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
	contentSniffLen = 2000
)

// Classify never fails; missing fields are left at their zero values and
// reported as warnings.
func Classify(filename, content string) Metadata {
	lower := strings.ToLower(filename)
	md := Metadata{Subject: UnknownSubject}

	md.IsSyllabus = containsAny(lower, syllabusPhrases)
	if !md.IsSyllabus {
		md.IsSyllabus = looksLikeSyllabus(content)
	}

	md.Subject = subjectOf(lower)
	if md.Subject == UnknownSubject {
		md.Subject = subjectOf(strings.ToLower(head(content, contentSniffLen)))
	}

	md.Year = yearOf(filename)

	if m := paperPattern.FindString(lower); m != "" {
		md.Paper = strings.ToUpper(m)
	}

	md.Warnings = validate(md, lower)
	return md
}

// Apply replaces inferred values with the non-empty overrides and
// recomputes the warnings.
func (md Metadata) Apply(o Overrides, filename string) Metadata {
	if o.Subject != "" {
		md.Subject = o.Subject
	}
	if o.Year != 0 {
		md.Year = o.Year
	}
	if o.Paper != "" {
		md.Paper = strings.ToUpper(o.Paper)
	}
	md.Warnings = validate(md, strings.ToLower(filename))
	return md
}

// DocType is "SYLLABUS" or "QUESTION".
func (md Metadata) DocType() string {
	if md.IsSyllabus {
		return "SYLLABUS"
	}
	return "QUESTION"
}

// Log writes the warnings and the classification decision.
func (md Metadata) Log(filename string) {
	for _, w := range md.Warnings {
		if w.Severe {
			logger.Error(w.String(), "file", filename)
		} else {
			logger.Warn(w.String(), "file", filename)
		}
	}
	logger.Info("Classified document", "file", filename, "type", md.DocType(),
		"subject", md.Subject, "year", md.Year, "paper", md.Paper)
}

func validate(md Metadata, lowerName string) []Warning {
	var ws []Warning
	if md.IsSyllabus {
		if md.Subject == UnknownSubject {
			ws = append(ws, Warning{Severe: true, Message: "Syllabus document missing subject"})
		}
		if md.Year != 0 {
			ws = append(ws, Warning{Message: fmt.Sprintf("Syllabus document has year %d (unusual)", md.Year)})
		}
		return ws
	}

	if md.Subject == UnknownSubject {
		ws = append(ws, Warning{Severe: true, Message: "Question document missing subject"})
	}
	if md.Year == 0 && !strings.Contains(lowerName, "specimen") && !strings.Contains(lowerName, "sample") {
		ws = append(ws, Warning{Message: "Question document missing year"})
	}
	if md.Paper == "" {
		ws = append(ws, Warning{Message: "Question document missing paper info"})
	}
	return ws
}

func subjectOf(lower string) string {
	for _, p := range subjectPatterns {
		if p.re.MatchString(lower) {
			return p.subject
		}
	}
	return UnknownSubject
}

func yearOf(name string) int {
	for _, m := range yearPattern.FindAllString(name, -1) {
		y, _ := strconv.Atoi(m)
		if y >= 1900 && y <= 2100 {
			return y
		}
	}
	return 0
}

// looksLikeSyllabus is the content fallback: syllabus vocabulary near the top
// and no numbered question lines.
func looksLikeSyllabus(content string) bool {
	top := strings.ToLower(head(content, contentSniffLen))
	if !strings.Contains(top, "specific objectives") && !strings.Contains(top, "syllabus") {
		return false
	}
	return !numberedLine.MatchString(top)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package metadata

import (
	"strings"
	"testing"
)

// ========== Classify ==========

func TestClassify_QuestionPaper(t *testing.T) {
	md := Classify("CAPE Pure Mathematics 2019 U1 P2.pdf", "")
	if md.IsSyllabus {
		t.Error("question paper classified as syllabus")
	}
	if md.Subject != "Pure Mathematics" {
		t.Errorf("Subject = %q, want Pure Mathematics", md.Subject)
	}
	if md.Year != 2019 {
		t.Errorf("Year = %d, want 2019", md.Year)
	}
	if md.Paper != "U1 P2" {
		t.Errorf("Paper = %q, want U1 P2", md.Paper)
	}
	if len(md.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", md.Warnings)
	}
}

func TestClassify_Syllabus(t *testing.T) {
	md := Classify("CAPE Physics (1) syllabus.pdf", "")
	if !md.IsSyllabus {
		t.Fatal("expected syllabus")
	}
	if md.Subject != "Physics" {
		t.Errorf("Subject = %q, want Physics", md.Subject)
	}
	if md.DocType() != "SYLLABUS" {
		t.Errorf("DocType = %q", md.DocType())
	}
}

func TestClassify_PaperVariants(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"chemistry unit 2 paper 1 2015.pdf", "UNIT 2 PAPER 1"},
		{"applied maths paper 3 2020.pdf", "PAPER 3"},
		{"pure math u2p1 2018.pdf", "U2P1"},
		{"physics 2018.pdf", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.name, "").Paper; got != tt.want {
				t.Errorf("Paper = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_ContentFallbacks(t *testing.T) {
	content := "SPECIFIC OBJECTIVES\nStudents should be able to apply the laws of chemistry to..."
	md := Classify("unit2.pdf", content)
	if !md.IsSyllabus {
		t.Error("content with specific objectives should classify as syllabus")
	}
	if md.Subject != "Chemistry" {
		t.Errorf("Subject = %q, want Chemistry from content", md.Subject)
	}
}

func TestClassify_NumberedContentIsNotSyllabus(t *testing.T) {
	content := "This syllabus question paper\n1. Define work done.\n2. State Hooke's law."
	if Classify("exam.pdf", content).IsSyllabus {
		t.Error("numbered questions should keep the document a question paper")
	}
}

func TestClassify_YearOutOfRangeIgnored(t *testing.T) {
	if y := Classify("physics 0001 paper 1.pdf", "").Year; y != 0 {
		t.Errorf("Year = %d, want 0", y)
	}
}

// ========== Warnings ==========

func hasWarning(md Metadata, substr string) bool {
	for _, w := range md.Warnings {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func TestWarnings_QuestionMissingFields(t *testing.T) {
	md := Classify("exam.pdf", "")
	if md.Subject != UnknownSubject {
		t.Fatalf("Subject = %q", md.Subject)
	}
	for _, want := range []string{"missing subject", "missing year", "missing paper"} {
		if !hasWarning(md, want) {
			t.Errorf("expected warning containing %q, got %v", want, md.Warnings)
		}
	}
}

func TestWarnings_SpecimenNeedsNoYear(t *testing.T) {
	md := Classify("physics specimen paper 1.pdf", "")
	if hasWarning(md, "missing year") {
		t.Error("specimen paper should not warn about a missing year")
	}
}

func TestWarnings_SyllabusWithYear(t *testing.T) {
	md := Classify("chemistry syllabus 2017.pdf", "")
	if !hasWarning(md, "has year") {
		t.Errorf("expected unusual-year warning, got %v", md.Warnings)
	}
}

func TestWarnings_SyllabusMissingSubjectIsSevere(t *testing.T) {
	md := Classify("syllabus.pdf", "")
	if len(md.Warnings) == 0 || !md.Warnings[0].Severe {
		t.Errorf("expected severe warning, got %v", md.Warnings)
	}
}

// ========== Apply ==========

func TestApply_OverridesAndRevalidates(t *testing.T) {
	md := Classify("exam.pdf", "").Apply(Overrides{Subject: "Physics", Year: 2021, Paper: "paper 2"}, "exam.pdf")
	if md.Subject != "Physics" || md.Year != 2021 || md.Paper != "PAPER 2" {
		t.Errorf("overrides not applied: %+v", md)
	}
	if len(md.Warnings) != 0 {
		t.Errorf("warnings should clear after overrides, got %v", md.Warnings)
	}
}

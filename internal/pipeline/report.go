package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"examrag/internal/chunker"
	"examrag/internal/indexer"
	"examrag/internal/logger"
	"examrag/internal/runs"
	"examrag/internal/store"
)

// ErrIntegrity marks an upload whose persisted rows do not match what was
// sent.
var ErrIntegrity = errors.New("pipeline: integrity mismatch")

// Integrity compares the chunks of one file with the rows found in the store.
type Integrity struct {
	ExpectedQuestions int    `json:"expected_questions"`
	FoundQuestions    int    `json:"found_questions"`
	ExpectedSyllabus  int    `json:"expected_syllabus"`
	FoundSyllabus     int    `json:"found_syllabus"`
	Err               error  `json:"-"`
	Status            string `json:"status"`
}

// Passed reports whether every expected row was found.
func (i Integrity) Passed() bool {
	return i.Err == nil
}

// VerifyIntegrity counts the uploaded IDs in each table and compares them
// with the number of chunks of each kind. Mismatches and count failures are
// reported through Err; nothing is corrected.
func VerifyIntegrity(ctx context.Context, s MappingStore, chunks []chunker.Chunk, res indexer.UploadResult) Integrity {
	var in Integrity
	for _, c := range chunks {
		if c.Type == chunker.Syllabus {
			in.ExpectedSyllabus++
		} else {
			in.ExpectedQuestions++
		}
	}
	logger.Info("Verifying upload integrity", "chunks", len(chunks), "uploaded", res.Uploaded)

	var errs []error
	if in.ExpectedQuestions > 0 {
		n, err := s.CountIDs(ctx, store.Questions, res.QuestionIDs)
		if err != nil {
			errs = append(errs, fmt.Errorf("count question rows: %w", err))
		}
		in.FoundQuestions = n
		if n < in.ExpectedQuestions {
			errs = append(errs, fmt.Errorf("%w: expected %d question chunks, found %d", ErrIntegrity, in.ExpectedQuestions, n))
		}
	}
	if in.ExpectedSyllabus > 0 {
		n, err := s.CountIDs(ctx, store.Syllabus, res.SyllabusIDs)
		if err != nil {
			errs = append(errs, fmt.Errorf("count syllabus rows: %w", err))
		}
		in.FoundSyllabus = n
		if n < in.ExpectedSyllabus {
			errs = append(errs, fmt.Errorf("%w: expected %d syllabus chunks, found %d", ErrIntegrity, in.ExpectedSyllabus, n))
		}
	}

	in.Err = errors.Join(errs...)
	if in.Passed() {
		in.Status = "passed"
		logger.Info("Upload integrity verification passed")
	} else {
		in.Status = "failed"
		logger.Error("Upload integrity verification failed", "err", in.Err)
	}
	return in
}

// Report summarizes the processing of one file.
type Report struct {
	Filename          string        `json:"filename"`
	Timestamp         time.Time     `json:"processing_timestamp"`
	TotalChunks       int           `json:"total_chunks_created"`
	QuestionChunks    int           `json:"question_chunks"`
	SyllabusChunks    int           `json:"syllabus_chunks"`
	ChunksUploaded    int           `json:"chunks_uploaded"`
	UploadSuccessRate float64       `json:"upload_success_rate"`
	AvgChunkLength    int           `json:"avg_chunk_length"`
	TotalContentChars int           `json:"total_content_chars"`
	HasImages         bool          `json:"has_images"`
	HasEquations      bool          `json:"has_equations"`
	Subjects          []string      `json:"subjects"`
	Years             []int         `json:"years"`
	Papers            []string      `json:"papers"`
	MappingsCreated   int           `json:"mappings_created"`
	Integrity         Integrity     `json:"integrity"`
	Duration          time.Duration `json:"duration"`
}

// BuildReport computes the report of a processed file. Lengths are counted
// in characters.
func BuildReport(filename string, chunks []chunker.Chunk, res indexer.UploadResult, mappings int, integrity Integrity) Report {
	rep := Report{
		Filename:        filename,
		Timestamp:       time.Now(),
		TotalChunks:     len(chunks),
		ChunksUploaded:  res.Uploaded,
		MappingsCreated: mappings,
		Integrity:       integrity,
		Subjects:        []string{},
		Years:           []int{},
		Papers:          []string{},
	}

	subjects := map[string]bool{}
	years := map[int]bool{}
	papers := map[string]bool{}
	for _, c := range chunks {
		switch c.Type {
		case chunker.Question:
			rep.QuestionChunks++
		case chunker.Syllabus:
			rep.SyllabusChunks++
		}
		rep.TotalContentChars += utf8.RuneCountInString(c.Content)
		rep.HasImages = rep.HasImages || len(c.Images) > 0
		rep.HasEquations = rep.HasEquations || len(c.Equations) > 0
		if !subjects[c.Subject] {
			subjects[c.Subject] = true
			rep.Subjects = append(rep.Subjects, c.Subject)
		}
		if c.Year != 0 && !years[c.Year] {
			years[c.Year] = true
			rep.Years = append(rep.Years, c.Year)
		}
		if c.Paper != "" && !papers[c.Paper] {
			papers[c.Paper] = true
			rep.Papers = append(rep.Papers, c.Paper)
		}
	}
	sort.Strings(rep.Subjects)
	sort.Ints(rep.Years)
	sort.Strings(rep.Papers)

	if len(chunks) > 0 {
		rep.UploadSuccessRate = float64(res.Uploaded) / float64(len(chunks)) * 100
		rep.AvgChunkLength = rep.TotalContentChars / len(chunks)
	}
	return rep
}

// Log writes the report as one structured line per section.
func (r Report) Log() {
	logger.Info("Processing report", "file", r.Filename,
		"chunks", r.TotalChunks, "questions", r.QuestionChunks, "syllabus", r.SyllabusChunks,
		"uploaded", r.ChunksUploaded, "success_rate", fmt.Sprintf("%.1f%%", r.UploadSuccessRate))
	logger.Info("Processing report content", "file", r.Filename,
		"avg_chunk_length", r.AvgChunkLength, "total_chars", r.TotalContentChars,
		"has_images", r.HasImages, "has_equations", r.HasEquations,
		"subjects", r.Subjects, "years", r.Years, "papers", r.Papers)
	logger.Info("Processing report linking", "file", r.Filename,
		"mappings", r.MappingsCreated, "integrity", r.Integrity.Status, "duration", r.Duration)
}

// Entry converts the report into a run ledger entry. A non-nil err marks the
// file as failed.
func (r Report) Entry(file string, err error) runs.FileEntry {
	e := runs.FileEntry{
		File:     file,
		Chunks:   r.TotalChunks,
		Uploaded: r.ChunksUploaded,
		Mappings: r.MappingsCreated,
	}
	if err != nil {
		e.Error = err.Error()
		return e
	}
	if r.Integrity.Err != nil {
		e.Error = r.Integrity.Err.Error()
	}
	if data, merr := json.Marshal(r); merr == nil {
		e.Report = data
	}
	return e
}

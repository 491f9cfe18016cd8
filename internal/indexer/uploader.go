package indexer

import (
	"context"
	"encoding/json"
	"time"

	"examrag/internal/chunker"
	"examrag/internal/logger"
	"examrag/internal/ocr"
	"examrag/internal/store"
)

// Sink is where uploaded rows go.
type Sink interface {
	InsertQuestions(ctx context.Context, rows []store.QuestionRow) error
	InsertSyllabus(ctx context.Context, rows []store.SyllabusRow) error
}

// UploadResult summarizes one Upload call.
type UploadResult struct {
	Attempted     int
	Uploaded      int
	Skipped       int // chunks without an embedding
	FailedBatches int
	// Rate is Uploaded/Attempted, 0 when nothing was attempted.
	Rate float64

	QuestionIDs []string
	SyllabusIDs []string
}

// Uploader embeds chunks and inserts them in fixed-size batches. A failed
// batch is logged and the remaining batches still run.
type Uploader struct {
	Sink       Sink
	Embeddings *Generator
	BatchSize  int
	Pause      time.Duration

	// OnQuestionBatch is called after every stored question batch.
	OnQuestionBatch func(ctx context.Context, rows []store.QuestionRow)
}

func NewUploader(sink Sink, gen *Generator, batchSize int, pause time.Duration) *Uploader {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Uploader{Sink: sink, Embeddings: gen, BatchSize: batchSize, Pause: pause}
}

// Upload persists question and syllabus chunks separately. Cancellation is
// honoured between batches.
func (u *Uploader) Upload(ctx context.Context, chunks []chunker.Chunk) UploadResult {
	var questions, syllabus []chunker.Chunk
	for _, c := range chunks {
		if c.Type == chunker.Syllabus {
			syllabus = append(syllabus, c)
		} else {
			questions = append(questions, c)
		}
	}

	res := UploadResult{Attempted: len(chunks)}
	if len(questions) > 0 {
		u.uploadQuestions(ctx, questions, &res)
	}
	if len(syllabus) > 0 {
		u.uploadSyllabus(ctx, syllabus, &res)
	}
	if res.Attempted > 0 {
		res.Rate = float64(res.Uploaded) / float64(res.Attempted)
	}
	logger.Info("Upload finished",
		"attempted", res.Attempted, "uploaded", res.Uploaded,
		"skipped", res.Skipped, "failed_batches", res.FailedBatches)
	return res
}

func (u *Uploader) uploadQuestions(ctx context.Context, chunks []chunker.Chunk, res *UploadResult) {
	embeddings := u.Embeddings.EmbedAll(ctx, contents(chunks))
	var rows []store.QuestionRow
	for i, c := range chunks {
		if embeddings[i] == nil {
			res.Skipped++
			continue
		}
		rows = append(rows, QuestionRow(c, embeddings[i]))
	}

	for start := 0; start < len(rows); start += u.BatchSize {
		if !u.waitBetween(ctx, start) {
			return
		}
		batch := rows[start:min(start+u.BatchSize, len(rows))]
		if err := u.Sink.InsertQuestions(ctx, batch); err != nil {
			res.FailedBatches++
			logger.Error("Question batch failed", "batch", start/u.BatchSize+1, "size", len(batch), "err", err)
			continue
		}
		res.Uploaded += len(batch)
		for _, r := range batch {
			res.QuestionIDs = append(res.QuestionIDs, r.ID)
		}
		logger.Info("Uploaded question batch", "batch", start/u.BatchSize+1, "size", len(batch))
		if u.OnQuestionBatch != nil {
			u.OnQuestionBatch(ctx, batch)
		}
	}
}

func (u *Uploader) uploadSyllabus(ctx context.Context, chunks []chunker.Chunk, res *UploadResult) {
	embeddings := u.Embeddings.EmbedAll(ctx, contents(chunks))
	var rows []store.SyllabusRow
	for i, c := range chunks {
		if embeddings[i] == nil {
			res.Skipped++
			continue
		}
		rows = append(rows, SyllabusRow(c, embeddings[i]))
	}

	for start := 0; start < len(rows); start += u.BatchSize {
		if !u.waitBetween(ctx, start) {
			return
		}
		batch := rows[start:min(start+u.BatchSize, len(rows))]
		if err := u.Sink.InsertSyllabus(ctx, batch); err != nil {
			res.FailedBatches++
			logger.Error("Syllabus batch failed", "batch", start/u.BatchSize+1, "size", len(batch), "err", err)
			continue
		}
		res.Uploaded += len(batch)
		for _, r := range batch {
			res.SyllabusIDs = append(res.SyllabusIDs, r.ID)
		}
		logger.Info("Uploaded syllabus batch", "batch", start/u.BatchSize+1, "size", len(batch))
	}
}

// waitBetween pauses before every batch but the first and reports whether
// the upload should go on.
func (u *Uploader) waitBetween(ctx context.Context, start int) bool {
	if ctx.Err() != nil {
		logger.Warn("Upload cancelled", "err", ctx.Err())
		return false
	}
	if start == 0 || u.Pause <= 0 {
		return true
	}
	t := time.NewTimer(u.Pause)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		logger.Warn("Upload cancelled", "err", ctx.Err())
		return false
	}
}

// QuestionRow builds the persisted shape of a question chunk.
func QuestionRow(c chunker.Chunk, embedding []float32) store.QuestionRow {
	images, _ := json.Marshal(nonNil(c.Images))
	equations, _ := json.Marshal(nonNil(c.Equations))
	return store.QuestionRow{
		ID:              c.ID,
		Content:         c.Content,
		Embedding:       embedding,
		Subject:         c.Subject,
		Year:            c.Year,
		Paper:           c.Paper,
		QuestionID:      c.QuestionID,
		Topic:           c.Topic,
		SubTopic:        c.SubTopic,
		Images:          images,
		Equations:       equations,
		IsMathHeavy:     ocr.IsMathHeavy(c.Content),
		ConfidenceScore: c.ConfidenceScore,
		Source:          c.Source,
	}
}

// SyllabusRow builds the persisted shape of a syllabus chunk.
func SyllabusRow(c chunker.Chunk, embedding []float32) store.SyllabusRow {
	topic := c.Topic
	if topic == "" {
		topic = "General"
	}
	module := c.Paper
	if module == "" {
		module = "Unknown"
	}
	return store.SyllabusRow{
		ID:         c.ID,
		Subject:    c.Subject,
		TopicTitle: topic,
		ChunkText:  c.Content,
		Embedding:  embedding,
		Module:     module,
		Source:     c.Source,
	}
}

func contents(chunks []chunker.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"examrag/internal/chunker"
	"examrag/internal/extractor"
	"examrag/internal/indexer"
	"examrag/internal/linker"
	"examrag/internal/logger"
	"examrag/internal/metadata"
	"examrag/internal/objstore"
	"examrag/internal/outcome"
	"examrag/internal/runs"
	"examrag/internal/store"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor reads one source file.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (*extractor.Document, error)
}

// TopicLinker maps a question chunk to syllabus topics.
type TopicLinker interface {
	Link(ctx context.Context, questionID, content, subject string) outcome.Outcome[[]linker.TopicMapping]
}

// MappingStore is the part of the store the pipeline reads and writes
// directly; chunk rows go through the Uploader.
type MappingStore interface {
	InsertMappings(ctx context.Context, rows []store.MappingRow) error
	CountIDs(ctx context.Context, table store.Table, ids []string) (int, error)
	UnmappedQuestions(ctx context.Context, limit int) ([]store.Result, error)
	MappingDetails(ctx context.Context, subject string) ([]store.MappingDetail, error)
}

// Pipeline ingests source documents into the store.
type Pipeline struct {
	Extractor DocumentExtractor
	Chunker   *chunker.Chunker
	Uploader  *indexer.Uploader
	Linker    TopicLinker // nil disables topic linking
	Store     MappingStore
	Objects   objstore.Store // nil keeps images in memory only
	Runs      *runs.Ledger   // nil disables run recording

	LinkWorkers int
}

// supported source extensions for directory runs
var sourceExts = map[string]bool{".pdf": true, ".docx": true}

// ProcessFile runs one document through the whole pipeline and returns its
// report. Integrity mismatches are carried in the report, not returned.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, overrides metadata.Overrides) (Report, error) {
	start := time.Now()
	name := filepath.Base(path)

	doc, err := p.Extractor.Extract(ctx, path)
	if err != nil {
		return Report{}, fmt.Errorf("extract %s: %w", name, err)
	}

	md := metadata.Classify(doc.Name, doc.CombinedText()).Apply(overrides, doc.Name)
	md.Log(doc.Name)

	chunks := p.Chunker.Build(doc, md)
	if len(chunks) == 0 {
		logger.Warn("No chunks created", "file", name)
		rep := BuildReport(name, nil, indexer.UploadResult{}, 0, Integrity{Status: "skipped"})
		rep.Duration = time.Since(start)
		return rep, nil
	}
	logger.Info("Created chunks", "file", name, "chunks", len(chunks))

	p.storeImages(ctx, md.Subject, doc.Name, chunks)

	linking := p.newLinkPool(ctx)
	up := *p.Uploader
	up.OnQuestionBatch = linking.submit
	res := up.Upload(ctx, chunks)
	mappings := linking.wait()

	integrity := VerifyIntegrity(ctx, p.Store, chunks, res)

	rep := BuildReport(name, chunks, res, mappings, integrity)
	rep.Duration = time.Since(start)
	rep.Log()
	return rep, nil
}

// DirectoryResult aggregates a directory run.
type DirectoryResult struct {
	Reports     []Report
	Failed      map[string]error
	TotalChunks int
}

// ProcessDirectory processes every .pdf and .docx file directly inside dir,
// one file at a time. Cancellation is checked between files.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string, overrides metadata.Overrides) (DirectoryResult, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return DirectoryResult{}, err
	}
	return p.processFiles(ctx, files, overrides, nil)
}

// Ingest processes a file or a directory and records the run in the ledger.
func (p *Pipeline) Ingest(ctx context.Context, target string, overrides metadata.Overrides) (DirectoryResult, *runs.Run, error) {
	info, err := os.Stat(target)
	if err != nil {
		return DirectoryResult{}, nil, err
	}
	files := []string{target}
	if info.IsDir() {
		if files, err = SourceFiles(target); err != nil {
			return DirectoryResult{}, nil, err
		}
	}

	var run *runs.Run
	var record func(file string, rep Report, err error)
	if p.Runs != nil {
		if run, err = p.Runs.Start(target); err != nil {
			return DirectoryResult{}, nil, fmt.Errorf("start run: %w", err)
		}
		record = func(file string, rep Report, err error) {
			if rerr := p.Runs.Record(run.ID, rep.Entry(file, err)); rerr != nil {
				logger.Warn("Failed to record file in run ledger", "run", run.ID, "file", file, "err", rerr)
			}
		}
	}

	result, err := p.processFiles(ctx, files, overrides, record)

	if run != nil {
		status := runs.StatusCompleted
		switch {
		case ctx.Err() != nil:
			status = runs.StatusCancelled
		case err != nil || (len(files) > 0 && len(result.Failed) == len(files)):
			status = runs.StatusFailed
		}
		if ferr := p.Runs.Finish(run.ID, status); ferr != nil {
			logger.Warn("Failed to finish run", "run", run.ID, "err", ferr)
		}
		if latest, gerr := p.Runs.Get(run.ID); gerr == nil {
			run = latest
		}
	}
	return result, run, err
}

func (p *Pipeline) processFiles(ctx context.Context, files []string, overrides metadata.Overrides, record func(string, Report, error)) (DirectoryResult, error) {
	result := DirectoryResult{Failed: make(map[string]error)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run cancelled", "remaining", len(files)-len(result.Reports)-len(result.Failed))
			return result, err
		}
		name := filepath.Base(f)
		rep, err := p.ProcessFile(ctx, f, overrides)
		if record != nil {
			record(name, rep, err)
		}
		if err != nil {
			logger.Error("Error processing file", "file", name, "err", err)
			result.Failed[name] = err
			continue
		}
		result.Reports = append(result.Reports, rep)
		if rep.ChunksUploaded > 0 {
			result.TotalChunks += rep.TotalChunks
			logger.Info("Processed file", "file", name, "chunks", rep.TotalChunks)
		} else if rep.TotalChunks > 0 {
			logger.Error("Failed to upload chunks", "file", name)
		}
	}
	logger.Info("Total chunks processed", "chunks", result.TotalChunks, "files", len(files))
	return result, nil
}

// SourceFiles lists the .pdf and .docx files directly inside dir, sorted by
// name.
func SourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !sourceExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		logger.Warn("No PDF or DOCX files found", "dir", dir)
	}
	return files, nil
}

// storeImages writes image bytes to the object store and sets each image's
// Path. A failed write leaves that image without a path.
func (p *Pipeline) storeImages(ctx context.Context, subject, file string, chunks []chunker.Chunk) {
	if p.Objects == nil {
		return
	}
	stored := 0
	for ci := range chunks {
		for ii := range chunks[ci].Images {
			img := &chunks[ci].Images[ii]
			if len(img.Data) == 0 || img.Path != "" {
				continue
			}
			key := objstore.ImageKey(subject, file, img.Page, img.Index, img.Extension)
			path, err := p.Objects.Put(ctx, key, img.Data)
			if err != nil {
				logger.Warn("Failed to store image", "file", file, "key", key, "err", err)
				continue
			}
			img.Path = path
			stored++
		}
	}
	if stored > 0 {
		logger.Info("Stored images", "file", file, "images", stored)
	}
}

// linkPool links uploaded question rows in the background with bounded
// concurrency and counts the stored mappings.
type linkPool struct {
	ctx      context.Context
	p        *Pipeline
	g        errgroup.Group
	mappings atomic.Int64
}

func (p *Pipeline) newLinkPool(ctx context.Context) *linkPool {
	lp := &linkPool{ctx: ctx, p: p}
	workers := p.LinkWorkers
	if workers <= 0 {
		workers = 2
	}
	lp.g.SetLimit(workers)
	return lp
}

// submit queues every row of a stored batch. It blocks while the pool is
// full.
func (lp *linkPool) submit(_ context.Context, rows []store.QuestionRow) {
	if lp.p.Linker == nil {
		return
	}
	logger.Info("Creating topic mappings", "chunks", len(rows))
	for _, row := range rows {
		lp.g.Go(func() error {
			lp.mappings.Add(int64(lp.p.linkOne(lp.ctx, row.ID, row.Content, row.Subject)))
			return nil
		})
	}
}

func (lp *linkPool) wait() int {
	_ = lp.g.Wait()
	n := int(lp.mappings.Load())
	if lp.p.Linker != nil {
		logger.Info("Created topic mappings", "mappings", n)
	}
	return n
}

// linkOne links and stores the mappings of one question chunk, returning
// how many were stored.
func (p *Pipeline) linkOne(ctx context.Context, id, content, subject string) int {
	out := p.Linker.Link(ctx, id, content, subject)
	if !out.HasValue() || len(out.Value) == 0 {
		if out.Reason != "" {
			logger.Debug("No topic mappings", "chunk", id, "reason", out.Reason)
		}
		return 0
	}
	rows := make([]store.MappingRow, len(out.Value))
	for i, m := range out.Value {
		rows[i] = m.Row()
	}
	if err := p.Store.InsertMappings(ctx, rows); err != nil {
		logger.Warn("Topic mapping failed", "chunk", id, "err", err)
		return 0
	}
	return len(rows)
}

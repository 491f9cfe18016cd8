package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"examrag/internal/logger"

	"golang.org/x/sync/errgroup"
)

// TopicStat is how often one syllabus topic was examined in one year.
type TopicStat struct {
	Subject        string  `json:"subject"`
	Module         string  `json:"module"`
	TopicTitle     string  `json:"topic_title"`
	Year           int     `json:"year"`
	Occurrences    int     `json:"occurrence_ct"`
	AvgConfidence  float64 `json:"avg_confidence"`
	PapersAppeared int     `json:"papers_appeared"`
	MathHeavyCount int     `json:"math_heavy_count"`
}

type statKey struct {
	subject, module, topic string
	year                   int
}

type statAcc struct {
	questions  map[string]bool
	mathHeavy  map[string]bool
	papers     map[string]bool
	confidence float64
	mappings   int
}

// TopicStats groups stored mappings by subject, module, topic and year.
// Occurrences counts distinct questions; mappings whose question has no year
// are skipped. An empty subject means all subjects.
func (p *Pipeline) TopicStats(ctx context.Context, subject string) ([]TopicStat, error) {
	details, err := p.Store.MappingDetails(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	logger.Info("Computing topic statistics", "mappings", len(details), "subject", subject)

	groups := map[statKey]*statAcc{}
	for _, d := range details {
		if d.Year == 0 {
			continue
		}
		k := statKey{d.Subject, d.Module, d.TopicTitle, d.Year}
		acc := groups[k]
		if acc == nil {
			acc = &statAcc{questions: map[string]bool{}, mathHeavy: map[string]bool{}, papers: map[string]bool{}}
			groups[k] = acc
		}
		acc.questions[d.QuestionID] = true
		acc.confidence += d.ConfidenceScore
		acc.mappings++
		if d.Paper != "" {
			acc.papers[d.Paper] = true
		}
		if d.IsMathHeavy {
			acc.mathHeavy[d.QuestionID] = true
		}
	}

	stats := make([]TopicStat, 0, len(groups))
	for k, acc := range groups {
		stats = append(stats, TopicStat{
			Subject:        k.subject,
			Module:         k.module,
			TopicTitle:     k.topic,
			Year:           k.year,
			Occurrences:    len(acc.questions),
			AvgConfidence:  acc.confidence / float64(acc.mappings),
			PapersAppeared: len(acc.papers),
			MathHeavyCount: len(acc.mathHeavy),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.TopicTitle != b.TopicTitle {
			return a.TopicTitle < b.TopicTitle
		}
		return a.Year < b.Year
	})
	return stats, nil
}

// BackfillResult summarizes a Backfill run.
type BackfillResult struct {
	Scanned  int
	Skipped  int
	Linked   int
	Mappings int
}

// Backfill links the most recent question chunks that have no mappings yet.
// Chunks without a subject or content are skipped.
func (p *Pipeline) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	if p.Linker == nil {
		return BackfillResult{}, fmt.Errorf("backfill: no topic linker configured")
	}
	rows, err := p.Store.UnmappedQuestions(ctx, limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("load unmapped questions: %w", err)
	}
	logger.Info("Backfilling topic mappings", "chunks", len(rows))

	res := BackfillResult{Scanned: len(rows)}
	var linked, mappings atomic.Int64
	var g errgroup.Group
	workers := p.LinkWorkers
	if workers <= 0 {
		workers = 2
	}
	g.SetLimit(workers)
	for _, r := range rows {
		if r.Subject == "" || strings.TrimSpace(r.Content) == "" {
			logger.Debug("Skipping chunk without subject or content", "chunk", r.ID)
			res.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if n := p.linkOne(ctx, r.ID, r.Content, r.Subject); n > 0 {
				linked.Add(1)
				mappings.Add(int64(n))
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Linked = int(linked.Load())
	res.Mappings = int(mappings.Load())
	logger.Info("Backfill finished", "scanned", res.Scanned, "linked", res.Linked,
		"mappings", res.Mappings, "skipped", res.Skipped)
	return res, ctx.Err()
}

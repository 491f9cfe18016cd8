// Package retriever serves hybrid semantic and keyword retrieval over the
// question and syllabus corpora.
package retriever

import (
	"context"
	"fmt"

	"examrag/internal/config"
	"examrag/internal/keywords"
	"examrag/internal/logger"
	"examrag/internal/store"
)

// Searcher is the read side of a store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, table store.Table, embedding []float32, f store.Filter, threshold float64, limit int) ([]store.Result, error)
	FilteredFetch(ctx context.Context, table store.Table, f store.Filter, limit int) ([]store.Result, error)
	KeywordSearch(ctx context.Context, table store.Table, f store.Filter, keyword string, limit int) ([]store.Result, error)
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retrieval is the ranked context for one query.
type Retrieval struct {
	Questions []store.Result `json:"questions"`
	Syllabus  []store.Result `json:"syllabus"`
}

// Retriever performs hybrid search: vector similarity with one relaxed
// retry, topped up by keyword matches when the corpus is sparse.
type Retriever struct {
	Store    Searcher
	Embedder QueryEmbedder
	Keywords *keywords.Extractor
	Tuning   config.RetrieverTuning
}

func New(s Searcher, e QueryEmbedder, kw *keywords.Extractor, tuning config.RetrieverTuning) *Retriever {
	if kw == nil {
		kw = keywords.Default
	}
	return &Retriever{Store: s, Embedder: e, Keywords: kw, Tuning: tuning}
}

// Query embeds text and retrieves for it.
func (r *Retriever) Query(ctx context.Context, text, subject string) (Retrieval, error) {
	if r.Embedder == nil {
		return Retrieval{}, fmt.Errorf("no query embedder configured")
	}
	emb, err := r.Embedder.Embed(ctx, text)
	if err != nil {
		return Retrieval{}, fmt.Errorf("query embedding error: %w", err)
	}
	return r.Retrieve(ctx, emb, text, subject), nil
}

// Retrieve returns ranked questions and syllabus chunks for a query. Store
// failures degrade the result; they are never returned.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, queryText, subject string) Retrieval {
	t := r.Tuning
	f := store.Filter{Subject: subject}
	return Retrieval{
		Questions: r.corpus(ctx, store.Questions, embedding, queryText, f, t.QuestionLimit, t.QuestionFloor),
		Syllabus:  r.corpus(ctx, store.Syllabus, embedding, queryText, f, t.SyllabusLimit, t.SyllabusFloor),
	}
}

func (r *Retriever) corpus(ctx context.Context, table store.Table, embedding []float32, queryText string, f store.Filter, limit, floor int) []store.Result {
	results, err := r.semantic(ctx, table, embedding, f, limit)
	if err != nil {
		logger.Warn("Similarity search failed, using filtered fetch", "table", string(table), "err", err)
		results, err = r.Store.FilteredFetch(ctx, table, f, limit)
		if err != nil {
			logger.Error("Filtered fetch failed", "table", string(table), "err", err)
			results = nil
		}
	}

	if len(results) < floor {
		extra := r.keywordSupplement(ctx, table, queryText, f)
		logger.Debug("Keyword supplement", "table", string(table), "semantic", len(results), "keyword", len(extra))
		results = append(results, extra...)
	}
	return Merge(limit, results)
}

// semantic runs the similarity search and retries once at the relaxed
// threshold when fewer than half of limit came back.
func (r *Retriever) semantic(ctx context.Context, table store.Table, embedding []float32, f store.Filter, limit int) ([]store.Result, error) {
	t := r.Tuning
	results, err := r.Store.SimilaritySearch(ctx, table, embedding, f, t.Threshold, limit)
	if err != nil {
		return nil, err
	}
	if 2*len(results) >= limit {
		return results, nil
	}

	relaxed, err := r.Store.SimilaritySearch(ctx, table, embedding, f, t.RelaxedThreshold, limit)
	if err != nil {
		logger.Warn("Relaxed similarity search failed", "table", string(table), "err", err)
		return results, nil
	}
	logger.Debug("Relaxed similarity search", "table", string(table),
		"strict", len(results), "relaxed", len(relaxed))
	return relaxed, nil
}

func (r *Retriever) keywordSupplement(ctx context.Context, table store.Table, queryText string, f store.Filter) []store.Result {
	var out []store.Result
	for _, kw := range r.Keywords.Top(queryText, r.Tuning.MaxKeywords) {
		res, err := r.Store.KeywordSearch(ctx, table, f, kw, r.Tuning.PerKeyword)
		if err != nil {
			logger.Warn("Keyword search failed", "table", string(table), "keyword", kw, "err", err)
			continue
		}
		out = append(out, res...)
	}
	return out
}

// Merge removes duplicate IDs keeping the first occurrence, ranks by
// similarity with unscored results last and truncates to limit.
func Merge(limit int, lists ...[]store.Result) []store.Result {
	seen := make(map[string]bool)
	var out []store.Result
	for _, list := range lists {
		for _, res := range list {
			if seen[res.ID] {
				continue
			}
			seen[res.ID] = true
			out = append(out, res)
		}
	}
	store.Rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

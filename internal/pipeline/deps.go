// Package pipeline wires the ingestion components together: extraction,
// classification, chunking, upload, asynchronous topic linking, integrity
// checks and reporting. It also hosts the maintenance jobs that work on
// already stored data (topic statistics and mapping backfill).
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"examrag/internal/chunker"
	"examrag/internal/config"
	"examrag/internal/crypto"
	"examrag/internal/extractor"
	"examrag/internal/indexer"
	"examrag/internal/keywords"
	"examrag/internal/linker"
	"examrag/internal/llm"
	"examrag/internal/logger"
	"examrag/internal/objstore"
	"examrag/internal/ocr"
	"examrag/internal/retriever"
	"examrag/internal/runs"
	"examrag/internal/store"
)

// Deps holds every shared component, built once per process.
type Deps struct {
	Config     *config.Config
	Store      store.Store
	Extractor  *extractor.Extractor
	Chunker    *chunker.Chunker
	Keywords   *keywords.Extractor
	Embeddings *indexer.Generator
	Uploader   *indexer.Uploader
	Linker     *linker.Linker
	Retriever  *retriever.Retriever
	Objects    *objstore.Local
	Runs       *runs.Ledger
}

// NewDeps builds the components selected by cfg. Optional integrations
// (LLM, OCR providers, Redis) degrade with a log line when unconfigured; the
// store and the embedder are required.
func NewDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	t := cfg.Tuning

	dsn := cfg.DatabaseURL
	if cfg.Store == "sqlite" {
		dsn = cfg.SQLitePath
	}
	st, err := store.Open(ctx, cfg.Store, dsn, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	emb, err := indexer.NewFromConfig(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	gen := indexer.NewGenerator(emb, cfg.EmbedDim, t.Pools.EmbedWorkers, cfg.CallTimeout)

	completer, err := llm.NewFromConfig(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Info("No LLM configured, topic linking uses keyword matching only")
		completer = nil
	case err != nil:
		logger.Warn("LLM unavailable, topic linking uses keyword matching only", "err", err)
		completer = nil
	}

	objects, err := objstore.NewLocal(cfg.ObjectDir, crypto.NewSigner(cfg.SigningKey))
	if err != nil {
		st.Close()
		return nil, err
	}
	ledger, err := runs.Open(cfg.RunsDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	kw := keywords.New(t.Keywords.ExtraTerms, t.Keywords.ExtraGroups)
	return &Deps{
		Config:     cfg,
		Store:      st,
		Extractor:  extractor.New(ocr.NewFromConfig(ctx, cfg), t.Pools.OCRWorkers),
		Chunker:    chunker.New(t.Chunker.MaxTokens, t.Chunker.MinTokens),
		Keywords:   kw,
		Embeddings: gen,
		Uploader:   indexer.NewUploader(st, gen, t.Upload.BatchSize, t.Upload.Pause),
		Linker:     linker.New(st, completer, kw, t.Linker),
		Retriever:  retriever.New(st, gen, kw, t.Retriever),
		Objects:    objects,
		Runs:       ledger,
	}, nil
}

// Pipeline returns the ingestion pipeline over d.
func (d *Deps) Pipeline() *Pipeline {
	return &Pipeline{
		Extractor:   d.Extractor,
		Chunker:     d.Chunker,
		Uploader:    d.Uploader,
		Linker:      d.Linker,
		Store:       d.Store,
		Objects:     d.Objects,
		Runs:        d.Runs,
		LinkWorkers: d.Config.Tuning.Pools.LinkWorkers,
	}
}

func (d *Deps) Close() error {
	return d.Store.Close()
}

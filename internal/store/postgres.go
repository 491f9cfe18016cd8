package store

import (
	"context"
	"fmt"

	"examrag/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres stores chunks in PostgreSQL with the pgvector extension.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects, pings and creates the schema if needed.
func NewPostgres(ctx context.Context, connStr string, dim int) (*Postgres, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Postgres{Pool: pool}
	if err := db.Initialize(ctx, dim); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Initialize sets up the tables and indices.
func (db *Postgres) Initialize(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS question_chunks (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			subject TEXT NOT NULL,
			year INTEGER,
			paper TEXT,
			question_id TEXT,
			topic TEXT,
			sub_topic TEXT,
			images JSONB NOT NULL DEFAULT '[]',
			equations JSONB NOT NULL DEFAULT '[]',
			is_math_heavy BOOLEAN NOT NULL DEFAULT FALSE,
			confidence_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			source TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS syllabus_chunks (
			id UUID PRIMARY KEY,
			subject TEXT NOT NULL,
			topic_title TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			module TEXT,
			source TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE TABLE IF NOT EXISTS topic_mappings (
			id BIGSERIAL PRIMARY KEY,
			question_id UUID NOT NULL REFERENCES question_chunks(id) ON DELETE CASCADE,
			topic_id UUID NOT NULL REFERENCES syllabus_chunks(id) ON DELETE CASCADE,
			confidence_score DOUBLE PRECISION NOT NULL,
			mapping_type TEXT NOT NULL,
			reasoning TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS question_chunks_subject_idx ON question_chunks (subject)`,
		`CREATE INDEX IF NOT EXISTS syllabus_chunks_subject_idx ON syllabus_chunks (subject)`,
		`CREATE INDEX IF NOT EXISTS topic_mappings_question_idx ON topic_mappings (question_id)`,
		`CREATE INDEX IF NOT EXISTS question_chunks_embedding_idx ON question_chunks
			USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS syllabus_chunks_embedding_idx ON syllabus_chunks
			USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// InsertQuestions inserts rows in one transaction; any failure rolls back
// the whole batch.
func (db *Postgres) InsertQuestions(ctx context.Context, rows []QuestionRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO question_chunks (
				id, content, embedding, subject, year, paper, question_id,
				topic, sub_topic, images, equations, is_math_heavy, confidence_score, source
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			r.ID, r.Content, pgvector.NewVector(r.Embedding), r.Subject, nullInt(r.Year),
			nullString(r.Paper), nullString(r.QuestionID), nullString(r.Topic), nullString(r.SubTopic),
			jsonOrEmpty(r.Images), jsonOrEmpty(r.Equations), r.IsMathHeavy, r.ConfidenceScore, r.Source)
	}
	return db.sendBatch(ctx, batch)
}

func (db *Postgres) InsertSyllabus(ctx context.Context, rows []SyllabusRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO syllabus_chunks (id, subject, topic_title, chunk_text, embedding, module, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.Subject, r.TopicTitle, r.ChunkText, pgvector.NewVector(r.Embedding), r.Module, r.Source)
	}
	return db.sendBatch(ctx, batch)
}

func (db *Postgres) InsertMappings(ctx context.Context, rows []MappingRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO topic_mappings (question_id, topic_id, confidence_score, mapping_type, reasoning)
			VALUES ($1, $2, $3, $4, $5)`,
			r.QuestionID, r.TopicID, r.ConfidenceScore, r.MappingType, nullString(r.Reasoning))
	}
	return db.sendBatch(ctx, batch)
}

func (db *Postgres) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	return tx.Commit(ctx)
}

// selectColumns lists the columns Normalize understands for each table.
func selectColumns(table Table) (string, error) {
	switch table {
	case Questions:
		return `id, content, subject, year, paper, question_id, topic, sub_topic, is_math_heavy`, nil
	case Syllabus:
		return `id, chunk_text, subject, topic_title, module`, nil
	default:
		return "", fmt.Errorf("unknown table %q", table)
	}
}

func textColumn(table Table) string {
	if table == Syllabus {
		return "chunk_text"
	}
	return "content"
}

func (db *Postgres) SimilaritySearch(ctx context.Context, table Table, embedding []float32, f Filter, threshold float64, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE ($2 = '' OR subject = $2) AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`, cols, table)
	return db.query(ctx, table, query, pgvector.NewVector(embedding), f.Subject, threshold, limit)
}

func (db *Postgres) FilteredFetch(ctx context.Context, table Table, f Filter, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ($1 = '' OR subject = $1) LIMIT $2`, cols, table)
	return db.query(ctx, table, query, f.Subject, limit)
}

func (db *Postgres) KeywordSearch(ctx context.Context, table Table, f Filter, keyword string, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1 = '' OR subject = $1) AND %s ILIKE '%%' || $2 || '%%'
		LIMIT $3`, cols, table, textColumn(table))
	return db.query(ctx, table, query, f.Subject, keyword, limit)
}

func (db *Postgres) SyllabusFor(ctx context.Context, subject string) ([]Result, error) {
	cols, _ := selectColumns(Syllabus)
	query := fmt.Sprintf(`SELECT %s FROM syllabus_chunks WHERE subject = $1 ORDER BY created_at, id`, cols)
	return db.query(ctx, Syllabus, query, subject)
}

func (db *Postgres) CountIDs(ctx context.Context, table Table, ids []string) (int, error) {
	if _, err := selectColumns(table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE id = ANY($1::uuid[])`, table), ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (db *Postgres) UnmappedQuestions(ctx context.Context, limit int) ([]Result, error) {
	query := `
		SELECT q.id, q.content, q.subject, q.year, q.paper, q.question_id, q.topic, q.sub_topic, q.is_math_heavy
		FROM question_chunks q
		WHERE NOT EXISTS (SELECT 1 FROM topic_mappings m WHERE m.question_id = q.id)
		ORDER BY q.created_at DESC
		LIMIT $1`
	return db.query(ctx, Questions, query, limit)
}

func (db *Postgres) MappingDetails(ctx context.Context, subject string) ([]MappingDetail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.question_id::text, m.topic_id::text, m.confidence_score, m.mapping_type,
		       q.subject, COALESCE(q.year, 0), COALESCE(q.paper, ''), q.is_math_heavy,
		       COALESCE(s.module, ''), s.topic_title
		FROM topic_mappings m
		JOIN question_chunks q ON q.id = m.question_id
		JOIN syllabus_chunks s ON s.id = m.topic_id
		WHERE ($1 = '' OR q.subject = $1)`, subject)
	if err != nil {
		return nil, fmt.Errorf("query mapping details: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MappingDetail, error) {
		var d MappingDetail
		err := row.Scan(&d.QuestionID, &d.TopicID, &d.ConfidenceScore, &d.MappingType,
			&d.Subject, &d.Year, &d.Paper, &d.IsMathHeavy, &d.Module, &d.TopicTitle)
		return d, err
	})
}

func (db *Postgres) query(ctx context.Context, table Table, query string, args ...any) ([]Result, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table, err)
	}
	logger.Debug("Store query", "table", string(table), "rows", len(maps))
	return NormalizeAll(table, maps), nil
}

func (db *Postgres) Close() error {
	db.Pool.Close()
	return nil
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "[]"
	}
	return string(b)
}

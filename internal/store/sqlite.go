package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"examrag/internal/logger"

	"github.com/blevesearch/bleve/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a single-file store for local runs and tests. Similarity is
// computed in process; keyword search goes through in-memory bleve indexes
// rebuilt from the database on open.
type SQLite struct {
	db *sqlx.DB

	mu      sync.RWMutex
	indexes map[Table]bleve.Index
}

// textDoc is what the keyword indexes hold per chunk.
type textDoc struct {
	Content string `json:"content"`
}

func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, indexes: make(map[Table]bleve.Index)}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.rebuildIndexes(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS question_chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			subject TEXT NOT NULL,
			year INTEGER,
			paper TEXT,
			question_id TEXT,
			topic TEXT,
			sub_topic TEXT,
			images TEXT NOT NULL DEFAULT '[]',
			equations TEXT NOT NULL DEFAULT '[]',
			is_math_heavy INTEGER NOT NULL DEFAULT 0,
			confidence_score REAL NOT NULL DEFAULT 1.0,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS syllabus_chunks (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			topic_title TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			module TEXT,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS topic_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question_id TEXT NOT NULL REFERENCES question_chunks(id) ON DELETE CASCADE,
			topic_id TEXT NOT NULL REFERENCES syllabus_chunks(id) ON DELETE CASCADE,
			confidence_score REAL NOT NULL,
			mapping_type TEXT NOT NULL,
			reasoning TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_question_chunks_subject ON question_chunks(subject)`,
		`CREATE INDEX IF NOT EXISTS idx_syllabus_chunks_subject ON syllabus_chunks(subject)`,
		`CREATE INDEX IF NOT EXISTS idx_topic_mappings_question ON topic_mappings(question_id)`,
	}
	for _, stmt := range tables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) rebuildIndexes(ctx context.Context) error {
	for _, table := range []Table{Questions, Syllabus} {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return fmt.Errorf("create keyword index: %w", err)
		}
		s.indexes[table] = idx

		var rows []struct {
			ID   string `db:"id"`
			Text string `db:"text"`
		}
		query := fmt.Sprintf(`SELECT id, %s AS text FROM %s`, textColumn(table), table)
		if err := s.db.SelectContext(ctx, &rows, query); err != nil {
			return fmt.Errorf("load %s for keyword index: %w", table, err)
		}
		batch := idx.NewBatch()
		for _, r := range rows {
			batch.Index(r.ID, textDoc{Content: r.Text})
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLite) indexDocs(table Table, docs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexes[table]
	batch := idx.NewBatch()
	for id, text := range docs {
		batch.Index(id, textDoc{Content: text})
	}
	if err := idx.Batch(batch); err != nil {
		logger.Warn("Keyword index update failed", "table", string(table), "err", err)
	}
}

func (s *SQLite) InsertQuestions(ctx context.Context, rows []QuestionRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	docs := make(map[string]string, len(rows))
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO question_chunks (
				id, content, embedding, subject, year, paper, question_id,
				topic, sub_topic, images, equations, is_math_heavy, confidence_score, source
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Content, encodeVector(r.Embedding), r.Subject, nullInt(r.Year),
			nullString(r.Paper), nullString(r.QuestionID), nullString(r.Topic), nullString(r.SubTopic),
			jsonOrEmpty(r.Images), jsonOrEmpty(r.Equations), r.IsMathHeavy, r.ConfidenceScore, r.Source)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", r.ID, err)
		}
		docs[r.ID] = r.Content
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.indexDocs(Questions, docs)
	return nil
}

func (s *SQLite) InsertSyllabus(ctx context.Context, rows []SyllabusRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	docs := make(map[string]string, len(rows))
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO syllabus_chunks (id, subject, topic_title, chunk_text, embedding, module, source)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Subject, r.TopicTitle, r.ChunkText, encodeVector(r.Embedding), r.Module, r.Source)
		if err != nil {
			return fmt.Errorf("insert syllabus %s: %w", r.ID, err)
		}
		docs[r.ID] = r.ChunkText
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.indexDocs(Syllabus, docs)
	return nil
}

func (s *SQLite) InsertMappings(ctx context.Context, rows []MappingRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO topic_mappings (question_id, topic_id, confidence_score, mapping_type, reasoning)
			VALUES (?, ?, ?, ?, ?)`,
			r.QuestionID, r.TopicID, r.ConfidenceScore, r.MappingType, nullString(r.Reasoning))
		if err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) SimilaritySearch(ctx context.Context, table Table, embedding []float32, f Filter, threshold float64, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s, embedding FROM %s WHERE (? = '' OR subject = ?)`, cols, table)
	maps, err := s.mapRows(ctx, query, f.Subject, f.Subject)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	var kept []map[string]any
	for _, m := range maps {
		blob, _ := m["embedding"].([]byte)
		delete(m, "embedding")
		sim := CosineSimilarity(embedding, decodeVector(blob))
		if sim >= threshold {
			m["similarity"] = sim
			kept = append(kept, m)
		}
	}
	results := NormalizeAll(table, kept)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLite) FilteredFetch(ctx context.Context, table Table, f Filter, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE (? = '' OR subject = ?) LIMIT ?`, cols, table)
	maps, err := s.mapRows(ctx, query, f.Subject, f.Subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return NormalizeAll(table, maps), nil
}

// KeywordSearch finds candidates with a wildcard query on the keyword index,
// then loads and filters them from the database in index order.
func (s *SQLite) KeywordSearch(ctx context.Context, table Table, f Filter, keyword string, limit int) ([]Result, error) {
	cols, err := selectColumns(table)
	if err != nil {
		return nil, err
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, nil
	}

	q := bleve.NewWildcardQuery("*" + keyword + "*")
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = max(limit, 1) * 5

	s.mu.RLock()
	res, err := s.indexes[table].Search(req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w", table, err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(res.Hits))
	order := make(map[string]int, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
		order[hit.ID] = i
	}

	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM %s WHERE id IN (?) AND (? = '' OR subject = ?)`, cols, table),
		ids, f.Subject, f.Subject)
	if err != nil {
		return nil, err
	}
	maps, err := s.mapRows(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	results := NormalizeAll(table, maps)
	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].ID] < order[results[j].ID]
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLite) SyllabusFor(ctx context.Context, subject string) ([]Result, error) {
	cols, _ := selectColumns(Syllabus)
	maps, err := s.mapRows(ctx,
		fmt.Sprintf(`SELECT %s FROM syllabus_chunks WHERE subject = ? ORDER BY created_at, rowid`, cols), subject)
	if err != nil {
		return nil, fmt.Errorf("query syllabus: %w", err)
	}
	return NormalizeAll(Syllabus, maps), nil
}

func (s *SQLite) CountIDs(ctx context.Context, table Table, ids []string) (int, error) {
	if _, err := selectColumns(table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT count(*) FROM %s WHERE id IN (?)`, table), ids)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *SQLite) UnmappedQuestions(ctx context.Context, limit int) ([]Result, error) {
	maps, err := s.mapRows(ctx, `
		SELECT q.id, q.content, q.subject, q.year, q.paper, q.question_id, q.topic, q.sub_topic, q.is_math_heavy
		FROM question_chunks q
		WHERE NOT EXISTS (SELECT 1 FROM topic_mappings m WHERE m.question_id = q.id)
		ORDER BY q.created_at DESC, q.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unmapped questions: %w", err)
	}
	return NormalizeAll(Questions, maps), nil
}

func (s *SQLite) MappingDetails(ctx context.Context, subject string) ([]MappingDetail, error) {
	var details []MappingDetail
	err := s.db.SelectContext(ctx, &details, `
		SELECT m.question_id, m.topic_id, m.confidence_score, m.mapping_type,
		       q.subject, COALESCE(q.year, 0) AS year, COALESCE(q.paper, '') AS paper, q.is_math_heavy,
		       COALESCE(s.module, '') AS module, s.topic_title
		FROM topic_mappings m
		JOIN question_chunks q ON q.id = m.question_id
		JOIN syllabus_chunks s ON s.id = m.topic_id
		WHERE (? = '' OR q.subject = ?)`, subject, subject)
	if err != nil {
		return nil, fmt.Errorf("query mapping details: %w", err)
	}
	return details, nil
}

func (s *SQLite) mapRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	for _, idx := range s.indexes {
		idx.Close()
	}
	s.mu.Unlock()
	return s.db.Close()
}

// CosineSimilarity returns 0 for vectors of different length or zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

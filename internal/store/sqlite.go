package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// SQLiteStore holds chunk payloads and, through the chunks_fts virtual
// table, doubles as the default FTS5 keyword backend. WAL mode allows
// the server and an ingest run to share the database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ KeywordIndex = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the payload database. An empty path
// creates an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention with modernc.org/sqlite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, askerr.New(askerr.ErrCodeCorruptIndex, "failed to initialize schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		source_file TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

	-- FTS5 virtual table for keyword search with BM25 ranking.
	-- id and source_id are stored but not tokenized.
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		id UNINDEXED,
		source_id UNINDEXED,
		text,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertPayloads stores payloads under their ids, replacing existing
// rows, and keeps the FTS table in sync.
func (s *SQLiteStore) UpsertPayloads(ctx context.Context, ids []string, payloads []Payload) error {
	if len(ids) != len(payloads) {
		return fmt.Errorf("ids and payloads length mismatch: %d vs %d", len(ids), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, source_file, chunk_index, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			source_file = excluded.source_file,
			chunk_index = excluded.chunk_index,
			text = excluded.text`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = upsertStmt.Close() }()

	// FTS5 virtual tables have no REPLACE, so delete then insert.
	ftsDeleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts delete: %w", err)
	}
	defer func() { _ = ftsDeleteStmt.Close() }()

	ftsInsertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks_fts (id, source_id, text) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts insert: %w", err)
	}
	defer func() { _ = ftsInsertStmt.Close() }()

	for i, id := range ids {
		p := payloads[i]
		if _, err := upsertStmt.ExecContext(ctx, id, p.SourceID, p.SourceFile, p.ChunkIndex, p.Text); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", id, err)
		}
		if _, err := ftsDeleteStmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to clear fts row %s: %w", id, err)
		}
		if _, err := ftsInsertStmt.ExecContext(ctx, id, p.SourceID, p.Text); err != nil {
			return fmt.Errorf("failed to index fts row %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetPayloads fetches payloads by id. Missing ids are absent from the
// returned map, not an error.
func (s *SQLiteStore) GetPayloads(ctx context.Context, ids []string) (map[string]Payload, error) {
	if len(ids) == 0 {
		return map[string]Payload{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, source_file, chunk_index, text FROM chunks WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]Payload, len(ids))
	for rows.Next() {
		var id string
		var p Payload
		if err := rows.Scan(&id, &p.SourceID, &p.SourceFile, &p.ChunkIndex, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}
		result[id] = p
	}
	return result, rows.Err()
}

// ListSourceIDs returns the distinct source ids, sorted.
func (s *SQLiteStore) ListSourceIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM chunks ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBySourceID removes all chunks of a source and returns their
// ids so the other indexes can be kept consistent.
func (s *SQLiteStore) DeleteBySourceID(ctx context.Context, sourceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete fts rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// IndexDocs implements KeywordIndex. Payload upserts already maintain
// the FTS table, so this is only used when FTS5 is not the payload
// store's own backend; it is kept cheap and idempotent.
func (s *SQLiteStore) IndexDocs(ctx context.Context, docs []KeywordDoc) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id = ?`, doc.ID); err != nil {
			return fmt.Errorf("failed to clear fts row %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts (id, source_id, text) VALUES (?, ?, ?)`,
			doc.ID, doc.SourceID, doc.Content); err != nil {
			return fmt.Errorf("failed to index fts row %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// SearchKeyword implements KeywordIndex via FTS5 MATCH with BM25
// ranking. Invalid match syntax is treated as no results, matching
// the Bleve backend's behavior on unparseable queries.
func (s *SQLiteStore) SearchKeyword(ctx context.Context, query string, limit int, sourceID string) ([]KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []KeywordResult{}, nil
	}

	matchQuery := ftsQuote(query)

	// bm25() is negative, lower is better.
	sqlQuery := `
		SELECT id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE text MATCH ?`
	args := []any{matchQuery}
	if sourceID != "" {
		sqlQuery += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	sqlQuery += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []KeywordResult{}, nil
		}
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan keyword result: %w", err)
		}
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteDocs implements KeywordIndex.
func (s *SQLiteStore) DeleteDocs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete fts row %s: %w", id, err)
		}
	}
	return nil
}

// ftsQuote turns free text into an OR query of quoted terms so user
// input never hits FTS5 operator syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	model "github.com/okian/queryai/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection  TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	document_id TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	position    INTEGER NOT NULL,
	content     TEXT    NOT NULL,
	embedding   BLOB    NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (collection, document_id);
`

// SQLiteOption applies a configuration option to the SQLite store.
type SQLiteOption func(*SQLite)

// WithCollection scopes the store to a named collection.
func WithCollection(name string) SQLiteOption {
	return func(s *SQLite) {
		if name != "" {
			s.collection = name
		}
	}
}

// SQLite is a Store persisted with the pure Go sqlite driver.
// Similarity is computed in process over the collection's rows.
type SQLite struct {
	db         *sql.DB
	collection string
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, collection: "RAG_Collection"}
	for _, opt := range opts {
		opt(s)
	}

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) Add(ctx context.Context, chunks []model.Chunk) error {
	if err := validate(chunks); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks
		(collection, id, document_id, source, position, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, c := range chunks {
		blob, err := encodeVector(c.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, s.collection, c.ID, c.DocumentID, c.Source, c.Position, c.Content, blob, now); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, query []float32, k int, minScore float64) ([]model.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, source, position, content, embedding
		FROM chunks WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Position, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if c.Embedding, err = decodeVector(blob); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return rank(query, candidates, k, minScore), nil
}

func (s *SQLite) HasDocument(ctx context.Context, documentID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chunks WHERE collection = ? AND document_id = ?)`,
		s.collection, documentID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("lookup document %s: %w", documentID, err)
	}
	return found == 1, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// encodeVector writes v as little-endian float32s.
func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: blob of %d bytes", ErrDimensionMismatch, len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}

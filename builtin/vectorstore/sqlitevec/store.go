// Package sqlitevec implements VectorStore using sqlite-vec for cosine
// similarity search over block embeddings.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvasko/codeseg/pkg/provider"
	"github.com/mvasko/codeseg/pkg/types"
)

// Ensure sqlite-vec Auto() is called exactly once before any db connection.
var vecAutoOnce sync.Once

// SchemaVersion is incremented when schema changes require reindexing.
const SchemaVersion = 1

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init initializes the store at the given path.
func (s *Store) Init(path string) error {
	s.path = path

	// Register the sqlite-vec extension before opening any connection so
	// vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL for concurrent reads, busy_timeout to wait for locks instead of
	// failing immediately.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			module_path TEXT NOT NULL,
			block_type TEXT NOT NULL,
			name TEXT,
			signature TEXT,
			doc TEXT,
			code TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_blocks_file_path ON blocks(file_path)`)
	if err != nil {
		return err
	}

	// File cache table for incremental indexing
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_cache (
			file_path TEXT PRIMARY KEY,
			file_hash TEXT NOT NULL,
			indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// createVectorTable creates the vector table with the specified dimensions.
func (s *Store) createVectorTable(dimensions int) error {
	if s.dimensions == dimensions {
		return nil
	}

	s.dimensions = dimensions

	// Dimensions changed: the old embeddings are unusable.
	_, _ = s.db.Exec("DROP TABLE IF EXISTS block_embeddings")

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS block_embeddings USING vec0(
			block_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReplaceFileBlocks atomically replaces all blocks for a file with the
// given set.
func (s *Store) ReplaceFileBlocks(filePath string, blocks []*types.BlockWithEmbedding) error {
	for _, bwe := range blocks {
		if len(bwe.Embedding) > 0 {
			if err := s.createVectorTable(len(bwe.Embedding)); err != nil {
				return err
			}
			break
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteFileBlocksTx(tx, filePath); err != nil {
		return err
	}

	blockStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO blocks
		(id, file_path, module_path, block_type, name, signature, doc, code, start_line, end_line, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer blockStmt.Close()

	embeddingStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO block_embeddings (block_id, embedding)
		VALUES (?, ?)
	`)
	if err != nil {
		return err
	}
	defer embeddingStmt.Close()

	for _, bwe := range blocks {
		b := bwe.Block
		id := b.ID()

		_, err := blockStmt.Exec(
			id, b.File, b.ModulePath, b.Type,
			b.Name, b.Signature, b.Doc, b.Code,
			b.StartLine, b.EndLine, b.Hash(),
		)
		if err != nil {
			return fmt.Errorf("failed to store block %s: %w", id, err)
		}

		if len(bwe.Embedding) > 0 {
			if _, err := embeddingStmt.Exec(id, floatsToBytes(bwe.Embedding)); err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteFileBlocks removes all blocks and embeddings for a file.
func (s *Store) DeleteFileBlocks(filePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteFileBlocksTx(tx, filePath); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM file_cache WHERE file_path = ?", filePath); err != nil {
		return err
	}

	return tx.Commit()
}

func deleteFileBlocksTx(tx *sql.Tx, filePath string) error {
	// The vector table does not exist until the first embedding insert.
	var haveVec int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='block_embeddings'
	`).Scan(&haveVec)
	if err != nil {
		return err
	}

	if haveVec > 0 {
		rows, err := tx.Query("SELECT id FROM blocks WHERE file_path = ?", filePath)
		if err != nil {
			return err
		}

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.Exec("DELETE FROM block_embeddings WHERE block_id = ?", id); err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec("DELETE FROM blocks WHERE file_path = ?", filePath)
	return err
}

// Search returns the blocks nearest to the query vector by cosine distance.
func (s *Store) Search(ctx context.Context, queryVec []float32, limit int) ([]*types.SearchResult, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("query vector is required")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			be.block_id,
			vec_distance_cosine(be.embedding, ?) as distance,
			b.file_path, b.module_path, b.block_type,
			b.name, b.signature, b.doc, b.code,
			b.start_line, b.end_line
		FROM block_embeddings be
		JOIN blocks b ON be.block_id = b.id
		ORDER BY distance ASC
		LIMIT ?
	`, floatsToBytes(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		var (
			id       string
			distance float64
			block    types.SemanticBlock
		)
		var name, signature, doc sql.NullString

		err := rows.Scan(
			&id, &distance,
			&block.File, &block.ModulePath, &block.Type,
			&name, &signature, &doc, &block.Code,
			&block.StartLine, &block.EndLine,
		)
		if err != nil {
			return nil, err
		}

		block.Name = name.String
		block.Signature = signature.String
		block.Doc = doc.String

		results = append(results, &types.SearchResult{
			Block: &block,
			// Cosine distance is in [0, 2]; fold it into a similarity.
			Score: float32(1.0 - distance/2.0),
		})
	}

	return results, rows.Err()
}

// GetFileHash returns the cached content hash for a file, or "" when the
// file has not been indexed.
func (s *Store) GetFileHash(filePath string) (string, error) {
	row := s.db.QueryRow("SELECT file_hash FROM file_cache WHERE file_path = ?", filePath)

	var hash string
	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetFileHash stores the content hash for a file.
func (s *Store) SetFileHash(filePath, hash string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO file_cache (file_path, file_hash, indexed_at)
		VALUES (?, ?, ?)
	`, filePath, hash, time.Now())
	return err
}

// FileHashes returns all cached file hashes.
func (s *Store) FileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT file_path, file_hash FROM file_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}

	return hashes, rows.Err()
}

// Stats returns store statistics.
func (s *Store) Stats() (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	row := s.db.QueryRow("SELECT COUNT(*) FROM blocks")
	if err := row.Scan(&stats.TotalBlocks); err != nil {
		return nil, err
	}

	row = s.db.QueryRow("SELECT COUNT(DISTINCT file_path) FROM blocks")
	if err := row.Scan(&stats.IndexedFiles); err != nil {
		return nil, err
	}

	row = s.db.QueryRow("SELECT MAX(indexed_at) FROM file_cache")
	var last sql.NullTime
	if err := row.Scan(&last); err == nil && last.Valid {
		stats.LastIndexed = last.Time
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// floatsToBytes converts a float32 slice to the little-endian byte layout
// sqlite-vec expects.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)

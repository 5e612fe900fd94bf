package provider

import (
	"context"

	"github.com/mvasko/codeseg/pkg/types"
)

// VectorStore stores embedded semantic blocks and serves similarity search.
type VectorStore interface {
	// Name returns the store name (e.g., "sqlitevec").
	Name() string

	// Init initializes the store at the given path.
	Init(path string) error

	// ReplaceFileBlocks atomically replaces all blocks for a file with
	// the given embedded blocks.
	ReplaceFileBlocks(filePath string, blocks []*types.BlockWithEmbedding) error

	// DeleteFileBlocks removes all blocks for a file.
	DeleteFileBlocks(filePath string) error

	// Search returns the blocks nearest to the query vector.
	Search(ctx context.Context, queryVec []float32, limit int) ([]*types.SearchResult, error)

	// GetFileHash returns the cached content hash for a file, or "" if
	// the file has not been indexed.
	GetFileHash(filePath string) (string, error)

	// SetFileHash records the content hash for an indexed file.
	SetFileHash(filePath, hash string) error

	// FileHashes returns all cached file hashes, keyed by file path.
	FileHashes() (map[string]string, error)

	// Stats returns index statistics.
	Stats() (*types.StoreStats, error)

	// Close releases resources and closes connections.
	Close() error
}

// VectorStoreConfig contains configuration for vector stores.
type VectorStoreConfig struct {
	Provider string // "sqlitevec"
	Path     string // Path to database file
}

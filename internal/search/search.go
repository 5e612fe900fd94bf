// Package search implements semantic search over indexed blocks.
package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mvasko/codeseg/pkg/provider"
	"github.com/mvasko/codeseg/pkg/types"
)

// Engine handles search operations.
type Engine struct {
	store     provider.VectorStore
	embedding provider.EmbeddingProvider
}

// Config contains search engine configuration.
type Config struct {
	Store     provider.VectorStore
	Embedding provider.EmbeddingProvider
}

// Request describes one search.
type Request struct {
	Query          string
	Limit          int
	IncludeContext bool // attach surrounding source lines to each hit
	ContextLines   int  // lines of context, default 5
}

// New creates a new search engine.
func New(cfg Config) *Engine {
	return &Engine{
		store:     cfg.Store,
		embedding: cfg.Embedding,
	}
}

// Search embeds the query and returns the nearest blocks.
func (e *Engine) Search(ctx context.Context, req *Request) ([]*types.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	embeddings, err := e.embedding.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector")
	}

	results, err := e.store.Search(ctx, embeddings[0], limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if req.IncludeContext {
		for _, result := range results {
			addContext(result, req.ContextLines)
		}
	}

	return results, nil
}

// Stats returns index statistics from the store.
func (e *Engine) Stats() (*types.StoreStats, error) {
	return e.store.Stats()
}

// addContext attaches up to contextLines of surrounding source to a hit.
// Missing or changed files are left without context.
func addContext(result *types.SearchResult, contextLines int) {
	if contextLines <= 0 {
		contextLines = 5
	}

	file, err := os.Open(result.Block.File)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var allLines []string
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	startLine := result.Block.StartLine
	endLine := result.Block.EndLine
	if startLine < 1 || endLine > len(allLines) {
		return
	}

	contextStart := startLine - contextLines - 1
	if contextStart < 0 {
		contextStart = 0
	}
	if contextStart < startLine-1 {
		result.ContextBefore = strings.Join(allLines[contextStart:startLine-1], "\n")
	}

	contextEnd := endLine + contextLines
	if contextEnd > len(allLines) {
		contextEnd = len(allLines)
	}
	if endLine < contextEnd {
		result.ContextAfter = strings.Join(allLines[endLine:contextEnd], "\n")
	}
}

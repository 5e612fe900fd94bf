// Package mcp implements the MCP server for semantic code search.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvasko/codeseg/internal/config"
	"github.com/mvasko/codeseg/internal/index"
	"github.com/mvasko/codeseg/internal/search"
	"github.com/mvasko/codeseg/internal/segment"
	"github.com/mvasko/codeseg/pkg/provider"
	"github.com/mvasko/codeseg/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer  *server.MCPServer
	projectDir string
	config     *config.Config
	store      provider.VectorStore
	embedding  provider.EmbeddingProvider
	engine     *segment.Engine
	search     *search.Engine
}

// Config contains server configuration.
type Config struct {
	ProjectDir string
	Config     *config.Config
	Store      provider.VectorStore
	Embedding  provider.EmbeddingProvider
	Engine     *segment.Engine
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	s := &Server{
		projectDir: cfg.ProjectDir,
		config:     cfg.Config,
		store:      cfg.Store,
		embedding:  cfg.Embedding,
		engine:     cfg.Engine,
	}

	s.search = search.New(search.Config{
		Store:     cfg.Store,
		Embedding: cfg.Embedding,
	})

	mcpServer := server.NewMCPServer(
		"codeseg",
		"0.1.0",
		server.WithLogging(),
	)
	s.registerTools(mcpServer)
	s.mcpServer = mcpServer

	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("index_codebase",
		mcp.WithDescription("Index the codebase for semantic search"),
		mcp.WithBoolean("force", mcp.Description("Force reindex all files")),
	), s.handleIndexCodebase)

	mcpServer.AddTool(mcp.NewTool("search_code",
		mcp.WithDescription("Search code using semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithBoolean("include_context", mcp.Description("Include surrounding lines")),
	), s.handleSearchCode)

	mcpServer.AddTool(mcp.NewTool("segment_file",
		mcp.WithDescription("Extract the semantic blocks of a single source file"),
		mcp.WithString("file", mcp.Required(), mcp.Description("Path to the file")),
	), s.handleSegmentFile)

	mcpServer.AddTool(mcp.NewTool("index_status",
		mcp.WithDescription("Get index status and statistics"),
	), s.handleIndexStatus)
}

func (s *Server) handleIndexCodebase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := req.GetBool("force", false)

	slog.Info("starting indexing", "force", force)

	indexer := index.New(index.Config{
		ProjectDir: s.projectDir,
		Config:     s.config,
		Store:      s.store,
		Embedding:  s.embedding,
		Engine:     s.engine,
		OnProgress: func(p types.IndexProgress) {
			slog.Debug("progress", "phase", p.Phase, "files", p.ProcessedFiles, "blocks", p.TotalBlocks)
		},
	})

	if err := indexer.Index(ctx, force); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	stats, err := s.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	result := map[string]any{
		"success": true,
		"files":   stats.IndexedFiles,
		"blocks":  stats.TotalBlocks,
		"db_size": formatBytes(stats.DBSizeBytes),
	}

	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleSearchCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := req.GetInt("limit", s.config.Search.DefaultLimit)
	includeContext := req.GetBool("include_context", false)

	results, err := s.search.Search(ctx, &search.Request{
		Query:          query,
		Limit:          limit,
		IncludeContext: includeContext,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var formatted []map[string]any
	for _, r := range results {
		entry := map[string]any{
			"file":       r.Block.File,
			"start_line": r.Block.StartLine,
			"end_line":   r.Block.EndLine,
			"type":       r.Block.Type,
			"name":       r.Block.Name,
			"module":     r.Block.ModulePath,
			"score":      r.Score,
			"code":       r.Block.Code,
		}
		if r.Block.Signature != "" {
			entry["signature"] = r.Block.Signature
		}
		if includeContext {
			if r.ContextBefore != "" {
				entry["context_before"] = r.ContextBefore
			}
			if r.ContextAfter != "" {
				entry["context_after"] = r.ContextAfter
			}
		}
		formatted = append(formatted, entry)
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleSegmentFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	if file == "" {
		return mcp.NewToolResultError("file is required"), nil
	}

	blocks := s.engine.SegmentFile(ctx, file)

	jsonResult, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode blocks: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleIndexStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	result := map[string]any{
		"files":   stats.IndexedFiles,
		"blocks":  stats.TotalBlocks,
		"db_size": formatBytes(stats.DBSizeBytes),
	}
	if !stats.LastIndexed.IsZero() {
		result["last_indexed"] = stats.LastIndexed
	}

	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// formatBytes formats bytes to a human readable string.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

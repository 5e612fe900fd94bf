// codeseg segments source code into semantic blocks and serves semantic
// search over them, as a CLI and as an MCP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/mvasko/codeseg/builtin" // registers the built-in providers
	"github.com/mvasko/codeseg/builtin/grammar/treesitter"
	"github.com/mvasko/codeseg/internal/config"
	"github.com/mvasko/codeseg/internal/index"
	"github.com/mvasko/codeseg/internal/mcp"
	"github.com/mvasko/codeseg/internal/search"
	"github.com/mvasko/codeseg/internal/segment"
	"github.com/mvasko/codeseg/pkg/provider"
	"github.com/mvasko/codeseg/pkg/types"
)

var (
	version   = "0.1.0"
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codeseg",
	Short: "Semantic code segmentation and search",
	Long: `codeseg extracts semantic blocks (functions, classes, types) from
source code using Tree-sitter grammars, embeds them and serves
similarity search over the result, either directly or as an MCP server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codeseg %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var segmentCmd = &cobra.Command{
	Use:   "segment <file>",
	Short: "Extract the semantic blocks of a single file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSegment(args[0])
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a codebase",
	Long:  `Index a codebase for semantic search. If no path is provided, indexes the current directory.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		runIndex(path, force)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed codebase",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		withContext, _ := cmd.Flags().GetBool("context")
		runSearch(args[0], limit, withContext)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and re-index automatically",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		runWatch(path)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	indexCmd.Flags().Bool("force", false, "force reindex all files")

	searchCmd.Flags().IntP("limit", "l", 10, "maximum results")
	searchCmd.Flags().BoolP("context", "c", false, "include surrounding lines")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// loadConfig loads configuration for a project root, logging warnings.
func loadConfig(projectRoot string) *config.Config {
	cfg, warnings, err := config.Load(projectRoot)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	return cfg
}

// newEngine builds a segmentation engine from config.
func newEngine(cfg *config.Config) *segment.Engine {
	return segment.New(segment.Options{
		MaxBlockSize:    cfg.Segment.MaxBlockSize,
		MinBlockSize:    cfg.Segment.MinBlockSize,
		ToleranceFactor: cfg.Segment.ToleranceFactor,
		MinRemainder:    cfg.Segment.MinRemainder,
		ModuleRoots:     cfg.Segment.ModuleRoots,
	}, segment.NewRegistry(treesitter.Loader()))
}

// createProviders builds the vector store and embedding provider from
// the default registry.
func createProviders(cfg *config.Config) (provider.VectorStore, provider.EmbeddingProvider, error) {
	storeName := cfg.VectorStore.Provider
	if storeName == "" {
		storeName = "sqlitevec"
	}
	store, err := provider.CreateVectorStore(storeName)
	if err != nil {
		return nil, nil, err
	}

	embedding, err := provider.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, nil, err
	}

	return store, embedding, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return ctx, cancel
}

func runSegment(path string) {
	cwd, _ := os.Getwd()
	cfg := loadConfig(cwd)
	engine := newEngine(cfg)

	blocks := engine.SegmentFile(context.Background(), path)

	out, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		slog.Error("failed to encode blocks", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runIndex(path string, force bool) {
	absPath, _ := filepath.Abs(path)
	cfg := loadConfig(absPath)

	store, embedding, err := createProviders(cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	defer embedding.Close()

	if err := store.Init(config.IndexDBPath(absPath)); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	indexer := index.New(index.Config{
		ProjectDir: absPath,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Engine:     newEngine(cfg),
		OnProgress: func(p types.IndexProgress) {
			if p.Phase != "" {
				fmt.Printf("\r[%s] Files: %d/%d, Blocks: %d",
					p.Phase, p.ProcessedFiles, p.TotalFiles, p.TotalBlocks)
			}
		},
	})

	if err := indexer.Index(ctx, force); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nIndexing interrupted. Progress saved - run again to resume.")
			return
		}
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\nIndexing complete!")

	if stats, err := store.Stats(); err == nil {
		fmt.Printf("Files: %d, Blocks: %d\n", stats.IndexedFiles, stats.TotalBlocks)
	}
}

func runSearch(query string, limit int, withContext bool) {
	cwd, _ := os.Getwd()
	cfg := loadConfig(cwd)

	store, embedding, err := createProviders(cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	defer embedding.Close()

	if err := store.Init(config.IndexDBPath(cwd)); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}

	engine := search.New(search.Config{Store: store, Embedding: embedding})
	results, err := engine.Search(context.Background(), &search.Request{
		Query:          query,
		Limit:          limit,
		IncludeContext: withContext,
	})
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	for i, r := range results {
		b := r.Block
		fmt.Printf("%d. %s:%d-%d  %s %s  (score %.3f)\n",
			i+1, b.File, b.StartLine, b.EndLine, b.Type, b.Name, r.Score)
		if b.Signature != "" {
			fmt.Printf("   %s\n", b.Signature)
		}
	}
}

func runStatus() {
	cwd, _ := os.Getwd()
	cfg := loadConfig(cwd)

	store, err := provider.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(config.IndexDBPath(cwd)); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	stats, err := store.Stats()
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("Blocks:        %d\n", stats.TotalBlocks)
	fmt.Printf("DB size:       %d bytes\n", stats.DBSizeBytes)
	if !stats.LastIndexed.IsZero() {
		fmt.Printf("Last indexed:  %s\n", stats.LastIndexed.Format("2006-01-02 15:04:05"))
	}
}

func runWatch(path string) {
	absPath, _ := filepath.Abs(path)
	cfg := loadConfig(absPath)

	store, embedding, err := createProviders(cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	defer embedding.Close()

	if err := store.Init(config.IndexDBPath(absPath)); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	indexer := index.New(index.Config{
		ProjectDir: absPath,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Engine:     newEngine(cfg),
	})

	// Bring the index up to date before watching.
	if err := indexer.Index(ctx, false); err != nil && ctx.Err() == nil {
		slog.Error("initial indexing failed", "error", err)
		os.Exit(1)
	}

	watcher, err := index.NewWatcher(indexer)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watcher failed", "error", err)
		os.Exit(1)
	}
}

func runServe() {
	cwd, _ := os.Getwd()
	cfg := loadConfig(cwd)

	store, embedding, err := createProviders(cfg)
	if err != nil {
		slog.Error("failed to create providers", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	defer embedding.Close()

	if err := store.Init(config.IndexDBPath(cwd)); err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	server, err := mcp.New(mcp.Config{
		ProjectDir: cwd,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Engine:     newEngine(cfg),
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	slog.Info("starting MCP server on stdio")
	if err := server.ServeStdio(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func runConfigInit() {
	cwd, _ := os.Getwd()
	path := config.ConfigPath(cwd)

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return
	}

	if err := config.Save(cwd, config.DefaultConfig()); err != nil {
		slog.Error("failed to write config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", path)
}

func runConfigValidate() {
	cwd, _ := os.Getwd()
	cfg := loadConfig(cwd)

	errs := config.Validate(cfg)
	if len(errs) == 0 {
		fmt.Println("Configuration is valid.")
		return
	}

	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

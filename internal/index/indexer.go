// Package index implements incremental file indexing with progress
// reporting and filesystem watching.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mvasko/codeseg/internal/config"
	"github.com/mvasko/codeseg/internal/segment"
	"github.com/mvasko/codeseg/pkg/provider"
	"github.com/mvasko/codeseg/pkg/types"
)

// Indexer scans a project, segments changed files and stores their
// embedded blocks.
type Indexer struct {
	config     *config.Config
	store      provider.VectorStore
	embedding  provider.EmbeddingProvider
	engine     *segment.Engine
	projectDir string

	progressMu sync.Mutex
	progress   types.IndexProgress
	onProgress func(types.IndexProgress)
}

// Config contains indexer configuration.
type Config struct {
	ProjectDir string
	Config     *config.Config
	Store      provider.VectorStore
	Embedding  provider.EmbeddingProvider
	Engine     *segment.Engine
	OnProgress func(types.IndexProgress)
}

// New creates a new indexer.
func New(cfg Config) *Indexer {
	return &Indexer{
		config:     cfg.Config,
		store:      cfg.Store,
		embedding:  cfg.Embedding,
		engine:     cfg.Engine,
		projectDir: cfg.ProjectDir,
		onProgress: cfg.OnProgress,
	}
}

// Index scans the project and reindexes every file whose content hash
// changed since the last run. With force set, every file is reindexed.
func (idx *Indexer) Index(ctx context.Context, force bool) error {
	startTime := time.Now()

	if idx.config.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.config.Limits.Timeout)
		defer cancel()
	}

	idx.updateProgress(func(p *types.IndexProgress) {
		*p = types.IndexProgress{Phase: "scanning"}
	})

	files, err := idx.scanFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}
	slog.Info("scanned files", "total", len(files))

	toProcess := files
	if !force {
		toProcess = idx.filterChangedFiles(files)
	}
	slog.Info("files to process", "count", len(toProcess), "total", len(files))

	if err := idx.pruneDeletedFiles(files); err != nil {
		slog.Warn("failed to prune deleted files", "error", err)
	}

	if len(toProcess) == 0 {
		slog.Info("index up to date")
		return nil
	}

	idx.updateProgress(func(p *types.IndexProgress) {
		p.Phase = "segmenting"
		p.TotalFiles = len(toProcess)
	})

	results := idx.segmentParallel(ctx, toProcess)

	totalBlocks := 0
	for _, blocks := range results {
		totalBlocks += len(blocks)
	}
	slog.Info("segmentation complete", "files", len(toProcess), "blocks", totalBlocks)

	idx.updateProgress(func(p *types.IndexProgress) {
		p.Phase = "embedding"
		p.TotalBlocks = totalBlocks
		p.ProcessedFiles = 0
	})

	// Embed and store per file so an interrupted run resumes where it
	// stopped: files already stored keep their cached hash.
	processed := 0
	for _, file := range toProcess {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := idx.indexFile(ctx, file, results[file.Path]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to index %s: %w", file.Path, err)
		}

		processed++
		idx.updateProgress(func(p *types.IndexProgress) {
			p.ProcessedFiles = processed
			p.CurrentFile = file.Path
		})
	}

	slog.Info("indexing complete",
		"files", processed,
		"blocks", totalBlocks,
		"duration", time.Since(startTime).Round(time.Millisecond),
	)

	return nil
}

// indexFile embeds one file's blocks and replaces its stored state.
func (idx *Indexer) indexFile(ctx context.Context, file *types.SourceFile, blocks []*types.SemanticBlock) error {
	embedded, err := idx.embedBlocks(ctx, blocks)
	if err != nil {
		return err
	}

	if err := idx.store.ReplaceFileBlocks(file.Path, embedded); err != nil {
		return fmt.Errorf("failed to store blocks: %w", err)
	}
	if err := idx.store.SetFileHash(file.Path, file.Hash); err != nil {
		slog.Warn("failed to cache file hash", "file", file.Path, "error", err)
	}
	return nil
}

// embedBlocks generates embeddings for blocks in provider-sized batches.
func (idx *Indexer) embedBlocks(ctx context.Context, blocks []*types.SemanticBlock) ([]*types.BlockWithEmbedding, error) {
	if len(blocks) == 0 {
		return nil, nil
	}

	batchSize := idx.embedding.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(blocks)
	}

	results := make([]*types.BlockWithEmbedding, len(blocks))
	for i := 0; i < len(blocks); i += batchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := i + batchSize
		if end > len(blocks) {
			end = len(blocks)
		}

		batch := blocks[i:end]
		texts := make([]string, len(batch))
		for j, block := range batch {
			texts[j] = block.EmbeddingText(idx.config.Segment.MaxEmbedChars)
		}

		embeddings, err := idx.embedding.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding failed for batch %d: %w", i/batchSize, err)
		}

		for j, block := range batch {
			results[i+j] = &types.BlockWithEmbedding{
				Block:     block,
				Embedding: embeddings[j],
			}
		}
	}

	return results, nil
}

// segmentParallel segments files across a worker pool, keyed by path.
func (idx *Indexer) segmentParallel(ctx context.Context, files []*types.SourceFile) map[string][]*types.SemanticBlock {
	workers := runtime.NumCPU()
	if workers > len(files) {
		workers = len(files)
	}

	fileCh := make(chan *types.SourceFile)
	var mu sync.Mutex
	results := make(map[string][]*types.SemanticBlock, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range fileCh {
				blocks := idx.engine.Segment(ctx, file)
				mu.Lock()
				results[file.Path] = blocks
				mu.Unlock()
			}
		}()
	}

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		fileCh <- file
	}
	close(fileCh)
	wg.Wait()

	return results
}

// scanFiles walks the project and returns every file matching the
// include/exclude patterns, up to the configured limits.
func (idx *Indexer) scanFiles(ctx context.Context) ([]*types.SourceFile, error) {
	var files []*types.SourceFile

	err := filepath.WalkDir(idx.projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, _ := filepath.Rel(idx.projectDir, path)
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			for _, pattern := range idx.config.Index.Exclude {
				if matchGlob(pattern, relPath+"/") {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !idx.wantFile(relPath) {
			return nil
		}

		file, err := idx.readFile(path)
		if err != nil {
			slog.Warn("failed to read file", "path", path, "error", err)
			return nil
		}
		files = append(files, file)

		if len(files) >= idx.config.Limits.MaxFiles {
			return fmt.Errorf("max files limit reached: %d", idx.config.Limits.MaxFiles)
		}
		return nil
	})

	return files, err
}

// wantFile applies the include and exclude patterns to a relative path.
func (idx *Indexer) wantFile(relPath string) bool {
	included := false
	for _, pattern := range idx.config.Index.Include {
		if matchGlob(pattern, relPath) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range idx.config.Index.Exclude {
		if matchGlob(pattern, relPath) {
			return false
		}
	}
	return true
}

// readFile reads a file and computes its content hash.
func (idx *Indexer) readFile(path string) (*types.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if idx.config.Limits.MaxFileSize > 0 && info.Size() > idx.config.Limits.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d > %d", info.Size(), idx.config.Limits.MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file := &types.SourceFile{
		Path:    path,
		Content: content,
	}
	file.Hash = file.ComputeHash()
	return file, nil
}

// filterChangedFiles keeps only files whose content hash differs from
// the cached one.
func (idx *Indexer) filterChangedFiles(files []*types.SourceFile) []*types.SourceFile {
	var changed []*types.SourceFile
	for _, file := range files {
		cached, err := idx.store.GetFileHash(file.Path)
		if err != nil {
			slog.Warn("failed to get cached hash", "file", file.Path, "error", err)
			changed = append(changed, file)
			continue
		}
		if cached != file.Hash {
			changed = append(changed, file)
		}
	}
	return changed
}

// pruneDeletedFiles drops stored blocks for files no longer on disk.
func (idx *Indexer) pruneDeletedFiles(files []*types.SourceFile) error {
	cached, err := idx.store.FileHashes()
	if err != nil {
		return err
	}

	alive := make(map[string]bool, len(files))
	for _, file := range files {
		alive[file.Path] = true
	}

	for path := range cached {
		if alive[path] {
			continue
		}
		slog.Info("removing deleted file from index", "file", path)
		if err := idx.store.DeleteFileBlocks(path); err != nil {
			slog.Warn("failed to remove deleted file", "file", path, "error", err)
		}
	}
	return nil
}

// IndexFile reindexes a single file, or removes it when it no longer
// exists. Used by watch mode.
func (idx *Indexer) IndexFile(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(idx.projectDir, path)
	if err != nil {
		relPath = path
	}
	if !idx.wantFile(filepath.ToSlash(relPath)) {
		return nil
	}

	file, err := idx.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx.store.DeleteFileBlocks(path)
		}
		return err
	}

	cached, err := idx.store.GetFileHash(file.Path)
	if err == nil && cached == file.Hash {
		return nil
	}

	blocks := idx.engine.Segment(ctx, file)
	return idx.indexFile(ctx, file, blocks)
}

// Progress returns a snapshot of the current progress.
func (idx *Indexer) Progress() types.IndexProgress {
	idx.progressMu.Lock()
	defer idx.progressMu.Unlock()
	return idx.progress
}

func (idx *Indexer) updateProgress(apply func(*types.IndexProgress)) {
	idx.progressMu.Lock()
	apply(&idx.progress)
	snapshot := idx.progress
	idx.progressMu.Unlock()

	if idx.onProgress != nil {
		idx.onProgress(snapshot)
	}
}

// matchGlob matches a slash-separated path against a glob pattern,
// treating ** as a recursive wildcard.
func matchGlob(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")

		// "**/dir/**" matches any path with dir as a component.
		if len(parts) == 3 && parts[0] == "" && parts[2] == "" {
			middle := strings.Trim(parts[1], "/")
			return strings.HasPrefix(path, middle+"/") ||
				strings.Contains(path, "/"+middle+"/")
		}

		if len(parts) == 2 {
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")

			if prefix != "" && !strings.HasPrefix(path, prefix) {
				return false
			}
			if suffix == "" {
				return true
			}

			if strings.Contains(suffix, "*") {
				base := filepath.Base(path)
				if matched, _ := filepath.Match(suffix, base); matched {
					return true
				}
				remaining := path
				if prefix != "" {
					remaining = strings.TrimPrefix(path, prefix)
					remaining = strings.TrimPrefix(remaining, "/")
				}
				matched, _ := filepath.Match(suffix, remaining)
				return matched
			}

			return strings.HasSuffix(path, suffix) || strings.Contains(path, suffix)
		}
	}

	if matched, _ := filepath.Match(pattern, path); matched {
		return true
	}
	matched, _ := filepath.Match(pattern, filepath.Base(path))
	return matched
}

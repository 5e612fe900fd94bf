package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvasko/codeseg/builtin/grammar/treesitter"
	"github.com/mvasko/codeseg/internal/config"
	"github.com/mvasko/codeseg/internal/segment"
	"github.com/mvasko/codeseg/pkg/types"
)

type fakeEmbedder struct {
	calls int
	texts []string
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return 2 }
func (f *fakeEmbedder) Close() error      { return nil }

type fakeStore struct {
	blocks map[string][]*types.BlockWithEmbedding
	hashes map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocks: make(map[string][]*types.BlockWithEmbedding),
		hashes: make(map[string]string),
	}
}

func (s *fakeStore) Name() string           { return "fake" }
func (s *fakeStore) Init(path string) error { return nil }

func (s *fakeStore) ReplaceFileBlocks(filePath string, blocks []*types.BlockWithEmbedding) error {
	s.blocks[filePath] = blocks
	return nil
}

func (s *fakeStore) DeleteFileBlocks(filePath string) error {
	delete(s.blocks, filePath)
	delete(s.hashes, filePath)
	return nil
}

func (s *fakeStore) Search(context.Context, []float32, int) ([]*types.SearchResult, error) {
	return nil, nil
}

func (s *fakeStore) GetFileHash(filePath string) (string, error) {
	return s.hashes[filePath], nil
}

func (s *fakeStore) SetFileHash(filePath, hash string) error {
	s.hashes[filePath] = hash
	return nil
}

func (s *fakeStore) FileHashes() (map[string]string, error) {
	out := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) Stats() (*types.StoreStats, error) {
	total := 0
	for _, blocks := range s.blocks {
		total += len(blocks)
	}
	return &types.StoreStats{TotalBlocks: total, IndexedFiles: len(s.blocks)}, nil
}

func (s *fakeStore) Close() error { return nil }

const goFileA = `package a

// Greet says hello.
func Greet(name string) string {
	return "hello " + name
}
`

const goFileB = `package b

// Shout makes it loud.
func Shout(name string) string {
	return "HELLO " + name + "!!!"
}
`

func newTestIndexer(t *testing.T, dir string, store *fakeStore, emb *fakeEmbedder) *Indexer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Segment.MinBlockSize = 5

	engine := segment.New(segment.Options{MinBlockSize: 5}, segment.NewRegistry(treesitter.Loader()))

	return New(Config{
		ProjectDir: dir,
		Config:     cfg,
		Store:      store,
		Embedding:  emb,
		Engine:     engine,
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexStoresBlocksAndHashes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), goFileA)
	writeFile(t, filepath.Join(dir, "sub", "b.go"), goFileB)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not code")

	store := newFakeStore()
	emb := &fakeEmbedder{}
	idx := newTestIndexer(t, dir, store, emb)

	if err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	if len(store.blocks) != 2 {
		t.Fatalf("indexed %d files, want 2 (txt excluded)", len(store.blocks))
	}
	for path, blocks := range store.blocks {
		if len(blocks) == 0 {
			t.Errorf("%s stored with no blocks", path)
		}
		if store.hashes[path] == "" {
			t.Errorf("%s has no cached hash", path)
		}
		for _, b := range blocks {
			if len(b.Embedding) != 3 {
				t.Errorf("%s block %q has embedding of length %d", path, b.Block.Name, len(b.Embedding))
			}
		}
	}
}

func TestIndexSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), goFileA)

	store := newFakeStore()
	emb := &fakeEmbedder{}
	idx := newTestIndexer(t, dir, store, emb)

	if err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	firstCalls := emb.calls
	if firstCalls == 0 {
		t.Fatal("first run should embed something")
	}

	if err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if emb.calls != firstCalls {
		t.Errorf("second run embedded again: %d calls, want %d", emb.calls, firstCalls)
	}

	// force reindexes everything
	if err := idx.Index(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if emb.calls == firstCalls {
		t.Error("forced run should embed again")
	}
}

func TestIndexPrunesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.go")
	writeFile(t, pathA, goFileA)
	writeFile(t, filepath.Join(dir, "b.go"), goFileB)

	store := newFakeStore()
	idx := newTestIndexer(t, dir, store, &fakeEmbedder{})

	if err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(store.blocks) != 2 {
		t.Fatalf("indexed %d files, want 2", len(store.blocks))
	}

	if err := os.Remove(pathA); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.blocks[pathA]; ok {
		t.Error("deleted file still has stored blocks")
	}
	if len(store.blocks) != 1 {
		t.Errorf("store holds %d files, want 1", len(store.blocks))
	}
}

func TestIndexFileRemovesMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, goFileA)

	store := newFakeStore()
	idx := newTestIndexer(t, dir, store, &fakeEmbedder{})

	if err := idx.IndexFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.blocks[path]; !ok {
		t.Fatal("file was not indexed")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.blocks[path]; ok {
		t.Error("missing file was not removed from the store")
	}
}

func TestIndexFileIgnoresExcluded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vendor", "dep.go")
	writeFile(t, path, goFileA)

	store := newFakeStore()
	idx := newTestIndexer(t, dir, store, &fakeEmbedder{})

	if err := idx.IndexFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if len(store.blocks) != 0 {
		t.Error("vendored file should be ignored")
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.go", "a.go", true},
		{"**/*.go", "deep/nested/a.go", true},
		{"**/*.go", "a.py", false},
		{"**/vendor/**", "vendor/pkg/a.go", true},
		{"**/node_modules/**", "src/node_modules/x/y.js", true},
		{"*.go", "a.go", true},
		{"**/*.min.js", "assets/app.min.js", true},
	}

	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

package sqlitevec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mvasko/codeseg/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Init(filepath.Join(t.TempDir(), "index.db")); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func block(file, name string, startLine int) *types.SemanticBlock {
	return &types.SemanticBlock{
		Type:       "function",
		Name:       name,
		File:       file,
		StartLine:  startLine,
		EndLine:    startLine + 2,
		Code:       "func " + name + "() {\n\treturn\n}",
		ModulePath: file,
	}
}

func embedded(b *types.SemanticBlock, vec []float32) *types.BlockWithEmbedding {
	return &types.BlockWithEmbedding{Block: b, Embedding: vec}
}

func TestReplaceAndSearch(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFileBlocks("a.go", []*types.BlockWithEmbedding{
		embedded(block("a.go", "Alpha", 1), []float32{1, 0, 0}),
		embedded(block("a.go", "Beta", 10), []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Block.Name != "Alpha" {
		t.Errorf("nearest block = %q, want Alpha", results[0].Block.Name)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %g then %g", results[0].Score, results[1].Score)
	}
}

func TestReplaceFileBlocksIsAtomic(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFileBlocks("a.go", []*types.BlockWithEmbedding{
		embedded(block("a.go", "Old", 1), []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.ReplaceFileBlocks("a.go", []*types.BlockWithEmbedding{
		embedded(block("a.go", "New", 1), []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(context.Background(), []float32{0, 1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results after replace, want 1", len(results))
	}
	if results[0].Block.Name != "New" {
		t.Errorf("surviving block = %q, want New", results[0].Block.Name)
	}
}

func TestDeleteFileBlocks(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFileBlocks("a.go", []*types.BlockWithEmbedding{
		embedded(block("a.go", "Alpha", 1), []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetFileHash("a.go", "abc123"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFileBlocks("a.go"); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results after delete, want 0", len(results))
	}

	hash, err := s.GetFileHash("a.go")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("file hash survived delete: %q", hash)
	}
}

func TestFileHashRoundTrip(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetFileHash("missing.go")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("hash for unindexed file = %q, want empty", hash)
	}

	if err := s.SetFileHash("a.go", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFileHash("a.go", "h2"); err != nil {
		t.Fatal(err)
	}

	hash, err = s.GetFileHash("a.go")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "h2" {
		t.Errorf("hash = %q, want h2", hash)
	}

	all, err := s.FileHashes()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all["a.go"] != "h2" {
		t.Errorf("FileHashes = %v", all)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFileBlocks("a.go", []*types.BlockWithEmbedding{
		embedded(block("a.go", "Alpha", 1), []float32{1, 0, 0}),
		embedded(block("a.go", "Beta", 10), []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.ReplaceFileBlocks("b.go", []*types.BlockWithEmbedding{
		embedded(block("b.go", "Gamma", 1), []float32{0, 0, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalBlocks != 3 {
		t.Errorf("TotalBlocks = %d, want 3", stats.TotalBlocks)
	}
	if stats.IndexedFiles != 2 {
		t.Errorf("IndexedFiles = %d, want 2", stats.IndexedFiles)
	}
	if stats.DBSizeBytes == 0 {
		t.Error("DBSizeBytes should be non-zero")
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the missing config file")
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("default provider = %q, want ollama", cfg.Embedding.Provider)
	}
	if cfg.Segment.MaxBlockSize != 1500 {
		t.Errorf("default max_block_size = %d, want 1500", cfg.Segment.MaxBlockSize)
	}
	if cfg.Segment.ToleranceFactor != 1.2 {
		t.Errorf("default tolerance_factor = %g, want 1.2", cfg.Segment.ToleranceFactor)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Segment.MaxBlockSize = 900
	cfg.Segment.ModuleRoots = []string{"packages"}
	cfg.Index.Debounce = 2 * time.Second

	if err := Save(dir, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, _, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Embedding.Provider != "openai" {
		t.Errorf("provider = %q", loaded.Embedding.Provider)
	}
	if loaded.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", loaded.Embedding.Model)
	}
	if loaded.Segment.MaxBlockSize != 900 {
		t.Errorf("max_block_size = %d", loaded.Segment.MaxBlockSize)
	}
	if len(loaded.Segment.ModuleRoots) != 1 || loaded.Segment.ModuleRoots[0] != "packages" {
		t.Errorf("module_roots = %v", loaded.Segment.ModuleRoots)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("default config should validate, got %v", errs)
	}

	cfg.Embedding.Provider = "carrier-pigeon"
	cfg.Segment.MinBlockSize = 5000
	cfg.Segment.ToleranceFactor = 0.5
	cfg.Logging.Level = "loud"

	errs := Validate(cfg)
	if len(errs) != 4 {
		t.Errorf("got %d validation errors, want 4: %v", len(errs), errs)
	}
}

func TestHashTracksIndexingConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash identically")
	}

	b.Embedding.Model = "other-model"
	if a.Hash() == b.Hash() {
		t.Error("embedding model change should change the hash")
	}

	c := DefaultConfig()
	c.Search.DefaultLimit = 42
	if a.Hash() != c.Hash() {
		t.Error("search limit does not affect indexing and should not change the hash")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	a := DefaultConfig()
	b := a.Copy()

	b.Index.Include[0] = "**/*.zig"
	b.Segment.ModuleRoots[0] = "internal"

	if a.Index.Include[0] == "**/*.zig" {
		t.Error("copy shares the include slice")
	}
	if a.Segment.ModuleRoots[0] == "internal" {
		t.Error("copy shares the module_roots slice")
	}
}

package segment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mvasko/codeseg/pkg/provider"
)

type stubGrammar struct{}

func (stubGrammar) Supports(ext string) bool { return true }

func (stubGrammar) Parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	return nil, errors.New("stub")
}

func (stubGrammar) Query(tree *sitter.Tree) []provider.Capture { return nil }

func TestRegistryCachesLoads(t *testing.T) {
	var loads atomic.Int32
	r := NewRegistry(func(ext string) (provider.Grammar, error) {
		loads.Add(1)
		if ext == ".bad" {
			return nil, errors.New("no such grammar")
		}
		return stubGrammar{}, nil
	})

	if _, ok := r.Obtain(".go"); !ok {
		t.Fatal("expected .go to be supported")
	}
	if _, ok := r.Obtain(".go"); !ok {
		t.Fatal("expected cached .go to be supported")
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestRegistryCachesFailures(t *testing.T) {
	var loads atomic.Int32
	r := NewRegistry(func(ext string) (provider.Grammar, error) {
		loads.Add(1)
		return nil, errors.New("unavailable")
	})

	for i := 0; i < 3; i++ {
		if _, ok := r.Obtain(".zig"); ok {
			t.Fatal("expected .zig to be unsupported")
		}
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times for failing extension, want 1", got)
	}
}

func TestRegistryCoalescesConcurrentLoads(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	r := NewRegistry(func(ext string) (provider.Grammar, error) {
		loads.Add(1)
		<-release
		return stubGrammar{}, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = r.Obtain(".rs")
		}(i)
	}

	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times under concurrency, want 1", got)
	}
	for i, ok := range results {
		if !ok {
			t.Errorf("caller %d did not observe the shared load result", i)
		}
	}
}

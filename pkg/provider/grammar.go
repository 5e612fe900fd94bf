// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// Capture is a syntax node paired with its raw grammar kind, produced by
// running a grammar's structural query over a parsed tree.
type Capture struct {
	Node *sitter.Node
	Kind string
}

// Grammar is the per-extension parsing capability consumed by the
// segmentation engine: a concrete-syntax-tree parser plus a pre-compiled
// structural query. Implementations are injected into the grammar
// registry, never hard-coded in the engine.
type Grammar interface {
	// Supports reports whether this grammar handles the given file
	// extension (with leading dot, e.g. ".go").
	Supports(ext string) bool

	// Parse parses source content into a syntax tree. The returned tree
	// must be closed by the caller.
	Parse(ctx context.Context, content []byte) (*sitter.Tree, error)

	// Query runs the grammar's structural query against a parsed tree
	// and returns the captured nodes in document order.
	Query(tree *sitter.Tree) []Capture
}

// GrammarLoader creates the Grammar for a file extension. It returns an
// error when the extension is not recognized or the grammar cannot be
// initialized; the registry turns either into "unsupported".
type GrammarLoader func(ext string) (Grammar, error)

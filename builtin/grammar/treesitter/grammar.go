// Package treesitter implements the Grammar capability using Tree-sitter
// parsers and pre-compiled structural queries.
package treesitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	tsc "github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	tstype "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/mvasko/codeseg/pkg/provider"
)

// languageSpec ties a Tree-sitter language to its structural query and the
// extensions it serves.
type languageSpec struct {
	name       string
	language   func() *sitter.Language
	extensions []string
	query      string
}

var specs = []languageSpec{
	{
		name:       "go",
		language:   golang.GetLanguage,
		extensions: []string{".go"},
		query: `
			(function_declaration) @definition
			(method_declaration) @definition
			(type_declaration) @definition
			(const_declaration) @definition
			(var_declaration) @definition
		`,
	},
	{
		name:       "javascript",
		language:   javascript.GetLanguage,
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		query: `
			(function_declaration) @definition
			(generator_function_declaration) @definition
			(class_declaration) @definition
			(method_definition) @definition
			(lexical_declaration) @definition
			(variable_declaration) @definition
			(arrow_function) @definition
		`,
	},
	{
		name:       "typescript",
		language:   tstype.GetLanguage,
		extensions: []string{".ts", ".mts", ".cts"},
		query: `
			(function_declaration) @definition
			(generator_function_declaration) @definition
			(class_declaration) @definition
			(interface_declaration) @definition
			(enum_declaration) @definition
			(type_alias_declaration) @definition
			(method_definition) @definition
			(lexical_declaration) @definition
			(variable_declaration) @definition
			(arrow_function) @definition
		`,
	},
	{
		name:       "tsx",
		language:   tsx.GetLanguage,
		extensions: []string{".tsx"},
		query: `
			(function_declaration) @definition
			(class_declaration) @definition
			(interface_declaration) @definition
			(enum_declaration) @definition
			(type_alias_declaration) @definition
			(method_definition) @definition
			(lexical_declaration) @definition
			(variable_declaration) @definition
			(arrow_function) @definition
		`,
	},
	{
		name:       "python",
		language:   python.GetLanguage,
		extensions: []string{".py"},
		query: `
			(function_definition) @definition
			(class_definition) @definition
		`,
	},
	{
		name:       "java",
		language:   java.GetLanguage,
		extensions: []string{".java"},
		query: `
			(class_declaration) @definition
			(interface_declaration) @definition
			(enum_declaration) @definition
			(method_declaration) @definition
			(constructor_declaration) @definition
			(field_declaration) @definition
		`,
	},
	{
		name:       "rust",
		language:   rust.GetLanguage,
		extensions: []string{".rs"},
		query: `
			(function_item) @definition
			(struct_item) @definition
			(enum_item) @definition
			(trait_item) @definition
			(impl_item) @definition
			(const_item) @definition
			(static_item) @definition
		`,
	},
	{
		name:       "c",
		language:   tsc.GetLanguage,
		extensions: []string{".c", ".h"},
		query: `
			(function_definition) @definition
			(struct_specifier) @definition
			(enum_specifier) @definition
			(type_definition) @definition
		`,
	},
	{
		name:       "cpp",
		language:   cpp.GetLanguage,
		extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"},
		query: `
			(function_definition) @definition
			(class_specifier) @definition
			(struct_specifier) @definition
			(enum_specifier) @definition
			(type_definition) @definition
		`,
	},
	{
		name:       "ruby",
		language:   ruby.GetLanguage,
		extensions: []string{".rb"},
		query: `
			(method) @definition
			(singleton_method) @definition
			(class) @definition
			(module) @definition
		`,
	},
	{
		name:       "csharp",
		language:   csharp.GetLanguage,
		extensions: []string{".cs"},
		query: `
			(method_declaration) @definition
			(class_declaration) @definition
			(interface_declaration) @definition
			(struct_declaration) @definition
			(enum_declaration) @definition
			(property_declaration) @definition
			(field_declaration) @definition
		`,
	},
	{
		name:       "php",
		language:   php.GetLanguage,
		extensions: []string{".php"},
		query: `
			(function_definition) @definition
			(method_declaration) @definition
			(class_declaration) @definition
			(interface_declaration) @definition
			(trait_declaration) @definition
		`,
	},
}

var specByExt = func() map[string]*languageSpec {
	m := make(map[string]*languageSpec)
	for i := range specs {
		for _, ext := range specs[i].extensions {
			m[ext] = &specs[i]
		}
	}
	return m
}()

// Extensions returns all file extensions served by the builtin grammars.
func Extensions() []string {
	var exts []string
	for _, s := range specs {
		exts = append(exts, s.extensions...)
	}
	return exts
}

// Grammar implements provider.Grammar for one Tree-sitter language.
type Grammar struct {
	name     string
	language *sitter.Language
	query    *sitter.Query
	exts     map[string]bool
}

// New creates the Grammar for a file extension (with leading dot).
// The structural query is compiled once here; a compile failure makes the
// extension unsupported.
func New(ext string) (provider.Grammar, error) {
	spec, ok := specByExt[ext]
	if !ok {
		return nil, fmt.Errorf("no grammar for extension %q", ext)
	}

	lang := spec.language()
	query, err := sitter.NewQuery([]byte(spec.query), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s query: %w", spec.name, err)
	}

	exts := make(map[string]bool, len(spec.extensions))
	for _, e := range spec.extensions {
		exts[e] = true
	}

	return &Grammar{
		name:     spec.name,
		language: lang,
		query:    query,
		exts:     exts,
	}, nil
}

// Loader adapts New to the provider.GrammarLoader signature.
func Loader() provider.GrammarLoader {
	return func(ext string) (provider.Grammar, error) {
		return New(ext)
	}
}

// Name returns the grammar's language name.
func (g *Grammar) Name() string {
	return g.name
}

// Supports reports whether this grammar handles the given extension.
func (g *Grammar) Supports(ext string) bool {
	return g.exts[ext]
}

// Parse parses source content into a syntax tree.
// A fresh parser is created per call so concurrent parses never share state.
func (g *Grammar) Parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.language)
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	return tree, nil
}

// Query runs the pre-compiled structural query over the tree and returns
// the captured nodes with their raw grammar kinds, in document order.
func (g *Grammar) Query(tree *sitter.Tree) []provider.Capture {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	cursor.Exec(g.query, tree.RootNode())

	var captures []provider.Capture
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			captures = append(captures, provider.Capture{
				Node: c.Node,
				Kind: c.Node.Type(),
			})
		}
	}
	return captures
}

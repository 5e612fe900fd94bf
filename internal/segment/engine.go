package segment

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mvasko/codeseg/pkg/types"
)

// Default thresholds, overridable through Options.
const (
	DefaultMaxBlockSize    = 1500 // chars per block
	DefaultMinBlockSize    = 50   // chars below which a block is skipped
	DefaultToleranceFactor = 1.2  // oversize = max * tolerance
	DefaultMinRemainder    = 1    // floor for the forced final chunk
)

// Options holds the engine's size thresholds and path handling.
type Options struct {
	MaxBlockSize    int      // maximum block size in characters
	MinBlockSize    int      // minimum block size in characters
	ToleranceFactor float64  // oversized threshold multiplier
	MinRemainder    int      // minimum size of the forced final chunk
	ModuleRoots     []string // path prefixes stripped when deriving module paths
}

func (o Options) withDefaults() Options {
	if o.MaxBlockSize == 0 {
		o.MaxBlockSize = DefaultMaxBlockSize
	}
	if o.MinBlockSize == 0 {
		o.MinBlockSize = DefaultMinBlockSize
	}
	if o.ToleranceFactor == 0 {
		o.ToleranceFactor = DefaultToleranceFactor
	}
	if o.MinRemainder == 0 {
		o.MinRemainder = DefaultMinRemainder
	}
	if o.ModuleRoots == nil {
		o.ModuleRoots = []string{"src", "lib", "app"}
	}
	return o
}

// Engine turns raw source files into semantic blocks. It is stateless
// across calls apart from the grammar registry cache; the deduplication
// cache lives for one Segment call only.
type Engine struct {
	opts     Options
	registry *Registry
}

// New creates an engine over the given grammar registry.
func New(opts Options, registry *Registry) *Engine {
	return &Engine{
		opts:     opts.withDefaults(),
		registry: registry,
	}
}

// Registry exposes the engine's grammar registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SegmentFile reads a file from disk and segments it. Read failures are
// logged and yield no blocks; they never abort a batch.
func (e *Engine) SegmentFile(ctx context.Context, path string) []*types.SemanticBlock {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file", "file", path, "error", err)
		return nil
	}
	return e.Segment(ctx, &types.SourceFile{Path: path, Content: content})
}

// Segment extracts semantic blocks from one source file. Every failure is
// contained here: unsupported extensions, grammar load failures and parse
// failures all degrade to an empty result.
func (e *Engine) Segment(ctx context.Context, file *types.SourceFile) []*types.SemanticBlock {
	if !utf8.Valid(file.Content) {
		slog.Debug("skipping non-UTF-8 file", "file", file.Path)
		return nil
	}

	ext := strings.ToLower(filepath.Ext(file.Path))
	grammar, ok := e.registry.Obtain(ext)
	if !ok {
		slog.Debug("unsupported extension", "file", file.Path, "ext", ext)
		return nil
	}

	tree, err := grammar.Parse(ctx, file.Content)
	if err != nil {
		slog.Warn("parse failed", "file", file.Path, "error", err)
		return nil
	}
	defer tree.Close()

	captures := grammar.Query(tree)
	modPath := modulePath(file.Path, e.opts.ModuleRoots)
	seen := make(dedupSet)

	if len(captures) == 0 {
		return e.fallback(file, modPath, seen)
	}

	oversize := e.oversizeThreshold()
	var blocks []*types.SemanticBlock

	for _, capture := range captures {
		cat := MapKind(capture.Kind, capture.Node)
		if cat == CategoryDiscard {
			continue
		}

		node := capture.Node

		if cat == CategoryVariable && isDeclarationStatement(capture.Kind) {
			if decls := declarators(node); len(decls) > 1 {
				blocks = append(blocks, e.fanOut(node, decls, file, modPath, seen)...)
				continue
			}
		}

		meta := extractMetadata(node, capture.Kind, cat, file.Content)
		text := node.Content(file.Content)
		startLine := int(node.StartPoint().Row) + 1
		endLine := int(node.EndPoint().Row) + 1

		if len(text) > oversize {
			blocks = append(blocks, e.chunkLines(chunkRequest{
				lines:      strings.Split(text, "\n"),
				file:       file.Path,
				modulePath: modPath,
				baseType:   string(cat),
				startLine:  startLine,
				name:       meta.Name,
				doc:        meta.Doc,
				signature:  meta.Signature,
			}, seen)...)
			continue
		}

		if seen.seen(file.Path, startLine, endLine, text) {
			continue
		}
		blocks = append(blocks, &types.SemanticBlock{
			Type:       string(cat),
			Name:       meta.Name,
			File:       file.Path,
			StartLine:  startLine,
			EndLine:    endLine,
			Signature:  meta.Signature,
			Doc:        meta.Doc,
			Code:       text,
			ModulePath: modPath,
		})
	}

	return blocks
}

// fanOut emits one variable block per declarator of a multi-declarator
// statement. Oversized declarators are chunked individually; the statement
// doc rides on the first emitted block only, and no signature is attached.
func (e *Engine) fanOut(stmt *sitter.Node, decls []*sitter.Node, file *types.SourceFile, modPath string, seen dedupSet) []*types.SemanticBlock {
	oversize := e.oversizeThreshold()
	doc := precedingComment(stmt, file.Content)

	var blocks []*types.SemanticBlock
	for _, decl := range decls {
		name := declaratorName(decl, file.Content)
		text := decl.Content(file.Content)
		startLine := int(decl.StartPoint().Row) + 1
		endLine := int(decl.EndPoint().Row) + 1

		if len(text) > oversize {
			chunked := e.chunkLines(chunkRequest{
				lines:      strings.Split(text, "\n"),
				file:       file.Path,
				modulePath: modPath,
				baseType:   string(CategoryVariable),
				startLine:  startLine,
				name:       name,
				doc:        doc,
			}, seen)
			blocks = append(blocks, chunked...)
			if len(chunked) > 0 {
				doc = ""
			}
			continue
		}

		if len(text) < e.opts.MinBlockSize {
			continue
		}
		if seen.seen(file.Path, startLine, endLine, text) {
			continue
		}
		blocks = append(blocks, &types.SemanticBlock{
			Type:       string(CategoryVariable),
			Name:       name,
			File:       file.Path,
			StartLine:  startLine,
			EndLine:    endLine,
			Doc:        doc,
			Code:       text,
			ModulePath: modPath,
		})
		doc = ""
	}
	return blocks
}

// fallback chunks the whole file when the structural query yields nothing.
func (e *Engine) fallback(file *types.SourceFile, modPath string, seen dedupSet) []*types.SemanticBlock {
	content := string(file.Content)
	if len(content) < e.opts.MinBlockSize {
		return nil
	}
	return e.chunkLines(chunkRequest{
		lines:      strings.Split(content, "\n"),
		file:       file.Path,
		modulePath: modPath,
		baseType:   "fallback",
		startLine:  1,
	}, seen)
}

// modulePath strips a known root prefix and the extension from a file path.
func modulePath(path string, roots []string) string {
	p := filepath.ToSlash(path)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, filepath.Ext(p))
	for _, root := range roots {
		if strings.HasPrefix(p, root+"/") {
			p = p[len(root)+1:]
			break
		}
	}
	return p
}

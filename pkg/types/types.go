// Package types contains shared data types used across codeseg.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SourceFile represents a source file handed to the segmentation engine.
type SourceFile struct {
	Path    string // Path to the file, as supplied by the caller
	Content []byte // Raw file content
	Hash    string // SHA256 of content, for incremental indexing
}

// ComputeHash calculates the SHA256 hash of the file content.
func (f *SourceFile) ComputeHash() string {
	h := sha256.Sum256(f.Content)
	return hex.EncodeToString(h[:])
}

// SemanticBlock is one named, typed unit of source code extracted for
// downstream embedding. Type is a category tag such as "function" or
// "class", or a derived tag like "function_chunk", "function_line_segment"
// or "fallback_chunk" for blocks produced by the chunking engine.
type SemanticBlock struct {
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`
	File       string `json:"file"`
	StartLine  int    `json:"startLine"` // 1-based, inclusive
	EndLine    int    `json:"endLine"`   // 1-based, inclusive
	Signature  string `json:"signature,omitempty"`
	Doc        string `json:"doc,omitempty"`
	Code       string `json:"code"`
	ModulePath string `json:"modulePath,omitempty"`
}

// ID returns a stable identifier for the block: {file}:{startLine}:{hash[:8]}.
func (b *SemanticBlock) ID() string {
	h := sha256.Sum256([]byte(b.Code))
	return b.File + ":" + strconv.Itoa(b.StartLine) + ":" + hex.EncodeToString(h[:4])
}

// Hash returns the SHA256 hex digest of the block code.
func (b *SemanticBlock) Hash() string {
	h := sha256.Sum256([]byte(b.Code))
	return hex.EncodeToString(h[:])
}

// EmbeddingText builds the text that is embedded for this block:
// name, signature and doc followed by a code prefix of at most maxCode
// characters. The full block travels separately as metadata.
func (b *SemanticBlock) EmbeddingText(maxCode int) string {
	var sb strings.Builder
	if b.Name != "" {
		sb.WriteString(b.Name)
		sb.WriteString("\n")
	}
	if b.Signature != "" {
		sb.WriteString(b.Signature)
		sb.WriteString("\n")
	}
	if b.Doc != "" {
		sb.WriteString(b.Doc)
		sb.WriteString("\n")
	}
	code := b.Code
	if maxCode > 0 && len(code) > maxCode {
		code = code[:maxCode]
	}
	sb.WriteString(code)
	return sb.String()
}

// BlockWithEmbedding is a SemanticBlock with its vector embedding.
type BlockWithEmbedding struct {
	Block     *SemanticBlock
	Embedding []float32
}

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	Block *SemanticBlock
	Score float32 // Cosine similarity, higher is better

	// Surrounding source lines, populated on request.
	ContextBefore string
	ContextAfter  string
}

// StoreStats contains statistics about the vector index.
type StoreStats struct {
	TotalBlocks  int
	IndexedFiles int
	LastIndexed  time.Time
	DBSizeBytes  int64
}

// IndexProgress represents the current state of an indexing run.
type IndexProgress struct {
	Phase          string // "scanning", "segmenting", "embedding", "storing"
	TotalFiles     int
	ProcessedFiles int
	TotalBlocks    int
	CurrentFile    string
}

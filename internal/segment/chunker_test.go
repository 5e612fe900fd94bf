package segment

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkLinesSplitsOversizedSpan(t *testing.T) {
	// 42 lines, 3000 characters total: 41 lines of 70 chars plus a final
	// line of 89 chars, joined by 41 newlines.
	lines := make([]string, 42)
	for i := 0; i < 41; i++ {
		lines[i] = strings.Repeat("a", 70)
	}
	lines[41] = strings.Repeat("b", 89)
	original := strings.Join(lines, "\n")
	if len(original) != 3000 {
		t.Fatalf("fixture length = %d, want 3000", len(original))
	}

	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	seen := make(dedupSet)
	blocks := e.chunkLines(chunkRequest{
		lines:      lines,
		file:       "calc.ts",
		modulePath: "calc",
		baseType:   "function",
		startLine:  10,
		name:       "computeTotal",
		doc:        "// computes the total",
		signature:  "function computeTotal(items)",
	}, seen)

	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	for i, b := range blocks {
		if b.Type != "function_chunk" {
			t.Errorf("block %d type = %q, want function_chunk", i, b.Type)
		}
		if len(b.Code) > 1200 {
			t.Errorf("block %d length %d exceeds oversized threshold", i, len(b.Code))
		}
		if b.StartLine > b.EndLine {
			t.Errorf("block %d has startLine %d > endLine %d", i, b.StartLine, b.EndLine)
		}
		want := "computeTotal (part " + strconv.Itoa(i+1) + ")"
		if b.Name != want {
			t.Errorf("block %d name = %q, want %q", i, b.Name, want)
		}
	}

	if blocks[0].Doc == "" || blocks[0].Signature == "" {
		t.Error("first chunk should carry doc and signature")
	}
	for _, b := range blocks[1:] {
		if b.Doc != "" || b.Signature != "" {
			t.Errorf("continuation chunk %q carries doc/signature", b.Name)
		}
	}

	// Chunks are contiguous and reconstruct the original exactly.
	if blocks[0].StartLine != 10 {
		t.Errorf("first chunk starts at line %d, want 10", blocks[0].StartLine)
	}
	totalLines := 0
	var codes []string
	for i, b := range blocks {
		if i > 0 && b.StartLine != blocks[i-1].EndLine+1 {
			t.Errorf("chunk %d not contiguous: starts at %d after end %d", i, b.StartLine, blocks[i-1].EndLine)
		}
		totalLines += b.EndLine - b.StartLine + 1
		codes = append(codes, b.Code)
	}
	if totalLines != 42 {
		t.Errorf("chunk lines sum to %d, want 42", totalLines)
	}
	if got := strings.Join(codes, "\n"); got != original {
		t.Error("concatenated chunks do not reconstruct the original span")
	}
}

func TestChunkLinesSegmentsOversizedLine(t *testing.T) {
	// A single 2500-char line with non-repeating content so every
	// segment has a distinct fingerprint prefix.
	var sb strings.Builder
	for i := 0; sb.Len() < 2500; i++ {
		sb.WriteString(strconv.Itoa(i))
	}
	line := sb.String()[:2500]

	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     []string{line},
		file:      "data.js",
		baseType:  "variable",
		startLine: 7,
		name:      "payload",
	}, make(dedupSet))

	if len(blocks) != 3 {
		t.Fatalf("got %d segments, want 3", len(blocks))
	}
	var rebuilt strings.Builder
	for i, b := range blocks {
		if b.Type != "variable_line_segment" {
			t.Errorf("segment %d type = %q, want variable_line_segment", i, b.Type)
		}
		if b.StartLine != 7 || b.EndLine != 7 {
			t.Errorf("segment %d lines = %d-%d, want 7-7", i, b.StartLine, b.EndLine)
		}
		if len(b.Code) > 1000 {
			t.Errorf("segment %d length %d exceeds max block size", i, len(b.Code))
		}
		rebuilt.WriteString(b.Code)
	}
	if rebuilt.String() != line {
		t.Error("segments do not reconstruct the original line")
	}
}

func TestChunkLinesDropsShortAccumulatorBeforeSegments(t *testing.T) {
	long := strings.Repeat("x", 1300) + strings.Repeat("y", 1300)

	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     []string{"tiny", long},
		file:      "f.go",
		baseType:  "function",
		startLine: 1,
	}, make(dedupSet))

	for _, b := range blocks {
		if b.Code == "tiny" {
			t.Error("below-minimum accumulator should not be emitted before a segmented line")
		}
		if !strings.HasSuffix(b.Type, "_line_segment") {
			t.Errorf("unexpected block type %q", b.Type)
		}
	}
}

func TestChunkLinesForcedFinalRemainder(t *testing.T) {
	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     []string{"short tail"},
		file:      "f.go",
		baseType:  "fallback",
		startLine: 3,
	}, make(dedupSet))

	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1 forced remainder", len(blocks))
	}
	if blocks[0].Type != "fallback_chunk" {
		t.Errorf("type = %q, want fallback_chunk", blocks[0].Type)
	}
	if blocks[0].Code != "short tail" {
		t.Errorf("code = %q", blocks[0].Code)
	}
}

func TestChunkLinesMergesTinyForcedRemainder(t *testing.T) {
	// Two full lines plus a 30-char tail that lands alone in the final
	// accumulator, below the 50-char remainder floor.
	lines := []string{
		strings.Repeat("a", 110),
		strings.Repeat("b", 110),
		strings.Repeat("d", 30),
	}
	original := strings.Join(lines, "\n")

	e := New(Options{MaxBlockSize: 100, MinBlockSize: 10, ToleranceFactor: 1.2, MinRemainder: 50}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     lines,
		file:      "table.go",
		baseType:  "function",
		startLine: 1,
		name:      "buildTable",
	}, make(dedupSet))

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (tail folded into last chunk)", len(blocks))
	}
	last := blocks[len(blocks)-1]
	if last.EndLine != 3 {
		t.Errorf("last chunk ends at line %d, want 3", last.EndLine)
	}
	var codes []string
	for _, b := range blocks {
		codes = append(codes, b.Code)
	}
	if got := strings.Join(codes, "\n"); got != original {
		t.Errorf("concatenated chunks lost %d chars of the span", len(original)-len(got))
	}
}

func TestChunkLinesSegmentsRespectRuneBoundaries(t *testing.T) {
	// 700 distinct 3-byte runes: 2100 bytes, and 1000 is not a multiple
	// of 3, so a byte-offset cut would land mid-rune.
	var sb strings.Builder
	for i := 0; i < 700; i++ {
		sb.WriteRune(rune(0x4E00 + i))
	}
	line := sb.String()
	if len(line) != 2100 {
		t.Fatalf("fixture length = %d, want 2100", len(line))
	}

	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     []string{line},
		file:      "glyphs.py",
		baseType:  "variable",
		startLine: 2,
	}, make(dedupSet))

	if len(blocks) != 3 {
		t.Fatalf("got %d segments, want 3", len(blocks))
	}
	var rebuilt strings.Builder
	for i, b := range blocks {
		if !utf8.ValidString(b.Code) {
			t.Errorf("segment %d contains invalid UTF-8", i)
		}
		if len(b.Code) > 1000 {
			t.Errorf("segment %d length %d exceeds max block size", i, len(b.Code))
		}
		rebuilt.WriteString(b.Code)
	}
	if rebuilt.String() != line {
		t.Error("segments do not reconstruct the original line")
	}
}

func TestChunkLinesDeduplicatesWithinCall(t *testing.T) {
	lines := []string{strings.Repeat("z", 80)}
	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 50, ToleranceFactor: 1.2}, nil)
	seen := make(dedupSet)

	req := chunkRequest{lines: lines, file: "f.go", baseType: "function", startLine: 5}
	first := e.chunkLines(req, seen)
	second := e.chunkLines(req, seen)

	if len(first) != 1 {
		t.Fatalf("first pass emitted %d blocks, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second pass emitted %d blocks, want 0 (deduplicated)", len(second))
	}

	// A fresh cache allows emission again.
	if again := e.chunkLines(req, make(dedupSet)); len(again) != 1 {
		t.Errorf("fresh cache emitted %d blocks, want 1", len(again))
	}
}

func TestChunkLinesSingleChunkKeepsPlainName(t *testing.T) {
	e := New(Options{MaxBlockSize: 1000, MinBlockSize: 10, ToleranceFactor: 1.2}, nil)
	blocks := e.chunkLines(chunkRequest{
		lines:     []string{strings.Repeat("m", 200)},
		file:      "f.go",
		baseType:  "function",
		startLine: 1,
		name:      "handle",
	}, make(dedupSet))

	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].Name != "handle" {
		t.Errorf("name = %q, want plain %q", blocks[0].Name, "handle")
	}
}

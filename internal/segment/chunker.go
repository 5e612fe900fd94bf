package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mvasko/codeseg/pkg/types"
)

// fingerprintPrefixLen is how many leading characters of a block's code
// participate in its dedup fingerprint.
const fingerprintPrefixLen = 50

// dedupSet suppresses duplicate block emission within one extraction call.
// It is allocated fresh per top-level call and never shared across files.
type dedupSet map[string]struct{}

// seen records the fingerprint of (file, start, end, code prefix) and
// reports whether it was already present.
func (d dedupSet) seen(file string, startLine, endLine int, code string) bool {
	prefix := code
	if len(prefix) > fingerprintPrefixLen {
		prefix = prefix[:fingerprintPrefixLen]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", file, startLine, endLine, prefix)))
	key := hex.EncodeToString(sum[:16])
	if _, ok := d[key]; ok {
		return true
	}
	d[key] = struct{}{}
	return false
}

// chunkRequest describes one span of lines to bin-pack into blocks.
type chunkRequest struct {
	lines      []string
	file       string
	modulePath string
	baseType   string // category tag; emitted blocks get "<base>_chunk" / "<base>_line_segment"
	startLine  int    // absolute 1-based line number of lines[0]
	name       string
	doc        string
	signature  string
}

// chunkLines is the core bin-packing algorithm: a single greedy pass over
// the lines, accumulating whole lines up to the oversized threshold
// (max size x tolerance). Lines that alone exceed the threshold are split
// into fixed-size character segments and emitted independently. The final
// accumulator is always flushed; when it falls below the remainder floor it
// is folded into the preceding chunk instead of emitted on its own. Chunk
// boundaries are purely greedy; no trailing-line rebalancing is attempted.
func (e *Engine) chunkLines(req chunkRequest, seen dedupSet) []*types.SemanticBlock {
	oversize := e.oversizeThreshold()

	var out []*types.SemanticBlock
	var chunks []*types.SemanticBlock // subset of out that are "_chunk" blocks

	var acc []string
	accLen := 0
	accStart := req.startLine

	finalize := func(forced bool) {
		if len(acc) == 0 {
			return
		}
		code := strings.Join(acc, "\n")
		start := accStart
		end := accStart + len(acc) - 1

		accStart = end + 1
		acc = nil
		accLen = 0

		if !forced && len(code) < e.opts.MinBlockSize {
			return
		}
		if forced && len(code) < e.opts.MinRemainder {
			// Too small to stand alone: fold the tail into the preceding
			// chunk so the span's text is never lost.
			if last := len(chunks) - 1; last >= 0 && chunks[last].EndLine == start-1 {
				chunks[last].Code += "\n" + code
				chunks[last].EndLine = end
				return
			}
		}
		if seen.seen(req.file, start, end, code) {
			return
		}

		b := &types.SemanticBlock{
			Type:       req.baseType + "_chunk",
			File:       req.file,
			StartLine:  start,
			EndLine:    end,
			Code:       code,
			ModulePath: req.modulePath,
		}
		if len(chunks) == 0 {
			b.Name = req.name
			b.Doc = req.doc
			b.Signature = req.signature
		} else if req.name != "" {
			b.Name = fmt.Sprintf("%s (part %d)", req.name, len(chunks)+1)
		}
		chunks = append(chunks, b)
		out = append(out, b)
	}

	lineNo := req.startLine
	for _, line := range req.lines {
		if len(line) > oversize {
			// Pathological single line: flush what we have, then emit
			// fixed-size character segments for this line alone.
			finalize(false)
			for off := 0; off < len(line); {
				segEnd := min(off+e.opts.MaxBlockSize, len(line))
				// Never cut a multi-byte rune in half.
				for segEnd > off && segEnd < len(line) && !utf8.RuneStart(line[segEnd]) {
					segEnd--
				}
				if segEnd == off {
					segEnd = min(off+e.opts.MaxBlockSize, len(line))
				}
				segCode := line[off:segEnd]
				off = segEnd
				if seen.seen(req.file, lineNo, lineNo, segCode) {
					continue
				}
				out = append(out, &types.SemanticBlock{
					Type:       req.baseType + "_line_segment",
					File:       req.file,
					StartLine:  lineNo,
					EndLine:    lineNo,
					Code:       segCode,
					ModulePath: req.modulePath,
				})
			}
			accStart = lineNo + 1
			lineNo++
			continue
		}

		join := len(line)
		if len(acc) > 0 {
			join++ // joining newline
		}
		if len(acc) > 0 && accLen+join > oversize {
			finalize(false)
			acc = []string{line}
			accLen = len(line)
			accStart = lineNo
		} else {
			if len(acc) == 0 {
				accStart = lineNo
			}
			acc = append(acc, line)
			accLen += join
		}
		lineNo++
	}

	finalize(true)

	// A span that split into several chunks renames its first chunk to
	// "(part 1)" so the series reads as a whole.
	if len(chunks) > 1 && req.name != "" {
		chunks[0].Name = fmt.Sprintf("%s (part 1)", req.name)
	}

	return out
}

// oversizeThreshold is max block size scaled by the tolerance factor.
func (e *Engine) oversizeThreshold() int {
	return int(float64(e.opts.MaxBlockSize) * e.opts.ToleranceFactor)
}

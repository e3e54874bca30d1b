// Package memory implements the chunking and ranked-search layer (C12):
// splitting arbitrary text into overlapping, deduplicated chunks and
// scoring them against a query by frequency, recency, and tag match.
package memory

import (
	"unicode"
	"unicode/utf8"
)

// Chunking defaults per the stored chunk format: 1600-char chunks with a
// 320-char overlap between consecutive chunks, and a 200-char floor below
// which a trailing remainder is merged into the previous chunk instead of
// standing alone.
const (
	DefaultChunkSize = 1600
	DefaultOverlap   = 320
	MinChunkSize     = 200
)

// Chunker splits text into overlapping chunks. Splits always land on a
// UTF-8 rune boundary first, then seek outward to the nearest word
// boundary — a mid-word split is never produced.
type Chunker struct {
	ChunkSize int
	Overlap   int
	MinChunk  int
}

// NewChunker builds a Chunker using the default size/overlap/minimum.
func NewChunker() *Chunker {
	return &Chunker{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		MinChunk:  MinChunkSize,
	}
}

// Chunk splits text into pieces no longer than ChunkSize, each overlapping
// the previous by roughly Overlap characters. A trailing piece shorter
// than MinChunk is merged into the prior chunk rather than emitted alone.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.wordBoundary(text, end)
		}
		if end <= start {
			// No boundary found within the window; fall back to a hard
			// rune-aligned cut so progress is always made.
			end = c.runeBoundary(text, start+c.ChunkSize)
		}

		piece := text[start:end]
		if len(piece) < c.MinChunk && len(chunks) > 0 {
			chunks[len(chunks)-1] += piece
			break
		}
		chunks = append(chunks, piece)

		if end >= len(text) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		prevStart := start
		start = c.wordBoundary(text, next)
		if start <= prevStart {
			// The overlap window sits inside one long word with no
			// preceding space; accept a rune-aligned (possibly mid-word)
			// start rather than stalling.
			start = c.runeBoundary(text, next)
		}
	}

	return chunks
}

// runeBoundary rounds pos down to the nearest valid UTF-8 rune boundary
// within [0, len(s)].
func (c *Chunker) runeBoundary(s string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(s) {
		return len(s)
	}
	for pos > 0 && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}

// wordBoundary rounds pos down to a rune boundary, then walks backward to
// the nearest preceding whitespace run so a split never lands mid-word.
// If no whitespace is found before the window start, it falls back to the
// rune-aligned position (a hard split on an unbroken run of text, e.g. a
// URL or a CJK passage with no spaces).
func (c *Chunker) wordBoundary(s string, pos int) int {
	pos = c.runeBoundary(s, pos)
	search := pos
	for search > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:search])
		if r == utf8.RuneError && size <= 1 {
			search--
			continue
		}
		if unicode.IsSpace(r) {
			return search
		}
		search -= size
	}
	return pos
}

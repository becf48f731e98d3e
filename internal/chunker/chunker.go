package chunker

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrBadConfig indicates degenerate chunking parameters. This is a
// configuration bug and is surfaced at construction time, not per document.
var ErrBadConfig = errors.New("invalid chunking parameters")

// Chunker splits plain text into overlapping, size-bounded fragments using a
// rune sliding window. Adjacent chunks share exactly `overlap` runes: the tail
// of chunk i equals the head of chunk i+1, so concatenating chunks and
// trimming the overlap from every chunk but the first reconstructs the input.
type Chunker struct {
	size      int
	overlap   int
	tolerance int
}

// New validates the parameters and returns a Chunker. size must be positive,
// overlap must be smaller than size, and tolerance must leave room for the
// window to advance (tolerance < size - overlap).
func New(size, overlap, tolerance int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrBadConfig)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size)", ErrBadConfig)
	}
	if tolerance < 0 || tolerance >= size-overlap {
		return nil, fmt.Errorf("%w: tolerance must be in [0, size-overlap)", ErrBadConfig)
	}
	return &Chunker{size: size, overlap: overlap, tolerance: tolerance}, nil
}

// Chunk splits text into ordered fragments. Empty input yields an empty
// slice. Each chunk except the last has between size-tolerance and size
// runes; chunk ends are pulled back to the nearest sentence or whitespace
// boundary within the tolerance when one exists.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		if b := boundaryBefore(runes, end, c.tolerance); b > start+c.overlap {
			end = b
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
	return chunks
}

// boundaryBefore scans backwards from end over at most tolerance runes and
// returns the position just after the best break point, or 0 when none is
// found. Sentence-ending punctuation is preferred over plain whitespace.
func boundaryBefore(runes []rune, end, tolerance int) int {
	limit := end - tolerance
	if limit < 1 {
		limit = 1
	}
	wsBreak := 0
	for i := end; i > limit; i-- {
		r := runes[i-1]
		switch r {
		case '.', '!', '?', '\n':
			return i
		}
		if wsBreak == 0 && unicode.IsSpace(r) {
			wsBreak = i
		}
	}
	return wsBreak
}

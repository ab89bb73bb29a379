package rag_service

import (
	"fmt"
	"iter"
)

// Chunker splits page text into a contiguous sequence of spans of at
// most MaxChars runes. The last OverlapChars runes of each chunk repeat
// at the start of the next one so context survives the boundary. Same
// input and configuration always yield the same sequence.
type Chunker struct {
	maxChars     int
	overlapChars int
}

func NewChunker(maxChars, overlapChars int) (*Chunker, error) {
	if maxChars < 1 {
		return nil, fmt.Errorf("max_chunk_chars must be >= 1, got %d", maxChars)
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		return nil, fmt.Errorf("chunk_overlap_chars must be in [0, max_chunk_chars), got %d", overlapChars)
	}
	return &Chunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
	}, nil
}

// Chunks yields (position, text) pairs lazily. The sequence is
// restartable: ranging over it again replays the identical chunks.
// Empty input yields nothing; input of at most maxChars runes yields
// exactly one chunk equal to the input.
func (c *Chunker) Chunks(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		runes := []rune(text)
		if len(runes) == 0 {
			return
		}

		step := c.maxChars - c.overlapChars
		position := 0
		for start := 0; start < len(runes); start += step {
			end := start + c.maxChars
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(position, string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
			position++
		}
	}
}

// Split collects the chunk sequence eagerly.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for _, chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Package chunker splits raw document text into overlapping fixed-size spans
// for embedding and indexing.
package chunker

import (
	"fmt"
	"strconv"
	"strings"
)

// Default chunking parameters, tuned for embedding models with a few thousand
// token context.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunk is a bounded substring of a source document together with its
// provenance metadata. Chunks are immutable once created.
type Chunk struct {
	Content  string
	Index    int
	Start    int
	End      int
	Metadata map[string]string
}

// Chunker splits text into spans of Size characters, each overlapping the
// previous one by Overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. overlap must be non-negative and strictly smaller
// than size, otherwise the scan position would never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d (size %d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split scans text left to right and produces overlapping chunks. Each chunk
// carries a copy of meta plus chunk_index, start_char and end_char for
// traceability. Chunks that are empty after trimming whitespace are dropped.
//
// Split is pure: identical input always yields identical output, and it never
// fails for well-formed input. Empty or whitespace-only text yields nil.
func (c *Chunker) Split(text string, meta map[string]string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Spans are measured in runes so multi-byte scripts never split mid
	// character.
	runes := []rune(text)

	var chunks []Chunk
	stride := c.size - c.overlap
	index := 0

	for start := 0; start < len(runes); start += stride {
		end := min(start+c.size, len(runes))

		content := strings.TrimSpace(string(runes[start:end]))
		if content == "" {
			continue
		}

		md := make(map[string]string, len(meta)+3)
		for k, v := range meta {
			md[k] = v
		}
		md["chunk_index"] = strconv.Itoa(index)
		md["start_char"] = strconv.Itoa(start)
		md["end_char"] = strconv.Itoa(end)

		chunks = append(chunks, Chunk{
			Content:  content,
			Index:    index,
			Start:    start,
			End:      end,
			Metadata: md,
		})
		index++
	}

	return chunks
}

// Size returns the configured target chunk size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

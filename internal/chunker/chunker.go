// Package chunker splits page text into bounded chunks for embedding.
// Splitting prefers paragraph boundaries, then sentence boundaries, and only
// falls back to fixed windows with overlap for pathological input.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one embeddable segment of a source document.
type Chunk struct {
	// Index is the zero-based position of the chunk in the source document.
	Index int
	Text  string
}

// Default chunking parameters.
const (
	// defaultMaxSize bounds chunk length in bytes. Large enough to keep
	// paragraph context, small enough for every supported embedding model.
	defaultMaxSize = 4000

	// defaultOverlap is carried between fixed windows so sentences cut at a
	// window edge appear whole in at least one chunk.
	defaultOverlap = 200
)

// Splitter produces bounded text chunks.
type Splitter struct {
	maxSize int
	overlap int
}

// New creates a Splitter. Non-positive maxSize or negative overlap select the
// defaults; overlap must stay below maxSize.
func New(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("overlap (%d) must be less than maxSize (%d)", overlap, maxSize)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// Split breaks text into chunks of at most maxSize bytes. Whitespace-only
// input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > s.maxSize {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, s.splitOversized(para)...)
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(para) > s.maxSize {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{Index: i, Text: part})
	}
	return chunks
}

// splitOversized breaks a single paragraph that exceeds maxSize, first at
// sentence boundaries, then by fixed windows with overlap.
func (s *Splitter) splitOversized(para string) []string {
	var parts []string
	var current strings.Builder
	for _, sentence := range splitSentences(para) {
		if len(sentence) > s.maxSize {
			if current.Len() > 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			}
			parts = append(parts, s.window(sentence)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > s.maxSize {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// window cuts text into maxSize slices, each starting overlap bytes before
// the end of the previous one.
func (s *Splitter) window(text string) []string {
	var parts []string
	step := s.maxSize - s.overlap
	for start := 0; start < len(text); start += step {
		end := start + s.maxSize
		if end >= len(text) {
			parts = append(parts, text[start:])
			break
		}
		parts = append(parts, text[start:end])
	}
	return parts
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			start = i + 2
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// Package chunker provides a windowed text splitter that prefers paragraph
// and sentence boundaries.
package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.Splitter = (*Processor)(nil)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 50

// DefaultMinChunk is the shortest chunk kept.
const DefaultMinChunk = 50

// breakPoints are tried in order; the first one found past the minimum
// chunk length ends the window.
var breakPoints = []string{"\n\n", "\n", ". ", "? ", "! "}

// Processor splits text into overlapping windows.
// It implements the Splitter interface.
type Processor struct {
	chunkSize int
	overlap   int
	minChunk  int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the window size in bytes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between windows in bytes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinChunk sets the length floor below which trailing fragments are dropped.
func WithMinChunk(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minChunk = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		minChunk:  DefaultMinChunk,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Split returns stripped windows with their source offsets. Text shorter
// than the minimum chunk length is returned whole.
func (p *Processor) Split(_ context.Context, text string) ([]domain.Span, error) {
	if text == "" {
		return nil, nil
	}
	if len(text) < p.minChunk {
		return []domain.Span{{Start: 0, End: len(text), Text: text}}, nil
	}

	spans := make([]domain.Span, 0, len(text)/(p.chunkSize-p.overlap)+1)
	start := 0

	for start < len(text) {
		end := start + p.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = p.breakPoint(text, start, end)
		}

		if chunk := strings.TrimSpace(text[start:end]); len(chunk) >= p.minChunk {
			spans = append(spans, domain.Span{Start: start, End: end, Text: chunk})
		}

		if end >= len(text) {
			break
		}

		next := alignRune(text, end-p.overlap)
		if next <= start {
			next = end
		}
		start = next
	}

	return spans, nil
}

// breakPoint returns the end of the window [start, end). The last
// occurrence of a break sequence strictly after start+minChunk wins;
// otherwise the window is cut at end.
func (p *Processor) breakPoint(text string, start, end int) int {
	lo := start + p.minChunk
	if lo < end {
		window := text[lo:end]
		for _, bp := range breakPoints {
			if i := strings.LastIndex(window, bp); i > 0 {
				return lo + i + len(bp)
			}
		}
	}
	if cut := alignRune(text, end); cut > start {
		return cut
	}
	return end
}

// alignRune moves i back to the start of the rune containing it.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

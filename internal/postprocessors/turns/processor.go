// Package turns segments conversation transcripts into speaker turns.
package turns

import (
	"context"
	"regexp"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.Splitter = (*Processor)(nil)

// DefaultMinLineLength is the length a line must exceed to become a turn
// when no speaker labels are present.
const DefaultMinLineLength = 20

// speakerPattern matches labels such as "Doctor:", "Patient :" or "RN:".
// Short labels must start a word so that "BP: 120/80" is not a speaker.
var speakerPattern = regexp.MustCompile(
	`(?i)\b(?:Patient|Doctor|Physician|Nurse|User|Assistant|Provider|Clinician|Dr|RN|P|D)\s*:`,
)

// Processor splits a transcript at speaker labels.
type Processor struct {
	minLineLength int
}

// Option configures the turn segmenter.
type Option func(*Processor)

// WithMinLineLength sets the line-length floor of the line fallback.
func WithMinLineLength(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minLineLength = n
		}
	}
}

// New creates a turn segmenter.
func New(opts ...Option) *Processor {
	p := &Processor{minLineLength: DefaultMinLineLength}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "turns"
}

// Split returns one span per speaker turn. Text before the first label is
// kept as its own turn. Without labels, lines longer than the floor become
// turns; failing that the whole text is one turn.
func (p *Processor) Split(_ context.Context, text string) ([]domain.Span, error) {
	if text == "" {
		return nil, nil
	}

	if spans := p.bySpeaker(text); len(spans) > 0 {
		return spans, nil
	}
	if spans := p.byLine(text); len(spans) > 0 {
		return spans, nil
	}
	return []domain.Span{{Start: 0, End: len(text), Text: strings.TrimSpace(text)}}, nil
}

func (p *Processor) bySpeaker(text string) []domain.Span {
	locs := speakerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var spans []domain.Span
	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		spans = append(spans, domain.Span{Start: 0, End: locs[0][0], Text: pre})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if turn := strings.TrimSpace(text[loc[0]:end]); turn != "" {
			spans = append(spans, domain.Span{Start: loc[0], End: end, Text: turn})
		}
	}
	return spans
}

func (p *Processor) byLine(text string) []domain.Span {
	var spans []domain.Span
	pos := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > p.minLineLength {
			start := pos + strings.Index(line, trimmed)
			spans = append(spans, domain.Span{Start: start, End: start + len(trimmed), Text: trimmed})
		}
		pos += len(line) + 1
	}
	return spans
}

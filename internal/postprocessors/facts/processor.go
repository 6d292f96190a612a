// Package facts flattens nested JSON summaries into one span per leaf value.
package facts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.Splitter = (*Processor)(nil)

// DefaultMaxOpaqueChars caps the text kept from an unparseable payload.
const DefaultMaxOpaqueChars = 1000

// Metadata keys set on emitted spans.
const (
	MetaKey       = "key"
	MetaValue     = "value"
	MetaMalformed = "malformed"
)

// Processor flattens JSON objects into "path: value" facts.
// Map leaves use dotted paths and list items use bracketed indexes.
type Processor struct {
	maxOpaque int
}

// Option configures the flattener.
type Option func(*Processor)

// WithMaxOpaqueChars sets how much of a malformed payload is retained.
func WithMaxOpaqueChars(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxOpaque = n
		}
	}
}

// New creates a fact flattener.
func New(opts ...Option) *Processor {
	p := &Processor{maxOpaque: DefaultMaxOpaqueChars}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "facts"
}

// Split flattens the payload in document order. Empty, false and zero map
// values are skipped; list items are always kept. A payload that is not
// valid JSON is kept as a single truncated span marked malformed.
func (p *Processor) Split(_ context.Context, text string) ([]domain.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var spans []domain.Span
	err := p.walk(dec, "", false, &spans)
	if err == nil {
		if _, tailErr := dec.Token(); !errors.Is(tailErr, io.EOF) {
			err = fmt.Errorf("trailing data after JSON value")
		}
	}
	if err != nil {
		return []domain.Span{p.opaque(text, true)}, nil
	}
	if spans == nil && !isContainer(text) {
		return []domain.Span{p.opaque(text, false)}, nil
	}
	return spans, nil
}

func (p *Processor) walk(dec *json.Decoder, path string, inList bool, out *[]domain.Span) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		if path != "" {
			emit(path, tok, inList, out)
		}
		return nil
	}

	switch delim {
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := keyTok.(string)
			child := key
			if path != "" {
				child = path + "." + key
			}
			if err := p.walk(dec, child, false, out); err != nil {
				return err
			}
		}
	case '[':
		for i := 0; dec.More(); i++ {
			if err := p.walk(dec, path+"["+strconv.Itoa(i)+"]", true, out); err != nil {
				return err
			}
		}
	}

	// closing delimiter
	_, err = dec.Token()
	return err
}

func emit(path string, tok json.Token, inList bool, out *[]domain.Span) {
	var value string
	switch v := tok.(type) {
	case string:
		if v == "" && !inList {
			return
		}
		value = v
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 && !inList {
			return
		}
		value = v.String()
	case bool:
		if !v && !inList {
			return
		}
		value = strconv.FormatBool(v)
	default:
		// null
		return
	}

	*out = append(*out, domain.Span{
		Start:    domain.NoOffset,
		End:      domain.NoOffset,
		Text:     path + ": " + value,
		Metadata: map[string]string{MetaKey: path, MetaValue: value},
	})
}

func (p *Processor) opaque(text string, malformed bool) domain.Span {
	raw := strings.TrimSpace(text)
	if len(raw) > p.maxOpaque {
		cut := p.maxOpaque
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	span := domain.Span{Start: domain.NoOffset, End: domain.NoOffset, Text: raw}
	if malformed {
		span.Metadata = map[string]string{MetaMalformed: "true"}
	}
	return span
}

func isContainer(text string) bool {
	trimmed := bytes.TrimSpace([]byte(text))
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

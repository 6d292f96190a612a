// Package bm25 implements driven.LexicalIndex with BM25Okapi scoring.
//
// Documents and queries are tokenised by lower-casing and splitting on
// whitespace, so punctuation stays attached to tokens ("fio2," and "fio2"
// are different terms). Terms whose inverse document frequency would be
// negative are floored at epsilon times the mean IDF.
package bm25

import (
	"fmt"
	"math"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.LexicalIndex = (*Index)(nil)

// Default BM25Okapi parameters.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// Index is an immutable BM25Okapi index.
type Index struct {
	k1, b, epsilon float64

	docTerms  []map[string]int
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int
	idf       map[string]float64
}

// Option configures an Index.
type Option func(*Index)

// WithK1 sets the term-frequency saturation parameter.
func WithK1(k1 float64) Option {
	return func(i *Index) { i.k1 = k1 }
}

// WithB sets the length normalisation parameter.
func WithB(b float64) Option {
	return func(i *Index) { i.b = b }
}

// WithEpsilon sets the IDF floor as a fraction of the mean IDF.
func WithEpsilon(eps float64) Option {
	return func(i *Index) { i.epsilon = eps }
}

func newIndex(opts []Option) *Index {
	idx := &Index{k1: DefaultK1, b: DefaultB, epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Tokenize lower-cases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// New indexes texts in ordinal order.
func New(texts []string, opts ...Option) *Index {
	idx := newIndex(opts)
	idx.docTerms = make([]map[string]int, len(texts))
	idx.docLens = make([]int, len(texts))
	idx.docFreq = make(map[string]int)

	total := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		idx.docTerms[i] = freqs
		idx.docLens[i] = len(tokens)
		total += len(tokens)
		for term := range freqs {
			idx.docFreq[term]++
		}
	}
	if len(texts) > 0 {
		idx.avgDocLen = float64(total) / float64(len(texts))
	}
	idx.computeIDF()
	return idx
}

// FromSnapshot restores an index from its serialised state.
func FromSnapshot(snap domain.LexicalSnapshot, opts ...Option) (*Index, error) {
	if len(snap.DocTerms) != len(snap.DocLens) {
		return nil, fmt.Errorf("%w: %d term maps for %d lengths",
			domain.ErrStaleIndex, len(snap.DocTerms), len(snap.DocLens))
	}
	idx := newIndex(opts)
	idx.docTerms = snap.DocTerms
	idx.docLens = snap.DocLens
	idx.avgDocLen = snap.AvgDocLen
	idx.docFreq = snap.DocFreq
	if idx.docFreq == nil {
		idx.docFreq = make(map[string]int)
	}
	for i := range idx.docTerms {
		if idx.docTerms[i] == nil {
			idx.docTerms[i] = map[string]int{}
		}
	}
	idx.computeIDF()
	return idx, nil
}

func (idx *Index) computeIDF() {
	n := float64(len(idx.docTerms))
	idx.idf = make(map[string]float64, len(idx.docFreq))
	if len(idx.docFreq) == 0 {
		return
	}

	sum := 0.0
	var negative []string
	for term, df := range idx.docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}

	floor := idx.epsilon * sum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

// Scores returns the BM25 score of every document, indexed by ordinal.
// Repeated query tokens contribute once per occurrence.
func (idx *Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.docTerms))
	if idx.avgDocLen == 0 {
		return scores
	}
	for _, q := range Tokenize(query) {
		idf, ok := idx.idf[q]
		if !ok {
			continue
		}
		for i, terms := range idx.docTerms {
			tf := float64(terms[q])
			if tf == 0 {
				continue
			}
			norm := idx.k1 * (1 - idx.b + idx.b*float64(idx.docLens[i])/idx.avgDocLen)
			scores[i] += idf * (tf * (idx.k1 + 1) / (tf + norm))
		}
	}
	return scores
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docTerms)
}

// Snapshot returns the serialisable index state.
func (idx *Index) Snapshot() domain.LexicalSnapshot {
	return domain.LexicalSnapshot{
		DocTerms:  idx.docTerms,
		DocLens:   idx.docLens,
		AvgDocLen: idx.avgDocLen,
		DocFreq:   idx.docFreq,
	}
}

package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
	"github.com/Pg1910/clinical-rag/internal/telemetry"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// embedBatchSize bounds the texts sent in one embedding request.
const embedBatchSize = 64

// IndexService builds index generations and reopens the current one.
type IndexService struct {
	bundles   driven.BundleStore
	factory   driven.IndexFactory
	embedding driven.EmbeddingService
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewIndexService creates a new index service.
// The embedding parameter is optional (can be nil); without it generations
// are lexical-only.
func NewIndexService(
	bundles driven.BundleStore,
	factory driven.IndexFactory,
	embedding driven.EmbeddingService,
) *IndexService {
	return &IndexService{
		bundles:   bundles,
		factory:   factory,
		embedding: embedding,
		metrics:   telemetry.Default(),
		now:       time.Now,
	}
}

// Build indexes records as a new generation. The evidence store, lexical
// snapshot and vectors are saved in one transaction under one checksum.
func (s *IndexService) Build(ctx context.Context, records []domain.EvidenceRecord) (*driven.Corpus, error) {
	logger.Section("Index Build")

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no evidence records to index", domain.ErrInvalidInput)
	}
	if err := domain.EnsureUnique(records); err != nil {
		return nil, err
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].RawText
	}

	bundle := &domain.IndexBundle{
		Generation: uuid.NewString(),
		CreatedAt:  s.now().UTC(),
		Records:    append([]domain.EvidenceRecord(nil), records...),
	}

	if s.embedding != nil {
		vectors, err := s.embedAll(ctx, texts)
		if err != nil {
			return nil, err
		}
		bundle.Vectors = vectors
		bundle.EmbeddingModel = s.embedding.ModelName()
		bundle.Dimensions = s.embedding.Dimensions()
	} else {
		logger.Warn("no embedding service configured, building a lexical-only index")
	}

	lexical := s.factory.BuildLexical(texts)
	bundle.Lexical = lexical.Snapshot()
	bundle.Checksum = BundleChecksum(bundle)

	if err := s.bundles.Save(ctx, bundle); err != nil {
		return nil, fmt.Errorf("save generation %s: %w", bundle.Generation, err)
	}
	telemetry.Add(ctx, s.metrics.RecordsIndexed, int64(len(records)))

	logger.Debug("generation %s: %d records, model=%q dims=%d",
		bundle.Generation, len(records), bundle.EmbeddingModel, bundle.Dimensions)

	return s.corpus(bundle, lexical)
}

// embedAll embeds texts in batches and L2-normalises every vector.
func (s *IndexService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := s.embedding.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed records %d-%d: %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed records %d-%d: got %d vectors", start, end-1, len(batch))
		}
		for _, v := range batch {
			vectors = append(vectors, normalise(v))
		}
	}
	return vectors, nil
}

// Open loads the current generation. A checksum mismatch, misaligned
// artifacts or a different embedding model return domain.ErrStaleIndex.
func (s *IndexService) Open(ctx context.Context) (*driven.Corpus, error) {
	bundle, err := s.bundles.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no index generation built: %w", err)
		}
		return nil, fmt.Errorf("load generation: %w", err)
	}

	if sum := BundleChecksum(bundle); sum != bundle.Checksum {
		return nil, fmt.Errorf("%w: generation %s checksum %s, stored %s",
			domain.ErrStaleIndex, bundle.Generation, shortSum(sum), shortSum(bundle.Checksum))
	}
	if s.embedding != nil && bundle.Dimensions > 0 {
		if bundle.EmbeddingModel != s.embedding.ModelName() || bundle.Dimensions != s.embedding.Dimensions() {
			return nil, fmt.Errorf("%w: generation %s was embedded with %s/%d, configured %s/%d",
				domain.ErrStaleIndex, bundle.Generation, bundle.EmbeddingModel, bundle.Dimensions,
				s.embedding.ModelName(), s.embedding.Dimensions())
		}
	}

	lexical, err := s.factory.OpenLexical(bundle.Lexical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStaleIndex, err)
	}
	return s.corpus(bundle, lexical)
}

// corpus assembles the read side of a generation.
func (s *IndexService) corpus(bundle *domain.IndexBundle, lexical driven.LexicalIndex) (*driven.Corpus, error) {
	if lexical.Len() != len(bundle.Records) {
		return nil, fmt.Errorf("%w: lexical index has %d documents, store has %d",
			domain.ErrStaleIndex, lexical.Len(), len(bundle.Records))
	}

	store, err := s.factory.OpenStore(bundle.Records)
	if err != nil {
		return nil, err
	}

	corpus := &driven.Corpus{
		Generation: bundle.Generation,
		Store:      store,
		Lexical:    lexical,
	}
	if len(bundle.Vectors) > 0 {
		if len(bundle.Vectors) != len(bundle.Records) {
			return nil, fmt.Errorf("%w: %d vectors for %d records",
				domain.ErrStaleIndex, len(bundle.Vectors), len(bundle.Records))
		}
		vectors, err := s.factory.OpenVector(bundle.Vectors, bundle.Dimensions)
		if err != nil {
			return nil, err
		}
		corpus.Vectors = vectors
	}
	return corpus, nil
}

// List describes stored generations, newest first.
func (s *IndexService) List(ctx context.Context) ([]domain.IndexInfo, error) {
	return s.bundles.List(ctx)
}

// BundleChecksum hashes the evidence records (ids, texts, locators and
// metadata), vectors and lexical statistics of a bundle. Maps are hashed in
// key order.
func BundleChecksum(b *domain.IndexBundle) string {
	h := sha256.New()

	writeString(h, b.EmbeddingModel)
	writeInt(h, b.Dimensions)

	writeInt(h, len(b.Records))
	for i := range b.Records {
		writeString(h, b.Records[i].ID)
		writeString(h, string(b.Records[i].Type))
		writeString(h, b.Records[i].RawText)
		writeLocator(h, b.Records[i].Locator)
		writeMetadata(h, b.Records[i].Metadata)
	}

	writeInt(h, len(b.Vectors))
	buf := make([]byte, 4)
	for _, v := range b.Vectors {
		writeInt(h, len(v))
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
			h.Write(buf)
		}
	}

	lex := b.Lexical
	writeInt(h, len(lex.DocLens))
	for _, n := range lex.DocLens {
		writeInt(h, n)
	}
	writeString(h, strconv.FormatFloat(lex.AvgDocLen, 'g', -1, 64))
	writeCounts(h, lex.DocFreq)
	writeInt(h, len(lex.DocTerms))
	for _, terms := range lex.DocTerms {
		writeCounts(h, terms)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h hash.Hash, s string) {
	writeInt(h, len(s))
	h.Write([]byte(s))
}

func writeInt(h hash.Hash, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

func writeLocator(h hash.Hash, loc domain.Locator) {
	writeString(h, loc.SourceFile)
	writeOptInt(h, loc.RowID)
	writeString(h, loc.Field)
	writeInt(h, loc.ChunkIndex)
	writeOptInt(h, loc.CharStart)
	writeOptInt(h, loc.CharEnd)
}

// writeOptInt distinguishes an absent value from zero.
func writeOptInt(h hash.Hash, n *int) {
	if n == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	writeInt(h, *n)
}

func writeMetadata(h hash.Hash, meta map[string]string) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeInt(h, len(keys))
	for _, k := range keys {
		writeString(h, k)
		writeString(h, meta[k])
	}
}

func writeCounts(h hash.Hash, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeInt(h, len(keys))
	for _, k := range keys {
		writeString(h, k)
		writeInt(h, counts[k])
	}
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// normalise returns v scaled to unit length. Zero vectors are returned as is.
func normalise(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

package postprocessors

import (
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/postprocessors/chunker"
	"github.com/Pg1910/clinical-rag/internal/postprocessors/facts"
	"github.com/Pg1910/clinical-rag/internal/postprocessors/turns"
)

// Built-in splitter names.
const (
	Chunker = "chunker"
	Turns   = "turns"
	Facts   = "facts"
)

// RegisterDefaults registers all built-in splitters with the registry.
// Call this during application initialisation to enable standard splitters.
func RegisterDefaults(r *Registry) {
	r.Register(Chunker, buildChunker)
	r.Register(Turns, buildTurns)
	r.Register(Facts, buildFacts)
}

// buildChunker creates a chunker from generic config.
// Supported config keys:
//   - chunk_size (int): Bytes per window (default: 500)
//   - overlap (int): Overlapping bytes between windows (default: 50)
//   - min_chunk (int): Shortest chunk kept (default: 50)
func buildChunker(cfg map[string]any) (driven.Splitter, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	if n, ok := getIntFromConfig(cfg, "min_chunk"); ok {
		opts = append(opts, chunker.WithMinChunk(n))
	}

	return chunker.New(opts...), nil
}

// buildTurns creates a turn segmenter.
// Supported config keys:
//   - min_line_length (int): Line floor of the fallback (default: 20)
func buildTurns(cfg map[string]any) (driven.Splitter, error) {
	var opts []turns.Option
	if n, ok := getIntFromConfig(cfg, "min_line_length"); ok {
		opts = append(opts, turns.WithMinLineLength(n))
	}
	return turns.New(opts...), nil
}

// buildFacts creates a JSON fact flattener.
// Supported config keys:
//   - max_opaque_chars (int): Text kept from a malformed payload (default: 1000)
func buildFacts(cfg map[string]any) (driven.Splitter, error) {
	var opts []facts.Option
	if n, ok := getIntFromConfig(cfg, "max_opaque_chars"); ok {
		opts = append(opts, facts.WithMaxOpaqueChars(n))
	}
	return facts.New(opts...), nil
}

// BuildFieldSplitters configures the per-field splitters from ingest settings.
func BuildFieldSplitters(r *Registry, s domain.IngestSettings) (driven.FieldSplitters, error) {
	var out driven.FieldSplitters
	var err error

	if out.Note, err = r.Build(Chunker, map[string]any{
		"chunk_size": s.NoteWindow,
		"overlap":    s.NoteOverlap,
		"min_chunk":  s.MinChunk,
	}); err != nil {
		return out, err
	}
	if out.FullNote, err = r.Build(Chunker, map[string]any{
		"chunk_size": s.FullNoteWindow,
		"overlap":    s.FullNoteOverlap,
		"min_chunk":  s.MinChunk,
	}); err != nil {
		return out, err
	}
	if out.Conversation, err = r.Build(Turns, map[string]any{
		"min_line_length": s.MinTurnLength,
	}); err != nil {
		return out, err
	}
	if out.Summary, err = r.Build(Facts, map[string]any{
		"max_opaque_chars": s.MaxOpaqueChars,
	}); err != nil {
		return out, err
	}
	return out, nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

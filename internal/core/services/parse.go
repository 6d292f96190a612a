package services

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// ParseKind records how model output was decoded.
type ParseKind int

// Parse outcomes.
const (
	ParseFailed ParseKind = iota
	ParseStrict
	ParseSalvaged
)

func (k ParseKind) String() string {
	switch k {
	case ParseStrict:
		return "parsed"
	case ParseSalvaged:
		return "salvaged"
	default:
		return "failed"
	}
}

// ParseResult is the decoded model output with its raw text.
type ParseResult[T any] struct {
	Kind  ParseKind
	Value T
	Raw   string
	Err   error
}

// OK reports whether a value was decoded.
func (r ParseResult[T]) OK() bool {
	return r.Kind != ParseFailed
}

// SchemaError returns *domain.SchemaValidationError for a failed parse and
// nil otherwise.
func (r ParseResult[T]) SchemaError(schema string) error {
	if r.OK() {
		return nil
	}
	return &domain.SchemaValidationError{Schema: schema, Raw: r.Raw, Err: r.Err}
}

// Parse decodes raw as T. A strict decode is tried first, then the span
// from the first '{' to the last '}' to recover from surrounding prose or
// code fences.
func Parse[T any](raw string) ParseResult[T] {
	res := ParseResult[T]{Raw: raw}

	var strict T
	err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &strict)
	if err == nil {
		res.Kind = ParseStrict
		res.Value = strict
		return res
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		res.Err = errors.Join(errors.New("no JSON object found in output"), err)
		return res
	}

	var salvaged T
	if serr := json.Unmarshal([]byte(raw[start:end+1]), &salvaged); serr != nil {
		res.Err = serr
		return res
	}
	res.Kind = ParseSalvaged
	res.Value = salvaged
	return res
}

// Package rows reads tabular case rows from CSV and JSONL files.
package rows

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Ensure Reader implements the interface.
var _ driven.RowSource = (*Reader)(nil)

// Column aliases, tried in order.
var (
	idColumns           = []string{"idx", "id", "ID"}
	noteColumns         = []string{"note", "Note"}
	fullNoteColumns     = []string{"full_note", "Full_Note", "FullNote"}
	conversationColumns = []string{"conversation", "Conversation", "conv"}
	summaryColumns      = []string{"summary_json", "Summary_JSON", "summary"}
)

// sniffBytes is how much of a CSV file is inspected to pick the delimiter.
const sniffBytes = 4096

// Reader parses case rows. Files ending in .jsonl hold one JSON object per
// line; anything else is read as delimited text with a header row.
type Reader struct{}

// NewReader creates a row reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadRows parses every row in the file. Lines that cannot be parsed are
// reported as skips, keyed by their zero-based position.
func (r *Reader) ReadRows(ctx context.Context, path string) ([]domain.SourceRow, []domain.IngestSkip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open rows: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return readJSONL(ctx, f)
	}
	return readCSV(ctx, f)
}

func readJSONL(ctx context.Context, src io.Reader) ([]domain.SourceRow, []domain.IngestSkip, error) {
	var (
		rows  []domain.SourceRow
		skips []domain.IngestSkip
	)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	position := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			logger.Warn("rows: line %d: invalid JSON: %v", position, err)
			skips = append(skips, domain.IngestSkip{RowID: position, Error: err.Error()})
			position++
			continue
		}

		values := make(map[string]string, len(fields))
		for k, v := range fields {
			values[k] = stringify(v)
		}
		rows = append(rows, buildRow(values, position))
		position++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read jsonl: %w", err)
	}
	return rows, skips, nil
}

func readCSV(ctx context.Context, src io.Reader) ([]domain.SourceRow, []domain.IngestSkip, error) {
	br := bufio.NewReader(src)
	sample, _ := br.Peek(sniffBytes)

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(sample)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var (
		rows  []domain.SourceRow
		skips []domain.IngestSkip
	)
	for position := 0; ; position++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("rows: record %d: %v", position, err)
			skips = append(skips, domain.IngestSkip{RowID: position, Error: err.Error()})
			continue
		}

		values := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				values[name] = record[i]
			}
		}
		rows = append(rows, buildRow(values, position))
	}
	return rows, skips, nil
}

// buildRow maps aliased columns onto a row. The row id comes from the first
// id column present; a missing or non-integer id falls back to position.
func buildRow(values map[string]string, position int) domain.SourceRow {
	id := position
	if raw, ok := lookup(values, idColumns); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			logger.Warn("rows: row %d: invalid id %q, using row number", position, raw)
		} else {
			id = parsed
		}
	}

	field := func(aliases []string) string {
		v, _ := lookup(values, aliases)
		return strings.TrimSpace(v)
	}
	return domain.SourceRow{
		ID:           id,
		Note:         field(noteColumns),
		FullNote:     field(fullNoteColumns),
		Conversation: field(conversationColumns),
		Summary:      field(summaryColumns),
	}
}

// lookup returns the first alias present with a non-empty value.
func lookup(values map[string]string, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := values[alias]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// stringify renders a decoded JSON value as column text. Objects and arrays
// are re-encoded so an inline summary object reads like a JSON string column.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// sniffDelimiter picks the most frequent candidate delimiter in the header line.
func sniffDelimiter(sample []byte) rune {
	header := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		header = sample[:i]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{',', '\t', ';', '|'} {
		if n := bytes.Count(header, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

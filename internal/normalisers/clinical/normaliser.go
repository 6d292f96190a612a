// Package clinical parses directories of line-oriented clinical files
// (patient narrative, labs, monitor stream with its codebook, domain notes
// and an optional flowsheet) into evidence records.
package clinical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.CorpusNormaliser = (*Normaliser)(nil)

// Normaliser locates corpus files by name keyword and parses them.
type Normaliser struct{}

// New creates a clinical corpus normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Normalise parses every recognised file under dir. Records are returned
// in narrative, codebook, monitor, lab, domain, flowsheet order.
func (n *Normaliser) Normalise(ctx context.Context, dir string) ([]domain.EvidenceRecord, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	patient, err := findFile(files, nil, "patient")
	if err != nil {
		return nil, err
	}
	codes, err := findFile(files, nil, "monitor", "code")
	if err != nil {
		return nil, err
	}
	samples, err := findFile(files, nil, "monitor", "data")
	if err != nil {
		return nil, err
	}
	labs, err := findFile(files, []string{"flowsheet"}, "lab")
	if err != nil {
		return nil, err
	}
	notes, err := findFile(files, nil, "domain")
	if err != nil {
		return nil, err
	}
	flowsheet, _ := findFile(files, nil, "flowsheet")

	read := func(name string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}

	var out []domain.EvidenceRecord

	text, err := read(patient)
	if err != nil {
		return nil, err
	}
	out = append(out, ParseNarrative(text, patient)...)

	text, err = read(codes)
	if err != nil {
		return nil, err
	}
	codebookRecs, codebook := ParseCodebook(text, codes)
	out = append(out, codebookRecs...)

	text, err = read(samples)
	if err != nil {
		return nil, err
	}
	out = append(out, ParseMonitor(text, samples, codebook)...)

	text, err = read(labs)
	if err != nil {
		return nil, err
	}
	out = append(out, ParseLabs(text, labs)...)

	text, err = read(notes)
	if err != nil {
		return nil, err
	}
	out = append(out, ParseDomain(text, notes)...)

	if flowsheet != "" {
		text, err = read(flowsheet)
		if err != nil {
			return nil, err
		}
		out = append(out, ParseFlowsheet(text, flowsheet)...)
	}

	return out, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// findFile returns the first name containing every keyword and none of the
// excluded words, compared case-insensitively.
func findFile(names, exclude []string, keywords ...string) (string, error) {
	for _, name := range names {
		lower := strings.ToLower(name)
		if containsAll(lower, keywords) && !containsAny(lower, exclude) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no file matching %v", domain.ErrNotFound, keywords)
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

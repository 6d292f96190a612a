package clinical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

var (
	labLinePattern      = regexp.MustCompile(`^\s*(\d{2}/\d{2}/\d{2})\s+(\d{2}:\d{2})\s+([A-Za-z0-9_]+)\s+([-0-9.]+)\s*$`)
	monitorLinePattern  = regexp.MustCompile(`^\s*(\d{2}:\d{2}:\d{2})\s+(\d+)\s+([-0-9.]+)\s*$`)
	codebookLinePattern = regexp.MustCompile(`^\s*(\d+)\s+(.+?)\s*$`)
	unitPattern         = regexp.MustCompile(`\(([^)]+)\)`)
)

// labTimeLayout matches lab timestamps such as "03/14/21 06:30".
const labTimeLayout = "01/02/06 15:04"

// CodebookEntry names a monitor signal code.
type CodebookEntry struct {
	Name string
	Unit string
}

// newRecord builds a line-oriented record. n is the one-based counter.
func newRecord(t domain.EvidenceType, n int, file, text string, lineStart, lineEnd int) domain.EvidenceRecord {
	return domain.EvidenceRecord{
		ID:      domain.FormatLegacyID(t, n),
		Type:    t,
		RawText: text,
		Locator: domain.Locator{
			SourceFile: file,
			Field:      t.String(),
			ChunkIndex: n - 1,
		},
		Metadata: map[string]string{
			"line_start": strconv.Itoa(lineStart),
			"line_end":   strconv.Itoa(lineEnd),
		},
	}
}

// ParseNarrative emits one record per non-blank line.
func ParseNarrative(text, file string) []domain.EvidenceRecord {
	var recs []domain.EvidenceRecord
	for i, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		recs = append(recs, newRecord(domain.EvidenceNarrative, len(recs)+1, file, line, i+1, i+1))
	}
	return recs
}

// ParseDomain emits one record per blank-line separated paragraph.
// The first paragraph carries a title.
func ParseDomain(text, file string) []domain.EvidenceRecord {
	var recs []domain.EvidenceRecord
	var buf []string
	start := 0

	flush := func(end int) {
		para := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = nil
		if para == "" {
			return
		}
		rec := newRecord(domain.EvidenceDomain, len(recs)+1, file, para, start, end)
		if len(recs) == 0 {
			title := strings.SplitN(para, "\n", 2)[0]
			if len(title) > 120 {
				title = title[:120]
			}
			rec.Metadata["title"] = title
		}
		recs = append(recs, rec)
	}

	lines := splitLines(text)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(buf) > 0 {
				flush(i)
			}
			continue
		}
		if len(buf) == 0 {
			start = i + 1
		}
		buf = append(buf, line)
	}
	if len(buf) > 0 {
		flush(len(lines))
	}
	return recs
}

// ParseCodebook reads "code  description" lines. Indented lines continue
// the previous entry. The unit is the last parenthesised group.
func ParseCodebook(text, file string) ([]domain.EvidenceRecord, map[int]CodebookEntry) {
	var recs []domain.EvidenceRecord
	entries := make(map[int]CodebookEntry)
	var pending *domain.EvidenceRecord

	push := func() {
		if pending != nil {
			recs = append(recs, *pending)
			pending = nil
		}
	}

	for i, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indented := strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "  ")
		m := codebookLinePattern.FindStringSubmatch(line)
		if m == nil || indented {
			if pending != nil {
				pending.RawText += "\n" + line
				pending.Metadata["line_end"] = strconv.Itoa(i + 1)
			}
			continue
		}

		push()
		code, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		unit := ""
		if units := unitPattern.FindAllStringSubmatch(name, -1); len(units) > 0 {
			unit = strings.TrimSpace(units[len(units)-1][1])
		}
		entries[code] = CodebookEntry{Name: name, Unit: unit}

		rec := newRecord(domain.EvidenceCodebook, len(recs)+1, file, line, i+1, i+1)
		rec.Metadata["code"] = m[1]
		rec.Metadata["name"] = name
		if unit != "" {
			rec.Metadata["unit"] = unit
		}
		pending = &rec
	}
	push()
	return recs, entries
}

// ParseMonitor reads "HH:MM:SS code value" samples and joins each with its
// codebook entry. The signal name is appended to the text so that samples
// are searchable by name.
func ParseMonitor(text, file string, codebook map[int]CodebookEntry) []domain.EvidenceRecord {
	var recs []domain.EvidenceRecord
	for i, line := range splitLines(text) {
		m := monitorLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		raw := strings.TrimRight(line, " \t")
		entry, known := codebook[code]
		if known {
			raw = fmt.Sprintf("%s | %s", raw, entry.Name)
		}

		rec := newRecord(domain.EvidenceMonitor, len(recs)+1, file, raw, i+1, i+1)
		rec.Metadata["t"] = m[1]
		rec.Metadata["code"] = m[2]
		rec.Metadata["value"] = m[3]
		if known {
			rec.Metadata["name"] = entry.Name
			if entry.Unit != "" {
				rec.Metadata["unit"] = entry.Unit
			}
		}
		recs = append(recs, rec)
	}
	return recs
}

// ParseLabs reads "MM/DD/YY HH:MM TEST value" lines. Lines with an invalid
// timestamp are skipped.
func ParseLabs(text, file string) []domain.EvidenceRecord {
	return parseLabLines(domain.EvidenceLab, text, file)
}

// ParseFlowsheet reads flowsheet lines, which share the lab layout.
func ParseFlowsheet(text, file string) []domain.EvidenceRecord {
	return parseLabLines(domain.EvidenceFlowsheet, text, file)
}

func parseLabLines(t domain.EvidenceType, text, file string) []domain.EvidenceRecord {
	var recs []domain.EvidenceRecord
	for i, line := range splitLines(text) {
		m := labLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		at, err := time.Parse(labTimeLayout, m[1]+" "+m[2])
		if err != nil {
			continue
		}

		rec := newRecord(t, len(recs)+1, file, strings.TrimRight(line, " \t"), i+1, i+1)
		rec.Metadata["time"] = at.Format(time.RFC3339)
		rec.Metadata["test"] = m[3]
		rec.Metadata["value"] = m[4]
		recs = append(recs, rec)
	}
	return recs
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

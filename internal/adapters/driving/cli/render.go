package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// printer writes styled, width-aware output for one command.
type printer struct {
	w      io.Writer
	styles *Styles
	width  int
}

func newPrinter(cmd *cobra.Command) *printer {
	w := cmd.OutOrStdout()
	return &printer{w: w, styles: NewStyles(w, nil), width: terminalWidth(w)}
}

func (p *printer) println(a ...any) {
	fmt.Fprintln(p.w, a...)
}

func (p *printer) printf(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

func (p *printer) title(s string) {
	p.println(p.styles.Title.Render(s))
}

func (p *printer) section(s string) {
	p.println()
	p.println(p.styles.Subtitle.Render(s))
}

// cite renders evidence ids as a muted bracketed list.
func (p *printer) cite(ids []string) string {
	if len(ids) == 0 {
		return p.styles.Error.Render("[uncited]")
	}
	return p.styles.Muted.Render("[" + strings.Join(ids, ", ") + "]")
}

// clip shortens s to the terminal width minus indent.
func (p *printer) clip(s string, indent int) string {
	s = strings.Join(strings.Fields(s), " ")
	limit := p.width - indent
	if limit < 20 {
		limit = 20
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func renderResults(p *printer, results []domain.RetrievalResult) {
	if len(results) == 0 {
		p.println("No results found.")
		return
	}

	p.title("Results:")
	p.println()
	for i, r := range results {
		p.printf("  [%d] %s (%.3f)\n", i+1, r.EvidenceID, r.Score)
		p.printf("      %s\n", p.clip(r.Text, 6))
	}
}

func renderPack(p *printer, pack domain.EvidencePack) {
	p.title(fmt.Sprintf("%s pack", pack.Section.Description()))
	if pack.Query != "" {
		p.printf("Query: %s\n", pack.Query)
	}
	p.println()
	renderResults(p, pack.Results)
	if pack.Template != "" {
		p.section("Template")
		p.println(pack.Template)
	}
}

func renderFacts(p *printer, facts []domain.Fact) {
	if len(facts) == 0 {
		p.println(p.styles.Muted.Render("  (none)"))
		return
	}
	for _, f := range facts {
		text := f.Label
		if f.Value != "" {
			text += ": " + f.Value
		}
		p.printf("  - %s %s\n", text, p.cite(f.EvidenceIDs))
	}
}

func renderSOAP(p *printer, soap domain.SOAPContext, missing map[domain.Section][]string) {
	label := domain.CaseRequest{RowID: soap.RowID}.Label()
	p.title(fmt.Sprintf("SOAP context (%s, %d facts)", label, soap.Len()))
	for _, s := range domain.AllSections() {
		p.section(s.Description())
		renderFacts(p, soap.Facts(s))
		if slots := missing[s]; len(slots) > 0 {
			p.println(p.styles.Warning.Render("  missing: " + strings.Join(slots, ", ")))
		}
	}
}

func renderBullets(p *printer, bullets []domain.SummaryBullet) {
	for _, b := range bullets {
		p.printf("  - %s %s\n", b.Text, p.cite(b.EvidenceIDs))
	}
}

func renderReport(p *printer, result *domain.CaseResult) {
	report := result.Report
	p.title(fmt.Sprintf("Case %s (run %s)", result.Request.Label(), result.RunID))

	p.section("Summary")
	if len(report.Summary) == 0 {
		p.println(p.styles.Muted.Render("  (none)"))
	}
	renderBullets(p, report.Summary)

	p.section("Differential")
	if len(report.Differential) == 0 {
		p.println(p.styles.Muted.Render("  (none)"))
	}
	for i, d := range report.Differential {
		p.printf("  %d. %s (%s)\n", i+1, d.Diagnosis, d.Confidence)
		for _, f := range d.Support {
			p.printf("     + %s %s\n", factText(f), p.cite(f.EvidenceIDs))
		}
		for _, f := range d.Against {
			p.printf("     - %s %s\n", factText(f), p.cite(f.EvidenceIDs))
		}
		if len(d.Missing) > 0 {
			p.printf("     ? %s\n", strings.Join(d.Missing, "; "))
		}
	}

	if len(report.ClarifyingQuestions) > 0 {
		p.section("Clarifying questions")
		for _, q := range report.ClarifyingQuestions {
			p.printf("  - [%s] %s %s\n", q.Priority, q.Question, p.cite(q.EvidenceIDs))
		}
	}

	if len(report.ActionItems) > 0 {
		p.section("Action items")
		for _, a := range report.ActionItems {
			p.printf("  - [%s] %s %s\n", a.Priority, a.Item, p.cite(a.EvidenceIDs))
		}
	}

	if len(report.Limitations) > 0 {
		p.section("Limitations")
		for _, l := range report.Limitations {
			p.println(p.styles.Warning.Render("  - " + l))
		}
	}

	if len(result.Notes) > 0 {
		p.section("Notes")
		for _, n := range result.Notes {
			p.printf("  - %s\n", n)
		}
	}

	p.println()
	renderQuality(p, result.Quality)
}

func factText(f domain.Fact) string {
	if f.Value == "" || strings.EqualFold(f.Value, f.Label) {
		return f.Label
	}
	return f.Label + ": " + f.Value
}

func renderQuality(p *printer, q domain.QualityGateResult) {
	status := p.styles.Success.Render("PASSED")
	if !q.Passed {
		status = p.styles.Error.Render("FAILED")
	}
	p.printf("Quality gate: %s (score %d)\n", status, q.Score)
	for _, e := range q.Errors {
		p.println(p.styles.Error.Render("  error: " + e))
	}
	for _, w := range q.Warnings {
		p.println(p.styles.Warning.Render("  warning: " + w))
	}
}

func renderBatch(p *printer, batch *domain.BatchResult) {
	p.title(fmt.Sprintf("Batch %s", batch.BatchID))
	p.printf("Completed: %d  Failed: %d  Elapsed: %s\n",
		len(batch.Completed), len(batch.Failed), batch.FinishedAt.Sub(batch.StartedAt).Round(time.Millisecond))

	if len(batch.Completed) > 0 {
		p.println()
		passed := 0
		for _, r := range batch.Completed {
			status := p.styles.Success.Render("pass")
			if r.Quality.Passed {
				passed++
			} else {
				status = p.styles.Error.Render("fail")
			}
			p.printf("  %-10s score %3d  %s  %d diagnoses\n",
				r.Request.Label(), r.Quality.Score, status, len(r.Report.Differential))
		}
		p.printf("Quality gate passed: %d/%d\n", passed, len(batch.Completed))
	}

	if len(batch.Failed) > 0 {
		p.section("Failures")
		for _, f := range batch.Failed {
			p.println(p.styles.Error.Render(fmt.Sprintf("  %-10s %s", f.Request.Label(), f.Error)))
		}
	}
}

func renderIngest(p *printer, records []domain.EvidenceRecord, report *domain.IngestReport) {
	counts := make(map[string]int)
	for _, r := range records {
		counts[domain.PrefixOf(r.ID)]++
	}
	prefixes := make([]string, 0, len(counts))
	for prefix := range counts {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	if report != nil {
		p.printf("Ingested %d records from %d rows (%d skipped)\n", len(records), report.Rows, len(report.Skipped))
	} else {
		p.printf("Ingested %d records\n", len(records))
	}
	for _, prefix := range prefixes {
		p.printf("  %-3s %d\n", prefix, counts[prefix])
	}
	if report != nil {
		for _, skip := range report.Skipped {
			p.println(p.styles.Warning.Render(fmt.Sprintf("  skipped row %d: %s", skip.RowID, skip.Error)))
		}
	}
}

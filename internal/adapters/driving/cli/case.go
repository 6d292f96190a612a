package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

var (
	caseRow   int
	caseQuery string
	caseJSON  bool
	caseDraft bool
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Generate and score a report for one case",
	Long: `Runs the case pipeline: SOAP context, patient state extraction, ICU
summary, differential diagnosis, cleanup, composition, citation validation
and the quality gate.

Generation stages fall back to deterministic output when no LLM is
configured or a stage fails; each fallback is listed under Limitations.
A report citing unknown or background evidence is rejected.

Use --draft to print the evidence-filtered SOAP draft without a report.`,
	Args: cobra.NoArgs,
	RunE: runCase,
}

func init() {
	caseCmd.Flags().IntVar(&caseRow, "row", 0, "source row of the case (omit for whole-corpus cases)")
	caseCmd.Flags().StringVarP(&caseQuery, "query", "q", "", "query seeding every section pack")
	caseCmd.Flags().BoolVar(&caseJSON, "json", false, "output the full result as JSON")
	caseCmd.Flags().BoolVar(&caseDraft, "draft", false, "print the SOAP draft only")
	rootCmd.AddCommand(caseCmd)
}

func runCase(cmd *cobra.Command, _ []string) error {
	if caseService == nil {
		return errors.New("case service not configured")
	}

	corpus, err := openCorpus(cmd)
	if err != nil {
		return err
	}
	req := domain.CaseRequest{RowID: rowFlag(cmd, caseRow), Query: caseQuery}

	if caseDraft {
		draft, err := caseService.Draft(cmd.Context(), corpus, req)
		if err != nil {
			return fmt.Errorf("draft failed: %w", err)
		}
		if caseJSON {
			return printJSON(cmd, draft)
		}
		renderSOAP(newPrinter(cmd), draft, nil)
		return nil
	}

	result, err := caseService.Run(cmd.Context(), corpus, req)
	if err != nil {
		var integrity *domain.EvidenceIntegrityError
		if errors.As(err, &integrity) {
			p := newPrinter(cmd)
			for _, v := range integrity.Violations {
				p.println(p.styles.Error.Render(fmt.Sprintf("  %s: %s %s", v.Path, v.Reason, v.EvidenceID)))
			}
		}
		return fmt.Errorf("case %s failed: %w", req.Label(), err)
	}

	if caseJSON {
		return printJSON(cmd, result)
	}

	renderReport(newPrinter(cmd), result)
	return nil
}

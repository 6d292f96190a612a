package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

var (
	batchRows  []int
	batchQuery string
	batchJSON  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the case pipeline over many cases",
	Long: `Runs cases concurrently on a fixed worker pool (batch.workers).
A failing case is recorded and the batch continues. Without --rows every
source row in the current generation is processed; a corpus without rows
runs as a single case.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntSliceVar(&batchRows, "rows", nil, "source rows to process (default: all)")
	batchCmd.Flags().StringVarP(&batchQuery, "query", "q", "", "query seeding every section pack")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "output the batch result as JSON")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if batchService == nil {
		return errors.New("batch service not configured")
	}

	corpus, err := openCorpus(cmd)
	if err != nil {
		return err
	}

	rows := batchRows
	if len(rows) == 0 {
		rows = corpusRows(corpus)
	}

	var reqs []domain.CaseRequest
	for _, row := range rows {
		reqs = append(reqs, domain.CaseRequest{RowID: &row, Query: batchQuery})
	}
	if len(reqs) == 0 {
		reqs = []domain.CaseRequest{{Query: batchQuery}}
	}

	batch, err := batchService.Run(cmd.Context(), corpus, reqs)
	if err != nil && batch == nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	if batchJSON {
		if jsonErr := printJSON(cmd, batch); jsonErr != nil {
			return jsonErr
		}
	} else {
		renderBatch(newPrinter(cmd), batch)
	}

	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

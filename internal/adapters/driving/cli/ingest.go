package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var ingestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Parse a corpus into evidence records",
	Long: `Parses a CSV or JSONL case file, or a directory of legacy clinical files,
into citable evidence records without indexing them.

Tabular rows yield row-scoped ids (CS_12_0, CN_12_0, CF_12_0, CV_12_0).
Legacy directories yield narrative, lab, monitor, flowsheet, domain and
codebook records (N000001, L000001, ...). Use 'copilot index build' to
persist a searchable generation.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output records as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	records, report, err := loadRecords(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal records: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	renderIngest(newPrinter(cmd), records, report)
	return nil
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

var (
	soapRow     int
	soapSection string
	soapQuery   string
	soapLimit   int
	soapJSON    bool
)

var soapCmd = &cobra.Command{
	Use:   "soap",
	Short: "Show SOAP context or a section evidence pack",
	Long: `Without --section, classifies the case's evidence into Subjective,
Objective, Assessment and Plan facts and lists the slots still missing.

With --section, runs a section-scoped search and prints the reranked pack
that a generation call for that section would receive.

Examples:
  copilot soap --row 12
  copilot soap --row 12 --section O --query "ventilator settings"`,
	Args: cobra.NoArgs,
	RunE: runSOAP,
}

func init() {
	soapCmd.Flags().IntVar(&soapRow, "row", 0, "source row of the case (omit for whole-corpus cases)")
	soapCmd.Flags().StringVarP(&soapSection, "section", "s", "", "section to search: S, O, A or P")
	soapCmd.Flags().StringVarP(&soapQuery, "query", "q", "", "query for the section search")
	soapCmd.Flags().IntVarP(&soapLimit, "limit", "n", 8, "maximum pack size")
	soapCmd.Flags().BoolVar(&soapJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(soapCmd)
}

func runSOAP(cmd *cobra.Command, _ []string) error {
	if soapService == nil {
		return errors.New("SOAP service not configured")
	}

	corpus, err := openCorpus(cmd)
	if err != nil {
		return err
	}
	rowID := rowFlag(cmd, soapRow)

	if soapSection != "" {
		section, err := domain.ParseSection(soapSection)
		if err != nil {
			return err
		}
		pack, err := soapService.SectionSearch(cmd.Context(), corpus, section, soapQuery, rowID, soapLimit)
		if err != nil {
			return fmt.Errorf("section search failed: %w", err)
		}
		if soapJSON {
			return printJSON(cmd, pack)
		}
		renderPack(newPrinter(cmd), pack)
		return nil
	}

	soap, err := soapService.BuildGlobalContext(cmd.Context(), corpus, rowID)
	if err != nil {
		return fmt.Errorf("failed to build SOAP context: %w", err)
	}
	missing := soapService.MissingSlots(soap)

	if soapJSON {
		return printJSON(cmd, struct {
			Context domain.SOAPContext          `json:"context"`
			Missing map[domain.Section][]string `json:"missing"`
		}{soap, missing})
	}

	renderSOAP(newPrinter(cmd), soap, missing)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

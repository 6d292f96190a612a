package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexListJSON bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect index generations",
	Long: `Each build ingests a corpus and saves the evidence store, BM25 statistics
and embeddings as one checksummed generation. Readers always open the newest
complete generation.`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Ingest a corpus and save a new generation",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexBuild,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored generations",
	RunE:  runIndexList,
}

func init() {
	indexListCmd.Flags().BoolVar(&indexListJSON, "json", false, "output generations as JSON")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexListCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	records, report, err := loadRecords(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	corpus, err := indexService.Build(cmd.Context(), records)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	p := newPrinter(cmd)
	renderIngest(p, records, report)
	mode := "lexical only"
	if corpus.Vectors != nil {
		mode = fmt.Sprintf("lexical + %d-dim vectors", corpus.Vectors.Dimensions())
	}
	p.printf("Built generation %s (%d records, %s)\n", corpus.Generation, corpus.Len(), mode)
	return nil
}

func runIndexList(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	infos, err := indexService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list generations: %w", err)
	}

	if indexListJSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal generations: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(infos) == 0 {
		cmd.Println("No generations built.")
		return nil
	}

	for i, info := range infos {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		model := info.EmbeddingModel
		if info.Dimensions == 0 {
			model = "lexical only"
		}
		cmd.Printf("%s %s  %s  %6d records  %s  %s\n",
			marker, info.Generation, info.CreatedAt.Format("2006-01-02 15:04:05"),
			info.Records, model, shortChecksum(info.Checksum))
	}
	return nil
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

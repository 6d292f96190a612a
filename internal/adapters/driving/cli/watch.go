package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/adapters/driving/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rebuild the index whenever the corpus changes",
	Long: `Builds a generation from path, then watches the file or directory and
saves a new generation after each change settles. A failed rebuild keeps the
previous generation current.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a rebuild")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	path := args[0]

	rebuild := func(ctx context.Context) error {
		records, _, err := loadRecords(ctx, path)
		if err != nil {
			return err
		}
		corpus, err := indexService.Build(ctx, records)
		if err != nil {
			return err
		}
		cmd.Printf("Built generation %s (%d records)\n", corpus.Generation, corpus.Len())
		return nil
	}

	if err := rebuild(cmd.Context()); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	w := watcher.New(path, rebuild, watcher.WithDebounce(watchDebounce))
	defer w.Close()

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", path)
	return w.Run(cmd.Context())
}

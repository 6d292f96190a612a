// Package cli implements the copilot command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// annotationNoServices marks commands that run without wired services.
const annotationNoServices = "no-services"

// version is set at build time via SetVersion.
var version = "dev"

// Options holds the global flags handed to the setup hook.
type Options struct {
	// NoConfig ignores the config file and uses built-in defaults.
	NoConfig bool

	// Verbose enables debug logging.
	Verbose bool

	// JSONLogs switches log output to JSON lines.
	JSONLogs bool

	// DataDir overrides the configured index database directory.
	DataDir string
}

// Services holds the ports the commands call.
type Services struct {
	Settings  driving.SettingsService
	Ingest    driving.IngestService
	Index     driving.IndexService
	Retrieval driving.RetrievalService
	SOAP      driving.SOAPService
	Cases     driving.CaseService
	Batch     driving.BatchService
	Rules     driven.RuleStore
}

// SetupFunc wires services for one invocation. The returned cleanup
// releases them after the command finishes.
type SetupFunc func(opts Options) (*Services, func(), error)

var (
	opts     Options
	setup    SetupFunc
	teardown func()
)

var (
	settingsService  driving.SettingsService
	ingestService    driving.IngestService
	indexService     driving.IndexService
	retrievalService driving.RetrievalService
	soapService      driving.SOAPService
	caseService      driving.CaseService
	batchService     driving.BatchService
	ruleStore        driven.RuleStore
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Evidence-grounded ICU note copilot",
	Long: `copilot turns ICU case notes into cited SOAP context, differential
diagnoses and follow-up items. Every generated statement cites the evidence
records it was derived from; uncited or unresolvable claims are rejected.

Typical workflow:
  copilot index build cases.csv     # ingest and index a corpus
  copilot search "rising INR"        # inspect retrieval
  copilot case --row 12              # generate and score one report
  copilot batch                      # run every case in the corpus`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&opts.NoConfig, "no-config", false, "ignore the config file and use built-in defaults")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.JSONLogs, "log-json", false, "write logs as JSON lines")
	rootCmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "index database directory (overrides data.dir)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetSetup registers the hook that wires services before each command.
func SetSetup(fn SetupFunc) {
	setup = fn
}

// SetServices installs services directly.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	settingsService = s.Settings
	ingestService = s.Ingest
	indexService = s.Index
	retrievalService = s.Retrieval
	soapService = s.SOAP
	caseService = s.Cases
	batchService = s.Batch
	ruleStore = s.Rules
}

// Execute runs the root command and releases services afterwards.
func Execute(ctx context.Context) error {
	defer closeServices()
	return rootCmd.ExecuteContext(ctx)
}

func initServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(opts.Verbose)
	logger.SetJSON(opts.JSONLogs)

	if setup == nil || cmd.Annotations[annotationNoServices] == "true" {
		return nil
	}

	svcs, cleanup, err := setup(opts)
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}
	SetServices(svcs)
	teardown = cleanup
	return nil
}

func closeServices() {
	if teardown != nil {
		teardown()
		teardown = nil
	}
}

// openCorpus loads the current index generation.
func openCorpus(cmd *cobra.Command) (*driven.Corpus, error) {
	if indexService == nil {
		return nil, errors.New("index service not configured")
	}

	corpus, err := indexService.Open(cmd.Context())
	switch {
	case err == nil:
		return corpus, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%w\nRun 'copilot index build <path>' first", err)
	case errors.Is(err, domain.ErrStaleIndex):
		return nil, fmt.Errorf("%w\nRebuild with 'copilot index build <path>'", err)
	default:
		return nil, err
	}
}

// rowFlag returns a pointer to the --row value when the flag was given.
func rowFlag(cmd *cobra.Command, value int) *int {
	if !cmd.Flags().Changed("row") {
		return nil
	}
	return &value
}

// loadRecords ingests a tabular file or a legacy directory.
func loadRecords(ctx context.Context, path string) ([]domain.EvidenceRecord, *domain.IngestReport, error) {
	if ingestService == nil {
		return nil, nil, errors.New("ingest service not configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if info.IsDir() {
		records, err := ingestService.IngestLegacyDir(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return records, nil, nil
	}

	report, err := ingestService.IngestFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return report.Records, report, nil
}

// corpusRows returns the distinct source rows of a corpus in ascending order.
func corpusRows(corpus *driven.Corpus) []int {
	seen := make(map[int]bool)
	var rows []int
	for _, rec := range corpus.Store.All() {
		if rec.Locator.RowID == nil || seen[*rec.Locator.RowID] {
			continue
		}
		seen[*rec.Locator.RowID] = true
		rows = append(rows, *rec.Locator.RowID)
	}
	sort.Ints(rows)
	return rows
}

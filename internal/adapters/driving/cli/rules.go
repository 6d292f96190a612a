package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pg1910/clinical-rag/internal/adapters/driven/config/file"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the clinical rule tables",
	Long: `The rule tables drive section routing, rerank boosts, organ-system
categories, weak-support filters, overlap checks and fallback questions.
An override file set with 'settings set rules.path' replaces the built-in
tables key by key.`,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active rules as YAML",
	Long:  `Print the active rules as YAML. The output is a valid override file.`,
	Args:  cobra.NoArgs,
	RunE:  runRulesShow,
}

var rulesValidateCmd = &cobra.Command{
	Use:         "validate [path]",
	Short:       "Check a rules override file",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationNoServices: "true"},
	RunE:        runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesShow(cmd *cobra.Command, _ []string) error {
	if ruleStore == nil {
		return errors.New("rule store not configured")
	}

	rules, err := ruleStore.Rules()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if path := ruleStore.Path(); path != "" {
		cmd.Printf("# overrides from %s\n", path)
	}
	return file.WriteRules(cmd.OutOrStdout(), rules)
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	rules, err := file.NewRuleStore(args[0]).Rules()
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	cmd.Printf("%s is valid: %d sections, %d categories, %d questions\n",
		args[0], len(rules.Sections), len(rules.Categories), len(rules.Questions))
	return nil
}

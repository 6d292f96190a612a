package driven

import "github.com/Pg1910/clinical-rag/internal/core/domain"

// RuleStore provides the declarative rule tables.
type RuleStore interface {
	// Rules returns the active rule set.
	Rules() (domain.RuleSet, error)

	// Path returns the override file path, or empty when using built-in rules.
	Path() string
}

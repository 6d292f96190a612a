package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure RuleStore implements the interface.
var _ driven.RuleStore = (*RuleStore)(nil)

// RuleStore serves the declarative rule tables.
// Without a path it returns the built-in tables. With a path, the YAML file
// is decoded over the built-in tables, so an override file only needs the
// top-level keys it changes; a listed key replaces the built-in list whole.
type RuleStore struct {
	path string

	once  sync.Once
	rules domain.RuleSet
	err   error
}

// NewRuleStore creates a rule store. An empty path uses built-in rules.
func NewRuleStore(path string) *RuleStore {
	return &RuleStore{path: path}
}

// Rules returns the active rule set. The file is read once.
func (s *RuleStore) Rules() (domain.RuleSet, error) {
	s.once.Do(func() {
		s.rules, s.err = s.load()
	})
	return s.rules, s.err
}

// Path returns the override file path, or empty when using built-in rules.
func (s *RuleStore) Path() string {
	return s.path
}

func (s *RuleStore) load() (domain.RuleSet, error) {
	rules := domain.DefaultRuleSet()
	if s.path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("read rules %s: %w", s.path, err)
	}
	if err := overlayRules(&rules, data); err != nil {
		return domain.RuleSet{}, fmt.Errorf("parse rules %s: %w", s.path, err)
	}
	if err := ValidateRules(rules); err != nil {
		return domain.RuleSet{}, fmt.Errorf("rules %s: %w", s.path, err)
	}
	return rules, nil
}

// overlayRules replaces each top-level field of rules that the document sets.
func overlayRules(rules *domain.RuleSet, data []byte) error {
	var override domain.RuleSet
	if err := yaml.UnmarshalWithOptions(data, &override, yaml.DisallowUnknownField()); err != nil {
		return err
	}
	var present map[string]any
	if err := yaml.Unmarshal(data, &present); err != nil {
		return err
	}

	dst := reflect.ValueOf(rules).Elem()
	src := reflect.ValueOf(override)
	for i := 0; i < dst.NumField(); i++ {
		key, _, _ := strings.Cut(dst.Type().Field(i).Tag.Get("yaml"), ",")
		if _, ok := present[key]; ok {
			dst.Field(i).Set(src.Field(i))
		}
	}
	return nil
}

// ValidateRules checks enum values and multipliers of a rule set.
func ValidateRules(rules domain.RuleSet) error {
	var errs []error

	seen := make(map[domain.Section]bool)
	for _, rule := range rules.Sections {
		if !rule.Section.IsValid() {
			errs = append(errs, fmt.Errorf("unknown section %q", rule.Section))
			continue
		}
		if seen[rule.Section] {
			errs = append(errs, fmt.Errorf("section %s listed twice", rule.Section))
		}
		seen[rule.Section] = true
		if rule.PackSize < 0 || rule.ContextCap < 0 {
			errs = append(errs, fmt.Errorf("section %s: negative size", rule.Section))
		}
	}

	for _, rule := range rules.Categories {
		if !rule.Category.IsValid() {
			errs = append(errs, fmt.Errorf("unknown category %q", rule.Category))
		}
		for _, action := range rule.Actions {
			if !action.Priority.IsValid() {
				errs = append(errs, fmt.Errorf("category %s: unknown priority %q", rule.Category, action.Priority))
			}
		}
	}

	for _, q := range rules.Questions {
		if q.Category != "" && !q.Category.IsValid() {
			errs = append(errs, fmt.Errorf("question %s: unknown category %q", q.Key, q.Category))
		}
	}

	r := rules.Rerank
	if r.PrefixBoost <= 0 || r.NumericBoost <= 0 || r.BackgroundPenalty < 0 {
		errs = append(errs, errors.New("rerank multipliers must be positive"))
	}
	if r.KeywordStep < 0 || r.KeywordCap < 0 || r.NumericMin < 0 || r.ExpansionTerms < 0 {
		errs = append(errs, errors.New("rerank counts must not be negative"))
	}

	return errors.Join(errs...)
}

// WriteRules encodes a rule set as YAML, for use as an override file template.
func WriteRules(w io.Writer, rules domain.RuleSet) error {
	data, err := yaml.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = w.Write(data)
	return err
}

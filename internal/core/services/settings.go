package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMTimeout     = "llm.timeout"
	keyLLMTemperature = "llm.temperature"
	keyLLMTopP        = "llm.top_p"
	keyLLMNumCtx      = "llm.num_ctx"
	keyLLMMaxTokens   = "llm.max_tokens"
	keyLLMRate        = "llm.requests_per_second"
	keyLLMBurst       = "llm.burst"

	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyEmbedDims     = "embedding.dimensions"

	keyBudgetPromptTokens  = "budget.max_prompt_tokens"
	keyBudgetEvidenceChars = "budget.max_evidence_chars"
	keyBudgetCharsPerToken = "budget.chars_per_token"
	keyBudgetMaxRetries    = "budget.max_retries"
	keyBudgetTimeoutShrink = "budget.timeout_shrink"
	keyBudgetContextShrink = "budget.context_shrink"

	keyRetrievalTopK          = "retrieval.top_k"
	keyRetrievalLexical       = "retrieval.lexical_weight"
	keyRetrievalVector        = "retrieval.vector_weight"
	keyRetrievalPoolFactor    = "retrieval.vector_pool_factor"
	keyRetrievalPoolMin       = "retrieval.vector_pool_min"
	keyRetrievalSectionFactor = "retrieval.section_pool_factor"

	keyIngestNoteWindow      = "ingest.note_window"
	keyIngestNoteOverlap     = "ingest.note_overlap"
	keyIngestFullNoteWindow  = "ingest.full_note_window"
	keyIngestFullNoteOverlap = "ingest.full_note_overlap"
	keyIngestMinChunk        = "ingest.min_chunk"
	keyIngestMinTurn         = "ingest.min_turn_length"
	keyIngestMaxOpaque       = "ingest.max_opaque_chars"

	keyGatePassThreshold    = "gate.pass_threshold"
	keyGateSummaryError     = "gate.summary_error_penalty"
	keyGateSummaryWarning   = "gate.summary_warning_penalty"
	keyGateDiffError        = "gate.diff_error_penalty"
	keyGateDiffWarning      = "gate.diff_warning_penalty"
	keyGateDiffBonus        = "gate.diff_bonus"
	keyGateMinBullets       = "gate.min_summary_bullets"
	keyGateMinProblems      = "gate.min_primary_problems"
	keyGateMinKeyLabs       = "gate.min_key_labs"
	keyGateMinDiagnoses     = "gate.min_diagnoses"
	keyGateMinSupports      = "gate.min_supports"
	keyGateMinMissing       = "gate.min_missing"
	keyGateSummaryWeight    = "gate.summary_weight"
	keyBatchWorkers         = "batch.workers"
	keyRulesPath            = "rules.path"
	keyDataDir              = "data.dir"
	defaultLocalProviderURL = "http://localhost:11434"
)

// fieldKind selects how a config value is parsed and stored.
type fieldKind int

const (
	kindString fieldKind = iota
	kindSecret
	kindProvider
	kindInt
	kindFloat
	kindDuration
)

// field binds a config key to its location in AppSettings.
type field struct {
	key  string
	kind fieldKind
	ref  func(s *domain.AppSettings) any
}

// fields lists every recognised key in display order.
var fields = []field{
	{keyLLMProvider, kindProvider, func(s *domain.AppSettings) any { return &s.LLM.Provider }},
	{keyLLMModel, kindString, func(s *domain.AppSettings) any { return &s.LLM.Model }},
	{keyLLMBaseURL, kindString, func(s *domain.AppSettings) any { return &s.LLM.BaseURL }},
	{keyLLMAPIKey, kindSecret, func(s *domain.AppSettings) any { return &s.LLM.APIKey }},
	{keyLLMTimeout, kindDuration, func(s *domain.AppSettings) any { return &s.LLM.Timeout }},
	{keyLLMTemperature, kindFloat, func(s *domain.AppSettings) any { return &s.LLM.Temperature }},
	{keyLLMTopP, kindFloat, func(s *domain.AppSettings) any { return &s.LLM.TopP }},
	{keyLLMNumCtx, kindInt, func(s *domain.AppSettings) any { return &s.LLM.NumCtx }},
	{keyLLMMaxTokens, kindInt, func(s *domain.AppSettings) any { return &s.LLM.MaxTokens }},
	{keyLLMRate, kindFloat, func(s *domain.AppSettings) any { return &s.LLM.RequestsPerSecond }},
	{keyLLMBurst, kindInt, func(s *domain.AppSettings) any { return &s.LLM.Burst }},

	{keyEmbedProvider, kindProvider, func(s *domain.AppSettings) any { return &s.Embedding.Provider }},
	{keyEmbedModel, kindString, func(s *domain.AppSettings) any { return &s.Embedding.Model }},
	{keyEmbedBaseURL, kindString, func(s *domain.AppSettings) any { return &s.Embedding.BaseURL }},
	{keyEmbedAPIKey, kindSecret, func(s *domain.AppSettings) any { return &s.Embedding.APIKey }},
	{keyEmbedDims, kindInt, func(s *domain.AppSettings) any { return &s.Embedding.Dimensions }},

	{keyBudgetPromptTokens, kindInt, func(s *domain.AppSettings) any { return &s.Budget.MaxPromptTokens }},
	{keyBudgetEvidenceChars, kindInt, func(s *domain.AppSettings) any { return &s.Budget.MaxEvidenceChars }},
	{keyBudgetCharsPerToken, kindFloat, func(s *domain.AppSettings) any { return &s.Budget.CharsPerToken }},
	{keyBudgetMaxRetries, kindInt, func(s *domain.AppSettings) any { return &s.Budget.MaxRetries }},
	{keyBudgetTimeoutShrink, kindFloat, func(s *domain.AppSettings) any { return &s.Budget.TimeoutShrink }},
	{keyBudgetContextShrink, kindFloat, func(s *domain.AppSettings) any { return &s.Budget.ContextShrink }},

	{keyRetrievalTopK, kindInt, func(s *domain.AppSettings) any { return &s.Retrieval.TopK }},
	{keyRetrievalLexical, kindFloat, func(s *domain.AppSettings) any { return &s.Retrieval.LexicalWeight }},
	{keyRetrievalVector, kindFloat, func(s *domain.AppSettings) any { return &s.Retrieval.VectorWeight }},
	{keyRetrievalPoolFactor, kindInt, func(s *domain.AppSettings) any { return &s.Retrieval.VectorPoolFactor }},
	{keyRetrievalPoolMin, kindInt, func(s *domain.AppSettings) any { return &s.Retrieval.VectorPoolMin }},
	{keyRetrievalSectionFactor, kindInt, func(s *domain.AppSettings) any { return &s.Retrieval.SectionPoolFactor }},

	{keyIngestNoteWindow, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.NoteWindow }},
	{keyIngestNoteOverlap, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.NoteOverlap }},
	{keyIngestFullNoteWindow, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.FullNoteWindow }},
	{keyIngestFullNoteOverlap, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.FullNoteOverlap }},
	{keyIngestMinChunk, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.MinChunk }},
	{keyIngestMinTurn, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.MinTurnLength }},
	{keyIngestMaxOpaque, kindInt, func(s *domain.AppSettings) any { return &s.Ingest.MaxOpaqueChars }},

	{keyGatePassThreshold, kindInt, func(s *domain.AppSettings) any { return &s.Gate.PassThreshold }},
	{keyGateSummaryError, kindInt, func(s *domain.AppSettings) any { return &s.Gate.SummaryErrorPenalty }},
	{keyGateSummaryWarning, kindInt, func(s *domain.AppSettings) any { return &s.Gate.SummaryWarningPenalty }},
	{keyGateDiffError, kindInt, func(s *domain.AppSettings) any { return &s.Gate.DiffErrorPenalty }},
	{keyGateDiffWarning, kindInt, func(s *domain.AppSettings) any { return &s.Gate.DiffWarningPenalty }},
	{keyGateDiffBonus, kindInt, func(s *domain.AppSettings) any { return &s.Gate.DiffBonus }},
	{keyGateMinBullets, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinSummaryBullets }},
	{keyGateMinProblems, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinPrimaryProblems }},
	{keyGateMinKeyLabs, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinKeyLabs }},
	{keyGateMinDiagnoses, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinDiagnoses }},
	{keyGateMinSupports, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinSupports }},
	{keyGateMinMissing, kindInt, func(s *domain.AppSettings) any { return &s.Gate.MinMissing }},
	{keyGateSummaryWeight, kindFloat, func(s *domain.AppSettings) any { return &s.Gate.SummaryWeight }},

	{keyBatchWorkers, kindInt, func(s *domain.AppSettings) any { return &s.Batch.Workers }},
	{keyRulesPath, kindString, func(s *domain.AppSettings) any { return &s.RulesPath }},
	{keyDataDir, kindString, func(s *domain.AppSettings) any { return &s.DataDir }},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// The aiValidator parameter is optional (can be nil).
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Stored values overlay the
// defaults; values of the wrong type or invalid providers are ignored.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := domain.DefaultAppSettings()
	for _, f := range fields {
		s.load(f, f.ref(&settings))
	}
	return &settings, nil
}

func (s *SettingsService) load(f field, ref any) {
	raw, ok := s.configStore.Get(f.key)
	if !ok {
		return
	}

	switch p := ref.(type) {
	case *string:
		if str, ok := raw.(string); ok {
			*p = str
		}
	case *domain.AIProvider:
		if provider := domain.AIProvider(s.configStore.GetString(f.key)); provider.IsValid() {
			*p = provider
		}
	case *int:
		if v := s.configStore.GetInt(f.key); v != 0 || isZeroNumber(raw) {
			*p = v
		}
	case *float64:
		if v := s.configStore.GetFloat(f.key); v != 0 || isZeroNumber(raw) {
			*p = v
		}
	case *time.Duration:
		if d, err := time.ParseDuration(s.configStore.GetString(f.key)); err == nil {
			*p = d
		}
	}
}

// Save persists application settings. Empty API keys are not written so
// that keys supplied through the environment are never clobbered.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	for _, f := range fields {
		value := stored(f.ref(settings))
		if f.kind == kindSecret && value == "" {
			continue
		}
		if err := s.configStore.Set(f.key, value); err != nil {
			return fmt.Errorf("save %s: %w", f.key, err)
		}
	}
	return nil
}

// stored converts a settings field to the value written to the config file.
func stored(ref any) any {
	switch p := ref.(type) {
	case *string:
		return *p
	case *domain.AIProvider:
		return p.String()
	case *int:
		return *p
	case *float64:
		return *p
	case *time.Duration:
		return p.String()
	default:
		return nil
	}
}

// Set stores one dotted key after parsing value by the key's type.
func (s *SettingsService) Set(key, value string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var typed any
	switch f.kind {
	case kindString, kindSecret:
		typed = value
	case kindProvider:
		provider := domain.AIProvider(value)
		if !provider.IsValid() {
			return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, value)
		}
		typed = provider.String()
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer: %v", domain.ErrInvalidInput, key, err)
		}
		typed = n
	case kindFloat:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a number: %v", domain.ErrInvalidInput, key, err)
		}
		typed = v
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects a duration: %v", domain.ErrInvalidInput, key, err)
		}
		typed = d.String()
	}

	if err := s.configStore.Set(key, typed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists the recognised configuration keys in display order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// IsSecretKey reports whether a key holds a credential that should be
// masked on display.
func IsSecretKey(key string) bool {
	f, ok := lookupField(key)
	return ok && f.kind == kindSecret
}

func lookupField(key string) (field, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// SetEmbeddingProvider configures the embedding provider. Switching
// provider resets the vector dimensions to the chosen model's size, which
// makes any existing index stale.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}

	// Validate provider supports embeddings
	valid := false
	for _, p := range domain.AllEmbeddingProviders() {
		if p == provider {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	switch {
	case provider == domain.AIProviderOllama:
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = defaultLocalProviderURL
		}
	default:
		settings.Embedding.BaseURL = ""
	}
	settings.Embedding.APIKey = apiKey

	settings.Embedding.Dimensions = 0
	if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() || provider == domain.AIProviderHashing {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}

	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	if model != "" {
		settings.LLM.Model = model
	} else if defaultModel, ok := domain.DefaultLLMModels()[provider]; ok {
		settings.LLM.Model = defaultModel
	}

	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = defaultLocalProviderURL
		}
	} else {
		settings.LLM.BaseURL = ""
	}
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the configured values are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return ValidateSettings(settings)
}

// ValidateSettings checks ranges and cross-field constraints.
func ValidateSettings(settings *domain.AppSettings) error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(settings.LLM.Timeout > 0, "llm.timeout must be positive")
	check(settings.LLM.RequestsPerSecond >= 0, "llm.requests_per_second must not be negative")
	check(settings.Embedding.IsConfigured(), "embedding provider %q is not configured", settings.Embedding.Provider)

	b := settings.Budget
	check(b.MaxPromptTokens > 0, "budget.max_prompt_tokens must be positive")
	check(b.MaxEvidenceChars > 0, "budget.max_evidence_chars must be positive")
	check(b.CharsPerToken > 0, "budget.chars_per_token must be positive")
	check(b.MaxRetries >= 0, "budget.max_retries must not be negative")
	check(b.TimeoutShrink > 0 && b.TimeoutShrink < 1, "budget.timeout_shrink must be in (0,1)")
	check(b.ContextShrink > 0 && b.ContextShrink < 1, "budget.context_shrink must be in (0,1)")

	r := settings.Retrieval
	check(r.TopK > 0, "retrieval.top_k must be positive")
	check(r.LexicalWeight >= 0 && r.VectorWeight >= 0, "retrieval weights must not be negative")
	check(r.LexicalWeight+r.VectorWeight > 0, "retrieval weights must not both be zero")

	in := settings.Ingest
	check(in.NoteWindow > 0 && in.FullNoteWindow > 0, "ingest windows must be positive")
	check(in.NoteOverlap >= 0 && in.NoteOverlap < in.NoteWindow, "ingest.note_overlap must be in [0, note_window)")
	check(in.FullNoteOverlap >= 0 && in.FullNoteOverlap < in.FullNoteWindow,
		"ingest.full_note_overlap must be in [0, full_note_window)")

	g := settings.Gate
	check(g.PassThreshold >= 0 && g.PassThreshold <= maxScore, "gate.pass_threshold must be in [0,100]")
	check(g.SummaryWeight >= 0 && g.SummaryWeight <= 1, "gate.summary_weight must be in [0,1]")

	check(settings.Batch.Workers > 0, "batch.workers must be positive")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// isZeroNumber reports whether a raw config value is a numeric zero, so an
// explicit 0 is distinguished from a value of the wrong type.
func isZeroNumber(raw any) bool {
	switch v := raw.(type) {
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	case float32:
		return v == 0
	default:
		return false
	}
}

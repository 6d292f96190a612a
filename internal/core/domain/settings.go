package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHashing is the offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHashing:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHashing:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// LLMSettings holds inference backend configuration and decoding parameters.
type LLMSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	// Timeout is the wall-clock limit of one request.
	Timeout time.Duration

	Temperature float64
	TopP        float64
	NumCtx      int
	MaxTokens   int

	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderHashing {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider   AIProvider
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// BudgetSettings bounds prompt size and the retry policy.
type BudgetSettings struct {
	MaxPromptTokens  int
	MaxEvidenceChars int
	CharsPerToken    float64
	MaxRetries       int

	// TimeoutShrink scales budget and timeout after a timeout.
	TimeoutShrink float64

	// ContextShrink scales the budget after a context-limit error.
	ContextShrink float64
}

// RetrievalSettings holds fusion weights and candidate pool sizes.
// The section rerank multipliers live in the RuleSet.
type RetrievalSettings struct {
	TopK          int
	LexicalWeight float64
	VectorWeight  float64

	// VectorPoolFactor and VectorPoolMin size the vector candidate set
	// as max(factor*k, min), capped at corpus size.
	VectorPoolFactor int
	VectorPoolMin    int

	// SectionPoolFactor widens section searches before filtering.
	SectionPoolFactor int
}

// IngestSettings holds chunking parameters.
type IngestSettings struct {
	NoteWindow      int
	NoteOverlap     int
	FullNoteWindow  int
	FullNoteOverlap int
	MinChunk        int
	MinTurnLength   int
	MaxOpaqueChars  int
}

// GateSettings holds quality gate thresholds and penalties.
type GateSettings struct {
	PassThreshold int

	SummaryErrorPenalty   int
	SummaryWarningPenalty int
	DiffErrorPenalty      int
	DiffWarningPenalty    int
	DiffBonus             int

	MinSummaryBullets  int
	MinPrimaryProblems int
	MinKeyLabs         int
	MinDiagnoses       int
	MinSupports        int
	MinMissing         int

	// SummaryWeight is the summary share of the combined score.
	SummaryWeight float64
}

// BatchSettings configures the case worker pool.
type BatchSettings struct {
	Workers int
}

// AppSettings holds all application settings.
type AppSettings struct {
	LLM       LLMSettings
	Embedding EmbeddingSettings
	Budget    BudgetSettings
	Retrieval RetrievalSettings
	Ingest    IngestSettings
	Gate      GateSettings
	Batch     BatchSettings

	// DataDir holds the index database and run records.
	DataDir string

	// RulesPath overrides the embedded rule tables when set.
	RulesPath string
}

// DefaultAppSettings returns settings with the tuned clinical defaults.
// The LLM defaults target a local Ollama model; embeddings default to
// the offline hashing embedder so indexing works without a server.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		LLM: LLMSettings{
			Provider:    AIProviderOllama,
			Model:       "gemma3:4b",
			BaseURL:     "http://localhost:11434",
			Timeout:     600 * time.Second,
			Temperature: 0.2,
			TopP:        0.9,
			NumCtx:      16384,
			MaxTokens:   1024,
			Burst:       1,
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Model:      "hashing-384",
			Dimensions: 384,
		},
		Budget: BudgetSettings{
			MaxPromptTokens:  12000,
			MaxEvidenceChars: 8000,
			CharsPerToken:    3.5,
			MaxRetries:       2,
			TimeoutShrink:    0.7,
			ContextShrink:    0.6,
		},
		Retrieval: RetrievalSettings{
			TopK:              8,
			LexicalWeight:     0.55,
			VectorWeight:      0.45,
			VectorPoolFactor:  5,
			VectorPoolMin:     20,
			SectionPoolFactor: 3,
		},
		Ingest: IngestSettings{
			NoteWindow:      500,
			NoteOverlap:     0,
			FullNoteWindow:  500,
			FullNoteOverlap: 50,
			MinChunk:        50,
			MinTurnLength:   20,
			MaxOpaqueChars:  1000,
		},
		Gate: GateSettings{
			PassThreshold:         60,
			SummaryErrorPenalty:   20,
			SummaryWarningPenalty: 10,
			DiffErrorPenalty:      25,
			DiffWarningPenalty:    8,
			DiffBonus:             5,
			MinSummaryBullets:     6,
			MinPrimaryProblems:    1,
			MinKeyLabs:            2,
			MinDiagnoses:          3,
			MinSupports:           2,
			MinMissing:            1,
			SummaryWeight:         0.4,
		},
		Batch: BatchSettings{
			Workers: 4,
		},
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderHashing}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "gemma3:4b",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-haiku-latest",
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:  "nomic-embed-text",
		AIProviderOpenAI:  "text-embedding-3-small",
		AIProviderHashing: "hashing-384",
	}
}

// EmbeddingDimensions returns known vector sizes by model.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":       768,
		"all-minilm":             384,
		"mxbai-embed-large":      1024,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"hashing-384":            384,
	}
}

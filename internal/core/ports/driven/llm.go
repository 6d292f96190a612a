// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService provides text generation from an inference backend.
// This is an optional service - when nil, generation stages fall back to
// deterministic output built from retrieved evidence.
//
// Implementations may include:
//   - Ollama (local models)
//   - OpenAI (GPT-4o family)
//   - Anthropic (Claude)
//
// Implementations should classify failures by wrapping domain.ErrContextLimit
// and domain.ErrInferenceTimeout so the orchestrator can shrink and retry.
type LLMService interface {
	// Generate produces text completion from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
// Every decoding parameter is explicit; adapters do not substitute defaults
// for zero values except where the backend requires a value.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// TopP is the nucleus-sampling threshold.
	TopP float64

	// NumCtx is the context window size requested from the backend.
	NumCtx int

	// JSONMode asks the backend to constrain output to JSON.
	JSONMode bool

	// StopWords are sequences that stop generation when encountered.
	StopWords []string
}

package ai

import (
	"fmt"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator checks provider settings before they are saved.
type ConfigValidator struct {
	dimensions map[string]int
}

// NewConfigValidator creates a validator that knows the vector sizes of
// common embedding models.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{dimensions: domain.EmbeddingDimensions()}
}

// ValidateEmbedding rejects a dimension count that contradicts the model's
// known vector size, then pings the provider. A generation built with
// mismatched dimensions could never be reopened.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	if config == nil || !config.IsConfigured() {
		return nil
	}
	if want, ok := v.dimensions[config.Model]; ok && config.Dimensions > 0 && config.Dimensions != want {
		return fmt.Errorf("%w: model %s produces %d-dim vectors, embedding.dimensions is %d",
			domain.ErrInvalidInput, config.Model, want, config.Dimensions)
	}
	return ValidateEmbeddingConfig(config)
}

// ValidateLLM pings the configured LLM provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	if config == nil || !config.IsConfigured() {
		return nil
	}
	if config.Model == "" {
		return fmt.Errorf("%w: llm.model is empty", domain.ErrInvalidInput)
	}
	return ValidateLLMConfig(config)
}

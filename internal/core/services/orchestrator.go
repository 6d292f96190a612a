package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
	"github.com/Pg1910/clinical-rag/internal/telemetry"
)

// Ensure Orchestrator implements the interface.
var _ driving.GenerationService = (*Orchestrator)(nil)

const (
	// defaultCharsPerToken approximates token counts without a tokenizer.
	defaultCharsPerToken = 3.5

	// reservedTokens are kept free for the truncation marker and framing.
	reservedTokens = 50

	// minRetryTokens floors the shrunk budget so a retry keeps some prompt.
	minRetryTokens = 2 * reservedTokens

	// minEvidenceItemChars is the smallest per-item share of TruncateEvidence.
	minEvidenceItemChars = 200

	truncationMarker = "\n[... truncated due to context limit ...]"
)

// OutcomeKind classifies the result of one attempt.
type OutcomeKind int

// Attempt outcomes.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "fatal"
	}
}

// Attempt is one inference call with its prompt budget.
type Attempt struct {
	Number       int
	Prompt       string
	BudgetTokens int
	Timeout      time.Duration
}

// Outcome is the transition taken after an attempt.
// Next is set only for OutcomeRetry.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Next Attempt
	Err  error
}

// Orchestrator calls the LLM under a token budget, shrinking the prompt and
// timeout and retrying on timeouts and context-limit errors.
type Orchestrator struct {
	llm      driven.LLMService
	settings domain.LLMSettings
	budget   domain.BudgetSettings
	metrics  *telemetry.Metrics
}

// NewOrchestrator creates a new orchestrator.
// The llm parameter is optional (can be nil); Generate then returns
// domain.ErrLLMUnavailable.
func NewOrchestrator(llm driven.LLMService, settings domain.LLMSettings, budget domain.BudgetSettings) *Orchestrator {
	defaults := domain.DefaultAppSettings().Budget
	if budget.MaxPromptTokens <= 0 {
		budget.MaxPromptTokens = defaults.MaxPromptTokens
	}
	if budget.CharsPerToken <= 0 {
		budget.CharsPerToken = defaults.CharsPerToken
	}
	if budget.MaxRetries < 0 {
		budget.MaxRetries = 0
	}
	if budget.TimeoutShrink <= 0 || budget.TimeoutShrink >= 1 {
		budget.TimeoutShrink = defaults.TimeoutShrink
	}
	if budget.ContextShrink <= 0 || budget.ContextShrink >= 1 {
		budget.ContextShrink = defaults.ContextShrink
	}
	return &Orchestrator{
		llm:      llm,
		settings: settings,
		budget:   budget,
		metrics:  telemetry.Default(),
	}
}

// Available reports whether an LLM is configured.
func (o *Orchestrator) Available() bool {
	return o.llm != nil
}

// Generate runs the retry state machine. At most MaxRetries retries follow
// the first attempt; exhaustion returns *domain.InferenceError wrapping the
// first failure.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if o.llm == nil {
		return "", domain.ErrLLMUnavailable
	}

	att := Attempt{
		Number:       1,
		Prompt:       TruncateToTokens(prompt, o.budget.MaxPromptTokens, o.budget.CharsPerToken),
		BudgetTokens: o.budget.MaxPromptTokens,
		Timeout:      o.settings.Timeout,
	}

	var firstErr error
	for {
		out := o.run(ctx, att, jsonMode)
		if out.Err != nil && firstErr == nil {
			firstErr = out.Err
		}

		switch out.Kind {
		case OutcomeSuccess:
			return out.Text, nil
		case OutcomeRetry:
			telemetry.Add(ctx, o.metrics.LLMRetries, 1, attribute.String("reason", retryReason(out.Err)))
			logger.Warn("attempt %d failed (%v), retrying with %d-token budget",
				att.Number, out.Err, out.Next.BudgetTokens)
			att = out.Next
		default:
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(out.Err, ctxErr) {
				return "", ctxErr
			}
			return "", &domain.InferenceError{Attempts: att.Number, Err: firstErr}
		}
	}
}

// run executes one attempt inside a span and classifies the result.
func (o *Orchestrator) run(ctx context.Context, att Attempt, jsonMode bool) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "llm.generate",
		attribute.Int("llm.attempt", att.Number),
		attribute.Int("llm.budget_tokens", att.BudgetTokens),
		attribute.Int("llm.prompt_tokens", EstimateTokens(att.Prompt, o.budget.CharsPerToken)),
		attribute.Bool("llm.json_mode", jsonMode),
	)
	defer span.End()
	telemetry.Add(ctx, o.metrics.LLMAttempts, 1, attribute.Int("attempt", att.Number))

	callCtx := ctx
	if att.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, att.Timeout)
		defer cancel()
	}

	text, err := o.llm.Generate(callCtx, att.Prompt, o.options(jsonMode))
	if err == nil {
		span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
		return Outcome{Kind: OutcomeSuccess, Text: text}
	}

	// A deadline on the per-attempt context is a timeout, not a cancellation.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = errors.Join(domain.ErrInferenceTimeout, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return o.next(ctx, att, err)
}

// next decides the transition after a failed attempt.
func (o *Orchestrator) next(ctx context.Context, att Attempt, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeFatal, Err: ctx.Err()}
	}
	if att.Number > o.budget.MaxRetries {
		return Outcome{Kind: OutcomeFatal, Err: err}
	}

	// Shrink from what was actually sent, not from the configured ceiling.
	base := EstimateTokens(att.Prompt, o.budget.CharsPerToken)
	if att.BudgetTokens > 0 {
		base = min(base, att.BudgetTokens)
	}

	var shrink float64
	timeout := att.Timeout
	switch {
	case errors.Is(err, domain.ErrContextLimit):
		shrink = o.budget.ContextShrink
	case errors.Is(err, domain.ErrInferenceTimeout):
		shrink = o.budget.TimeoutShrink
		timeout = time.Duration(float64(att.Timeout) * o.budget.TimeoutShrink)
	default:
		return Outcome{Kind: OutcomeFatal, Err: err}
	}
	budget := max(int(float64(base)*shrink), minRetryTokens)

	return Outcome{
		Kind: OutcomeRetry,
		Err:  err,
		Next: Attempt{
			Number:       att.Number + 1,
			Prompt:       TruncateToTokens(att.Prompt, budget, o.budget.CharsPerToken),
			BudgetTokens: budget,
			Timeout:      timeout,
		},
	}
}

func (o *Orchestrator) options(jsonMode bool) driven.GenerateOptions {
	return driven.GenerateOptions{
		MaxTokens:   o.settings.MaxTokens,
		Temperature: o.settings.Temperature,
		TopP:        o.settings.TopP,
		NumCtx:      o.settings.NumCtx,
		JSONMode:    jsonMode,
	}
}

func retryReason(err error) string {
	if errors.Is(err, domain.ErrContextLimit) {
		return "context_limit"
	}
	return "timeout"
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return int(float64(len(text)) / charsPerToken)
}

// TruncateToTokens shortens text to fit maxTokens. The cut backs up to the
// last line or sentence break when one lies past 80% of the limit, and a
// marker is appended.
func TruncateToTokens(text string, maxTokens int, charsPerToken float64) string {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	if EstimateTokens(text, charsPerToken) <= maxTokens {
		return text
	}

	limit := max(int(float64(maxTokens-reservedTokens)*charsPerToken), 0)
	if limit >= len(text) {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}

	cut := text[:limit]
	brk := max(strings.LastIndex(cut, "\n"), strings.LastIndex(cut, ". "))
	if brk > int(float64(limit)*0.8) {
		cut = cut[:brk+1]
	}
	return cut + truncationMarker
}

// TruncateEvidence shares maxChars between items, giving each at least
// minEvidenceItemChars. Items within their share are kept whole.
func TruncateEvidence(items []string, maxChars int) []string {
	total := 0
	for _, item := range items {
		total += len(item)
	}
	if len(items) == 0 || total <= maxChars {
		return items
	}

	per := max(maxChars/len(items), minEvidenceItemChars)
	out := make([]string, len(items))
	for i, item := range items {
		if len(item) <= per {
			out[i] = item
			continue
		}
		out[i] = truncateRunes(item, per) + "..."
	}
	return out
}

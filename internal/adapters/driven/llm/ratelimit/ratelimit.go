// Package ratelimit wraps an LLM service with client-side throttling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// DefaultBackoff is the pause after the backend reports rate limiting.
const DefaultBackoff = 30 * time.Second

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64

	// Burst is the maximum burst size (default: 1).
	Burst int

	// Backoff is the pause applied after a domain.ErrRateLimited response.
	Backoff time.Duration
}

// LLMService throttles calls to an inner LLM service using a token bucket.
// Batch workers share one instance so the backend sees the combined rate.
type LLMService struct {
	inner   driven.LLMService
	limiter *rate.Limiter
	backoff time.Duration

	mu      sync.Mutex
	retryAt time.Time

	now func() time.Time
}

// Wrap returns inner unchanged when RequestsPerSecond is not positive,
// otherwise a throttled service.
func Wrap(inner driven.LLMService, cfg Config) driven.LLMService {
	if inner == nil || cfg.RequestsPerSecond <= 0 {
		return inner
	}
	return New(inner, cfg)
}

// New creates a throttled LLM service.
func New(inner driven.LLMService, cfg Config) *LLMService {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &LLMService{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		backoff: cfg.Backoff,
		now:     time.Now,
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff set by a previous rate-limited response.
func (s *LLMService) Wait(ctx context.Context) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()

	if wait := retryAt.Sub(s.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return s.limiter.Wait(ctx)
}

// Generate waits for a token and forwards the call.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := s.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		// The limiter fails fast when the wait would pass the deadline.
		return "", fmt.Errorf("ratelimit: %w: %v", domain.ErrInferenceTimeout, err)
	}

	out, err := s.inner.Generate(ctx, prompt, opts)
	if errors.Is(err, domain.ErrRateLimited) {
		s.recordRateLimit()
	}
	return out, err
}

func (s *LLMService) recordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryAt = s.now().Add(s.backoff)
	logger.Warn("llm rate limited by %s, backing off %s", s.inner.ModelName(), s.backoff)
}

// ModelName returns the inner model name.
func (s *LLMService) ModelName() string {
	return s.inner.ModelName()
}

// Ping forwards to the inner service without consuming a token.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the inner service.
func (s *LLMService) Close() error {
	return s.inner.Close()
}

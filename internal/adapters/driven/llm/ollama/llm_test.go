package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

func TestNewLLMService_Defaults(t *testing.T) {
	s := NewLLMService(LLMConfig{})
	assert.Equal(t, DefaultLLMModel, s.ModelName())
	assert.Equal(t, DefaultBaseURL, s.baseURL)
	assert.Equal(t, DefaultLLMTimeout, s.client.Timeout)
	assert.NoError(t, s.Close())
}

func TestGenerate_SendsExplicitOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"ok":true}`, Done: true, EvalCount: 3})
	}))
	defer srv.Close()

	s := NewLLMService(LLMConfig{BaseURL: srv.URL + "/", Model: "gemma3:4b"})
	out, err := s.Generate(context.Background(), "hello", driven.GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0,
		TopP:        0.9,
		NumCtx:      16384,
		JSONMode:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "gemma3:4b", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])

	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.0, opts["temperature"])
	assert.Equal(t, 0.9, opts["top_p"])
	assert.Equal(t, 16384.0, opts["num_ctx"])
	assert.Equal(t, 1024.0, opts["num_predict"])
}

func TestGenerate_PlainModeOmitsFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "text"})
	}))
	defer srv.Close()

	s := NewLLMService(LLMConfig{BaseURL: srv.URL})
	_, err := s.Generate(context.Background(), "hello", driven.GenerateOptions{})

	require.NoError(t, err)
	_, hasFormat := got["format"]
	assert.False(t, hasFormat)
}

func TestGenerate_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"context limit", http.StatusInternalServerError, "input length exceeds maximum context length", domain.ErrContextLimit},
		{"token limit", http.StatusBadRequest, "too many tokens", domain.ErrContextLimit},
		{"rate limited", http.StatusTooManyRequests, "slow down", domain.ErrRateLimited},
		{"gateway timeout", http.StatusGatewayTimeout, "upstream", domain.ErrInferenceTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, tt.body, tt.status)
			}))
			defer srv.Close()

			s := NewLLMService(LLMConfig{BaseURL: srv.URL})
			_, err := s.Generate(context.Background(), "p", driven.GenerateOptions{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerate_OtherErrorsUnclassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewLLMService(LLMConfig{BaseURL: srv.URL})
	_, err := s.Generate(context.Background(), "p", driven.GenerateOptions{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrContextLimit)
	assert.NotErrorIs(t, err, domain.ErrInferenceTimeout)
	assert.Contains(t, err.Error(), "status 404")
}

func TestGenerate_DeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := NewLLMService(LLMConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Generate(ctx, "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrInferenceTimeout)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewLLMService(LLMConfig{BaseURL: srv.URL}).Ping(context.Background()))
}

// Package llm wraps the text generation providers behind a single Complete call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/config"
	"vehiclereport/internal/metrics"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4.1-2025-04-14"

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

type Request struct {
	System      string
	User        string
	Model       string // empty uses the provider default
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a single JSON object.
	JSON bool
	// NoCache skips the response cache. Callers that validate and retry replies set it so
	// a rejected reply is never stored or replayed.
	NoCache bool
}

type Response struct {
	Text   string
	Model  string
	Usage  Usage
	Cached bool
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// APIError is a provider failure carrying the HTTP status when one is known.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could succeed. Client errors other than
// timeouts and rate limits are final, as is a cancelled context.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Options configure NewProvider.
type Options struct {
	HTTPClient *http.Client
	// BaseURL overrides the provider endpoint; empty uses the public API.
	BaseURL string
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// NewProvider builds the provider selected by cfg.LLMProvider.
func NewProvider(cfg config.Config, opts Options) (Provider, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	switch strings.ToLower(cfg.LLMProvider) {
	case config.ProviderOpenAI:
		return newOpenAIProvider(cfg.OpenAIAPIKey, cfg.LLMModel, opts), nil
	case config.ProviderAnthropic, "":
		return newAnthropicProvider(cfg.AnthropicAPIKey, cfg.LLMModel, opts), nil
	}
	return nil, fmt.Errorf("unsupported llm_provider %q", cfg.LLMProvider)
}

func observe(m *metrics.Metrics, provider string, usage Usage, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ObserveLLM(provider, outcome, usage.InputTokens, usage.OutputTokens)
}

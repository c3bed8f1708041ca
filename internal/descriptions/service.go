// Package descriptions resolves short layman descriptions of repairs, cached by slug.
package descriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/llm"
	"vehiclereport/internal/metrics"
)

const (
	systemPrompt = "You are an automotive expert providing clear, concise descriptions of car repairs. " +
		"Explain what the repair involves, why it might be needed, and any relevant details car owners should know. " +
		"Keep explanations informative but accessible to non-experts."
	maxWords     = 50
	maxTokens    = 200
	maxAttempts  = 3
	defaultDelay = 500 * time.Millisecond
)

// Cache persists generated descriptions. A miss is ("", false, nil).
type Cache interface {
	RepairDescription(ctx context.Context, slug string) (string, bool, error)
	SaveRepairDescription(ctx context.Context, slug, description string) error
}

type Service struct {
	cache      Cache
	provider   llm.Provider
	model      string
	retryDelay time.Duration
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

type Option func(*Service)

func WithModel(model string) Option { return func(s *Service) { s.model = model } }

func WithRetryDelay(d time.Duration) Option { return func(s *Service) { s.retryDelay = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(cache Cache, provider llm.Provider, log logrus.FieldLogger, opts ...Option) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{cache: cache, provider: provider, retryDelay: defaultDelay, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fallback is the text shown when no description can be produced.
func Fallback(term string) string {
	return fmt.Sprintf("Information about %s is currently unavailable. Please try again later.", term)
}

// Describe returns the cached description for title, generating and storing one on a
// miss. It never fails: generation errors degrade to Fallback.
func (s *Service) Describe(ctx context.Context, title string) string {
	slug := Slug(title)
	term := Deslugify(slug)
	log := s.log.WithField("slug", slug)
	if slug == "" {
		return Fallback(title)
	}

	cached, ok, err := s.cache.RepairDescription(ctx, slug)
	if err != nil {
		log.WithError(err).Warn("repair description lookup failed")
	}
	if ok && cached != "" {
		s.metrics.ObserveDescription("cached")
		return cached
	}

	log.Info("generating repair description")
	description, err := s.generate(ctx, term)
	if err != nil {
		log.WithError(err).Error("repair description generation failed")
		s.metrics.ObserveDescription("fallback")
		return Fallback(term)
	}

	if err := s.cache.SaveRepairDescription(ctx, slug, description); err != nil {
		log.WithError(err).Warn("repair description save failed")
	}
	s.metrics.ObserveDescription("generated")
	return description
}

func (s *Service) generate(ctx context.Context, term string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("no text generator configured")
	}
	req := llm.Request{
		System:      systemPrompt,
		User:        fmt.Sprintf("Please provide a description of the following car repair or maintenance issue: '%s'. Keep your response under %d words.", term, maxWords),
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	}

	var text string
	op := func() error {
		resp, err := s.provider.Complete(ctx, req)
		if err != nil {
			if !llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			return fmt.Errorf("empty description")
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return text, nil
}

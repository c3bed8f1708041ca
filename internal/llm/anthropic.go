package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/metrics"
)

const jsonOnlyInstruction = "Respond with a single valid JSON object and nothing else."

type anthropicProvider struct {
	client  anthropic.Client
	model   string
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

func newAnthropicProvider(apiKey, model string, opts Options) *anthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &anthropicProvider{
		client:  anthropic.NewClient(clientOpts...),
		model:   model,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	system := req.System
	if req.JSON {
		system += "\n\n" + jsonOnlyInstruction
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	p.log.WithFields(logrus.Fields{"provider": p.Name(), "model": model, "json": req.JSON}).Debug("llm request")
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		wrapped := &APIError{Provider: p.Name(), Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			wrapped.StatusCode = apiErr.StatusCode
		}
		observe(p.metrics, p.Name(), Usage{}, wrapped)
		p.log.WithError(err).WithField("provider", p.Name()).Warn("llm request failed")
		return Response{}, wrapped
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			observe(p.metrics, p.Name(), usage, nil)
			p.log.WithFields(logrus.Fields{
				"provider":     p.Name(),
				"size":         len(block.Text),
				"tokens_in":    usage.InputTokens,
				"tokens_out":   usage.OutputTokens,
				"cache_create": usage.CacheCreationInputTokens,
				"cache_read":   usage.CacheReadInputTokens,
			}).Info("llm response")
			return Response{Text: block.Text, Model: model, Usage: usage}, nil
		}
	}
	err = &APIError{Provider: p.Name(), Err: fmt.Errorf("no text content in response")}
	observe(p.metrics, p.Name(), usage, err)
	return Response{Usage: usage}, err
}

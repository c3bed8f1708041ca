package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/metrics"
)

type openAIProvider struct {
	client  *openai.Client
	model   string
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

func newOpenAIProvider(apiKey, model string, opts Options) *openAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.HTTPClient = opts.HTTPClient
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}
	return &openAIProvider{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	p.log.WithFields(logrus.Fields{"provider": p.Name(), "model": model, "json": req.JSON}).Debug("llm request")
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		wrapped := &APIError{Provider: p.Name(), Err: err}
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			wrapped.StatusCode = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			wrapped.StatusCode = reqErr.HTTPStatusCode
		}
		observe(p.metrics, p.Name(), Usage{}, wrapped)
		p.log.WithError(err).WithField("provider", p.Name()).Warn("llm request failed")
		return Response{}, wrapped
	}

	usage := Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		err := &APIError{Provider: p.Name(), Err: fmt.Errorf("no choices in response")}
		observe(p.metrics, p.Name(), usage, err)
		return Response{Usage: usage}, err
	}

	text := resp.Choices[0].Message.Content
	observe(p.metrics, p.Name(), usage, nil)
	p.log.WithFields(logrus.Fields{
		"provider":   p.Name(),
		"size":       len(text),
		"tokens_in":  usage.InputTokens,
		"tokens_out": usage.OutputTokens,
	}).Info("llm response")
	return Response{Text: text, Model: model, Usage: usage}, nil
}

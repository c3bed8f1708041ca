package llm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiclereport/internal/config"
	"vehiclereport/internal/llm"
	"vehiclereport/internal/llm/llmtest"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), false},
		{"bad request", &llm.APIError{Provider: "x", StatusCode: 400, Err: errors.New("bad")}, false},
		{"unauthorized", &llm.APIError{Provider: "x", StatusCode: 401, Err: errors.New("key")}, false},
		{"rate limited", &llm.APIError{Provider: "x", StatusCode: 429, Err: errors.New("slow")}, true},
		{"timeout", &llm.APIError{Provider: "x", StatusCode: 408, Err: errors.New("slow")}, true},
		{"server", &llm.APIError{Provider: "x", StatusCode: 503, Err: errors.New("down")}, true},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.IsRetryable(tt.err))
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &llm.APIError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}
	assert.Equal(t, "openai API error (status 429): slow down", err.Error())
	assert.Equal(t, "openai API error: x", (&llm.APIError{Provider: "openai", Err: errors.New("x")}).Error())
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":{"b":"}"}} hope it helps`, `{"a":{"b":"}"}}`},
		{"escaped quote", `x {"a":"say \"}\""} y`, `{"a":"say \"}\""}`},
		{"no object", "sorry", "sorry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractJSON(tt.in))
		})
	}
}

func TestCacheKeyStable(t *testing.T) {
	req := llm.Request{System: "s", User: "u", Model: "m", MaxTokens: 10, Temperature: 0.7}
	a := llm.CacheKey("openai", req)
	assert.Equal(t, a, llm.CacheKey("openai", req))
	assert.Regexp(t, `^llm:chat:[0-9a-f]{32}$`, a)

	req.User = "other"
	assert.NotEqual(t, a, llm.CacheKey("openai", req))
	assert.NotEqual(t, a, llm.CacheKey("anthropic", llm.Request{System: "s", User: "u", Model: "m", MaxTokens: 10, Temperature: 0.7}))
}

func TestCachedProviderMissThenStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	stub := llmtest.New(llmtest.Reply{Text: "fresh"})
	req := llm.Request{User: "describe brakes"}
	key := llm.CacheKey(stub.Name(), req)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, "fresh", time.Hour).SetVal("OK")

	p := llm.NewCachedProvider(stub, db, time.Hour, quietLogger())
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Text)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, stub.Calls())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedProviderHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	stub := llmtest.New(llmtest.Reply{Text: "fresh"})
	req := llm.Request{User: "describe brakes"}
	key := llm.CacheKey(stub.Name(), req)

	mock.ExpectGet(key).SetVal("remembered")

	p := llm.NewCachedProvider(stub, db, time.Hour, quietLogger())
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "remembered", resp.Text)
	assert.True(t, resp.Cached)
	assert.Zero(t, stub.Calls())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedProviderSurvivesRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	stub := llmtest.New(llmtest.Reply{Text: "fresh"})
	req := llm.Request{User: "q"}
	key := llm.CacheKey(stub.Name(), req)

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, "fresh", time.Minute).SetErr(errors.New("connection refused"))

	p := llm.NewCachedProvider(stub, db, time.Minute, quietLogger())
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Text)
}

func TestCachedProviderDoesNotStoreFailures(t *testing.T) {
	db, mock := redismock.NewClientMock()
	boom := errors.New("boom")
	stub := llmtest.New(llmtest.Reply{Err: boom})
	req := llm.Request{User: "q"}

	mock.ExpectGet(llm.CacheKey(stub.Name(), req)).RedisNil()

	p := llm.NewCachedProvider(stub, db, time.Minute, quietLogger())
	_, err := p.Complete(context.Background(), req)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedProviderNoCacheSkipsRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	log, hook := logtest.NewNullLogger()
	stub := llmtest.New(llmtest.Reply{Text: "first"}, llmtest.Reply{Text: "second"})
	req := llm.Request{User: "q", JSON: true, NoCache: true}

	p := llm.NewCachedProvider(stub, db, time.Minute, log)
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
	resp, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Text)
	assert.False(t, resp.Cached)

	assert.Equal(t, 2, stub.Calls())
	assert.Empty(t, hook.AllEntries())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := llm.NewProvider(config.Config{LLMProvider: "openai"}, llm.Options{})
	assert.Error(t, err)

	_, err = llm.NewProvider(config.Config{LLMProvider: "mystery", AnthropicAPIKey: "k", OpenAIAPIKey: "k"}, llm.Options{})
	assert.Error(t, err)
}

func TestOpenAIProviderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"json_object"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`)
	}))
	defer srv.Close()

	cfg := config.Config{LLMProvider: "openai", OpenAIAPIKey: "test-key", LLMModel: "gpt-test"}
	p, err := llm.NewProvider(cfg, llm.Options{HTTPClient: srv.Client(), BaseURL: srv.URL, Log: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	resp, err := p.Complete(context.Background(), llm.Request{System: "sys", User: "hi", JSON: true, MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, int64(12), resp.Usage.InputTokens)
	assert.Equal(t, int64(16), resp.Usage.TotalTokens())
}

func TestOpenAIProviderStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	cfg := config.Config{LLMProvider: "openai", OpenAIAPIKey: "k"}
	p, err := llm.NewProvider(cfg, llm.Options{HTTPClient: srv.Client(), BaseURL: srv.URL, Log: quietLogger()})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Request{User: "hi"})
	var apiErr *llm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, llm.IsRetryable(err))
}

func TestAnthropicProviderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":3}}`)
	}))
	defer srv.Close()

	cfg := config.Config{LLMProvider: "anthropic", AnthropicAPIKey: "test-key"}
	p, err := llm.NewProvider(cfg, llm.Options{HTTPClient: srv.Client(), BaseURL: srv.URL, Log: quietLogger()})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.Request{System: "sys", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, int64(13), resp.Usage.TotalTokens())
}

func TestAnthropicProviderBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	cfg := config.Config{LLMProvider: "anthropic", AnthropicAPIKey: "k"}
	p, err := llm.NewProvider(cfg, llm.Options{HTTPClient: srv.Client(), BaseURL: srv.URL, Log: quietLogger()})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Request{User: "hi"})
	var apiErr *llm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

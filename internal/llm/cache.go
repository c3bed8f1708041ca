package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "llm:chat:"

// CachedProvider answers repeated identical requests from redis. Cache failures are
// logged and never fail the call.
type CachedProvider struct {
	next Provider
	rdb  redis.Cmdable
	ttl  time.Duration
	log  logrus.FieldLogger
}

func NewCachedProvider(next Provider, rdb redis.Cmdable, ttl time.Duration, log logrus.FieldLogger) *CachedProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedProvider{next: next, rdb: rdb, ttl: ttl, log: log}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (c *CachedProvider) Name() string { return c.next.Name() }

func (c *CachedProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if req.NoCache {
		return c.next.Complete(ctx, req)
	}
	key := CacheKey(c.next.Name(), req)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.log.WithField("key", key).Debug("llm cache hit")
		return Response{Text: cached, Model: req.Model, Cached: true}, nil
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Warn("llm cache read failed")
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.Text != "" {
		if err := c.rdb.Set(ctx, key, resp.Text, c.ttl).Err(); err != nil {
			c.log.WithError(err).Warn("llm cache write failed")
		}
	}
	return resp, nil
}

// CacheKey is stable for identical provider, model, prompt and sampling settings.
func CacheKey(provider string, req Request) string {
	raw, _ := json.Marshal(struct {
		Provider    string  `json:"provider"`
		Model       string  `json:"model"`
		System      string  `json:"system"`
		User        string  `json:"user"`
		JSON        bool    `json:"json"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}{provider, req.Model, req.System, req.User, req.JSON, req.MaxTokens, req.Temperature})
	sum := md5.Sum(raw)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

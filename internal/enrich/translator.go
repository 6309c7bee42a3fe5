package enrich

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyTranslation = errors.New("empty translation")

// Translator tłumaczy tekst z języka from na to.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Identity zwraca tekst bez zmian (translator "none").
type Identity struct{}

func (Identity) Translate(_ context.Context, text, _, _ string) (string, error) { return text, nil }

// OpenAI tłumaczy przez chat completions.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranslation
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("Translate the automotive spare part name from language %q to language %q. "+
					"Keep part numbers, brand and model names unchanged. Reply with the translation only.", from, to),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyTranslation
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

// Cache przechowuje gotowe tłumaczenia.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opt)}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error { return r.client.Close() }

// Cached: najpierw cache, potem właściwy translator. Błędy cache tylko logujemy.
type Cached struct {
	log   zerolog.Logger
	next  Translator
	cache Cache
	ttl   time.Duration
}

func NewCached(log zerolog.Logger, next Translator, cache Cache, ttl time.Duration) *Cached {
	return &Cached{log: log, next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Translate(ctx context.Context, text, from, to string) (string, error) {
	key := cacheKey(text, from, to)
	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Debug().Err(err).Msg("translation cache get failed")
	} else if ok {
		return v, nil
	}

	v, err := c.next.Translate(ctx, text, from, to)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, v, c.ttl); err != nil {
		c.log.Debug().Err(err).Msg("translation cache set failed")
	}
	return v, nil
}

func cacheKey(text, from, to string) string {
	sum := sha1.Sum([]byte(text))
	return "tr:" + from + ":" + to + ":" + hex.EncodeToString(sum[:])
}

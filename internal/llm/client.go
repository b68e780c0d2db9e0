package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/cache/redis"
	"github.com/flowvana/backend/pkg/circuitbreaker"
	"github.com/flowvana/backend/pkg/logger"
	"github.com/flowvana/backend/pkg/retry"
	"github.com/flowvana/backend/pkg/utils"
)

// ErrNotConfigured marks a gateway with no API key. Callers degrade the
// feature instead of failing the request.
var ErrNotConfigured = errors.New("llm gateway not configured")

const embeddingCacheTTL = 24 * time.Hour

// Client is the gateway to the external text-generation collaborators:
// JSON-mode classification completions, free-form help completions, and
// embeddings. Every call carries a bounded timeout and runs behind a
// breaker plus retry.
type Client struct {
	client         *openai.Client
	embeddingModel string
	timeout        time.Duration
	cache          *redis.Client
	cb             *circuitbreaker.CircuitBreaker
	retryCfg       retry.Config
}

func NewClient(apiKey, embeddingModel string, timeout time.Duration, cache *redis.Client) *Client {
	var inner *openai.Client
	if apiKey != "" {
		inner = openai.NewClient(apiKey)
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        2,
		Logger:           logger.GetLogger(),
	})

	retryCfg := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if inner == nil {
		logger.Warn("llm gateway has no API key, model-backed features degrade")
	} else {
		logger.Info("llm gateway initialized", zap.String("embedding_model", embeddingModel))
	}

	return &Client{
		client:         inner,
		embeddingModel: embeddingModel,
		timeout:        timeout,
		cache:          cache,
		cb:             cb,
		retryCfg:       retryCfg,
	}
}

func (c *Client) Configured() bool {
	return c.client != nil
}

// CompleteJSON asks model for a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, model, systemPrompt, userPrompt, true)
}

// Complete asks model for a free-form response.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, model, systemPrompt, userPrompt, false)
}

func (c *Client) complete(ctx context.Context, model, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	if c.client == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var content string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}
			content = resp.Choices[0].Message.Content

			logger.Debug("completion generated",
				zap.String("model", model),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Embed returns the unit-normalized embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}

	if c.cache != nil {
		if vec, ok, err := c.cache.GetEmbedding(ctx, utils.HashString(text)); err == nil && ok {
			return vec, nil
		}
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, utils.HashString(text), vectors[0], embeddingCacheTTL); err != nil {
			logger.Debug("embedding cache write failed", zap.Error(err))
		}
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, chunked to stay under the request size
// the upstream accepts. Output index i is the embedding of texts[i].
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	const batchSize = 100
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var batchVectors [][]float32
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.cb.Execute(callCtx, func() error {
			return retry.Do(callCtx, c.retryCfg, func() error {
				resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return fmt.Errorf("failed to create embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(batch))
				}
				batchVectors = batchVectors[:0]
				for _, d := range resp.Data {
					batchVectors = append(batchVectors, normalize(d.Embedding))
				}
				return nil
			})
		})
		cancel()
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batchVectors...)
	}

	return embeddings, nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/pkg/circuitbreaker"
	"github.com/legalrag/backend/pkg/logger"
	"github.com/legalrag/backend/pkg/retry"
)

// Config is everything the oracle needs. Each Client owns its credentials.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	EmbeddingModel  string
	JSONTemperature float32
	TextTemperature float32
	Timeout         time.Duration
}

// Client implements domain.Oracle on the OpenAI chat and embedding APIs.
type Client struct {
	client      *openai.Client
	cfg         Config
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

var _ domain.Oracle = (*Client)(nil)

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("oracle", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, domain.ErrSchemaViolation) && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	logger.Info("Oracle client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		cb:     cb,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			NonRetryable:   []error{domain.ErrSchemaViolation},
			Logger:         logger.GetLogger(),
		},
	}
}

// CompleteJSON asks for a JSON object. Output that is not valid JSON is a
// schema violation and is not retried here.
func (c *Client) CompleteJSON(ctx context.Context, msgs []domain.Message, maxTokens int) (string, error) {
	out, err := c.complete(ctx, "json", msgs, maxTokens, c.cfg.JSONTemperature,
		&openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject})
	if err != nil {
		return "", err
	}
	if !json.Valid([]byte(out)) {
		metrics.OracleCalls.WithLabelValues("json", "schema_error").Inc()
		return "", domain.NewSchemaError("oracle", errors.New("response is not valid JSON"))
	}
	return out, nil
}

func (c *Client) CompleteText(ctx context.Context, msgs []domain.Message, maxTokens int) (string, error) {
	return c.complete(ctx, "text", msgs, maxTokens, c.cfg.TextTemperature, nil)
}

func (c *Client) complete(ctx context.Context, kind string, msgs []domain.Message, maxTokens int, temperature float32, format *openai.ChatCompletionResponseFormat) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:          c.cfg.Model,
		Messages:       toOpenAI(msgs),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: format,
	}

	start := time.Now()
	content, err := circuitbreaker.ExecuteWithResult(ctx, c.cb, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return "", classify(fmt.Errorf("failed to create completion: %w", err))
			}
			if len(resp.Choices) == 0 {
				return "", domain.NewSchemaError("oracle", errors.New("completion has no choices"))
			}

			metrics.LLMTokensUsed.WithLabelValues(c.cfg.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.cfg.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
			logger.Debug("Oracle completion generated",
				zap.String("kind", kind),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
				zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			)
			return resp.Choices[0].Message.Content, nil
		})
	})
	if err != nil {
		metrics.OracleCalls.WithLabelValues(kind, "error").Inc()
		logger.Warn("Oracle completion failed",
			zap.String("kind", kind),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	metrics.OracleCalls.WithLabelValues(kind, "ok").Inc()
	return content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	embedding, err := circuitbreaker.ExecuteWithResult(ctx, c.cb, func() ([]float32, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() ([]float32, error) {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
			})
			if err != nil {
				return nil, classify(fmt.Errorf("failed to generate embedding: %w", err))
			}
			if len(resp.Data) == 0 {
				return nil, domain.NewSchemaError("embed", errors.New("no embedding returned"))
			}
			metrics.LLMTokensUsed.WithLabelValues(c.cfg.EmbeddingModel, "embedding").Add(float64(resp.Usage.TotalTokens))

			out := make([]float32, len(resp.Data[0].Embedding))
			copy(out, resp.Data[0].Embedding)
			return out, nil
		})
	})
	if err != nil {
		metrics.OracleCalls.WithLabelValues("embed", "error").Inc()
		return nil, err
	}

	metrics.OracleCalls.WithLabelValues("embed", "ok").Inc()
	return embedding, nil
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return retry.Permanent(err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 &&
		reqErr.HTTPStatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func toOpenAI(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

// Package llm is a small JSON-completion client for OpenAI-compatible chat
// endpoints (OpenRouter, DeepSeek, OpenAI).
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

const defaultModel = "deepseek/deepseek-chat"

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Config configures the client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client sends chat completions that must answer with a JSON object.
type Client struct {
	api    openai.Client
	model  string
	cfg    Config
	logger *observability.Logger
}

// NewClient creates a client. An API key is required.
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = observability.Nop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are handled here, with backoff
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		api:    openai.NewClient(opts...),
		model:  cfg.Model,
		cfg:    cfg,
		logger: logger.WithOperation("llm"),
	}, nil
}

// CompleteJSON sends one system+user prompt and decodes the JSON answer into out.
// Rate limits and server errors are retried with exponential backoff.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out interface{}) error {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	var content string
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			if shouldRetry(err) {
				c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Chat completion failed, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyResponse)
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}

	if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// shouldRetry reports whether a failed call is worth repeating.
func shouldRetry(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		// transport errors
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// ErrMissingAPIKey is returned when a hosted backend has no key in the environment.
var ErrMissingAPIKey = errors.New("API key not configured")

type chatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// GroqBackend calls Groq's OpenAI-compatible chat completions API.
type GroqBackend struct {
	Model      string
	apiKey     string
	chat       chatGenerator
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewGroqBackend creates a Groq backend from config. The API key is read from
// the environment variable named in cfg.
func NewGroqBackend(ctx context.Context, cfg config.GroqConfig) (*GroqBackend, error) {
	apiKey := config.Secret(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w (set %s)", ErrMissingAPIKey, cfg.APIKeyEnv)
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("groq: initializing chat model: %w", err)
	}

	return newGroqBackend(cfg.Model, apiKey, cm, newLimiter(cfg.RPM, cfg.Burst)), nil
}

func newGroqBackend(modelName, apiKey string, chat chatGenerator, limiter *rate.Limiter) *GroqBackend {
	return &GroqBackend{
		Model:      modelName,
		apiKey:     apiKey,
		chat:       chat,
		limiter:    limiter,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
}

func newLimiter(rpm, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

func (g *GroqBackend) Name() string { return ProviderGroq }

// IsConfigured checks if the API key is set.
func (g *GroqBackend) IsConfigured() bool {
	return g.apiKey != ""
}

// Generate sends a prompt to Groq. Groq has no schema-constrained decoding,
// so a schema is appended to the prompt and fences are stripped from the reply.
// Rate limited requests are retried with exponential backoff.
func (g *GroqBackend) Generate(ctx context.Context, prompt string, format Schema) (string, error) {
	messages := []*schema.Message{}
	if len(format) > 0 {
		messages = append(messages, &schema.Message{
			Role:    schema.System,
			Content: "You are a JSON generator. Output only a JSON object.",
		})
		prompt = prompt + "\n\nRespond only with JSON matching this schema:\n" + string(format)
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: prompt})

	var lastErr error
	for i := 0; i <= g.maxRetries; i++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := g.chat.Generate(ctx, messages)
		if err != nil {
			if isRateLimited(err) && i < g.maxRetries {
				lastErr = err
				delay := g.baseDelay * time.Duration(1<<i)
				logger.Log.Warnf("Groq rate limited, retrying in %v (%d/%d)", delay, i+1, g.maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return "", fmt.Errorf("groq API error: %w", err)
		}

		content := resp.Content
		if len(format) > 0 {
			content = StripCodeFence(content)
		}
		return content, nil
	}
	return "", fmt.Errorf("groq API error: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

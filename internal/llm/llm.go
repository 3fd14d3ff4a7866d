package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// Provider names accepted by ForProvider, matched case-insensitively.
const (
	ProviderOllama = "Ollama"
	ProviderGroq   = "Groq"
)

// ErrUnknownProvider is returned by ForProvider for names it does not recognise.
var ErrUnknownProvider = errors.New("unknown model provider")

// Schema is a JSON Schema document constraining a structured response.
// A nil Schema requests free-form text.
type Schema = json.RawMessage

// Backend is a language model that turns a prompt into text.
type Backend interface {
	Generate(ctx context.Context, prompt string, schema Schema) (string, error)
	Name() string
	IsConfigured() bool
}

// BackendError reports a failed model call during a pipeline stage.
type BackendError struct {
	Stage    string
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s backend: %v", e.Stage, e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// WrapError wraps err as a BackendError for the given stage. A nil err stays nil.
func WrapError(stage string, b Backend, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	name := "unknown"
	if b != nil {
		name = b.Name()
	}
	return &BackendError{Stage: stage, Provider: name, Err: err}
}

// ProviderNames lists the selectable providers in display order.
func ProviderNames() []string {
	return []string{ProviderOllama, ProviderGroq}
}

// NormalizeProvider maps a user supplied provider name to its canonical
// spelling. An empty name resolves to fallback.
func NormalizeProvider(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	switch strings.ToLower(name) {
	case "ollama":
		return ProviderOllama, nil
	case "groq":
		return ProviderGroq, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// ForProvider creates the backend named by name, or the configured default
// when name is empty.
func ForProvider(cfg *config.Config, name string) (Backend, error) {
	canonical, err := NormalizeProvider(name, cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case ProviderGroq:
		b, err := NewGroqBackend(context.Background(), cfg.LLM.Groq)
		if err != nil {
			return nil, err
		}
		logger.Log.Debugf("Using Groq with model: %s", cfg.LLM.Groq.Model)
		return b, nil
	default:
		logger.Log.Debugf("Using Ollama with model: %s", cfg.LLM.Ollama.Model)
		return NewOllamaBackend(cfg.LLM.Ollama.Model, cfg.LLM.Ollama.URL), nil
	}
}

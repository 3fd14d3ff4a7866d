package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/CompanyPulse/internal/llm"
)

// mockBackend implements llm.Backend for testing.
type mockBackend struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (m *mockBackend) Generate(_ context.Context, prompt string, _ llm.Schema) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.response, m.err
}

func (m *mockBackend) Name() string       { return "Mock" }
func (m *mockBackend) IsConfigured() bool { return true }

func TestTranslateDefaultsToHindi(t *testing.T) {
	b := &mockBackend{response: " नमस्ते \n"}
	tr := NewTranslator(b, "")
	if tr.Language() != "Hindi" {
		t.Errorf("expected Hindi, got %q", tr.Language())
	}

	out, err := tr.Translate(context.Background(), "## Executive Summary\nHello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "नमस्ते" {
		t.Errorf("expected trimmed translation, got %q", out)
	}
	if !strings.Contains(b.prompt, "into Hindi") || !strings.Contains(b.prompt, "## Executive Summary\nHello") {
		t.Errorf("unexpected prompt %q", b.prompt)
	}
}

func TestTranslateCustomLanguage(t *testing.T) {
	b := &mockBackend{response: "Hola"}
	if _, err := NewTranslator(b, "Spanish").Translate(context.Background(), "Hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(b.prompt, "into Spanish") {
		t.Errorf("expected Spanish in prompt, got %q", b.prompt)
	}
}

func TestTranslateBlankSkipsBackend(t *testing.T) {
	b := &mockBackend{}
	out, err := NewTranslator(b, "Hindi").Translate(context.Background(), "  ")
	if err != nil || out != "" {
		t.Errorf("expected empty result, got %q, %v", out, err)
	}
	if b.calls != 0 {
		t.Error("expected no backend call for blank input")
	}
}

func TestTranslateWrapsBackendError(t *testing.T) {
	_, err := NewTranslator(&mockBackend{err: errors.New("timeout")}, "Hindi").Translate(context.Background(), "x")
	var be *llm.BackendError
	if !errors.As(err, &be) || be.Stage != Stage {
		t.Errorf("expected translate BackendError, got %v", err)
	}
}

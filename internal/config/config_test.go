package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Search.Provider != "tavily" {
		t.Errorf("expected search provider 'tavily', got %q", cfg.Search.Provider)
	}
	if cfg.Search.MaxResults != 10 {
		t.Errorf("expected max_results 10, got %d", cfg.Search.MaxResults)
	}
	if cfg.LLM.Ollama.Model != "llama3.2:3b" {
		t.Errorf("expected model 'llama3.2:3b', got %q", cfg.LLM.Ollama.Model)
	}
	if cfg.Analysis.MaxArticles != 5 {
		t.Errorf("expected max_articles 5, got %d", cfg.Analysis.MaxArticles)
	}
	if cfg.Report.MaxPromptChars != 8000 {
		t.Errorf("expected max_prompt_chars 8000, got %d", cfg.Report.MaxPromptChars)
	}
	if cfg.Timeouts.Classify != 120*time.Second {
		t.Errorf("expected classify timeout 120s, got %s", cfg.Timeouts.Classify)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestDefaultMatchesEmbeddedYAML(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}
	def := Default()
	if *cfg != *def {
		t.Errorf("embedded default.yaml and Default() disagree:\n yaml %+v\n code %+v", cfg, def)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  default_provider: Groq
  groq:
    model: llama-3.1-8b-instant
analysis:
  legacy_unique_topics: true
timeouts:
  speech: 5s
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.DefaultProvider != "Groq" {
		t.Errorf("expected provider 'Groq', got %q", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Groq.Model != "llama-3.1-8b-instant" {
		t.Errorf("expected groq model override, got %q", cfg.LLM.Groq.Model)
	}
	if !cfg.Analysis.LegacyUniqueTopics {
		t.Error("expected legacy_unique_topics to be true")
	}
	if cfg.Timeouts.Speech != 5*time.Second {
		t.Errorf("expected speech timeout 5s, got %s", cfg.Timeouts.Speech)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.Ollama.URL != "http://localhost:11434" {
		t.Errorf("expected default ollama url, got %q", cfg.LLM.Ollama.URL)
	}
	if cfg.LLM.Groq.APIKeyEnv != "GROQ_API_KEY" {
		t.Errorf("expected default groq key env, got %q", cfg.LLM.Groq.APIKeyEnv)
	}
	if cfg.Translation.Language != "Hindi" {
		t.Errorf("expected default language Hindi, got %q", cfg.Translation.Language)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("server: [unterminated")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Search.Tavily.APIKeyEnv != "TAVILY_API_KEY" {
		t.Errorf("expected tavily key env from file, got %q", cfg.Search.Tavily.APIKeyEnv)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	const name = "COMPANYPULSE_TEST_SECRET"
	os.Unsetenv(name)
	t.Cleanup(func() { os.Unsetenv(name) })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(name+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got := Secret(name); got != "from-dotenv" {
		t.Errorf("expected secret from .env, got %q", got)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	const name = "COMPANYPULSE_TEST_PRESET"
	t.Setenv(name, "from-env")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(name+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Secret(name); got != "from-env" {
		t.Errorf("expected existing environment to win, got %q", got)
	}
}

func TestLoadEnvMissingFileIsFine(t *testing.T) {
	if err := LoadEnv(t.TempDir()); err != nil {
		t.Errorf("expected no error without .env, got %v", err)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestSecretEmptyName(t *testing.T) {
	if Secret("") != "" {
		t.Error("expected empty secret for empty env name")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.AudioDir() != filepath.Join("/custom/path", "audio") {
		t.Errorf("unexpected audio dir %q", cfg.AudioDir())
	}
}

func TestVolumeLimitsAreClamped(t *testing.T) {
	tests := []struct {
		articles, results         int
		wantArticles, wantResults int
	}{
		{5, 10, 5, 10},
		{3, 4, 3, 4},
		{0, 0, MaxArticlesLimit, MaxResultsLimit},
		{-2, -1, MaxArticlesLimit, MaxResultsLimit},
		{50, 100, MaxArticlesLimit, MaxResultsLimit},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Analysis.MaxArticles = tt.articles
		cfg.Search.MaxResults = tt.results
		if got := cfg.ArticleLimit(); got != tt.wantArticles {
			t.Errorf("ArticleLimit() with max_articles %d = %d, want %d", tt.articles, got, tt.wantArticles)
		}
		if got := cfg.SearchResultLimit(); got != tt.wantResults {
			t.Errorf("SearchResultLimit() with max_results %d = %d, want %d", tt.results, got, tt.wantResults)
		}
	}
}

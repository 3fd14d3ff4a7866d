package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Search      Search      `yaml:"search"`
	LLM         LLM         `yaml:"llm"`
	Speech      Speech      `yaml:"speech"`
	Translation Translation `yaml:"translation"`
	Report      Report      `yaml:"report"`
	Analysis    Analysis    `yaml:"analysis"`
	Timeouts    Timeouts    `yaml:"timeouts"`
	Cache       Cache       `yaml:"cache"`
	Output      Output      `yaml:"output"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type Search struct {
	Provider            string        `yaml:"provider"`
	MaxResults          int           `yaml:"max_results"`
	Topic               string        `yaml:"topic"`
	Depth               string        `yaml:"depth"`
	FetchMissingContent bool          `yaml:"fetch_missing_content"`
	Tavily              TavilyConfig  `yaml:"tavily"`
	NewsAPI             NewsAPIConfig `yaml:"newsapi"`
	RSS                 RSSConfig     `yaml:"rss"`
}

type TavilyConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
}

type NewsAPIConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	DaysBack  int    `yaml:"days_back"`
}

type RSSConfig struct {
	URLTemplate string `yaml:"url_template"`
}

type LLM struct {
	DefaultProvider string       `yaml:"default_provider"`
	Ollama          OllamaConfig `yaml:"ollama"`
	Groq            GroqConfig   `yaml:"groq"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type GroqConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	RPM       int    `yaml:"rpm"`
	Burst     int    `yaml:"burst"`
}

type Speech struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Voice     string `yaml:"voice"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Translation struct {
	Language string `yaml:"language"`
}

type Report struct {
	MaxPromptChars int `yaml:"max_prompt_chars"`
}

type Analysis struct {
	MaxArticles         int  `yaml:"max_articles"`
	ClassifyConcurrency int  `yaml:"classify_concurrency"`
	LegacyUniqueTopics  bool `yaml:"legacy_unique_topics"`
}

type Timeouts struct {
	Search     time.Duration `yaml:"search"`
	Classify   time.Duration `yaml:"classify"`
	Synthesize time.Duration `yaml:"synthesize"`
	Translate  time.Duration `yaml:"translate"`
	Speech     time.Duration `yaml:"speech"`
}

type Cache struct {
	ValkeyAddress string        `yaml:"valkey_address"`
	PasswordEnv   string        `yaml:"password_env"`
	TTL           time.Duration `yaml:"ttl"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConfigDir returns the XDG config directory for companypulse.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "companypulse")
}

// DataDir returns the XDG data directory for companypulse.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "companypulse")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/companypulse/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'companypulse init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. A .env file in the same
// directory is loaded into the environment first; existing variables win.
func Load(path string) (*Config, error) {
	if err := LoadEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// LoadEnv loads dir/.env if it exists.
func LoadEnv(dir string) error {
	err := gotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	return &Config{
		Search: Search{
			Provider:            "tavily",
			MaxResults:          10,
			Topic:               "news",
			Depth:               "basic",
			FetchMissingContent: true,
			Tavily:              TavilyConfig{APIKeyEnv: "TAVILY_API_KEY"},
			NewsAPI:             NewsAPIConfig{APIKeyEnv: "NEWSAPI_KEY", DaysBack: 7},
			RSS: RSSConfig{
				URLTemplate: "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
			},
		},
		LLM: LLM{
			DefaultProvider: "Ollama",
			Ollama: OllamaConfig{
				URL:   "http://localhost:11434",
				Model: "llama3.2:3b",
			},
			Groq: GroqConfig{
				BaseURL:   "https://api.groq.com/openai/v1",
				Model:     "llama-3.3-70b-versatile",
				APIKeyEnv: "GROQ_API_KEY",
				RPM:       30,
				Burst:     1,
			},
		},
		Speech: Speech{
			Enabled:   true,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "tts-1",
			Voice:     "alloy",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Translation: Translation{Language: "Hindi"},
		Report:      Report{MaxPromptChars: 8000},
		Analysis: Analysis{
			MaxArticles:         5,
			ClassifyConcurrency: 5,
		},
		Timeouts: Timeouts{
			Search:     30 * time.Second,
			Classify:   120 * time.Second,
			Synthesize: 180 * time.Second,
			Translate:  180 * time.Second,
			Speech:     60 * time.Second,
		},
		Cache: Cache{
			PasswordEnv: "VALKEY_PASSWORD",
			TTL:         time.Hour,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// AudioDir returns the directory holding generated speech files.
func (c *Config) AudioDir() string {
	return filepath.Join(c.GetDataDir(), "audio")
}

// Upper bounds on per-analysis volume. Configured values outside
// 1..limit fall back to the limit.
const (
	MaxArticlesLimit = 5
	MaxResultsLimit  = 10
)

// ArticleLimit returns how many search results are classified per analysis.
func (c *Config) ArticleLimit() int {
	return clamp(c.Analysis.MaxArticles, MaxArticlesLimit)
}

// SearchResultLimit returns how many results to request from a search provider.
func (c *Config) SearchResultLimit() int {
	return clamp(c.Search.MaxResults, MaxResultsLimit)
}

func clamp(v, limit int) int {
	if v <= 0 || v > limit {
		return limit
	}
	return v
}

// Secret returns the value of the environment variable named envName.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrMissingSecret is returned when a required secret is absent from the environment.
var ErrMissingSecret = errors.New("missing required secret")

// Rewrite failure policies.
const (
	OnFailurePublishFallback = "publish_fallback"
	OnFailureSkip            = "skip"
)

type Config struct {
	Sources Sources `yaml:"sources"`
	Rewrite Rewrite `yaml:"rewrite"`
	Media   Media   `yaml:"media"`
	Publish Publish `yaml:"publish"`
	HTTP    HTTP    `yaml:"http"`
	Output  Output  `yaml:"output"`
	History History `yaml:"history"`

	// Secrets are never read from YAML; see ResolveSecrets.
	Secrets Secrets `yaml:"-"`
}

type Sources struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
	// Feeds maps a bucket name to an RSS/Atom URL that replaces NewsAPI for that bucket.
	Feeds      map[string]string `yaml:"feeds"`
	EnrichBody bool              `yaml:"enrich_body"`
}

type NewsAPIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Country   string `yaml:"country"`
	PageSize  int    `yaml:"page_size"`
}

type Rewrite struct {
	Provider      string  `yaml:"provider"`
	OpenAIModel   string  `yaml:"openai_model"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	OllamaModel   string  `yaml:"ollama_model"`
	OllamaURL     string  `yaml:"ollama_url"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	OnFailure     string  `yaml:"on_failure"`
}

type Media struct {
	TempDir string `yaml:"temp_dir"`
}

type Publish struct {
	APIBase        string   `yaml:"api_base"`
	SiteID         string   `yaml:"site_id"`
	TokenEnv       string   `yaml:"token_env"`
	Status         string   `yaml:"status"`
	Categories     []string `yaml:"categories"`
	RenderMarkdown bool     `yaml:"render_markdown"`
}

type HTTP struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
}

// Secrets holds the credentials resolved from the process environment.
type Secrets struct {
	NewsAPIKey string
	OpenAIKey  string
	WPToken    string
}

// ConfigDir returns the XDG config directory for autonews.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "autonews")
}

// DataDir returns the XDG data directory for autonews.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "autonews")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/autonews/config.yaml > ./config.yaml.
// An empty path with a nil error means no file was found and the
// embedded defaults apply.
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

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			NewsAPI: NewsAPIConfig{
				BaseURL:   "https://newsapi.org/v2/top-headlines",
				APIKeyEnv: "NEWS_API_KEY",
				Country:   "us",
				PageSize:  2,
			},
		},
		Rewrite: Rewrite{
			Provider:      "openai",
			OpenAIModel:   "gpt-3.5-turbo",
			OpenAIBaseURL: "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			OllamaModel:   "qwen2.5:7b",
			OllamaURL:     "http://localhost:11434",
			Temperature:   0.7,
			OnFailure:     OnFailurePublishFallback,
		},
		Publish: Publish{
			APIBase:        "https://public-api.wordpress.com/rest/v1",
			SiteID:         "241913052",
			TokenEnv:       "WP_ACCESS_TOKEN",
			Status:         "publish",
			Categories:     []string{"Daily"},
			RenderMarkdown: true,
		},
		HTTP:    HTTP{TimeoutSeconds: 15},
		History: History{Enabled: true},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Rewrite.OnFailure {
	case OnFailurePublishFallback, OnFailureSkip:
	default:
		return fmt.Errorf("invalid rewrite.on_failure %q (want %s or %s)",
			c.Rewrite.OnFailure, OnFailurePublishFallback, OnFailureSkip)
	}

	switch strings.ToLower(c.Rewrite.Provider) {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid rewrite.provider %q (want openai or ollama)", c.Rewrite.Provider)
	}

	if c.Rewrite.Temperature <= 0 || c.Rewrite.Temperature >= 2 {
		return fmt.Errorf("rewrite.temperature must be in (0, 2), got %v", c.Rewrite.Temperature)
	}
	if c.Sources.NewsAPI.PageSize < 1 {
		return fmt.Errorf("sources.newsapi.page_size must be positive, got %d", c.Sources.NewsAPI.PageSize)
	}
	if c.Publish.SiteID == "" {
		return errors.New("publish.site_id is required")
	}
	if c.HTTP.TimeoutSeconds < 1 {
		return fmt.Errorf("http.timeout_seconds must be positive, got %d", c.HTTP.TimeoutSeconds)
	}
	return nil
}

// LoadDotEnv loads environment variables from a .env file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ResolveSecrets reads every required secret through getenv. It reports all
// missing names at once, wrapped in ErrMissingSecret.
func (c *Config) ResolveSecrets(getenv func(string) string) error {
	var missing []string
	lookup := func(name string) string {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	c.Secrets.NewsAPIKey = lookup(c.Sources.NewsAPI.APIKeyEnv)
	if c.UsesOpenAI() {
		c.Secrets.OpenAIKey = lookup(c.Rewrite.APIKeyEnv)
	}
	c.Secrets.WPToken = lookup(c.Publish.TokenEnv)

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}
	return nil
}

// UsesOpenAI reports whether the rewrite step talks to the OpenAI API.
func (c *Config) UsesOpenAI() bool {
	return strings.ToLower(c.Rewrite.Provider) == "openai"
}

// Timeout returns the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetTempDir returns the directory for downloaded images.
func (c *Config) GetTempDir() string {
	if c.Media.TempDir != "" {
		return c.Media.TempDir
	}
	return os.TempDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

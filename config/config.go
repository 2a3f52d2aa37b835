// Package config loads the runtime configuration from YAML: providers and
// their credentials, the model catalog with pricing, retry policy, session
// limits and logging.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/router"
)

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig             `yaml:"logging"`
	Retry     RetryConfig               `yaml:"retry"`
	Session   SessionConfig             `yaml:"session"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    []ModelConfig             `yaml:"models"`
	// Timeout is the default spawn timeout; zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects level and format of the runtime logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig mirrors router.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// SessionConfig holds per-session limits. Zero means unbounded.
type SessionConfig struct {
	MaxAgents     int `yaml:"maxAgents"`
	MaxModelCalls int `yaml:"maxModelCalls"`
}

// ProviderConfig configures one provider. The API key is taken from APIKey,
// else from the environment variable APIKeyEnv, else from the provider's
// conventional variable (OPENAI_API_KEY, ANTHROPIC_API_KEY).
type ProviderConfig struct {
	APIKey    string       `yaml:"apiKey"`
	APIKeyEnv string       `yaml:"apiKeyEnv"`
	BaseURL   string       `yaml:"baseURL"`
	Limit     router.Limit `yaml:"limit"`
}

// ModelConfig adds or overrides a catalog entry. Prices are USD per million tokens.
type ModelConfig struct {
	ID                   string  `yaml:"id"`
	Provider             string  `yaml:"provider"`
	Endpoint             string  `yaml:"endpoint"`
	PromptPerMillion     float64 `yaml:"promptPerMillion"`
	CompletionPerMillion float64 `yaml:"completionPerMillion"`
}

// Meta converts the entry to model metadata.
func (m ModelConfig) Meta() model.Meta {
	return model.Meta{
		ID:       m.ID,
		Provider: m.Provider,
		Endpoint: m.Endpoint,
		Pricing:  model.NewPricing(m.PromptPerMillion, m.CompletionPerMillion),
	}
}

var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Default returns a configuration with both built-in providers, the default
// model catalog and the router's default retry policy.
func Default() *Config {
	policy := router.DefaultRetryPolicy()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Retry: RetryConfig{
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   policy.BaseDelay,
			MaxDelay:    policy.MaxDelay,
		},
		Providers: map[string]ProviderConfig{
			"openai":    {},
			"anthropic": {},
		},
	}
}

// Load reads and parses a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML content on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging: %v", core.ErrValidation, err)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry.maxAttempts must not be negative", core.ErrValidation)
	}
	if c.Session.MaxAgents < 0 || c.Session.MaxModelCalls < 0 {
		return fmt.Errorf("%w: session limits must not be negative", core.ErrValidation)
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" || m.Provider == "" {
			return fmt.Errorf("%w: models[%d] needs id and provider", core.ErrValidation, i)
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: model %q listed twice", core.ErrValidation, m.ID)
		}
		seen[m.ID] = true
		if m.PromptPerMillion < 0 || m.CompletionPerMillion < 0 {
			return fmt.Errorf("%w: model %q has a negative price", core.ErrValidation, m.ID)
		}
	}
	return nil
}

// APIKey resolves the credential of provider; "" when none is available.
func (c *Config) APIKey(provider string) string {
	p := c.Providers[provider]
	if p.APIKey != "" {
		return p.APIKey
	}
	env := p.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv[provider]
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Catalog returns the default models overlaid with the configured ones.
func (c *Config) Catalog() *model.Catalog {
	cat := model.NewCatalog(model.DefaultModels...)
	for _, m := range c.Models {
		cat.Add(m.Meta())
	}
	return cat
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() router.RetryPolicy {
	p := router.DefaultRetryPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay > 0 {
		p.BaseDelay = c.Retry.BaseDelay
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay
	}
	return p
}

// Logger builds the configured logger.
func (c *Config) Logger() (*logging.MeshLogger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, c.Logging.Format, false), nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentx/internal/ratelimit"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	XAPI        XAPIConfig        `yaml:"xApi"`
	Retry       RetryConfig       `yaml:"retry"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
	Collection  CollectionConfig  `yaml:"collection"`
	Publish     PublishConfig     `yaml:"publish"`
	Generation  GenerationConfig  `yaml:"generation"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AccountConfig struct {
	Username string `yaml:"username" env:"X_USERNAME"`
	// UserID is the local user the CLI acts as for stored posts and drafts.
	UserID string `yaml:"userId" env:"AGENTX_USER_ID"`
}

type CredentialsConfig struct {
	BearerToken  string    `yaml:"bearerToken" env:"X_BEARER_TOKEN"`
	AccessToken  string    `yaml:"accessToken" env:"X_ACCESS_TOKEN"`
	RefreshToken string    `yaml:"refreshToken" env:"X_REFRESH_TOKEN"`
	ExpiresAt    time.Time `yaml:"expiresAt,omitempty"`

	AnthropicAPIKey string `yaml:"anthropicApiKey" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"openaiApiKey" env:"OPENAI_API_KEY"`
	GeminiAPIKey    string `yaml:"geminiApiKey" env:"GEMINI_API_KEY"`
}

type XAPIConfig struct {
	BaseURL string        `yaml:"baseURL" env:"X_API_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"X_API_TIMEOUT"`
	// PacerRPS spaces outgoing calls in addition to admission control; 0 disables.
	PacerRPS   float64 `yaml:"pacerRps" env:"X_API_RPS"`
	PacerBurst int     `yaml:"pacerBurst" env:"X_API_BURST"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"maxRetries" env:"X_API_MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initialDelay" env:"X_API_RETRY_DELAY"`
	MaxDelay     time.Duration `yaml:"maxDelay" env:"X_API_RETRY_MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier"`
}

type RateLimitConfig struct {
	FailOpen bool   `yaml:"failOpen" env:"RATE_LIMIT_FAIL_OPEN"`
	Store    string `yaml:"store" env:"RATE_LIMIT_STORE"` // memory | redis
	RedisURL string `yaml:"redisURL" env:"REDIS_URL"`
	// Policies replace the built-in table when non-empty.
	Policies []ratelimit.Policy `yaml:"policies,omitempty"`
}

type CollectionConfig struct {
	Keywords             []string      `yaml:"keywords" env:"COLLECT_KEYWORDS" envSeparator:","`
	MinLikes             int           `yaml:"minLikes" env:"COLLECT_MIN_LIKES"`
	Language             string        `yaml:"language" env:"COLLECT_LANGUAGE"`
	MaxResultsPerKeyword int           `yaml:"maxResultsPerKeyword"`
	PageDelay            time.Duration `yaml:"pageDelay"`
	KeywordDelay         time.Duration `yaml:"keywordDelay"`
	Interval             time.Duration `yaml:"interval" env:"COLLECT_INTERVAL"`
}

type PublishConfig struct {
	WriteDelay  time.Duration `yaml:"writeDelay"`
	DeleteDelay time.Duration `yaml:"deleteDelay"`
	ThreadDelay time.Duration `yaml:"threadDelay"`
}

type GenerationConfig struct {
	Provider    string        `yaml:"provider" env:"GENERATION_PROVIDER"` // anthropic | openai | gemini
	Model       string        `yaml:"model" env:"GENERATION_MODEL"`
	BaseURL     string        `yaml:"baseURL,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	MinInterval time.Duration `yaml:"minInterval"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath" env:"AGENTX_DB_PATH"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{UserID: "local"},
		XAPI:    XAPIConfig{BaseURL: "https://api.x.com/2", Timeout: 30 * time.Second},
		Retry:   RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
		RateLimit: RateLimitConfig{
			FailOpen: true,
			Store:    "memory",
		},
		Collection: CollectionConfig{
			Keywords:             []string{"Next.js", "golang"},
			Language:             "en",
			MaxResultsPerKeyword: 100,
			PageDelay:            time.Second,
			KeywordDelay:         2 * time.Second,
			Interval:             time.Hour,
		},
		Publish: PublishConfig{WriteDelay: 5 * time.Second, DeleteDelay: 2 * time.Second, ThreadDelay: 2 * time.Second},
		Generation: GenerationConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			Temperature: 0.7,
			MaxTokens:   300,
			MinInterval: time.Second,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
		},
		Storage: StorageConfig{DBPath: "./agentx.db"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ResolveEnv overlays environment variables onto c.
func (c *Config) ResolveEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Load reads YAML config from path on top of Default, then applies the
// environment. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.ResolveEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.RateLimit.Store) {
	case "", "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			errs = append(errs, errors.New("rateLimit.redisURL is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("rateLimit.store %q is not memory or redis", c.RateLimit.Store))
	}
	for _, p := range c.RateLimit.Policies {
		if p.Endpoint == "" || p.MaxRequests <= 0 {
			errs = append(errs, fmt.Errorf("rateLimit.policies: endpoint and positive maxRequests required (%q)", p.Endpoint))
		}
	}
	switch strings.ToLower(c.Generation.Provider) {
	case "", "anthropic", "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q is not anthropic, openai or gemini", c.Generation.Provider))
	}
	if c.Retry.MaxRetries < 0 || c.Generation.MaxRetries < 0 {
		errs = append(errs, errors.New("maxRetries must not be negative"))
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be at least 1"))
	}
	if c.Collection.MinLikes < 0 {
		errs = append(errs, errors.New("collection.minLikes must not be negative"))
	}
	return errors.Join(errs...)
}

// GenerationAPIKey returns the key for the configured provider.
func (c Config) GenerationAPIKey() string {
	switch strings.ToLower(c.Generation.Provider) {
	case "openai":
		return c.Credentials.OpenAIAPIKey
	case "gemini":
		return c.Credentials.GeminiAPIKey
	default:
		return c.Credentials.AnthropicAPIKey
	}
}

// RateLimitPolicies returns the configured policies or the built-in table.
func (c Config) RateLimitPolicies() []ratelimit.Policy {
	if len(c.RateLimit.Policies) > 0 {
		out := make([]ratelimit.Policy, len(c.RateLimit.Policies))
		copy(out, c.RateLimit.Policies)
		for i := range out {
			if out[i].Window <= 0 {
				out[i].Window = ratelimit.Window
			}
		}
		return out
	}
	return ratelimit.DefaultPolicies()
}

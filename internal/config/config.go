// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.campusaid/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens, embedder
//   - Knowledge: PostgreSQL connection for the pgvector passage store
//   - Search: web-search provider credential, endpoint, domain allow-list
//   - Session: in-memory store limits and expiry
//   - Agent: tool-round ceiling and per-request deadline
//   - Server: listen address, CORS, rate limiting
//
// Sensitive values (database password, search API key) are masked in
// MarshalJSON so the config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidSessionLimits indicates the session store limits are invalid.
	ErrInvalidSessionLimits = errors.New("invalid session limits")

	// ErrInvalidToolRounds indicates the tool-round ceiling is invalid.
	ErrInvalidToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidRequestTimeout indicates the per-request deadline is invalid.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout")

	// ErrInvalidSearchMaxResults indicates the search result cap is invalid.
	ErrInvalidSearchMaxResults = errors.New("invalid search max results")
)

// Defaults that other packages reference.
const (
	// DefaultEmbedderModel is the Gemini embedder used for passage vectors.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the passages schema declares.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMaxToolRounds bounds the reasoning/tool loop per request.
	DefaultMaxToolRounds = 6

	// DefaultRequestTimeout is the deadline covering a full agent run.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultMaxSessions caps the in-memory session store.
	DefaultMaxSessions = 1000

	// DefaultSessionTimeout is the idle expiry for sessions.
	DefaultSessionTimeout = 2 * time.Hour

	// DefaultCleanupInterval is how often the background eviction sweep runs.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultContextWindow is how many history entries seed each request.
	DefaultContextWindow = 8
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// Sensitive fields are masked in MarshalJSON; update it when adding secrets.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedder used for knowledge-base passage vectors
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// System prompt override (empty = embedded default)
	PromptPath string `mapstructure:"prompt_path" json:"prompt_path"`

	// Knowledge store (PostgreSQL + pgvector)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Fallback resources surfaced when the knowledge store is unavailable
	KnowledgeFallbackURLs []string `mapstructure:"knowledge_fallback_urls" json:"knowledge_fallback_urls"`

	// Web search provider
	SearchAPIKey     string   `mapstructure:"search_api_key" json:"search_api_key"` // SENSITIVE: masked in MarshalJSON
	SearchBaseURL    string   `mapstructure:"search_base_url" json:"search_base_url"`
	SearchDomains    []string `mapstructure:"search_domains" json:"search_domains"`
	SearchMaxResults int      `mapstructure:"search_max_results" json:"search_max_results"`

	// Session memory store
	MaxSessions     int           `mapstructure:"max_sessions" json:"max_sessions"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout" json:"session_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
	ContextWindow   int           `mapstructure:"context_window" json:"context_window"`

	// Agent orchestration limits
	MaxToolRounds  int           `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// HTTP server
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".campusaid")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1500)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "campusaid")
	viper.SetDefault("postgres_password", "campusaid_dev_password")
	viper.SetDefault("postgres_db_name", "campusaid")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("knowledge_fallback_urls", []string{
		"https://www.campus.edu",
		"https://www.campus.edu/financial-aid",
		"https://www.campus.edu/admissions",
		"https://www.campus.edu/registrar",
	})

	viper.SetDefault("search_base_url", "https://api.tavily.com")
	viper.SetDefault("search_domains", []string{"campus.edu"})
	viper.SetDefault("search_max_results", 5)

	viper.SetDefault("max_sessions", DefaultMaxSessions)
	viper.SetDefault("session_timeout", DefaultSessionTimeout)
	viper.SetDefault("cleanup_interval", DefaultCleanupInterval)
	viper.SetDefault("context_window", DefaultContextWindow)

	viper.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	viper.SetDefault("request_timeout", DefaultRequestTimeout)

	viper.SetDefault("addr", "127.0.0.1:3001")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 0)
}

// bindEnvVariables binds environment variables explicitly.
//
// GEMINI_API_KEY is read directly by the Genkit plugin, not via Viper;
// its presence is checked at startup.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("search_api_key", "TAVILY_API_KEY")
	mustBind("provider", "CAMPUSAID_PROVIDER")
	mustBind("model_name", "CAMPUSAID_MODEL_NAME")
	mustBind("addr", "CAMPUSAID_ADDR")
	mustBind("cors_origins", "CAMPUSAID_CORS_ORIGINS")
	mustBind("trust_proxy", "CAMPUSAID_TRUST_PROXY")
	mustBind("rate_burst", "CAMPUSAID_RATE_BURST")
}

// parseDatabaseURL overrides the PostgreSQL settings from DATABASE_URL
// when that variable is set. Takes priority over file and defaults.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("parsing port %q: %w", port, err)
		}
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate checks configuration ranges, fail-fast at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 100_000 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("%w: max_sessions = %d", ErrInvalidSessionLimits, c.MaxSessions)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: session_timeout = %v", ErrInvalidSessionLimits, c.SessionTimeout)
	}
	if c.ContextWindow < 1 {
		return fmt.Errorf("%w: context_window = %d", ErrInvalidSessionLimits, c.ContextWindow)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidToolRounds, c.MaxToolRounds)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequestTimeout, c.RequestTimeout)
	}
	if c.SearchMaxResults < 1 || c.SearchMaxResults > 10 {
		return fmt.Errorf("%w: %d (must be in [1, 10])", ErrInvalidSearchMaxResults, c.SearchMaxResults)
	}
	return nil
}

// ConnString returns the PostgreSQL connection URL for the knowledge store.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.5-flash".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// maskedValue replaces sensitive data in serialized output.
const maskedValue = "********"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive fields masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.SearchAPIKey = maskSecret(a.SearchAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

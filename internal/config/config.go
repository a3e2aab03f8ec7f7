// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	Jira      JiraConfig
	LLM       LLMConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	HTTP      HTTPConfig

	WorklogWorkers  int
	PromptsFile     string
	ConversationLog ConversationLogConfig
}

// JiraConfig holds the ticket system location and Basic auth credentials.
type JiraConfig struct {
	Domain   string
	Email    string
	APIToken string
	Timeout  time.Duration
}

// LLMConfig selects and configures the narrative model provider.
type LLMConfig struct {
	Provider        string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	Timeout         time.Duration
}

// SessionConfig controls conversation expiry.
type SessionConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

// RateLimitConfig controls per-user chat throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// HTTPConfig holds request and streaming limits.
type HTTPConfig struct {
	MaxRequestBodySize int64
	StreamChunkSize    int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", ":memory:"),
		Jira: JiraConfig{
			Domain:   strings.TrimSpace(getEnv("JIRA_DOMAIN", "")),
			Email:    getEnv("JIRA_EMAIL", ""),
			APIToken: getEnv("JIRA_API_TOKEN", ""),
			Timeout:  getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4-turbo"),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			Timeout:         getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "@every 5m"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		HTTP: HTTPConfig{
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)),
			StreamChunkSize:    getEnvInt("STREAM_CHUNK_SIZE", 64),
		},
		WorklogWorkers: getEnvInt("WORKLOG_WORKERS", 6),
		PromptsFile:    getEnv("PROMPTS_FILE", ""),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Jira.Domain == "" {
		return fmt.Errorf("JIRA_DOMAIN cannot be empty")
	}
	if c.Jira.Email == "" || c.Jira.APIToken == "" {
		return fmt.Errorf("JIRA_EMAIL and JIRA_API_TOKEN are required")
	}
	if c.Jira.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be > 0")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=%s", ProviderOpenAI)
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=%s", ProviderAnthropic)
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepSchedule == "" {
		return fmt.Errorf("SESSION_SWEEP_SCHEDULE cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.HTTP.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	if c.HTTP.StreamChunkSize <= 0 {
		return fmt.Errorf("STREAM_CHUNK_SIZE must be > 0")
	}
	if c.WorklogWorkers <= 0 {
		return fmt.Errorf("WORKLOG_WORKERS must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins derived from FRONTEND_URL.
func (c *Config) AllowedOrigins() []string {
	origin := strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
	if origin == "" {
		return []string{"*"}
	}
	return []string{origin}
}

// JiraBaseURL returns the REST base URL for the configured Jira domain.
func (c *Config) JiraBaseURL() string {
	domain := strings.TrimRight(c.Jira.Domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

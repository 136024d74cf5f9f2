package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	CORSOrigins    []string
	AllowAnyOrigin bool
	RateLimitRPS   float64
	RateLimitBurst int

	SessionTTL            time.Duration
	SessionMaxTurns       int
	SessionSweepThreshold int
	// 0 disables the background janitor; idle sessions are then only swept
	// when the session count crosses SessionSweepThreshold.
	SessionSweepInterval time.Duration

	RetrievalTopK int

	ComposerMaxTokens    int
	ComposerTemperature  float64
	ComposerExcerptTurns int
	ComposerReplayTurns  int
	PersonaFile          string

	CompletionProvider   string
	EmbeddingProvider    string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	OpenAITimeout        time.Duration
	HashEmbeddingDim     int

	VectorStore          string
	VectorStorePath      string
	DatabaseURL          string
	KnowledgeSeedFile    string
	KnowledgeSeedOnEmpty bool

	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "deadbot"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "text")),
		CORSOrigins:      listFromEnv("APP_CORS_ORIGINS", []string{"*"}),
		ShutdownTimeout:  15 * time.Second,
		RateLimitRPS:     5,
		RateLimitBurst:   10,

		SessionTTL:            2 * time.Hour,
		SessionMaxTurns:       20,
		SessionSweepThreshold: 100,

		RetrievalTopK: 5,

		ComposerMaxTokens:    500,
		ComposerTemperature:  0.7,
		ComposerExcerptTurns: 6,
		ComposerReplayTurns:  4,
		PersonaFile:          stringsTrimSpace("CHAT_PERSONA_FILE"),

		CompletionProvider:   strings.ToLower(envOrDefault("COMPLETION_PROVIDER", "auto")),
		EmbeddingProvider:    strings.ToLower(envOrDefault("EMBEDDING_PROVIDER", "auto")),
		OpenAIAPIKey:         stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:        stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIChatModel:      envOrDefault("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAITimeout:        60 * time.Second,
		HashEmbeddingDim:     384,

		VectorStore:          strings.ToLower(envOrDefault("VECTOR_STORE", "sqlite")),
		VectorStorePath:      envOrDefault("VECTOR_STORE_PATH", "./dead_knowledge_db/knowledge.db"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		KnowledgeSeedFile:    stringsTrimSpace("KNOWLEDGE_SEED_FILE"),
		KnowledgeSeedOnEmpty: true,

		BreakerMaxFailures: 3,
		BreakerTimeout:     30 * time.Second,
	}
	cfg.AllowAnyOrigin = len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*"

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS, err = floatFromEnv("APP_RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = intFromEnv("APP_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxTurns, err = intFromEnv("SESSION_MAX_TURNS", cfg.SessionMaxTurns); err != nil {
		return Config{}, err
	}
	if cfg.SessionSweepThreshold, err = intFromEnv("SESSION_SWEEP_THRESHOLD", cfg.SessionSweepThreshold); err != nil {
		return Config{}, err
	}
	if cfg.SessionSweepInterval, err = durationFromEnv("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK); err != nil {
		return Config{}, err
	}
	if cfg.ComposerMaxTokens, err = intFromEnv("COMPOSER_MAX_TOKENS", cfg.ComposerMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.ComposerTemperature, err = floatFromEnv("COMPOSER_TEMPERATURE", cfg.ComposerTemperature); err != nil {
		return Config{}, err
	}
	if cfg.ComposerExcerptTurns, err = intFromEnv("COMPOSER_EXCERPT_TURNS", cfg.ComposerExcerptTurns); err != nil {
		return Config{}, err
	}
	if cfg.ComposerReplayTurns, err = intFromEnv("COMPOSER_REPLAY_TURNS", cfg.ComposerReplayTurns); err != nil {
		return Config{}, err
	}
	if cfg.OpenAITimeout, err = durationFromEnv("OPENAI_TIMEOUT", cfg.OpenAITimeout); err != nil {
		return Config{}, err
	}
	if cfg.HashEmbeddingDim, err = intFromEnv("HASH_EMBEDDING_DIM", cfg.HashEmbeddingDim); err != nil {
		return Config{}, err
	}
	if cfg.KnowledgeSeedOnEmpty, err = boolFromEnv("KNOWLEDGE_SEED_ON_EMPTY", cfg.KnowledgeSeedOnEmpty); err != nil {
		return Config{}, err
	}
	if cfg.BreakerMaxFailures, err = intFromEnv("BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return Config{}, err
	}
	if cfg.BreakerTimeout, err = durationFromEnv("BREAKER_TIMEOUT", cfg.BreakerTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; callers that
// build a Config by hand may call it too.
func (c Config) Validate() error {
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least 1m")
	}
	if c.SessionMaxTurns <= 0 {
		return fmt.Errorf("SESSION_MAX_TURNS must be positive")
	}
	if c.SessionSweepThreshold < 0 {
		return fmt.Errorf("SESSION_SWEEP_THRESHOLD must be >= 0")
	}
	if c.SessionSweepInterval < 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be >= 0")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if c.ComposerMaxTokens <= 0 {
		return fmt.Errorf("COMPOSER_MAX_TOKENS must be positive")
	}
	if c.ComposerTemperature < 0 || c.ComposerTemperature > 2 {
		return fmt.Errorf("COMPOSER_TEMPERATURE must be within [0, 2]")
	}
	if c.ComposerExcerptTurns < 0 {
		return fmt.Errorf("COMPOSER_EXCERPT_TURNS must be >= 0")
	}
	if c.ComposerReplayTurns < 0 {
		return fmt.Errorf("COMPOSER_REPLAY_TURNS must be >= 0")
	}
	if c.HashEmbeddingDim <= 0 {
		return fmt.Errorf("HASH_EMBEDDING_DIM must be positive")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("APP_RATE_LIMIT_BURST must be >= 0")
	}
	if c.BreakerMaxFailures <= 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be positive")
	}
	switch c.VectorStore {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when VECTOR_STORE=postgres")
		}
	default:
		return fmt.Errorf("invalid VECTOR_STORE: %q (expected memory|sqlite|postgres)", c.VectorStore)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid APP_LOG_FORMAT: %q (expected text|json)", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// Package config loads the process configuration from the environment into
// one explicit struct. Nothing else in the codebase reads environment
// variables directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alchemy-app/backend/internal/utils"
)

type Config struct {
	ServerPort string
	DataDir    string
	JWTSecret  string
	TokenTTL   time.Duration

	// HistoryBackend selects where conversations persist: "file" or "mongo".
	HistoryBackend string
	// SettingsBackend selects where settings persist: "file" or "redis".
	SettingsBackend string

	PostgresDSN string
	Postgres    PostgresConfig
	Mongo       MongoConfig
	RedisAddr   string

	OpenAI OpenAIConfig
	Speech SpeechConfig

	LocalModelPath string

	Logging utils.LoggingConfig
}

type PostgresConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type OpenAIConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type SpeechConfig struct {
	RecognizerEndpoint string
	TTSEndpoint        string
	APIKey             string
	SampleRate         int
	SilenceTimeout     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		ServerPort: envOrDefault("PORT", "8080"),
		DataDir:    envOrDefault("DATA_DIR", "data"),
		JWTSecret:  envOrDefault("JWT_SECRET", "dev-secret"),
		TokenTTL:   parseDuration(envOrDefault("TOKEN_TTL", "24h"), 24*time.Hour),

		HistoryBackend:  strings.ToLower(envOrDefault("HISTORY_BACKEND", "file")),
		SettingsBackend: strings.ToLower(envOrDefault("SETTINGS_BACKEND", "file")),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		Postgres: PostgresConfig{
			MaxConns:          parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8),
			MinConns:          parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1),
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            os.Getenv("MONGO_URI"),
			Database:       envOrDefault("MONGO_DATABASE", "alchemy"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		RedisAddr: os.Getenv("REDIS_ADDR"),

		OpenAI: OpenAIConfig{
			Endpoint:    envOrDefault("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: parseFloat(envOrDefault("OPENAI_TEMPERATURE", "0.7"), 0.7),
			MaxTokens:   parseInt(envOrDefault("OPENAI_MAX_TOKENS", "1024"), 1024),
		},
		Speech: SpeechConfig{
			RecognizerEndpoint: os.Getenv("SPEECH_ASR_ENDPOINT"),
			TTSEndpoint:        envOrDefault("SPEECH_TTS_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:             os.Getenv("SPEECH_API_KEY"),
			SampleRate:         parseInt(envOrDefault("SPEECH_SAMPLE_RATE", "16000"), 16000),
			SilenceTimeout:     parseDuration(envOrDefault("SPEECH_SILENCE_TIMEOUT", "1800ms"), 1800*time.Millisecond),
		},

		LocalModelPath: os.Getenv("LOCAL_MODEL_PATH"),

		Logging: utils.LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
			Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
			ServiceName:  envOrDefault("SERVICE_NAME", "alchemy-backend"),
		},
	}

	if cfg.Speech.APIKey == "" {
		cfg.Speech.APIKey = cfg.OpenAI.APIKey
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.HistoryBackend != "file" && c.HistoryBackend != "mongo" {
		return fmt.Errorf("config: unknown history backend %q", c.HistoryBackend)
	}
	if c.SettingsBackend != "file" && c.SettingsBackend != "redis" {
		return fmt.Errorf("config: unknown settings backend %q", c.SettingsBackend)
	}
	if c.HistoryBackend == "mongo" && strings.TrimSpace(c.Mongo.URI) == "" {
		return fmt.Errorf("config: MONGO_URI is required for the mongo history backend")
	}
	if c.SettingsBackend == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("config: REDIS_ADDR is required for the redis settings backend")
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

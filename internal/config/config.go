package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL string

	OllamaURL         string
	OllamaModel       string
	OllamaModelFamily string

	AnthropicAPIKey       string
	AnthropicFastModel    string
	AnthropicQualityModel string

	WorldFile  string
	MemoryDB   string
	ArchiveDir string

	DecisionInitialDelay time.Duration
	DecisionPeriod       time.Duration
	DecisionJitter       float64
	WalkStepDelay        time.Duration
	ThoughtDuration      time.Duration
	WorkChance           float64
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3.2:3b"),
		OllamaModelFamily: getEnv("OLLAMA_MODEL_FAMILY", "llama"),

		AnthropicAPIKey:       os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicFastModel:    getEnv("ANTHROPIC_FAST_MODEL", "claude-3-5-haiku-latest"),
		AnthropicQualityModel: getEnv("ANTHROPIC_QUALITY_MODEL", "claude-sonnet-4-5"),

		WorldFile:  os.Getenv("WORLD_FILE"),
		MemoryDB:   getEnv("MEMORY_DB", "data/arq.db"),
		ArchiveDir: getEnv("ARCHIVE_DIR", "data/archive"),
	}

	var err error
	if cfg.DecisionInitialDelay, err = getDuration("DECISION_INITIAL_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DecisionPeriod, err = getDuration("DECISION_PERIOD", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.WalkStepDelay, err = getDuration("WALK_STEP_DELAY", 400*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ThoughtDuration, err = getDuration("THOUGHT_DURATION", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.DecisionJitter, err = getFraction("DECISION_JITTER", 0.5); err != nil {
		return nil, err
	}
	if cfg.WorkChance, err = getFraction("WORK_CHANCE", 0.3); err != nil {
		return nil, err
	}

	if cfg.DecisionPeriod <= 0 {
		return nil, fmt.Errorf("DECISION_PERIOD must be positive, got %s", cfg.DecisionPeriod)
	}
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, d)
	}
	return d, nil
}

// getFraction parses a value in [0, 1].
func getFraction(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s: %v is outside [0, 1]", key, f)
	}
	return f, nil
}

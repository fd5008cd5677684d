package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath      string
	OutputDir   string
	ProfilePath string
	LogLevel    string

	GeminiAPIKey      string
	GeminiModel       string
	SemanticEnabled   bool
	JudgeBatchSize    int
	JudgeBatchDelayMs int
	JudgeTimeoutMs    int
	JudgeRateLimitRPS int
	JudgeCache        bool

	BrowserBin        string
	BrowserHeadless   bool
	LoadTimeoutMs     int
	LoadQuietMs       int
	LoadReadySelector string

	ImportAPIBaseURL   string
	ImportAPIToken     string
	ImportTimeoutMs    int
	ImportRateLimitRPS int

	SweepIntervalSec int

	OrientationSample   int
	MinSwapVotes        int
	NameSimilarityFloor float64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "articulator.db")),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ProfilePath: getEnv("PROFILE_PATH", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		SemanticEnabled:   getEnvBool("SEMANTIC_ENABLED", false),
		JudgeBatchSize:    getEnvInt("JUDGE_BATCH_SIZE", 5),
		JudgeBatchDelayMs: getEnvInt("JUDGE_BATCH_DELAY_MS", 1000),
		JudgeTimeoutMs:    getEnvInt("JUDGE_TIMEOUT_MS", 20000),
		JudgeRateLimitRPS: getEnvInt("JUDGE_RATE_LIMIT_RPS", 5),
		JudgeCache:        getEnvBool("JUDGE_CACHE", true),

		BrowserBin:        getEnv("BROWSER_BIN", ""),
		BrowserHeadless:   getEnvBool("BROWSER_HEADLESS", true),
		LoadTimeoutMs:     getEnvInt("LOAD_TIMEOUT_MS", 45000),
		LoadQuietMs:       getEnvInt("LOAD_QUIET_MS", 2000),
		LoadReadySelector: getEnv("LOAD_READY_SELECTOR", "#root, body"),

		ImportAPIBaseURL:   getEnv("IMPORT_API_BASE_URL", ""),
		ImportAPIToken:     getEnv("IMPORT_API_TOKEN", ""),
		ImportTimeoutMs:    getEnvInt("IMPORT_TIMEOUT_MS", 30000),
		ImportRateLimitRPS: getEnvInt("IMPORT_RATE_LIMIT_RPS", 2),

		SweepIntervalSec: getEnvInt("SWEEP_INTERVAL_SEC", 86400),

		OrientationSample:   getEnvInt("ORIENTATION_SAMPLE", 10),
		MinSwapVotes:        getEnvInt("MIN_SWAP_VOTES", 1),
		NameSimilarityFloor: getEnvFloat("NAME_SIMILARITY_FLOOR", 0.35),
	}

	if cfg.JudgeBatchSize < 1 {
		cfg.JudgeBatchSize = 1
	}
	if cfg.JudgeBatchSize > 10 {
		cfg.JudgeBatchSize = 10
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

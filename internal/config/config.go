package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required for translation)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
//
// Tier Configuration:
// - TIER_CHEAP_MODEL: Model for the cheap tier (default: openai/gpt-3.5-turbo)
// - TIER_EXPENSIVE_MODEL: Model for the expensive tier (default: openai/gpt-4)
// - TIER_CHEAP_INPUT_COST / TIER_CHEAP_OUTPUT_COST: USD per 1K tokens
// - TIER_EXPENSIVE_INPUT_COST / TIER_EXPENSIVE_OUTPUT_COST: USD per 1K tokens
//
// Pipeline Configuration:
// - WORK_DIR: Root for job artifacts (default: ./work)
// - BATCH_SIZE: Segments per batch file (default: 100)
// - CHECKPOINT_INTERVAL: Checkpoint every N completed segments (default: 10)
// - WORKERS: Parallel segment workers, clamped to [1,4] (default: 2)
// - MAX_RETRIES: Attempts per segment before flagging it failed (default: 3)
// - CACHE_PERSIST_INTERVAL: Persist cache every N puts (default: 10)
// - DRAIN_GRACE_SECONDS: Shutdown drain budget (default: 10)
//
// Router Configuration:
// - ROUTER_LENGTH_THRESHOLD: Rune count counted as long (default: 120)
// - ROUTER_KEYTERM_THRESHOLD: Key terms counted as term-dense (default: 2)
// - ROUTER_CHEAP_MAX: Scores below stay on the cheap tier (default: 0.7)
// - ROUTER_EXPENSIVE_MIN: Scores at or above go expensive (default: 0.7)
//
// Transcription Configuration:
// - WHISPER_BIN: Whisper-compatible CLI binary (default: whisper)
// - WHISPER_MODEL: Model name passed to the CLI (default: large-v3)
// - SOURCE_LANGUAGE: Expected source language (default: th)
//
// Media / Watch Configuration:
// - MOVIE_DIR, TELEPLAY_DIR, DOCUMENTARY_DIR: Directories scanned in
//   watch mode (empty directories are skipped)
// - CRON_EXPR: Watch scan schedule (default: 0 * * * *)
// - TARGET_LANGUAGE: BCP-47 tag of the translation target (default: en)
//
// Storage / API Configuration:
// - DB_PATH: SQLite database path (default: <WORK_DIR>/segtrans.db)
// - HTTP_ADDR: Listen address for the status API (default: :8066)
// - TERM_MAP_PATH: Optional terminology JSON file

type Config struct {
	LLM        LLMConfig        `json:"llm"`
	Tiers      TierConfig       `json:"tiers"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Router     RouterConfig     `json:"router"`
	Transcribe TranscribeConfig `json:"transcribe"`
	Media      MediaConfig      `json:"media"`
	Translate  TranslateConfig  `json:"translate"`
	Storage    StorageConfig    `json:"storage"`
	HTTP       HTTPConfig       `json:"http"`
}

// LLMConfig holds the configuration for the LLM client.
// Supports any OpenAI-compatible provider.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// TierConfig names the model and per-1K-token pricing behind each
// processing tier.
type TierConfig struct {
	CheapModel          string  `json:"cheap_model"`
	ExpensiveModel      string  `json:"expensive_model"`
	CheapInputCost      float64 `json:"cheap_input_cost"`
	CheapOutputCost     float64 `json:"cheap_output_cost"`
	ExpensiveInputCost  float64 `json:"expensive_input_cost"`
	ExpensiveOutputCost float64 `json:"expensive_output_cost"`
}

// PipelineConfig holds the orchestration knobs.
type PipelineConfig struct {
	WorkDir              string `json:"work_dir"`
	BatchSize            int    `json:"batch_size"`
	CheckpointInterval   int    `json:"checkpoint_interval"`
	Workers              int    `json:"workers"`
	MaxRetries           int    `json:"max_retries"`
	CachePersistInterval int    `json:"cache_persist_interval"`
	DrainGraceSeconds    int    `json:"drain_grace_seconds"`
}

// RouterConfig holds the complexity scoring thresholds. The ladder
// cutoffs are policy knobs, not hard rules.
type RouterConfig struct {
	LengthThreshold  int     `json:"length_threshold"`
	KeyTermThreshold int     `json:"keyterm_threshold"`
	CheapMax         float64 `json:"cheap_max"`
	ExpensiveMin     float64 `json:"expensive_min"`
}

type TranscribeConfig struct {
	WhisperBin     string `json:"whisper_bin"`
	WhisperModel   string `json:"whisper_model"`
	SourceLanguage string `json:"source_language"`
}

// MediaConfig holds the directories scanned in watch mode.
type MediaConfig struct {
	MovieDir       string `json:"movie_dir"`
	TeleplayDir    string `json:"teleplay_dir"`
	DocumentaryDir string `json:"documentary_dir"`
}

func (c MediaConfig) MediaPaths() []string {
	ret := make([]string, 0)
	if c.MovieDir != "" {
		ret = append(ret, c.MovieDir)
	}
	if c.TeleplayDir != "" {
		ret = append(ret, c.TeleplayDir)
	}
	if c.DocumentaryDir != "" {
		ret = append(ret, c.DocumentaryDir)
	}
	return ret
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	CronExpr       string       `json:"cron_expr"`
	TermMapPath    string       `json:"term_map_path"`
}

type StorageConfig struct {
	DBPath string `json:"db_path"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithWorkDir(dir string) Option {
	return func(c *Config) { c.Pipeline.WorkDir = dir }
}

func WithWorkers(n int) Option {
	return func(c *Config) { c.Pipeline.Workers = n }
}

func WithTargetLanguage(tag language.Tag) Option {
	return func(c *Config) { c.Translate.TargetLanguage = tag }
}

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	target, err := language.Parse(getEnvString("TARGET_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANGUAGE: %w", err)
	}

	workDir := getEnvString("WORK_DIR", "./work")

	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Tiers: TierConfig{
			CheapModel:          getEnvString("TIER_CHEAP_MODEL", "openai/gpt-3.5-turbo"),
			ExpensiveModel:      getEnvString("TIER_EXPENSIVE_MODEL", "openai/gpt-4"),
			CheapInputCost:      getEnvFloat("TIER_CHEAP_INPUT_COST", 0.0005),
			CheapOutputCost:     getEnvFloat("TIER_CHEAP_OUTPUT_COST", 0.0015),
			ExpensiveInputCost:  getEnvFloat("TIER_EXPENSIVE_INPUT_COST", 0.01),
			ExpensiveOutputCost: getEnvFloat("TIER_EXPENSIVE_OUTPUT_COST", 0.03),
		},
		Pipeline: PipelineConfig{
			WorkDir:              workDir,
			BatchSize:            getEnvInt("BATCH_SIZE", 100),
			CheckpointInterval:   getEnvInt("CHECKPOINT_INTERVAL", 10),
			Workers:              getEnvInt("WORKERS", 2),
			MaxRetries:           getEnvInt("MAX_RETRIES", 3),
			CachePersistInterval: getEnvInt("CACHE_PERSIST_INTERVAL", 10),
			DrainGraceSeconds:    getEnvInt("DRAIN_GRACE_SECONDS", 10),
		},
		Router: RouterConfig{
			LengthThreshold:  getEnvInt("ROUTER_LENGTH_THRESHOLD", 120),
			KeyTermThreshold: getEnvInt("ROUTER_KEYTERM_THRESHOLD", 2),
			CheapMax:         getEnvFloat("ROUTER_CHEAP_MAX", 0.7),
			ExpensiveMin:     getEnvFloat("ROUTER_EXPENSIVE_MIN", 0.7),
		},
		Transcribe: TranscribeConfig{
			WhisperBin:     getEnvString("WHISPER_BIN", "whisper"),
			WhisperModel:   getEnvString("WHISPER_MODEL", "large-v3"),
			SourceLanguage: getEnvString("SOURCE_LANGUAGE", "th"),
		},
		Media: MediaConfig{
			MovieDir:       getEnvString("MOVIE_DIR", ""),
			TeleplayDir:    getEnvString("TELEPLAY_DIR", ""),
			DocumentaryDir: getEnvString("DOCUMENTARY_DIR", ""),
		},
		Translate: TranslateConfig{
			TargetLanguage: target,
			CronExpr:       getEnvString("CRON_EXPR", "0 * * * *"),
			TermMapPath:    getEnvString("TERM_MAP_PATH", ""),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", workDir+"/segtrans.db"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8066"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Pipeline.WorkDir == "" {
		return fmt.Errorf("WORK_DIR is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.Pipeline.CheckpointInterval <= 0 {
		return fmt.Errorf("CHECKPOINT_INTERVAL must be positive")
	}
	if c.Pipeline.Workers < 1 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.Workers > 4 {
		c.Pipeline.Workers = 4
	}
	if c.Router.ExpensiveMin < c.Router.CheapMax {
		return fmt.Errorf("ROUTER_EXPENSIVE_MIN must not be below ROUTER_CHEAP_MAX")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

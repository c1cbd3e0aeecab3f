package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/pranot/segtrans/pkg/file"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// Bounds for the runtime-adjustable worker pool.
const (
	minWorkers = 1
	maxWorkers = 4
)

// RuntimeSettings is the operator-editable subset of the configuration.
// It overlays the env-derived Config and can be updated while the
// service is running.
type RuntimeSettings struct {
	LLMAPIURL      string `json:"llm_api_url"`
	LLMAPIKey      string `json:"llm_api_key"`
	CheapModel     string `json:"cheap_model"`
	ExpensiveModel string `json:"expensive_model"`
	CronExpr       string `json:"cron_expr"`
	TargetLanguage string `json:"target_language"`
	Workers        int    `json:"workers"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"llm_api_url", s.LLMAPIURL},
		{"llm_api_key", s.LLMAPIKey},
		{"cheap_model", s.CheapModel},
		{"expensive_model", s.ExpensiveModel},
		{"cron_expr", s.CronExpr},
		{"target_language", s.TargetLanguage},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.field)
		}
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	if s.Workers < minWorkers || s.Workers > maxWorkers {
		return fmt.Errorf("workers must be between %d and %d", minWorkers, maxWorkers)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:      c.LLM.APIURL,
		LLMAPIKey:      c.LLM.APIKey,
		CheapModel:     c.Tiers.CheapModel,
		ExpensiveModel: c.Tiers.ExpensiveModel,
		CronExpr:       c.Translate.CronExpr,
		TargetLanguage: c.Translate.TargetLanguage.String(),
		Workers:        c.Pipeline.Workers,
	}
}

// WithRuntimeSettings overlays non-empty settings fields onto the
// env-derived config. Empty fields keep whatever the environment gave.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	overlay := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	return func(c *Config) {
		overlay(&c.LLM.APIURL, settings.LLMAPIURL)
		overlay(&c.LLM.APIKey, settings.LLMAPIKey)
		overlay(&c.Tiers.CheapModel, settings.CheapModel)
		overlay(&c.Tiers.ExpensiveModel, settings.ExpensiveModel)
		overlay(&c.Translate.CronExpr, settings.CronExpr)
		if tag, err := language.Parse(settings.TargetLanguage); err == nil {
			c.Translate.TargetLanguage = tag
		}
		if settings.Workers >= minWorkers && settings.Workers <= maxWorkers {
			c.Pipeline.Workers = settings.Workers
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("parse settings file: %w", err)
	}
	return settings, nil
}

// WriteRuntimeSettingsFile persists settings as indented JSON. The write
// is atomic so a crash mid-update never leaves a truncated settings file.
func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteAtomic(path, append(content, '\n'), 0o600)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is empty")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}

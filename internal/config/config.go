// Package config loads and validates the application configuration: backend
// selection and credentials, storage location, and generation limits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend    BackendConfig    `yaml:"backend" validate:"required"`
	Store      StoreConfig      `yaml:"store"`
	Generation GenerationConfig `yaml:"generation"`
	Limits     Limits           `yaml:"limits"`
}

// BackendConfig selects and configures the text-generation provider. APIKey
// is resolved from the environment when the file carries a placeholder.
type BackendConfig struct {
	Kind    string `yaml:"kind" validate:"required,oneof=openai ollama"`
	Model   string `yaml:"model" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
	APIKey  string `yaml:"api_key"`

	// Timeout is the per-request ceiling in seconds.
	Timeout int `yaml:"timeout" validate:"required,min=10,max=3600"`

	ContextWindow int `yaml:"context_window" validate:"omitempty,min=1024"`
}

type StoreConfig struct {
	// Dir is where story documents are persisted. Empty means in-memory only.
	Dir string `yaml:"dir"`
}

// GenerationConfig carries the orchestrator defaults. Every value can still
// be overridden per call.
type GenerationConfig struct {
	Complexity       string  `yaml:"complexity" validate:"omitempty,oneof=simple standard complex literary"`
	TargetWordCount  int     `yaml:"target_word_count" validate:"omitempty,min=1500,max=5000"`
	QualityThreshold float64 `yaml:"quality_threshold" validate:"omitempty,gt=0,lte=1"`
	QualityGate      bool    `yaml:"quality_gate"`
}

// Load reads the config file, applies environment overrides, fills defaults,
// and validates. A missing file is not an error: defaults target a local
// Ollama instance so the tool works without any setup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := configPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default targets a local Ollama instance, which needs no credentials.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:    "ollama",
			Model:   "llama3",
			BaseURL: "http://localhost:11434",
			Timeout: 300,
		},
		Generation: GenerationConfig{
			Complexity:       "standard",
			TargetWordCount:  2500,
			QualityThreshold: 0.7,
			QualityGate:      true,
		},
		Limits: DefaultLimits(),
	}
}

func configPath() string {
	if path := os.Getenv("NOVELFORGE_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "novelforge", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "novelforge", "config.yaml")
}

func (c *Config) applyEnv() {
	if c.Backend.APIKey == "" || strings.HasPrefix(c.Backend.APIKey, "${") {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Backend.APIKey = key
		} else {
			c.Backend.APIKey = ""
		}
	}
	if url := os.Getenv("NOVELFORGE_BASE_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if model := os.Getenv("NOVELFORGE_MODEL"); model != "" {
		c.Backend.Model = model
	}
}

func (c *Config) validate() error {
	if c.Generation.Complexity == "" {
		c.Generation.Complexity = "standard"
	}
	if c.Generation.TargetWordCount == 0 {
		c.Generation.TargetWordCount = 2500
	}
	if c.Generation.QualityThreshold == 0 {
		c.Generation.QualityThreshold = 0.7
	}
	if c.Limits.AttemptCap == 0 {
		c.Limits = DefaultLimits()
	}
	if c.Store.Dir != "" {
		c.Store.Dir = expandTilde(c.Store.Dir)
	}

	// OpenAI-compatible endpoints need credentials; Ollama does not.
	if c.Backend.Kind == "openai" && c.Backend.APIKey == "" {
		return fmt.Errorf("config validation failed: backend %q requires an api_key (or OPENAI_API_KEY)", c.Backend.Kind)
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// expandTilde expands a leading ~/ to the user's home directory.
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

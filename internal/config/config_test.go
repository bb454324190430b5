package config

import (
	"strings"
	"testing"
)

func validOpenAI() Config {
	return Config{
		Backend: BackendConfig{
			Kind:    "openai",
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
			APIKey:  "sk-1234567890abcdef1234567890abcdef",
			Timeout: 120,
		},
		Generation: GenerationConfig{
			Complexity:       "standard",
			TargetWordCount:  2500,
			QualityThreshold: 0.7,
		},
		Limits: DefaultLimits(),
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid openai config",
			mutate: func(*Config) {},
		},
		{
			name:    "openai requires api key",
			mutate:  func(c *Config) { c.Backend.APIKey = "" },
			wantErr: true,
			errMsg:  "api_key",
		},
		{
			name: "ollama needs no api key",
			mutate: func(c *Config) {
				c.Backend.Kind = "ollama"
				c.Backend.BaseURL = "http://localhost:11434"
				c.Backend.APIKey = ""
			},
		},
		{
			name:    "unknown backend kind",
			mutate:  func(c *Config) { c.Backend.Kind = "bedrock" },
			wantErr: true,
			errMsg:  "Kind",
		},
		{
			name:    "invalid base URL",
			mutate:  func(c *Config) { c.Backend.BaseURL = "not-a-url" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "timeout too high",
			mutate:  func(c *Config) { c.Backend.Timeout = 4000 },
			wantErr: true,
			errMsg:  "Timeout",
		},
		{
			name:    "unknown complexity tier",
			mutate:  func(c *Config) { c.Generation.Complexity = "baroque" },
			wantErr: true,
			errMsg:  "Complexity",
		},
		{
			name:    "target word count below floor",
			mutate:  func(c *Config) { c.Generation.TargetWordCount = 500 },
			wantErr: true,
			errMsg:  "TargetWordCount",
		},
		{
			name:    "target word count above ceiling",
			mutate:  func(c *Config) { c.Generation.TargetWordCount = 9000 },
			wantErr: true,
			errMsg:  "TargetWordCount",
		},
		{
			name:    "rate limit too high",
			mutate:  func(c *Config) { c.Limits.RateLimit.RequestsPerMinute = 5000 },
			wantErr: true,
			errMsg:  "RequestsPerMinute",
		},
		{
			name:    "attempt cap too high",
			mutate:  func(c *Config) { c.Limits.AttemptCap = 50 },
			wantErr: true,
			errMsg:  "AttemptCap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validOpenAI()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Errorf("Default() should validate, got: %v", err)
	}
	if cfg.Backend.Kind != "ollama" {
		t.Errorf("default backend = %q, want local ollama", cfg.Backend.Kind)
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Config{
		Backend: BackendConfig{
			Kind:    "ollama",
			Model:   "llama3",
			BaseURL: "http://localhost:11434",
			Timeout: 300,
		},
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Generation.TargetWordCount != 2500 || cfg.Generation.Complexity != "standard" {
		t.Errorf("generation defaults not filled: %+v", cfg.Generation)
	}
	if cfg.Limits.AttemptCap != 3 {
		t.Errorf("limits defaults not filled: %+v", cfg.Limits)
	}
}

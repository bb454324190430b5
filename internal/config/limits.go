package config

import "time"

// Limits bounds retries, rate, and pacing for one process.
type Limits struct {
	// AttemptCap bounds transient retries and quality regenerations per
	// request.
	AttemptCap int `yaml:"attempt_cap" validate:"required,min=1,max=10"`

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `yaml:"backoff_base" validate:"omitempty,min=100ms,max=1m"`

	RateLimit RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		AttemptCap:  3,
		BackoffBase: 2 * time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         15,
		},
	}
}

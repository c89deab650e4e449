package config

import (
	"fmt"
	"time"
)

// SourcesConfig is the `sources:` section of the engine document: one entry
// per data source family, each wrapping the C1 reliability primitives that
// protect it.
type SourcesConfig map[string]SourceConfig

// SourceConfig configures the reliability envelope around a single data
// source (market/on-chain/social provider).
type SourceConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Cache     CacheConfig     `yaml:"cache"`
	SLA       SLAConfig       `yaml:"sla"`
}

// RateLimitConfig configures the token-bucket limiter for a source.
type RateLimitConfig struct {
	Capacity      int     `yaml:"capacity"`
	RefillPerSec  float64 `yaml:"refill_per_s"`
	AcquireWaitMS int     `yaml:"acquire_wait_ms"`
}

// BreakerConfig configures the circuit breaker for a source.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	OpenDurationS    int `yaml:"open_duration_s"`
}

// CacheMode selects the eviction/refresh strategy for a source's cache.
type CacheMode string

const (
	CacheModeTTL      CacheMode = "ttl"
	CacheModeAdaptive CacheMode = "adaptive"
)

// CacheConfig configures the response cache for a source.
type CacheConfig struct {
	Mode        CacheMode `yaml:"mode"`
	TTLSeconds  int       `yaml:"ttl_s"`
	TTLMinS     int       `yaml:"ttl_min_s"`
	TTLMaxS     int       `yaml:"ttl_max_s"`
	MaxEntries  int       `yaml:"max_entries"`
	HotWindowS  int       `yaml:"hot_window_s"`
	HotThreshold float64  `yaml:"hot_threshold"`
}

// SLAConfig configures the freshness registry's enforcement for a source.
type SLAConfig struct {
	MaxAgeS              int `yaml:"max_age_s"`
	UpdateFrequencySecs  int `yaml:"update_frequency_s"`
}

func (r RateLimitConfig) AcquireTimeout() time.Duration {
	return time.Duration(r.AcquireWaitMS) * time.Millisecond
}

func (b BreakerConfig) OpenDuration() time.Duration {
	return time.Duration(b.OpenDurationS) * time.Second
}

func (c CacheConfig) TTL() time.Duration      { return time.Duration(c.TTLSeconds) * time.Second }
func (c CacheConfig) TTLMin() time.Duration   { return time.Duration(c.TTLMinS) * time.Second }
func (c CacheConfig) TTLMax() time.Duration   { return time.Duration(c.TTLMaxS) * time.Second }
func (c CacheConfig) HotWindow() time.Duration {
	if c.HotWindowS <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.HotWindowS) * time.Second
}
func (c CacheConfig) HotThresholdOrDefault() float64 {
	if c.HotThreshold <= 0 {
		return 0.5
	}
	return c.HotThreshold
}

func (s SLAConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeS) * time.Second
}
func (s SLAConfig) UpdateFrequency() time.Duration {
	return time.Duration(s.UpdateFrequencySecs) * time.Second
}

// Validate checks each source's sub-configs for internal consistency.
func (sc SourcesConfig) Validate() error {
	for name, src := range sc {
		if src.RateLimit.Capacity <= 0 {
			return fmt.Errorf("source %s: rate_limit.capacity must be positive", name)
		}
		if src.RateLimit.RefillPerSec <= 0 {
			return fmt.Errorf("source %s: rate_limit.refill_per_s must be positive", name)
		}
		if src.Breaker.FailureThreshold <= 0 {
			return fmt.Errorf("source %s: breaker.failure_threshold must be positive", name)
		}
		if src.Breaker.OpenDurationS <= 0 {
			return fmt.Errorf("source %s: breaker.open_duration_s must be positive", name)
		}
		switch src.Cache.Mode {
		case CacheModeTTL:
			if src.Cache.TTLSeconds <= 0 {
				return fmt.Errorf("source %s: cache.ttl_s must be positive in ttl mode", name)
			}
		case CacheModeAdaptive:
			if src.Cache.TTLMinS <= 0 || src.Cache.TTLMaxS <= src.Cache.TTLMinS {
				return fmt.Errorf("source %s: cache.ttl_min_s/ttl_max_s invalid in adaptive mode", name)
			}
		default:
			return fmt.Errorf("source %s: cache.mode must be %q or %q", name, CacheModeTTL, CacheModeAdaptive)
		}
		if src.SLA.UpdateFrequencySecs <= 0 {
			return fmt.Errorf("source %s: sla.update_frequency_s must be positive", name)
		}
	}
	return nil
}

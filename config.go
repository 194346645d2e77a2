package bentengo

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "200ms" or "2h" (bare integers
// are read as nanoseconds, matching time.Duration).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the file-based client configuration, for deployments that prefer
// a config file over wiring functional options in code. Zero values fall back
// to the same defaults the functional options use.
type Config struct {
	Timeout        Duration           `yaml:"timeout"`
	Retry          RetryConfig        `yaml:"retry"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`
	CircuitBreaker CircuitConfig      `yaml:"circuit_breaker"`
	Fallback       FallbackFileConfig `yaml:"fallback"`
	Health         HealthConfig       `yaml:"health"`
	Deduplication  bool               `yaml:"deduplication"`
	Metrics        bool               `yaml:"metrics"`
	Debug          bool               `yaml:"debug"`
}

// RetryConfig holds retry and backoff settings.
type RetryConfig struct {
	MaxRetries     int      `yaml:"max_retries"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	JitterMax      Duration `yaml:"jitter_max"`
	Classes        string   `yaml:"classes"` // e.g. "network,server_error,throttled"
}

// RateLimitConfig holds sliding-window admission settings.
type RateLimitConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// CircuitConfig holds circuit breaker settings.
type CircuitConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
}

// FallbackFileConfig holds fallback store settings.
type FallbackFileConfig struct {
	Enabled  bool     `yaml:"enabled"`
	TTL      Duration `yaml:"ttl"`
	QueueCap int      `yaml:"queue_cap"`
	Dir      string   `yaml:"dir"` // when set, snapshots persist under this directory
}

// HealthConfig holds health monitor settings.
type HealthConfig struct {
	Interval     Duration            `yaml:"interval"`
	ProbeTimeout Duration            `yaml:"probe_timeout"`
	GraceDelay   Duration            `yaml:"grace_delay"`
	Targets      []HealthTargetEntry `yaml:"targets"`
}

// HealthTargetEntry is one probe target in the config file.
type HealthTargetEntry struct {
	Name    string  `yaml:"name"`
	URL     string  `yaml:"url"`
	Weight  float64 `yaml:"weight"`
	Primary bool    `yaml:"primary"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if cfg.Retry.Classes != "" {
		if _, err := ParseRetryClasses(cfg.Retry.Classes); err != nil {
			return fmt.Errorf("retry.classes: %w", err)
		}
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must be non-negative")
	}
	for i, t := range cfg.Health.Targets {
		if t.URL == "" {
			return fmt.Errorf("health.targets[%d].url is required", i)
		}
	}
	return nil
}

// Options converts the config into functional options for New.
func (cfg *Config) Options() []Option {
	var opts []Option

	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.Timeout)))
	}
	if cfg.Retry.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(cfg.Retry.MaxRetries))
	}
	if cfg.Retry.InitialBackoff > 0 {
		opts = append(opts, WithInitialBackoff(time.Duration(cfg.Retry.InitialBackoff)))
	}
	if cfg.Retry.MaxBackoff > 0 {
		opts = append(opts, WithMaxBackoff(time.Duration(cfg.Retry.MaxBackoff)))
	}
	if cfg.Retry.JitterMax > 0 {
		opts = append(opts, WithJitterMax(time.Duration(cfg.Retry.JitterMax)))
	}
	if cfg.Retry.Classes != "" {
		if classes, err := ParseRetryClasses(cfg.Retry.Classes); err == nil {
			opts = append(opts, WithRetryClasses(classes))
		}
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, WithRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.Window)))
	}
	if cfg.CircuitBreaker.FailureThreshold > 0 || cfg.CircuitBreaker.RecoveryTimeout > 0 {
		opts = append(opts, WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.CircuitBreaker.RecoveryTimeout),
		}))
	}
	if cfg.Fallback.Enabled {
		opts = append(opts, WithFallback(time.Duration(cfg.Fallback.TTL)))
		if cfg.Fallback.QueueCap > 0 {
			opts = append(opts, WithOfflineQueueCap(cfg.Fallback.QueueCap))
		}
		if cfg.Fallback.Dir != "" {
			opts = append(opts, WithKeyValueStore(NewFileStore(cfg.Fallback.Dir)))
		}
	}
	if len(cfg.Health.Targets) > 0 {
		targets := make([]ProbeTarget, len(cfg.Health.Targets))
		for i, t := range cfg.Health.Targets {
			targets[i] = ProbeTarget{Name: t.Name, URL: t.URL, Weight: t.Weight, Primary: t.Primary}
		}
		opts = append(opts, WithHealthMonitor(HealthMonitorConfig{
			Targets:      targets,
			Interval:     time.Duration(cfg.Health.Interval),
			ProbeTimeout: time.Duration(cfg.Health.ProbeTimeout),
			GraceDelay:   time.Duration(cfg.Health.GraceDelay),
		}))
	}
	if cfg.Deduplication {
		opts = append(opts, WithDeduplication())
	}
	if cfg.Metrics {
		opts = append(opts, WithMetrics())
	}
	if cfg.Debug {
		opts = append(opts, WithSimpleLogger())
	}

	return opts
}

// NewFromConfig constructs a Client from a parsed config plus any extra
// options (extras win on conflict).
func NewFromConfig(cfg *Config, extra ...Option) *Client {
	return New(append(cfg.Options(), extra...)...)
}

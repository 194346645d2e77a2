package bentengo

import (
	"fmt"
	"net/http"
	"time"

	internalbackoff "github.com/danuwira/bentengo/internal/backoff"
)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitterMax bounds the random addition applied to each backoff delay.
func WithJitterMax(d time.Duration) Option {
	return func(c *Client) {
		if d < 0 {
			d = 0
		}
		c.jitterMax = d
	}
}

// WithBackoffStrategy replaces the backoff calculation algorithm.
func WithBackoffStrategy(s internalbackoff.Strategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithRetryClasses sets which outcome classes are retried.
func WithRetryClasses(classes RetryClass) Option {
	return func(c *Client) {
		c.retryClasses = classes
	}
}

// WithRateLimiter enables the sliding-window rate limiter.
func WithRateLimiter(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(RateLimiterConfig{MaxRequests: maxRequests, Window: window})
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithFallback enables the fallback store with the given TTL for last-good
// read responses.
func WithFallback(ttl time.Duration) Option {
	return func(c *Client) {
		c.fallbackEnabled = true
		c.fallbackConfig.TTL = ttl
	}
}

// WithOfflineQueueCap bounds the offline write queue (oldest dropped on
// overflow).
func WithOfflineQueueCap(cap int) Option {
	return func(c *Client) {
		c.fallbackEnabled = true
		c.fallbackConfig.QueueCap = cap
	}
}

// WithKeyValueStore injects the persistence layer for fallback snapshots.
func WithKeyValueStore(store KeyValueStore) Option {
	return func(c *Client) {
		c.kvStore = store
	}
}

// WithHealthMonitor configures periodic backend probing.
func WithHealthMonitor(config HealthMonitorConfig) Option {
	return func(c *Client) {
		cfg := config
		if cfg.OnUpdate == nil && c.monitorConfig != nil {
			cfg.OnUpdate = c.monitorConfig.OnUpdate
		}
		c.monitorConfig = &cfg
	}
}

// WithHealthUpdateHandler registers a callback invoked with every health
// snapshot. Implies health monitoring; combine with WithHealthMonitor to
// configure probe targets.
func WithHealthUpdateHandler(fn func(HealthSnapshot)) Option {
	return func(c *Client) {
		if c.monitorConfig == nil {
			c.monitorConfig = &HealthMonitorConfig{}
		}
		c.monitorConfig.OnUpdate = fn
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if c.httpClient != nil && c.timeout != 0 {
			c.httpClient.Timeout = c.timeout
		}
	}
}

// WithMetrics enables Prometheus metrics collection on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDeduplication coalesces concurrent identical in-flight reads.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = NewDeduplicationTracker()
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// Per-request option helpers.

// WithRequestRetries overrides the retry budget for one request.
func WithRequestRetries(n int) RequestOption {
	return func(ro *RequestOptions) {
		ro.MaxRetries = n
	}
}

// WithRequestBackoff overrides backoff bounds for one request.
func WithRequestBackoff(initial, max time.Duration) RequestOption {
	return func(ro *RequestOptions) {
		ro.InitialBackoff = initial
		ro.MaxBackoff = max
	}
}

// WithRequestRetryClasses overrides the retryable classes for one request.
func WithRequestRetryClasses(classes RetryClass) RequestOption {
	return func(ro *RequestOptions) {
		ro.RetryClasses = classes
	}
}

// WithRequestFallback toggles fallback lookup for one request.
func WithRequestFallback(allow bool) RequestOption {
	return func(ro *RequestOptions) {
		ro.AllowFallback = allow
	}
}

// WithRequestRateLimit toggles rate-limit admission for one request.
func WithRequestRateLimit(enabled bool) RequestOption {
	return func(ro *RequestOptions) {
		ro.RateLimit = enabled
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateRateLimiterConfig()...)
	problems = append(problems, c.validateFallbackConfig()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateMiddlewareConfig()...)
	problems = append(problems, c.validateHTTPClientConfig()...)
	problems = append(problems, c.validateExtremeValues()...)

	if len(problems) > 0 {
		return &RequestError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.maxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.backoffMultiplier <= 0 {
		problems = append(problems, "backoffMultiplier must be positive")
	}
	if c.jitterMax < 0 {
		problems = append(problems, "jitterMax must be non-negative")
	}
	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}

	return problems
}

func (c *Client) validateRateLimiterConfig() []string {
	var problems []string

	if c.rateLimiter != nil {
		if c.rateLimiter.config.MaxRequests <= 0 {
			problems = append(problems, "rateLimiter maxRequests must be positive")
		}
		if c.rateLimiter.config.Window <= 0 {
			problems = append(problems, "rateLimiter window must be positive")
		}
	}

	return problems
}

func (c *Client) validateFallbackConfig() []string {
	var problems []string

	if c.fallback != nil {
		if c.fallback.ttl <= 0 {
			problems = append(problems, "fallback TTL must be positive")
		}
		if c.fallback.cap <= 0 {
			problems = append(problems, "fallback queue cap must be positive")
		}
	}

	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

func (c *Client) validateMiddlewareConfig() []string {
	var problems []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return problems
}

func (c *Client) validateHTTPClientConfig() []string {
	var problems []string

	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}

	return problems
}

func (c *Client) validateExtremeValues() []string {
	var problems []string

	if c.maxRetries > 100 {
		problems = append(problems, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.initialBackoff > 10*time.Minute {
		problems = append(problems, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		problems = append(problems, "maxBackoff > 1h may cause extremely long delays")
	}
	if c.timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}
	if c.rateLimiter != nil && c.rateLimiter.config.MaxRequests > 1000000 {
		problems = append(problems, "rateLimiter maxRequests > 1M may cause memory issues")
	}
	if c.fallback != nil && c.fallback.ttl > 24*time.Hour {
		problems = append(problems, "fallback TTL > 24h may cause stale data issues")
	}

	return problems
}

package bentengo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	internalbackoff "github.com/danuwira/bentengo/internal/backoff"
)

// Client is the resilient request orchestrator. It wires rate limiting,
// circuit breaking, exponential backoff with additive jitter and fallback
// lookup into a single call path around the standard net/http Client. A
// Client owns all per-endpoint state and is safe for concurrent use.
type Client struct {
	httpClient        *http.Client
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitterMax         time.Duration
	timeout           time.Duration
	retryClasses      RetryClass
	backoffStrategy   internalbackoff.Strategy
	circuitBreaker    *CircuitBreaker
	rateLimiter       *RateLimiter
	fallback          *FallbackStore
	fallbackEnabled   bool
	fallbackConfig    FallbackConfig
	kvStore           KeyValueStore
	monitor           *HealthMonitor
	monitorConfig     *HealthMonitorConfig
	middleware        []Middleware
	metrics           *MetricsCollector
	debug             *DebugConfig
	logger            Logger
	dedup             *DeduplicationTracker
	validationError   error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitterMax:         time.Second,
		timeout:           30 * time.Second,
		retryClasses:      DefaultRetryClasses,
		backoffStrategy:   internalbackoff.ExponentialAdditiveJitterStrategy{},
		circuitBreaker:    NewCircuitBreaker(CircuitBreakerConfig{}),
		rateLimiter:       nil,
		fallbackEnabled:   false,
		middleware:        []Middleware{},
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.fallbackEnabled && client.fallback == nil {
		client.fallback = NewFallbackStore(client.fallbackConfig, client.kvStore)
	}
	if client.monitorConfig != nil && client.monitor == nil {
		client.monitor = newHealthMonitor(*client.monitorConfig, client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// EndpointKey derives the logical route identifier used as the unit of
// circuit, rate and fallback state: method plus path.
func EndpointKey(req *http.Request) string {
	if req.URL == nil {
		return req.Method + " unknown"
	}
	path := req.URL.Path
	if path == "" {
		path = "/"
	}
	return req.Method + " " + path
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, opts...)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader, opts ...RequestOption) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req, opts...)
}

// Do executes a prepared *http.Request applying all reliability features.
// Attempts for one call are strictly sequential; calls for different endpoint
// keys are fully independent.
func (c *Client) Do(req *http.Request, opts ...RequestOption) (*Response, error) {
	start := time.Now()
	endpoint := EndpointKey(req)

	ro := c.defaultRequestOptions()
	for _, opt := range opts {
		opt(&ro)
	}

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "endpoint", endpoint)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
	}

	dedupEnabled := c.dedup != nil && isReadMethod(req.Method) && req.URL != nil

	var isDedupOwner bool
	var dedupKey string
	var dedupCompleted bool
	if dedupEnabled {
		dedupKey = req.Method + " " + req.URL.String()
		entry, owner := c.dedup.GetOrCreateEntry(dedupKey)
		isDedupOwner = owner

		if !isDedupOwner {
			resp, err := entry.Wait(req.Context())
			if c.metrics != nil {
				c.metrics.RecordRequestEnd(req.Method, endpoint)
				c.metrics.RecordDeduplicationHit(req.Method, endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.logger != nil {
				c.logger.Debug("Deduplication hit", "requestID", requestID, "dedupKey", dedupKey)
			}
			return resp, err
		}

		// Release waiters even if the attempt below panics; otherwise they
		// block in Wait until their contexts end.
		defer func() {
			if !dedupCompleted {
				c.dedup.Complete(dedupKey, nil, &RequestError{
					Type:      ErrorTypeNetwork,
					Message:   "request aborted before completion",
					RequestID: requestID,
				})
			}
		}()
	}

	resp, err := c.doWithRetry(req, ro, 0, requestID, start)

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(req.Method, endpoint)

		duration := time.Since(start)
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)
	}

	if dedupEnabled && isDedupOwner {
		c.dedup.Complete(dedupKey, resp, err)
		dedupCompleted = true
	}

	return resp, err
}

func (c *Client) defaultRequestOptions() RequestOptions {
	return RequestOptions{
		MaxRetries:     c.maxRetries,
		InitialBackoff: c.initialBackoff,
		MaxBackoff:     c.maxBackoff,
		RetryClasses:   c.retryClasses,
		AllowFallback:  c.fallback != nil,
		RateLimit:      c.rateLimiter != nil,
	}
}

func (c *Client) doWithRetry(req *http.Request, ro RequestOptions, attempt int, requestID string, startTime time.Time) (*Response, error) {
	endpoint := EndpointKey(req)

	// Rate and circuit state is re-checked on every attempt.
	if ro.RateLimit && c.rateLimiter != nil && !c.rateLimiter.Allow(endpoint) {
		wait := c.rateLimiter.TimeUntilReset(endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("Rate limit exceeded", "requestID", requestID, "endpoint", endpoint, "retryAfter", wait)
		}
		if c.metrics != nil {
			c.metrics.RecordError(ErrorTypeRateLimit, req.Method, endpoint)
			c.metrics.RecordRateLimitDenied(endpoint)
		}
		reqErr := c.newRequestError(ErrorTypeRateLimit, "rate limit exceeded", nil, requestID, req, attempt, startTime)
		reqErr.RetryAfter = wait
		return nil, reqErr
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow(endpoint) {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint)
		}
		if c.metrics != nil {
			c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, endpoint)
		}
		if ro.AllowFallback && c.fallback != nil {
			if payload, ok := c.fallback.Get(endpoint); ok {
				if c.metrics != nil {
					c.metrics.RecordFallbackServe(endpoint, SourceFallback)
				}
				if c.debug != nil && c.debug.Enabled && c.debug.LogFallback && c.logger != nil {
					c.logger.Info("Serving fallback data", "requestID", requestID, "endpoint", endpoint)
				}
				return &Response{
					StatusCode: http.StatusOK,
					Body:       payload,
					Source:     SourceFallback,
					Attempts:   attempt,
					Endpoint:   endpoint,
				}, nil
			}
		}
		return nil, c.newRequestError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, requestID, req, attempt, startTime)
	}

	if attempt > 0 {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", ro.MaxRetries, "endpoint", endpoint)
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(req.Method, endpoint, attempt)
		}
		if req.GetBody != nil {
			if body, err := req.GetBody(); err == nil {
				req.Body = body
			}
		}
	}

	httpResp, err := c.executeMiddleware(req)

	var body []byte
	statusCode := 0
	header := http.Header{}
	if httpResp != nil {
		statusCode = httpResp.StatusCode
		header = httpResp.Header
		body, err = readBody(httpResp, err)
	}

	if err == nil && statusCode < 400 {
		c.circuitBreaker.RecordSuccess(endpoint)
		if c.metrics != nil {
			c.metrics.RecordCircuitBreakerState(endpoint, c.circuitBreaker.State(endpoint))
		}
		if c.fallback != nil && isReadMethod(req.Method) {
			c.fallback.Store(endpoint, body)
		}
		return &Response{
			StatusCode: statusCode,
			Header:     header,
			Body:       body,
			Source:     SourceLive,
			Attempts:   attempt + 1,
			Endpoint:   endpoint,
		}, nil
	}

	// Failed outcome: classify, then either schedule a retry or settle. A
	// failed half-open trial re-opens the circuit immediately so subsequent
	// attempts short-circuit instead of hammering the endpoint.
	class := Classify(statusCode, err)
	trialFailed := c.circuitBreaker.State(endpoint) == StateHalfOpen
	if trialFailed {
		c.circuitBreaker.RecordFailure(endpoint)
		if c.metrics != nil {
			c.metrics.RecordCircuitBreakerState(endpoint, c.circuitBreaker.State(endpoint))
		}
	}
	if ro.RetryClasses.Retryable(class) && attempt < ro.MaxRetries {
		delay := parseRetryAfter(header.Get("Retry-After"))
		if delay == 0 {
			delay = c.backoffStrategy.Calculate(attempt, ro.InitialBackoff, ro.MaxBackoff, c.backoffMultiplier, c.jitterMax)
		}

		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}

		if sleepErr := sleepContext(req.Context(), delay); sleepErr != nil {
			err = sleepErr
		} else {
			return c.doWithRetry(req, ro, attempt+1, requestID, startTime)
		}
	}

	if !trialFailed {
		c.circuitBreaker.RecordFailure(endpoint)
	}
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(endpoint, c.circuitBreaker.State(endpoint))
		c.metrics.RecordError(outcomeErrorType(statusCode, err), req.Method, endpoint)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
		if err != nil {
			c.logger.Warn("Failure recorded", "requestID", requestID, "endpoint", endpoint, "error", err.Error())
		} else {
			c.logger.Warn("Failure recorded", "requestID", requestID, "endpoint", endpoint, "statusCode", statusCode)
		}
	}

	if ro.AllowFallback && c.fallback != nil {
		if payload, ok := c.fallback.Get(endpoint); ok {
			if c.metrics != nil {
				c.metrics.RecordFallbackServe(endpoint, SourceStale)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogFallback && c.logger != nil {
				c.logger.Info("Serving stale data after exhausted retries", "requestID", requestID, "endpoint", endpoint)
			}
			return &Response{
				StatusCode: http.StatusOK,
				Body:       payload,
				Source:     SourceStale,
				Attempts:   attempt + 1,
				Endpoint:   endpoint,
			}, nil
		}
	}

	// A write that never got a transport response is queued for replay; the
	// caller learns the operation is pending, not failed.
	if err != nil && c.fallback != nil && !isReadMethod(req.Method) {
		c.enqueueWrite(req, endpoint)
		if c.metrics != nil {
			c.metrics.RecordQueueDepth(c.fallback.QueueLen())
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogFallback && c.logger != nil {
			c.logger.Info("Write queued for replay", "requestID", requestID, "endpoint", endpoint, "queueDepth", c.fallback.QueueLen())
		}
		return &Response{
			Source:   SourceQueued,
			Attempts: attempt + 1,
			Endpoint: endpoint,
		}, nil
	}

	errType := outcomeErrorType(statusCode, err)
	reqErr := c.newRequestError(errType, outcomeErrorMessage(errType, statusCode), err, requestID, req, attempt+1, startTime)
	reqErr.StatusCode = statusCode
	reqErr.MaxRetries = ro.MaxRetries
	return nil, reqErr
}

// enqueueWrite captures enough of the request to rebuild it during a drain.
func (c *Client) enqueueWrite(req *http.Request, endpoint string) {
	var payload []byte
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			payload, _ = io.ReadAll(body)
			body.Close()
		}
	}
	c.fallback.EnqueueWrite(QueuedWrite{
		Endpoint:    endpoint,
		Method:      req.Method,
		URL:         req.URL.String(),
		ContentType: req.Header.Get("Content-Type"),
		Payload:     payload,
	})
}

// replayQueuedWrite delivers one queued write with a single transport attempt,
// bypassing the retry pipeline so a drain pass never compounds backoff.
func (c *Client) replayQueuedWrite(ctx context.Context, w QueuedWrite) error {
	var body io.Reader
	if len(w.Payload) > 0 {
		body = bytes.NewReader(w.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, body)
	if err != nil {
		return err
	}
	if w.ContentType != "" {
		req.Header.Set("Content-Type", w.ContentType)
	}

	resp, err := c.executeMiddleware(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("replay %s %s: status %d", w.Method, w.URL, resp.StatusCode)
	}

	c.circuitBreaker.RecordSuccess(w.Endpoint)
	return nil
}

// DrainQueue replays all queued offline writes once, sequentially. The health
// monitor calls this on each healthy tick; it is exported so callers can force
// a drain (e.g. after a manual connectivity check).
func (c *Client) DrainQueue(ctx context.Context) int {
	if c.fallback == nil {
		return 0
	}
	settled := c.fallback.DrainQueue(ctx, c.replayQueuedWrite)
	if c.metrics != nil {
		c.metrics.RecordDrainedWrites(settled)
		c.metrics.RecordQueueDepth(c.fallback.QueueLen())
	}
	return settled
}

// Start launches background health monitoring, if configured.
func (c *Client) Start() {
	if c.monitor != nil {
		c.monitor.Start()
	}
}

// Close stops monitoring and attempts a best-effort flush of any buffered
// offline writes before returning.
func (c *Client) Close() {
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.fallback != nil && c.fallback.QueueLen() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.DrainQueue(ctx)
	}
}

// Health returns the health monitor, or nil when monitoring is not configured.
func (c *Client) Health() *HealthMonitor {
	return c.monitor
}

// CircuitBreaker exposes the breaker for observability consumers.
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

// RateLimiter exposes the limiter for observability consumers. May be nil.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Fallback exposes the fallback store for observability consumers. May be nil.
func (c *Client) Fallback() *FallbackStore {
	return c.fallback
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func (c *Client) newRequestError(errorType, message string, cause error, requestID string, req *http.Request, attempt int, startTime time.Time) *RequestError {
	return &RequestError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        req.URL.String(),
		Endpoint:   EndpointKey(req),
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Timestamp:  time.Now(),
		Duration:   time.Since(startTime),
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// readBody drains and buffers the response body. A read failure is treated
// like a transport failure.
func readBody(resp *http.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	return body, nil
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outcomeErrorType(statusCode int, err error) string {
	if err != nil {
		if isTimeout(err) {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}
	if statusCode >= 500 {
		return ErrorTypeServer
	}
	return ErrorTypeClient
}

func outcomeErrorMessage(errType string, statusCode int) string {
	switch errType {
	case ErrorTypeTimeout:
		return "request timed out"
	case ErrorTypeNetwork:
		return "network request failed"
	case ErrorTypeServer:
		return fmt.Sprintf("upstream error: status %d", statusCode)
	default:
		return fmt.Sprintf("request rejected: status %d", statusCode)
	}
}

// isTimeout reports whether the error is a deadline expiry; expiry is treated
// identically to a network failure for retry classification.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

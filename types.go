package bentengo

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Middleware represents a middleware function applied around each transport attempt.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ResponseSource indicates where a response came from.
type ResponseSource int

const (
	// SourceLive is a response produced by a successful transport call.
	SourceLive ResponseSource = iota
	// SourceFallback is cached data served because the circuit was open.
	SourceFallback
	// SourceStale is cached data served after live attempts were exhausted.
	SourceStale
	// SourceQueued marks a write that was accepted into the offline queue
	// instead of being delivered.
	SourceQueued
)

// String returns the source name for logging and labels.
func (s ResponseSource) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceFallback:
		return "fallback"
	case SourceStale:
		return "stale"
	case SourceQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Response is the result of an orchestrated request. The body is fully read
// and buffered so it can be cached, replayed and shared between de-duplicated
// callers.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     ResponseSource
	Attempts   int
	Endpoint   string
}

// Degraded reports whether the response was served from the fallback store
// rather than a live transport call.
func (r *Response) Degraded() bool {
	return r.Source == SourceFallback || r.Source == SourceStale
}

// Option represents a client configuration option.
type Option func(*Client)

// RequestOptions override client defaults for a single request.
type RequestOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RetryClasses   RetryClass
	AllowFallback  bool
	RateLimit      bool
}

// RequestOption mutates per-request options.
type RequestOption func(*RequestOptions)

// DebugConfig controls debug logging output per feature.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogFallback  bool
	LogRateLimit bool
	LogCircuit   bool
	LogHealth    bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a debug configuration with all features enabled
// and UUID request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogFallback:  true,
		LogRateLimit: true,
		LogCircuit:   true,
		LogHealth:    true,
		RequestIDGen: DefaultRequestIDGen,
	}
}

// DefaultRequestIDGen generates a random UUID request identifier.
func DefaultRequestIDGen() string {
	return uuid.NewString()
}

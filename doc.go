// Package bentengo provides a resilient request layer for client applications
// that talk to unreliable backends. It composes:
//
//   - Retries with exponential backoff + additive jitter
//   - Per-endpoint sliding-window rate limiting
//   - Per-endpoint circuit breaker (open / half-open / closed states)
//   - Fallback store: TTL-bounded last-good responses + a bounded offline write queue
//   - Health monitor with weighted composite scoring and queue draining on recovery
//   - Request de-duplication (merges concurrent identical in-flight reads)
//   - Middleware chain for cross-cutting concerns (auth, logging, tracing, etc.)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - A Client owns all per-endpoint state; construct a fresh one per test
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable store / metrics
//
// Typical usage:
//
//	client := bentengo.New(
//	    bentengo.WithMaxRetries(3),
//	    bentengo.WithRateLimiter(100, time.Minute),
//	    bentengo.WithFallback(time.Hour),
//	    bentengo.WithCircuitBreaker(bentengo.CircuitBreakerConfig{}),
//	)
//	api := bentengo.NewFacade(client, "https://app.example.com", "https://tools.example.com")
//	job, err := api.SubmitAnalysisJob(ctx, bentengo.AnalysisRequest{Input: "..."})
//
// Reads degrade gracefully to last-known-good data (explicitly marked stale)
// whenever a fallback entry exists; undeliverable writes are queued and replayed
// by the health monitor once the primary backend recovers.
package bentengo

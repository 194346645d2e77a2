package bentengo

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryClass is a tagged set of retryable outcome classes. Representing retry
// eligibility as a value instead of a predicate keeps policies serializable
// and independently testable.
type RetryClass uint8

const (
	// RetryNetwork covers transport errors and timeouts (no response observed).
	RetryNetwork RetryClass = 1 << iota
	// RetryServerError covers 5xx responses.
	RetryServerError
	// RetryThrottled covers 429 responses.
	RetryThrottled
)

// DefaultRetryClasses retries on missing response, 5xx and 429. Other 4xx
// responses are never retried.
const DefaultRetryClasses = RetryNetwork | RetryServerError | RetryThrottled

var retryClassNames = []struct {
	class RetryClass
	name  string
}{
	{RetryNetwork, "network"},
	{RetryServerError, "server_error"},
	{RetryThrottled, "throttled"},
}

// String renders the class set as a comma-separated list, e.g.
// "network,server_error,throttled".
func (c RetryClass) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, rc := range retryClassNames {
		if c&rc.class != 0 {
			parts = append(parts, rc.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseRetryClasses parses the String form back into a class set.
func ParseRetryClasses(s string) (RetryClass, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return 0, nil
	}
	var c RetryClass
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		matched := false
		for _, rc := range retryClassNames {
			if part == rc.name {
				c |= rc.class
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("unknown retry class %q", part)
		}
	}
	return c, nil
}

// Classify maps a transport outcome onto its retry class. A zero return means
// the outcome is never retryable.
func Classify(statusCode int, err error) RetryClass {
	if err != nil {
		return RetryNetwork
	}
	if statusCode == http.StatusTooManyRequests {
		return RetryThrottled
	}
	if statusCode >= 500 {
		return RetryServerError
	}
	return 0
}

// Retryable reports whether an outcome of the given class should be retried
// under this policy.
func (c RetryClass) Retryable(class RetryClass) bool {
	return class != 0 && c&class != 0
}

// parseRetryAfter parses the Retry-After header value. It supports both
// delay-seconds format and HTTP-date format, capped at 1 hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

package bentengo

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       RetryClass
	}{
		{"transport error", 0, errors.New("connection refused"), RetryNetwork},
		{"throttled", http.StatusTooManyRequests, nil, RetryThrottled},
		{"server error", http.StatusInternalServerError, nil, RetryServerError},
		{"bad gateway", http.StatusBadGateway, nil, RetryServerError},
		{"client error", http.StatusBadRequest, nil, 0},
		{"not found", http.StatusNotFound, nil, 0},
		{"success", http.StatusOK, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.statusCode, tt.err); got != tt.want {
				t.Errorf("Classify(%d, %v) = %v, want %v", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	policy := RetryNetwork | RetryServerError

	if !policy.Retryable(RetryNetwork) {
		t.Error("Expected network outcomes retryable under policy")
	}
	if policy.Retryable(RetryThrottled) {
		t.Error("Expected throttled outcomes not retryable when the class is absent")
	}
	if policy.Retryable(0) {
		t.Error("Expected the zero class never retryable")
	}
	if RetryClass(0).Retryable(RetryNetwork) {
		t.Error("Expected the empty policy to retry nothing")
	}
}

func TestRetryClassStringParseRoundTrip(t *testing.T) {
	tests := []RetryClass{
		0,
		RetryNetwork,
		RetryThrottled,
		RetryNetwork | RetryServerError,
		DefaultRetryClasses,
	}

	for _, c := range tests {
		parsed, err := ParseRetryClasses(c.String())
		if err != nil {
			t.Errorf("ParseRetryClasses(%q) error: %v", c.String(), err)
			continue
		}
		if parsed != c {
			t.Errorf("round trip of %q = %v, want %v", c.String(), parsed, c)
		}
	}
}

func TestParseRetryClassesErrors(t *testing.T) {
	if _, err := ParseRetryClasses("network,bogus"); err == nil {
		t.Error("Expected error for unknown retry class")
	}
	if c, err := ParseRetryClasses(" network , throttled "); err != nil || c != RetryNetwork|RetryThrottled {
		t.Errorf("Expected whitespace-tolerant parsing, got %v, %v", c, err)
	}
	if c, err := ParseRetryClasses(""); err != nil || c != 0 {
		t.Errorf("Expected empty string to parse as zero, got %v, %v", c, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"capped at an hour", "7200", time.Hour},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	if got <= 0 || got > 91*time.Second {
		t.Errorf("parseRetryAfter(%q) = %v, want ~90s", future, got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}

package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDoDoesNotRetryNonHTTPError(t *testing.T) {
	attempts := 0
	plain := errors.New("connection refused")
	_, err := RetryDo(context.Background(), DefaultRetryConfig(), func() (string, error) {
		attempts++
		return "", plain
	})
	if !errors.Is(err, plain) {
		t.Fatalf("expected the original error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retries for a non-HTTPError, got %d attempts", attempts)
	}
}

func TestRetryDoDoesNotRetryNonRetryableStatus(t *testing.T) {
	attempts := 0
	_, err := RetryDo(context.Background(), DefaultRetryConfig(), func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 400, Body: "bad request"}
	})
	if err == nil {
		t.Fatal("expected an error for a non-retryable 400")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a 400, got %d", attempts)
	}
}

func TestRetryDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := RetryDo(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}, func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 503, Body: "unavailable"}
	})
	if err == nil {
		t.Fatal("expected the final attempt's error to propagate")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly MaxAttempts attempts, got %d", attempts)
	}
}

func TestRetryDoHonorsRetryAfterOverBackoff(t *testing.T) {
	attempts := 0
	start := time.Now()
	_, err := RetryDo(context.Background(), RetryConfig{MaxAttempts: 2, BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second}, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", &HTTPError{Status: 429, Body: "slow down", RetryAfter: 10 * time.Millisecond}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryDo: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected the short Retry-After to override the much larger base delay, took %v", elapsed)
	}
}

func TestRetryDoCancelsViaContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryDo(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, func() (string, error) {
		return "", &HTTPError{Status: 500, Body: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfterParsesSeconds(t *testing.T) {
	if got := ParseRetryAfter("5"); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}

func TestParseRetryAfterIgnoresEmptyAndNonNumeric(t *testing.T) {
	if got := ParseRetryAfter(""); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
	if got := ParseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"); got != 0 {
		t.Fatalf("expected HTTP-date form to be ignored (seconds form only), got %v", got)
	}
}

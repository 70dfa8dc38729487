package transcribe_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hbadr/go-scribe/internal/transcribe"
)

var errTransient = errors.New("transient")

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	retryAll := func(error) bool { return true }
	retryNone := func(error) bool { return false }
	cfg := transcribe.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	t.Run("first attempt success makes one call", func(t *testing.T) {
		t.Parallel()
		calls := 0
		got, err := transcribe.RetryWithBackoff(context.Background(), cfg, func() (string, error) {
			calls++
			return "ok", nil
		}, retryAll)
		if err != nil || got != "ok" {
			t.Fatalf("got (%q, %v), want (ok, nil)", got, err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("MaxAttempts is the total budget", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := transcribe.RetryWithBackoff(context.Background(), cfg, func() (string, error) {
			calls++
			return "", errTransient
		}, retryAll)
		if calls != 3 {
			t.Errorf("calls = %d, want exactly 3", calls)
		}
		if !errors.Is(err, errTransient) {
			t.Errorf("error = %v, want wrapped errTransient", err)
		}
		if !strings.Contains(err.Error(), "failed after 3 attempts") {
			t.Errorf("error %q should report the attempt budget", err)
		}
	})

	t.Run("succeeds on final attempt", func(t *testing.T) {
		t.Parallel()
		calls := 0
		got, err := transcribe.RetryWithBackoff(context.Background(), cfg, func() (string, error) {
			calls++
			if calls < 3 {
				return "", errTransient
			}
			return "recovered", nil
		}, retryAll)
		if err != nil || got != "recovered" {
			t.Fatalf("got (%q, %v), want (recovered, nil)", got, err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := transcribe.RetryWithBackoff(context.Background(), cfg, func() (string, error) {
			calls++
			return "", errTransient
		}, retryNone)
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if !errors.Is(err, errTransient) {
			t.Errorf("error = %v, want errTransient unwrapped", err)
		}
	})

	t.Run("context cancellation interrupts the wait", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		slow := transcribe.RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

		calls := 0
		done := make(chan error, 1)
		go func() {
			_, err := transcribe.RetryWithBackoff(ctx, slow, func() (string, error) {
				calls++
				return "", errTransient
			}, retryAll)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("error = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("RetryWithBackoff did not return after cancellation")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1 before the long wait", calls)
		}
	})

	t.Run("invalid config is normalized to a single attempt", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := transcribe.RetryWithBackoff(context.Background(),
			transcribe.RetryConfig{MaxAttempts: 0}, func() (string, error) {
				calls++
				return "", errTransient
			}, retryAll)
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if err == nil {
			t.Error("expected error")
		}
	})
}

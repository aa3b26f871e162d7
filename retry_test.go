package filescan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackoffNextDelay(t *testing.T) {
	b := Backoff{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, MaxAttempts: 5}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for attempt, w := range want {
		if got := b.NextDelay(attempt); got != w {
			t.Errorf("NextDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryValue(t *testing.T) {
	b := Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3}
	logger := discardLogger()
	ctx := context.Background()
	down := Unavailable("op", "k", errors.New("connection refused"))

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		v, err := retryValue(ctx, b, logger, "op", "k", func() (int, error) {
			calls++
			if calls < 3 {
				return 0, down
			}
			return 7, nil
		})
		if err != nil || v != 7 || calls != 3 {
			t.Errorf("retryValue() = %d, %v after %d calls", v, err, calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		_, err := retryValue(ctx, b, logger, "op", "k", func() (int, error) {
			calls++
			return 0, down
		})
		var se *StoreError
		if !errors.As(err, &se) || se.Attempts != 3 || !IsStoreUnavailable(err) {
			t.Errorf("retryValue() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		_, err := retryValue(ctx, b, logger, "op", "k", func() (int, error) {
			calls++
			return 0, ErrQueueEmpty
		})
		if !errors.Is(err, ErrQueueEmpty) || calls != 1 {
			t.Errorf("retryValue() = %v after %d calls", err, calls)
		}
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		slow := Backoff{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1, MaxAttempts: 3}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := retryValue(cctx, slow, logger, "op", "k", func() (int, error) {
			return 0, down
		})
		if !errors.Is(err, context.Canceled) || !IsStoreUnavailable(err) {
			t.Errorf("retryValue() error = %v", err)
		}
	})
}

func TestErrorClassification(t *testing.T) {
	if Unavailable("op", "k", nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
	err := &NodeError{Op: "process", Node: "n", Err: Unavailable("op", "k", errors.New("x"))}
	if !IsStoreUnavailable(err) {
		t.Error("wrapped unavailability not detected")
	}
	if IsDeadlineExceeded(err) || IsBudgetExceeded(err) {
		t.Error("misclassified error")
	}
	if !IsDeadlineExceeded(&NodeError{Err: ErrDeadlineExceeded}) || !IsBudgetExceeded(ErrBudgetExceeded) {
		t.Error("sentinels not detected")
	}
}

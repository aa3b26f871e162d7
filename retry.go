package filescan

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Backoff computes exponential delays between store retries.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultBackoff returns the retry policy used for store round-trips.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		MaxAttempts:  4,
	}
}

// NextDelay returns the delay to wait after the given zero-based attempt.
func (b Backoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// retryValue runs op until it succeeds, fails with an error that is not
// ErrStoreUnavailable, or runs out of attempts.
func retryValue[T any](ctx context.Context, b Backoff, logger *slog.Logger, opName, key string, op func() (T, error)) (T, error) {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsStoreUnavailable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := b.NextDelay(attempt)
		logger.Warn("store unavailable, retrying",
			"op", opName, "key", key, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, &StoreError{Op: opName, Key: key, Attempts: attempt + 1, Err: errors.Join(lastErr, ctx.Err())}
		}
	}
	return zero, &StoreError{Op: opName, Key: key, Attempts: attempts, Err: lastErr}
}

// RetryingStore wraps a Store so that unavailability is retried with bounded
// backoff before surfacing as a terminal StoreError.
type RetryingStore struct {
	store   Store
	backoff Backoff
	logger  *slog.Logger
}

// NewRetryingStore wraps store with the given backoff policy.
func NewRetryingStore(store Store, backoff Backoff, logger *slog.Logger) *RetryingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingStore{store: store, backoff: backoff, logger: logger}
}

// Enqueue implements Store.
func (r *RetryingStore) Enqueue(ctx context.Context, submissionID string, payload []byte) error {
	_, err := retryValue(ctx, r.backoff, r.logger, "enqueue", submissionID, func() (struct{}, error) {
		return struct{}{}, r.store.Enqueue(ctx, submissionID, payload)
	})
	return err
}

// Dequeue implements Store.
func (r *RetryingStore) Dequeue(ctx context.Context, block bool, timeout time.Duration) ([]byte, error) {
	return retryValue(ctx, r.backoff, r.logger, "dequeue", "", func() ([]byte, error) {
		return r.store.Dequeue(ctx, block, timeout)
	})
}

// IncrementIfUnderLimit implements Store.
func (r *RetryingStore) IncrementIfUnderLimit(ctx context.Context, key string, amount, limit int64) (bool, error) {
	return retryValue(ctx, r.backoff, r.logger, "increment", key, func() (bool, error) {
		return r.store.IncrementIfUnderLimit(ctx, key, amount, limit)
	})
}

// SetIfAbsent implements Store.
func (r *RetryingStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return retryValue(ctx, r.backoff, r.logger, "set_if_absent", key, func() (bool, error) {
		return r.store.SetIfAbsent(ctx, key, ttl)
	})
}

// UploadResult implements Store.
func (r *RetryingStore) UploadResult(ctx context.Context, submissionID string, payload []byte) error {
	_, err := retryValue(ctx, r.backoff, r.logger, "upload_result", submissionID, func() (struct{}, error) {
		return struct{}{}, r.store.UploadResult(ctx, submissionID, payload)
	})
	return err
}

// PopResult implements Store.
func (r *RetryingStore) PopResult(ctx context.Context, submissionID string, timeout time.Duration) ([]byte, error) {
	return retryValue(ctx, r.backoff, r.logger, "pop_result", submissionID, func() ([]byte, error) {
		return r.store.PopResult(ctx, submissionID, timeout)
	})
}

// Close closes the wrapped store.
func (r *RetryingStore) Close() error {
	return r.store.Close()
}

var _ Store = (*RetryingStore)(nil)

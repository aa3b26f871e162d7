package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gobeaver/filescan"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store closed")

// counter is one submission-scoped counter with its expiry.
type counter struct {
	value      int64
	expiration time.Time
}

// Store is an in-process filescan.Store. It gives a single process the same
// semantics a shared store gives a pool: FIFO work queue, atomic counters,
// TTL-bounded keys and per-submission result lists.
type Store struct {
	mu       sync.Mutex
	queue    [][]byte
	results  map[string][][]byte
	counters map[string]*counter
	keys     map[string]time.Time
	ttl      time.Duration
	closed   bool
	ops      int

	// notify is closed and replaced whenever something is pushed, waking
	// every blocked reader.
	notify chan struct{}

	now func() time.Time
}

// Config holds configuration for the memory store
type Config struct {
	// TTL bounds counters; dedup keys use the ttl passed to SetIfAbsent.
	// Zero means one hour.
	TTL time.Duration
}

// New creates a new in-memory coordination store
func New(cfg ...Config) *Store {
	ttl := time.Hour
	if len(cfg) > 0 && cfg[0].TTL > 0 {
		ttl = cfg[0].TTL
	}
	return &Store{
		results:  make(map[string][][]byte),
		counters: make(map[string]*counter),
		keys:     make(map[string]time.Time),
		ttl:      ttl,
		notify:   make(chan struct{}),
		now:      time.Now,
	}
}

// broadcast wakes blocked readers. Caller holds mu.
func (s *Store) broadcast() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Enqueue implements filescan.Store
func (s *Store) Enqueue(ctx context.Context, submissionID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, payload)
	s.broadcast()
	return nil
}

// Dequeue implements filescan.Store. A non-positive timeout waits until ctx
// is done.
func (s *Store) Dequeue(ctx context.Context, block bool, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, block, timeout, func() ([]byte, bool) {
		if len(s.queue) == 0 {
			return nil, false
		}
		payload := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		return payload, true
	})
}

// PopResult implements filescan.Store
func (s *Store) PopResult(ctx context.Context, submissionID string, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, true, timeout, func() ([]byte, bool) {
		list := s.results[submissionID]
		if len(list) == 0 {
			return nil, false
		}
		payload := list[0]
		if len(list) == 1 {
			delete(s.results, submissionID)
		} else {
			s.results[submissionID] = list[1:]
		}
		return payload, true
	})
}

// pop runs take under the lock until it yields a value, the timeout
// elapses, or ctx is done.
func (s *Store) pop(ctx context.Context, block bool, timeout time.Duration, take func() ([]byte, bool)) ([]byte, error) {
	var deadline <-chan time.Time
	if block && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if payload, ok := take(); ok {
			s.mu.Unlock()
			return payload, nil
		}
		wait := s.notify
		s.mu.Unlock()

		if !block {
			return nil, filescan.ErrQueueEmpty
		}

		select {
		case <-wait:
		case <-deadline:
			return nil, filescan.ErrQueueEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// IncrementIfUnderLimit implements filescan.Store
func (s *Store) IncrementIfUnderLimit(ctx context.Context, key string, amount, limit int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiration) {
		c = &counter{expiration: now.Add(s.ttl)}
		s.counters[key] = c
	}

	if amount >= 0 && c.value+amount > limit {
		return false, nil
	}
	c.value += amount
	if c.value < 0 {
		c.value = 0
	}
	return true, nil
}

// SetIfAbsent implements filescan.Store
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	s.ops++
	if s.ops%1024 == 0 {
		s.cleanupLocked()
	}

	now := s.now()
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}

// UploadResult implements filescan.Store
func (s *Store) UploadResult(ctx context.Context, submissionID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.results[submissionID] = append(s.results[submissionID], payload)
	s.broadcast()
	return nil
}

// Counter returns the current value of a counter, zero when absent or expired.
func (s *Store) Counter(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || s.now().After(c.expiration) {
		return 0
	}
	return c.value
}

// Len returns the number of queued work items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Cleanup removes expired counters and keys.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *Store) cleanupLocked() {
	now := s.now()
	for key, exp := range s.keys {
		if now.After(exp) {
			delete(s.keys, key)
		}
	}
	for key, c := range s.counters {
		if now.After(c.expiration) {
			delete(s.counters, key)
		}
	}
}

// Close implements filescan.Store. Blocked readers return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.broadcast()
	}
	return nil
}

// Ensure Store implements filescan.Store
var _ filescan.Store = (*Store)(nil)

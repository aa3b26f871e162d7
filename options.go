package filescan

import (
	"log/slog"
	"time"

	"github.com/gobeaver/filescan/codec"
)

// Option configures a Backend
type Option func(*Options)

// Options contains all backend settings
type Options struct {
	// Workers is the number of goroutines pulling from the store in Run
	Workers int

	// InlineDepth is the deepest child processed by the worker that
	// extracted it instead of going through the store queue
	InlineDepth int

	// DequeueTimeout bounds each blocking store pop
	DequeueTimeout time.Duration

	// Limits are applied to submissions that leave fields unset
	Limits Limits

	// SubmissionTimeout sets expire_at for submissions that have none
	SubmissionTimeout time.Duration

	// CollectGrace is how long the collector keeps draining after expire_at
	// so that deadline flags on parents still arrive
	CollectGrace time.Duration

	// DedupTTL bounds how long fingerprints are remembered
	DedupTTL time.Duration

	// Backoff is the retry policy for store unavailability
	Backoff Backoff

	// Payloads parks large children; nil keeps everything inline
	Payloads PayloadStore

	// ClaimThreshold is the size above which children are parked
	ClaimThreshold int64

	// PayloadCompression compresses parked children
	PayloadCompression codec.Compression

	// Logger receives structured logs
	Logger *slog.Logger
}

func defaultOptions() *Options {
	return &Options{
		Workers:            4,
		InlineDepth:        1,
		DequeueTimeout:     time.Second,
		Limits:             DefaultLimits(),
		SubmissionTimeout:  5 * time.Minute,
		CollectGrace:       time.Second,
		DedupTTL:           time.Hour,
		Backoff:            DefaultBackoff(),
		ClaimThreshold:     1 << 20,
		PayloadCompression: codec.CompressionZstd,
	}
}

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithInlineDepth sets the local recursion budget
func WithInlineDepth(depth int) Option {
	return func(o *Options) {
		o.InlineDepth = depth
	}
}

// WithDequeueTimeout sets the blocking pop timeout
func WithDequeueTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.DequeueTimeout = d
		}
	}
}

// WithLimits sets the default submission limits
func WithLimits(limits Limits) Option {
	return func(o *Options) {
		o.Limits = limits
	}
}

// WithSubmissionTimeout sets the default submission lifetime
func WithSubmissionTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.SubmissionTimeout = d
		}
	}
}

// WithCollectGrace sets how long results are drained after expire_at
func WithCollectGrace(d time.Duration) Option {
	return func(o *Options) {
		o.CollectGrace = d
	}
}

// WithDedupTTL sets the dedup record lifetime
func WithDedupTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.DedupTTL = d
		}
	}
}

// WithBackoff sets the store retry policy
func WithBackoff(b Backoff) Option {
	return func(o *Options) {
		o.Backoff = b
	}
}

// WithPayloadStore enables claim-checked children above threshold bytes
func WithPayloadStore(store PayloadStore, threshold int64, compression codec.Compression) Option {
	return func(o *Options) {
		o.Payloads = store
		o.ClaimThreshold = threshold
		o.PayloadCompression = compression
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

package filescan

import (
	"context"
	"time"
)

// Store is the shared coordination store used for cross-worker handoff of
// work items, submission-scoped counters, dedup records and results.
//
// Implementations must be safe for concurrent use and must make
// IncrementIfUnderLimit and SetIfAbsent single atomic round-trips.
// Transport faults should be wrapped with Unavailable so they can be retried.
type Store interface {
	// Enqueue pushes an encoded work item for submissionID.
	Enqueue(ctx context.Context, submissionID string, payload []byte) error

	// Dequeue pops the oldest work item. With block set it waits up to
	// timeout for one to arrive. Returns ErrQueueEmpty when nothing arrived.
	Dequeue(ctx context.Context, block bool, timeout time.Duration) ([]byte, error)

	// IncrementIfUnderLimit adds amount to the counter at key when the result
	// stays at or under limit, and reports whether it did. A negative amount
	// always applies.
	IncrementIfUnderLimit(ctx context.Context, key string, amount, limit int64) (bool, error)

	// SetIfAbsent records key for ttl and reports whether it was absent.
	// Expired keys count as absent.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// UploadResult appends an encoded result record for submissionID.
	UploadResult(ctx context.Context, submissionID string, payload []byte) error

	// PopResult pops the oldest result record for submissionID, waiting up to
	// timeout. Returns ErrQueueEmpty when nothing arrived.
	PopResult(ctx context.Context, submissionID string, timeout time.Duration) ([]byte, error)

	// Close releases the store's resources.
	Close() error
}

// Claim references child content parked in a PayloadStore instead of being
// carried inline in the work item.
type Claim struct {
	Key          string    `json:"key" cbor:"key"`
	OriginalSize int64     `json:"original_size" cbor:"original_size"`
	Compression  string    `json:"compression" cbor:"compression"`
	Checksum     string    `json:"checksum" cbor:"checksum"` // blake3 hex of the original bytes
	ExpiresAt    time.Time `json:"expires_at,omitempty" cbor:"expires_at,omitempty"`
}

// WorkItem is the queued form of a node that still needs tasting and
// dispatch.
type WorkItem struct {
	SubmissionID string    `json:"submission_id" cbor:"submission_id"`
	NodeID       NodeID    `json:"node_id" cbor:"node_id"`
	ParentID     NodeID    `json:"parent_id,omitempty" cbor:"parent_id,omitempty"`
	Name         string    `json:"name,omitempty" cbor:"name,omitempty"`
	Index        int       `json:"index" cbor:"index"`
	Depth        int       `json:"depth" cbor:"depth"`
	Fingerprint  string    `json:"fingerprint,omitempty" cbor:"fingerprint,omitempty"`
	Data         []byte    `json:"data,omitempty" cbor:"data,omitempty"`
	Claim        *Claim    `json:"claim,omitempty" cbor:"claim,omitempty"`
	ExpireAt     time.Time `json:"expire_at" cbor:"expire_at"`
	Limits       Limits    `json:"limits" cbor:"limits"`
}

// Record is one result uploaded for a node. Event is nil when the node was
// dropped before dispatch; ParentFlags are raised on the parent's event by
// whoever reassembles the tree.
type Record struct {
	SubmissionID string   `json:"submission_id" cbor:"submission_id"`
	NodeID       NodeID   `json:"node_id" cbor:"node_id"`
	ParentID     NodeID   `json:"parent_id,omitempty" cbor:"parent_id,omitempty"`
	Index        int      `json:"index" cbor:"index"`
	Event        *Event   `json:"event,omitempty" cbor:"event,omitempty"`
	Spawned      int      `json:"spawned" cbor:"spawned"`
	ParentFlags  []string `json:"parent_flags,omitempty" cbor:"parent_flags,omitempty"`
	// Error is set when the node could not be processed safely, which fails
	// the whole submission.
	Error string `json:"error,omitempty" cbor:"error,omitempty"`
	// Unavailable marks Error as a coordination store outage.
	Unavailable bool `json:"unavailable,omitempty" cbor:"unavailable,omitempty"`
}

// Counter and dedup key layout, scoped by submission id.
func filesKey(submissionID string) string { return "filescan:" + submissionID + ":files" }
func bytesKey(submissionID string) string { return "filescan:" + submissionID + ":bytes" }

func dedupKey(submissionID, fingerprint string) string {
	return "filescan:" + submissionID + ":dedup:" + fingerprint
}

package filescan

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is what happened to one child blob offered to the coordinator.
type Outcome int

const (
	// OutcomeAccepted means a new node was created and budget claimed.
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means identical content was already extracted in
	// this submission. Nothing is flagged.
	OutcomeDuplicate
	// OutcomeLimitExceeded means depth, file count or byte budget would be
	// breached. The parent is flagged limit_exceeded.
	OutcomeLimitExceeded
	// OutcomeDeadlineExceeded means the submission deadline has passed. The
	// parent is flagged deadline_exceeded.
	OutcomeDeadlineExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeLimitExceeded:
		return "limit_exceeded"
	case OutcomeDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// Coordinator enforces the submission budget and dedup for extracted
// children. All budget state lives in the Store; nothing is cached locally.
type Coordinator struct {
	store    Store
	dedupTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator creates a coordinator backed by store.
func NewCoordinator(store Store, dedupTTL time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupTTL <= 0 {
		dedupTTL = time.Hour
	}
	return &Coordinator{store: store, dedupTTL: dedupTTL, logger: logger, now: time.Now}
}

// Claim records the root of a submission in the dedup set so that a child
// identical to the root is not processed again.
func (c *Coordinator) Claim(ctx context.Context, root *Node) error {
	_, err := c.store.SetIfAbsent(ctx, dedupKey(root.SubmissionID, root.Fingerprint), c.dedupTTL)
	return err
}

// Submit offers one child blob of parent. Rejections are recorded on
// parentEvent; an error means the store could not be consulted safely and
// the child's fate is unknown.
func (c *Coordinator) Submit(ctx context.Context, parent *Node, parentEvent *Event, child Child, index int, limits Limits, expireAt time.Time) (Outcome, *Node, error) {
	if !expireAt.IsZero() && !c.now().Before(expireAt) {
		parentEvent.AddFlag(FlagDeadlineExceeded)
		return OutcomeDeadlineExceeded, nil, nil
	}

	fingerprint := Fingerprint(child.Data)
	depth := parent.Depth + 1
	size := int64(len(child.Data))
	sid := parent.SubmissionID

	reject := func(reason string) (Outcome, *Node, error) {
		parentEvent.AddFlag(FlagLimitExceeded)
		c.logger.Debug("child rejected",
			"submission", sid, "node", parent.ID, "child", child.Name, "depth", depth, "reason", reason)
		return OutcomeLimitExceeded, nil, nil
	}

	if depth > limits.MaxDepth {
		return reject("max_depth")
	}

	ok, err := c.store.IncrementIfUnderLimit(ctx, bytesKey(sid), size, limits.MaxBytes)
	if err != nil {
		return 0, nil, &NodeError{Op: "claim bytes", Node: parent.ID, Err: err}
	}
	if !ok {
		return reject("max_bytes")
	}

	ok, err = c.store.IncrementIfUnderLimit(ctx, filesKey(sid), 1, limits.MaxFiles)
	if err != nil {
		return 0, nil, &NodeError{Op: "claim files", Node: parent.ID, Err: err}
	}
	if !ok {
		if err := c.release(ctx, sid, size, false); err != nil {
			return 0, nil, &NodeError{Op: "release bytes", Node: parent.ID, Err: err}
		}
		return reject("max_files")
	}

	absent, err := c.store.SetIfAbsent(ctx, dedupKey(sid, fingerprint), c.dedupTTL)
	if err != nil {
		return 0, nil, &NodeError{Op: "dedup", Node: parent.ID, Err: err}
	}
	if !absent {
		if err := c.release(ctx, sid, size, true); err != nil {
			return 0, nil, &NodeError{Op: "release budget", Node: parent.ID, Err: err}
		}
		c.logger.Debug("duplicate child suppressed",
			"submission", sid, "node", parent.ID, "child", child.Name, "fingerprint", fingerprint)
		return OutcomeDuplicate, nil, nil
	}

	node := &Node{
		ID:           NewNodeID(),
		ParentID:     parent.ID,
		SubmissionID: sid,
		Name:         child.Name,
		Index:        index,
		Depth:        depth,
		Fingerprint:  fingerprint,
		Data:         child.Data,
	}
	return OutcomeAccepted, node, nil
}

// release hands back claimed budget.
func (c *Coordinator) release(ctx context.Context, sid string, size int64, files bool) error {
	if _, err := c.store.IncrementIfUnderLimit(ctx, bytesKey(sid), -size, 0); err != nil {
		return err
	}
	if files {
		if _, err := c.store.IncrementIfUnderLimit(ctx, filesKey(sid), -1, 0); err != nil {
			return err
		}
	}
	return nil
}

package filescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gobeaver/beaver-kit/config"
	"github.com/gobeaver/filescan/codec"
	"github.com/gobeaver/filescan/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Builder loads configuration under a custom environment prefix
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Config loads the configuration using the builder's prefix
func (b *Builder) Config() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Report is everything collected for one submission.
type Report struct {
	SubmissionID string
	Root         NodeID
	// Events are in pre-order: each parent before its children.
	Events []*Event
	// Incomplete is set when expire_at passed before every node reported.
	Incomplete bool
}

// Backend tastes, routes, dispatches and recursively extracts submissions.
// Any number of backends may share one Store; each pulls work from it.
type Backend struct {
	store       Store
	taster      Taster
	router      *Router
	dispatcher  *Dispatcher
	coordinator *Coordinator
	claims      *claimer
	opts        *Options
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a backend. The store is wrapped so that unavailability is
// retried with the configured backoff.
func New(store Store, taster Taster, router *Router, options ...Option) *Backend {
	opts := defaultOptions()
	for _, option := range options {
		option(opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New("backend")
	}

	retrying := NewRetryingStore(store, opts.Backoff, logger)

	b := &Backend{
		store:       retrying,
		taster:      taster,
		router:      router,
		dispatcher:  NewDispatcher(logger.With("stage", "dispatch")),
		coordinator: NewCoordinator(retrying, opts.DedupTTL, logger.With("stage", "extract")),
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
	if opts.Payloads != nil {
		b.claims = &claimer{
			store:       opts.Payloads,
			threshold:   opts.ClaimThreshold,
			compression: opts.PayloadCompression,
		}
	}
	return b
}

// NewFromConfig creates the configured store and payload drivers and a
// backend on top of them. Drivers must have been registered, usually by
// importing their packages.
func NewFromConfig(cfg *Config, taster Taster, router *Router, options ...Option) (*Backend, error) {
	limits, err := cfg.Limits()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	submissionTimeout, err := parseDuration("submission timeout", cfg.SubmissionTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dequeueTimeout, err := parseDuration("dequeue timeout", cfg.DequeueTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dedupTTL, err := parseDuration("dedup ttl", cfg.DedupTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	compression, err := codec.ParseCompression(cfg.PayloadCompression)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := CreateStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	payloads, err := CreatePayloadStore(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create payload store: %w", err)
	}
	if payloads != nil && cfg.EncryptionEnabled {
		key, err := ParseEncryptionKey(cfg.EncryptionKey)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		payloads, err = NewEncryptedPayloads(payloads, key)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to enable payload encryption: %w", err)
		}
	}

	backoff := DefaultBackoff()
	if cfg.RetryAttempts > 0 {
		backoff.MaxAttempts = cfg.RetryAttempts
	}

	base := []Option{
		WithWorkers(cfg.Workers),
		WithInlineDepth(cfg.InlineDepth),
		WithDequeueTimeout(dequeueTimeout),
		WithLimits(limits),
		WithSubmissionTimeout(submissionTimeout),
		WithDedupTTL(dedupTTL),
		WithBackoff(backoff),
	}
	if payloads != nil {
		base = append(base, WithPayloadStore(payloads, cfg.ClaimThreshold, compression))
	}
	return New(store, taster, router, append(base, options...)...), nil
}

// Close releases the store.
func (b *Backend) Close() error {
	return b.store.Close()
}

// Scan submits sub and waits for its whole recursion tree. Workers must be
// running, either through Run on this backend or elsewhere on the same store.
func (b *Backend) Scan(ctx context.Context, sub Submission) (*Report, error) {
	root, err := b.Submit(ctx, &sub)
	if err != nil {
		return nil, err
	}
	return b.Collect(ctx, &sub, root)
}

// Submit validates sub, fills unset limits and expiry, and enqueues its root
// node. sub is updated in place.
func (b *Backend) Submit(ctx context.Context, sub *Submission) (NodeID, error) {
	if sub == nil {
		return "", fmt.Errorf("%w: nil submission", ErrInvalidSubmission)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Limits = sub.Limits.withDefaults(b.opts.Limits)
	if sub.ExpireAt.IsZero() {
		sub.ExpireAt = b.now().Add(b.opts.SubmissionTimeout)
	}

	root := &Node{
		ID:           NewNodeID(),
		SubmissionID: sub.ID,
		Name:         sub.Name,
		Fingerprint:  Fingerprint(sub.Data),
		Data:         sub.Data,
	}
	if err := b.coordinator.Claim(ctx, root); err != nil {
		return "", err
	}

	item := &WorkItem{
		SubmissionID: sub.ID,
		NodeID:       root.ID,
		Name:         root.Name,
		Fingerprint:  root.Fingerprint,
		Data:         root.Data,
		ExpireAt:     sub.ExpireAt,
		Limits:       sub.Limits,
	}
	if err := b.enqueue(ctx, item); err != nil {
		return "", err
	}

	b.logger.Info("submission accepted",
		"submission", sub.ID, "node", root.ID, "name", sub.Name, "size", len(sub.Data), "expire_at", sub.ExpireAt)
	return root.ID, nil
}

// Collect gathers result records for sub until every announced node has
// reported or expire_at (plus a short grace period) has passed. A record
// carrying an error fails the submission.
func (b *Backend) Collect(ctx context.Context, sub *Submission, root NodeID) (*Report, error) {
	tree := NewTree(root)
	report := &Report{SubmissionID: sub.ID, Root: root}

	for !tree.Complete() {
		if err := ctx.Err(); err != nil {
			report.Events = tree.Events()
			report.Incomplete = true
			return report, err
		}

		now := b.now()
		wait := b.opts.DequeueTimeout
		if !now.Before(sub.ExpireAt) {
			graceEnd := sub.ExpireAt.Add(b.opts.CollectGrace)
			if !now.Before(graceEnd) {
				report.Incomplete = true
				break
			}
			wait = min(wait, graceEnd.Sub(now))
		} else {
			wait = min(wait, sub.ExpireAt.Sub(now))
		}
		wait = max(wait, time.Millisecond)

		payload, err := b.store.PopResult(ctx, sub.ID, wait)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			report.Events = tree.Events()
			return report, err
		}

		var rec Record
		if err := codec.Unmarshal(payload, &rec); err != nil {
			b.logger.Error("discarding undecodable result", "submission", sub.ID, "error", err)
			continue
		}
		tree.Add(&rec)

		if rec.Error != "" {
			report.Events = tree.Events()
			err := errors.New(rec.Error)
			if rec.Unavailable {
				err = fmt.Errorf("%w: %s", ErrStoreUnavailable, rec.Error)
			}
			return report, &NodeError{Op: "process", Node: rec.NodeID, Err: err}
		}
	}

	if report.Incomplete {
		b.logger.Warn("submission incomplete at deadline",
			"submission", sub.ID, "outstanding", tree.Outstanding())
		if err := b.claims.sweep(ctx, sub.ID); err != nil {
			b.logger.Warn("payload sweep failed", "submission", sub.ID, "error", err)
		}
	}
	report.Events = tree.Events()
	return report, nil
}

// Run starts the worker pool and blocks until ctx is done.
func (b *Backend) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			b.work(gctx, worker)
			return nil
		})
	}
	b.logger.Info("workers started", "workers", b.opts.Workers)
	return g.Wait()
}

// work pulls items until ctx is done. No error stops a worker.
func (b *Backend) work(ctx context.Context, worker int) {
	logger := b.logger.With("worker", worker)
	for attempt := 0; ctx.Err() == nil; {
		payload, err := b.store.Dequeue(ctx, true, b.opts.DequeueTimeout)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			attempt = 0
			continue
		case ctx.Err() != nil:
			return
		case err != nil:
			delay := b.opts.Backoff.NextDelay(attempt)
			attempt++
			logger.Error("dequeue failed", "error", err, "retry_in", delay)
			sleep(ctx, delay)
			continue
		}
		attempt = 0

		var item WorkItem
		if err := codec.Unmarshal(payload, &item); err != nil {
			logger.Error("discarding undecodable work item", "error", err)
			continue
		}
		if err := b.Process(ctx, &item); err != nil {
			logger.Error("node failed",
				"submission", item.SubmissionID, "node", item.NodeID, "error", err)
		}
	}
}

// Process tastes and dispatches one node, submits its children to the
// coordinator, uploads its record, and then hands accepted children off:
// shallow ones are processed inline in extraction order, the rest are queued.
//
// Store calls made for the node are bounded by its expire_at. Record
// uploads get the collect grace on top.
func (b *Backend) Process(ctx context.Context, item *WorkItem) error {
	logger := b.logger.With("submission", item.SubmissionID, "node", item.NodeID, "depth", item.Depth)

	uploadCtx, cancelUpload := context.WithDeadline(ctx, item.ExpireAt.Add(b.opts.CollectGrace))
	defer cancelUpload()
	opCtx, cancelOp := context.WithDeadline(ctx, item.ExpireAt)
	defer cancelOp()

	// expired reports whether err came from the node's own deadline rather
	// than from the worker shutting down.
	expired := func(err error) bool {
		return err != nil && opCtx.Err() != nil && ctx.Err() == nil
	}

	if !b.now().Before(item.ExpireAt) {
		return b.drop(uploadCtx, item)
	}

	node := &Node{
		ID:           item.NodeID,
		ParentID:     item.ParentID,
		SubmissionID: item.SubmissionID,
		Name:         item.Name,
		Index:        item.Index,
		Depth:        item.Depth,
		Fingerprint:  item.Fingerprint,
		Data:         item.Data,
	}

	var event *Event
	var children []Child
	if item.Claim != nil {
		data, err := b.claims.resolve(opCtx, item.Claim)
		if err != nil {
			logger.Warn("claimed payload unavailable", "key", item.Claim.Key, "error", err)
			event = NewEvent(node)
			event.Size = item.Claim.OriginalSize
			event.AddFlag(FlagPayloadError)
		}
		node.Data = data
	}
	if event == nil {
		taste := b.taster.Taste(node.Data, node.Name)
		node.MIME = taste.MIME
		node.Flavors = taste.Flavors
		event, children = b.dispatcher.Dispatch(opCtx, node, b.router.Route(taste.Flavors), item.Limits, item.ExpireAt)
	}

	var accepted []*Node
	var failure error
	for i, child := range children {
		outcome, childNode, err := b.coordinator.Submit(opCtx, node, event, child, i, item.Limits, item.ExpireAt)
		if expired(err) {
			logger.Debug("deadline reached while claiming budget", "error", err)
			event.AddFlag(FlagDeadlineExceeded)
			break
		}
		if err != nil {
			failure = err
			break
		}
		if outcome == OutcomeAccepted {
			accepted = append(accepted, childNode)
		}
	}
	node.Release()

	rec := &Record{
		SubmissionID: item.SubmissionID,
		NodeID:       item.NodeID,
		ParentID:     item.ParentID,
		Index:        item.Index,
		Event:        event,
		Spawned:      len(accepted),
	}
	if failure != nil {
		rec.Error = failure.Error()
		rec.Unavailable = IsStoreUnavailable(failure)
	}
	if err := b.upload(uploadCtx, rec); err != nil {
		return err
	}
	logger.Debug("node processed",
		"flags", event.Flags, "children", len(children), "accepted", len(accepted), "elapsed", event.Elapsed)

	for _, child := range accepted {
		childItem := &WorkItem{
			SubmissionID: item.SubmissionID,
			NodeID:       child.ID,
			ParentID:     child.ParentID,
			Name:         child.Name,
			Index:        child.Index,
			Depth:        child.Depth,
			Fingerprint:  child.Fingerprint,
			Data:         child.Data,
			ExpireAt:     item.ExpireAt,
			Limits:       item.Limits,
		}
		if child.Depth <= b.opts.InlineDepth {
			if err := b.Process(ctx, childItem); err != nil {
				return err
			}
			continue
		}
		err := b.enqueue(opCtx, childItem)
		if expired(err) {
			// Announced but never queued: report it like a child dropped
			// at the deadline.
			if err := b.drop(uploadCtx, childItem); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			// The parent already announced this child; report it so the
			// collector does not wait for it.
			_ = b.upload(uploadCtx, &Record{
				SubmissionID: item.SubmissionID,
				NodeID:       child.ID,
				ParentID:     child.ParentID,
				Index:        child.Index,
				Error:        err.Error(),
				Unavailable:  IsStoreUnavailable(err),
			})
			return err
		}
	}
	return failure
}

// drop reports a node that was never scanned because the deadline passed.
// A dropped child flags its parent; a dropped root flags itself.
func (b *Backend) drop(ctx context.Context, item *WorkItem) error {
	if item.Claim != nil && b.claims != nil {
		_ = b.claims.store.Delete(ctx, item.Claim.Key)
	}

	rec := &Record{
		SubmissionID: item.SubmissionID,
		NodeID:       item.NodeID,
		ParentID:     item.ParentID,
		Index:        item.Index,
	}
	if item.ParentID == "" {
		ev := NewEvent(&Node{ID: item.NodeID, SubmissionID: item.SubmissionID, Name: item.Name, Data: item.Data})
		ev.AddFlag(FlagDeadlineExceeded)
		rec.Event = ev
	} else {
		rec.ParentFlags = []string{FlagDeadlineExceeded}
	}

	b.logger.Debug("node dropped at deadline",
		"submission", item.SubmissionID, "node", item.NodeID, "parent", item.ParentID)
	return b.upload(ctx, rec)
}

func (b *Backend) enqueue(ctx context.Context, item *WorkItem) error {
	if b.claims.wants(item.Data) {
		claim, err := b.claims.park(ctx, item.SubmissionID, item.NodeID, item.Data, item.ExpireAt)
		if err != nil {
			return err
		}
		item.Claim = claim
		item.Data = nil
	}

	payload, err := codec.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	return b.store.Enqueue(ctx, item.SubmissionID, payload)
}

func (b *Backend) upload(ctx context.Context, rec *Record) error {
	payload, err := codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return b.store.UploadResult(ctx, rec.SubmissionID, payload)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

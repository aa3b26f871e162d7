package filescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher runs routed inspectors against one node and merges their output
// into a single Event.
type Dispatcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher that logs through logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, now: time.Now}
}

// Dispatch invokes each inspector in order under its own time budget and
// returns the merged event plus every child the inspectors yielded, in yield
// order. A failing or overrunning inspector only adds a flag.
func (d *Dispatcher) Dispatch(ctx context.Context, node *Node, inspectors []Resolved, limits Limits, expireAt time.Time) (*Event, []Child) {
	start := d.now()
	event := NewEvent(node)
	var children []Child

	meta := FileMeta{
		SubmissionID: node.SubmissionID,
		NodeID:       node.ID,
		Name:         node.Name,
		Depth:        node.Depth,
		MIME:         node.MIME,
		Flavors:      node.Flavors,
	}

	for _, ref := range inspectors {
		name := ref.Inspector.Name()
		timeout := ref.Timeout
		if timeout <= 0 {
			timeout = limits.InspectorTimeout
		}

		req := &Request{
			Data:     node.Data,
			File:     meta,
			Fields:   event.Fields.Clone(),
			Options:  ref.Options,
			ExpireAt: expireAt,
		}

		res, err := d.invoke(ctx, ref.Inspector, req, timeout, expireAt)
		switch {
		case errors.Is(err, ErrInspectorTimeout):
			event.AddFlag(name + "_timeout")
			d.logger.Warn("inspector timed out",
				"submission", node.SubmissionID, "node", node.ID, "inspector", name, "timeout", timeout)
			continue
		case err != nil:
			event.AddFlag(name + "_error")
			d.logger.Warn("inspector failed",
				"submission", node.SubmissionID, "node", node.ID, "inspector", name, "error", err)
			continue
		case res == nil:
			continue
		}

		for _, flag := range res.Flags {
			event.AddFlag(flag)
		}
		event.Fields.Merge(res.Fields)
		children = append(children, res.Children...)
	}

	event.Elapsed = d.now().Sub(start)
	if event.Elapsed < 0 {
		event.Elapsed = 0
	}
	return event, children
}

type invokeResult struct {
	res *Result
	err error
}

// invoke runs one inspector under a watchdog. The caller observes either the
// inspector's result or a timeout; a late result is discarded.
func (d *Dispatcher) invoke(ctx context.Context, ins Inspector, req *Request, timeout time.Duration, expireAt time.Time) (*Result, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	if !expireAt.IsZero() {
		var cancelExpire context.CancelFunc
		callCtx, cancelExpire = context.WithDeadline(callCtx, expireAt)
		defer cancelExpire()
	}

	if err := callCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInspectorTimeout, ins.Name())
	}

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invokeResult{err: fmt.Errorf("%w: %s panicked: %v", ErrInspectorFailure, ins.Name(), p)}
			}
		}()
		res, err := ins.Inspect(callCtx, req)
		done <- invokeResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && callCtx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrInspectorTimeout, ins.Name())
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrInspectorFailure, ins.Name(), out.err)
		}
		return out.res, nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("%w: %s", ErrInspectorTimeout, ins.Name())
	}
}

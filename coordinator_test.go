package filescan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gobeaver/filescan"
	"github.com/gobeaver/filescan/driver/memory"
)

func counters(store *memory.Store, sid string) (files, bytes int64) {
	return store.Counter("filescan:" + sid + ":files"), store.Counter("filescan:" + sid + ":bytes")
}

func TestCoordinatorSubmit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := filescan.NewCoordinator(store, time.Hour, nil)

	parent := &filescan.Node{ID: "p", SubmissionID: "s1", Depth: 0}
	ev := filescan.NewEvent(parent)
	lim := filescan.Limits{MaxDepth: 2, MaxFiles: 2, MaxBytes: 8}

	outcome, node, err := c.Submit(ctx, parent, ev, filescan.Child{Name: "a", Data: []byte("aaaa")}, 0, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeAccepted {
		t.Fatalf("Submit() = %v, %v", outcome, err)
	}
	if node.Depth != 1 || node.ParentID != "p" || node.Name != "a" || node.Index != 0 || node.Fingerprint != filescan.Fingerprint([]byte("aaaa")) {
		t.Errorf("node = %+v", node)
	}

	// Duplicate content is dropped silently and its budget handed back.
	outcome, _, err = c.Submit(ctx, parent, ev, filescan.Child{Name: "a2", Data: []byte("aaaa")}, 1, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeDuplicate {
		t.Fatalf("Submit() duplicate = %v, %v", outcome, err)
	}
	if files, bytes := counters(store, "s1"); files != 1 || bytes != 4 {
		t.Errorf("counters after duplicate = %d files, %d bytes", files, bytes)
	}

	// Too large: bytes are checked before files.
	outcome, _, err = c.Submit(ctx, parent, ev, filescan.Child{Name: "big", Data: []byte("bbbbbbbbb")}, 2, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeLimitExceeded {
		t.Fatalf("Submit() big = %v, %v", outcome, err)
	}

	outcome, _, err = c.Submit(ctx, parent, ev, filescan.Child{Name: "b", Data: []byte("bb")}, 3, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeAccepted {
		t.Fatalf("Submit() b = %v, %v", outcome, err)
	}

	// File budget spent: the bytes claim is rolled back.
	outcome, _, err = c.Submit(ctx, parent, ev, filescan.Child{Name: "c", Data: []byte("c")}, 4, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeLimitExceeded {
		t.Fatalf("Submit() c = %v, %v", outcome, err)
	}
	if files, bytes := counters(store, "s1"); files != 2 || bytes != 6 {
		t.Errorf("counters = %d files, %d bytes, want 2 and 6", files, bytes)
	}
	if ev.FlagCount(filescan.FlagLimitExceeded) != 2 {
		t.Errorf("limit_exceeded raised %d times, want 2", ev.FlagCount(filescan.FlagLimitExceeded))
	}
}

func TestCoordinatorDepthAndDeadline(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := filescan.NewCoordinator(store, time.Hour, nil)
	lim := filescan.Limits{MaxDepth: 1, MaxFiles: 10, MaxBytes: 100}

	deep := &filescan.Node{ID: "p", SubmissionID: "s2", Depth: 1}
	ev := filescan.NewEvent(deep)
	outcome, _, err := c.Submit(ctx, deep, ev, filescan.Child{Data: []byte("x")}, 0, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeLimitExceeded {
		t.Fatalf("Submit() too deep = %v, %v", outcome, err)
	}
	if files, bytes := counters(store, "s2"); files != 0 || bytes != 0 {
		t.Errorf("depth rejection touched counters: %d, %d", files, bytes)
	}

	root := &filescan.Node{ID: "r", SubmissionID: "s2"}
	ev = filescan.NewEvent(root)
	outcome, _, err = c.Submit(ctx, root, ev, filescan.Child{Data: []byte("x")}, 0, lim, time.Now().Add(-time.Second))
	if err != nil || outcome != filescan.OutcomeDeadlineExceeded {
		t.Fatalf("Submit() after deadline = %v, %v", outcome, err)
	}
	if !ev.HasFlag(filescan.FlagDeadlineExceeded) || ev.HasFlag(filescan.FlagLimitExceeded) {
		t.Errorf("flags = %v", ev.Flags)
	}
	if outcome.String() != "deadline_exceeded" {
		t.Errorf("String() = %q", outcome.String())
	}
}

func TestCoordinatorClaimRoot(t *testing.T) {
	ctx := context.Background()
	c := filescan.NewCoordinator(memory.New(), time.Hour, nil)

	data := []byte("root content")
	root := &filescan.Node{ID: "r", SubmissionID: "s3", Fingerprint: filescan.Fingerprint(data)}
	if err := c.Claim(ctx, root); err != nil {
		t.Fatal(err)
	}

	ev := filescan.NewEvent(root)
	lim := filescan.Limits{MaxDepth: 5, MaxFiles: 10, MaxBytes: 100}
	outcome, _, err := c.Submit(ctx, root, ev, filescan.Child{Data: data}, 0, lim, time.Time{})
	if err != nil || outcome != filescan.OutcomeDuplicate {
		t.Errorf("child equal to the root = %v, %v", outcome, err)
	}
}

type downStore struct{ *memory.Store }

func (downStore) IncrementIfUnderLimit(context.Context, string, int64, int64) (bool, error) {
	return false, filescan.Unavailable("increment", "k", errors.New("dial tcp: refused"))
}

func TestCoordinatorStoreUnavailable(t *testing.T) {
	c := filescan.NewCoordinator(downStore{memory.New()}, time.Hour, nil)
	parent := &filescan.Node{ID: "p", SubmissionID: "s4"}
	ev := filescan.NewEvent(parent)

	_, node, err := c.Submit(context.Background(), parent, ev, filescan.Child{Data: []byte("x")}, 0,
		filescan.Limits{MaxDepth: 5, MaxFiles: 10, MaxBytes: 100}, time.Time{})
	if !filescan.IsStoreUnavailable(err) || node != nil {
		t.Errorf("Submit() = %v, %v", node, err)
	}
	if len(ev.Flags) != 0 {
		t.Errorf("flags = %v", ev.Flags)
	}
}

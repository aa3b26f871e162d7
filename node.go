package filescan

import (
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a node inside a recursion tree.
type NodeID string

// NewNodeID returns a fresh random node id.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Limits bounds the recursion tree of one submission.
type Limits struct {
	// InspectorTimeout is the default time budget for one inspector call.
	InspectorTimeout time.Duration `json:"inspector_timeout" cbor:"inspector_timeout"`
	// MaxDepth is the deepest a child may sit below the root (root = 0).
	MaxDepth int `json:"max_depth" cbor:"max_depth"`
	// MaxFiles caps the number of extracted children for the whole submission.
	MaxFiles int64 `json:"max_files" cbor:"max_files"`
	// MaxBytes caps the cumulative size of extracted children.
	MaxBytes int64 `json:"max_bytes" cbor:"max_bytes"`
}

// DefaultLimits mirrors the Config defaults.
func DefaultLimits() Limits {
	return Limits{
		InspectorTimeout: 10 * time.Second,
		MaxDepth:         15,
		MaxFiles:         5000,
		MaxBytes:         1 << 30,
	}
}

// withDefaults fills every unset field of l from def.
func (l Limits) withDefaults(def Limits) Limits {
	if l.InspectorTimeout <= 0 {
		l.InspectorTimeout = def.InspectorTimeout
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = def.MaxDepth
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = def.MaxFiles
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = def.MaxBytes
	}
	return l
}

// Submission is one externally supplied blob and the root of a recursion tree.
type Submission struct {
	ID       string
	Name     string
	Data     []byte
	ExpireAt time.Time
	Limits   Limits
}

// Node is one unit of content inside a recursion tree. Children refer to
// their parent by id only.
type Node struct {
	ID           NodeID
	ParentID     NodeID
	SubmissionID string
	Name         string
	Index        int
	Depth        int
	Fingerprint  string
	MIME         string
	Flavors      []string
	Data         []byte
}

// IsRoot reports whether n is the submission root.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// Release drops the node's content once every inspector has consumed it.
func (n *Node) Release() {
	n.Data = nil
}

// treeEntry is one slot in the Tree arena.
type treeEntry struct {
	event    *Event
	index    int
	children []NodeID
	spawned  int
	reported bool
}

// Tree reassembles the events of one submission by parent/child identity.
// Records may arrive in any order; flags aimed at a parent that has not
// reported yet are held until it does.
type Tree struct {
	root     NodeID
	nodes    map[NodeID]*treeEntry
	pending  map[NodeID][]string
	expected int
	received int
}

// NewTree creates an arena expecting the given root.
func NewTree(root NodeID) *Tree {
	return &Tree{
		root:     root,
		nodes:    make(map[NodeID]*treeEntry),
		pending:  make(map[NodeID][]string),
		expected: 1,
	}
}

func (t *Tree) entry(id NodeID) *treeEntry {
	e, ok := t.nodes[id]
	if !ok {
		e = &treeEntry{}
		t.nodes[id] = e
	}
	return e
}

// Add applies one result record.
func (t *Tree) Add(rec *Record) {
	if rec == nil {
		return
	}
	t.received++
	t.expected += rec.Spawned

	if rec.ParentID != "" && len(rec.ParentFlags) > 0 {
		parent, ok := t.nodes[rec.ParentID]
		if ok && parent.event != nil {
			for _, f := range rec.ParentFlags {
				parent.event.AddFlag(f)
			}
		} else {
			t.pending[rec.ParentID] = append(t.pending[rec.ParentID], rec.ParentFlags...)
		}
	}

	if rec.Event == nil {
		return
	}

	e := t.entry(rec.NodeID)
	e.event = rec.Event
	e.index = rec.Index
	e.spawned = rec.Spawned
	e.reported = true
	for _, f := range t.pending[rec.NodeID] {
		e.event.AddFlag(f)
	}
	delete(t.pending, rec.NodeID)

	if rec.ParentID != "" {
		parent := t.entry(rec.ParentID)
		parent.children = insertByIndex(parent.children, rec.NodeID, rec.Index, t.nodes)
	}
}

// Complete reports whether every announced node has reported.
func (t *Tree) Complete() bool {
	return t.received >= t.expected
}

// Outstanding returns how many announced nodes have not reported yet.
func (t *Tree) Outstanding() int {
	if n := t.expected - t.received; n > 0 {
		return n
	}
	return 0
}

// Events returns the events in pre-order: each parent before its children,
// siblings in extraction order.
func (t *Tree) Events() []*Event {
	var out []*Event
	var walk func(id NodeID)
	walk = func(id NodeID) {
		e, ok := t.nodes[id]
		if !ok {
			return
		}
		if e.event != nil {
			out = append(out, e.event)
		}
		for _, child := range e.children {
			walk(child)
		}
	}
	walk(t.root)
	return out
}

// Event returns the event recorded for id.
func (t *Tree) Event(id NodeID) (*Event, bool) {
	e, ok := t.nodes[id]
	if !ok || e.event == nil {
		return nil, false
	}
	return e.event, true
}

func insertByIndex(ids []NodeID, id NodeID, index int, nodes map[NodeID]*treeEntry) []NodeID {
	pos := len(ids)
	for i, other := range ids {
		if e, ok := nodes[other]; ok && e.index > index {
			pos = i
			break
		}
	}
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

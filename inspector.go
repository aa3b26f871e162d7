package filescan

import (
	"context"
	"time"
)

// FileMeta describes the node an inspector is looking at.
type FileMeta struct {
	SubmissionID string
	NodeID       NodeID
	Name         string
	Depth        int
	MIME         string
	Flavors      []string
}

// Request is everything an inspector receives for one call.
type Request struct {
	Data []byte
	File FileMeta
	// Fields holds what earlier inspectors contributed. It is a copy.
	Fields Fields
	// Options come from the route entry that selected the inspector.
	Options InspectorOptions
	// ExpireAt is the submission-wide deadline.
	ExpireAt time.Time
}

// Child is a blob an inspector wants re-submitted, tagged with a relative id
// such as an archive member path.
type Child struct {
	Name string
	Data []byte
}

// Result is what one inspector call contributes.
type Result struct {
	Flags    []string
	Fields   Fields
	Children []Child
}

// AddFlag raises a flag.
func (r *Result) AddFlag(flag string) {
	r.Flags = append(r.Flags, flag)
}

// AddField records value under key.
func (r *Result) AddField(key string, value any) {
	r.Fields.Add(key, value)
}

// AddChild queues data for extraction.
func (r *Result) AddChild(name string, data []byte) {
	r.Children = append(r.Children, Child{Name: name, Data: data})
}

// Inspector is a pluggable unit of format-specific analysis. Inspect must not
// panic on malformed input and should return promptly once ctx is done;
// returned errors become a "<name>_error" flag on the event.
type Inspector interface {
	Name() string
	Inspect(ctx context.Context, req *Request) (*Result, error)
}

// InspectorFunc adapts a function to the Inspector interface.
type InspectorFunc struct {
	ID string
	Fn func(ctx context.Context, req *Request) (*Result, error)
}

func (f InspectorFunc) Name() string { return f.ID }

func (f InspectorFunc) Inspect(ctx context.Context, req *Request) (*Result, error) {
	return f.Fn(ctx, req)
}

// InspectorOptions is the free-form option map attached to a route entry.
type InspectorOptions map[string]any

// Int returns the option as an int, or def when absent or not numeric.
func (o InspectorOptions) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	n, ok := toInt64(v)
	if !ok {
		return def
	}
	return int(n)
}

// String returns the option as a string, or def when absent.
func (o InspectorOptions) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the option as a bool, or def when absent.
func (o InspectorOptions) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

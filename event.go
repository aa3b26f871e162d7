package filescan

import (
	"bytes"
	"encoding/json"
	"time"
)

// Well-known flags raised by the pipeline itself.
const (
	FlagLimitExceeded    = "limit_exceeded"
	FlagDeadlineExceeded = "deadline_exceeded"
	FlagPayloadError     = "payload_error"
)

// Field is one key of an event's field mapping. A key holds more than one
// value when several inspectors contributed to it.
type Field struct {
	Key    string `json:"key" cbor:"key"`
	Values []any  `json:"values" cbor:"values"`
}

// Fields is an insertion-ordered multi-value mapping. Adding an existing key
// appends to its values instead of replacing them.
type Fields []Field

// Add appends value under key, keeping first-insertion order of keys.
func (f *Fields) Add(key string, value any) {
	for i := range *f {
		if (*f)[i].Key == key {
			(*f)[i].Values = append((*f)[i].Values, value)
			return
		}
	}
	*f = append(*f, Field{Key: key, Values: []any{value}})
}

// Merge appends every value of other, in order.
func (f *Fields) Merge(other Fields) {
	for _, field := range other {
		for _, v := range field.Values {
			f.Add(field.Key, v)
		}
	}
}

// Values returns all values recorded under key.
func (f Fields) Values(key string) []any {
	for _, field := range f {
		if field.Key == key {
			return field.Values
		}
	}
	return nil
}

// Get returns the first value recorded under key.
func (f Fields) Get(key string) (any, bool) {
	vals := f.Values(key)
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Int returns the first value under key as an int64. Values decoded from the
// wire arrive as any integer kind, so all of them are accepted.
func (f Fields) Int(key string) (int64, bool) {
	v, ok := f.Get(key)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// String returns the first value under key if it is a string.
func (f Fields) String(key string) (string, bool) {
	v, ok := f.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f))
	for i, field := range f {
		keys[i] = field.Key
	}
	return keys
}

// Clone returns a copy that shares no slices with f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for i, field := range f {
		out[i] = Field{Key: field.Key, Values: append([]any(nil), field.Values...)}
	}
	return out
}

// MarshalJSON renders the fields as an ordered JSON object. Single values are
// written as scalars, repeated keys as arrays.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if len(field.Values) == 1 {
			val, err = json.Marshal(field.Values[0])
		} else {
			val, err = json.Marshal(field.Values)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Event is the output record for one node.
type Event struct {
	NodeID   NodeID        `json:"node_id" cbor:"node_id"`
	ParentID NodeID        `json:"parent_id,omitempty" cbor:"parent_id,omitempty"`
	Name     string        `json:"name,omitempty" cbor:"name,omitempty"`
	Depth    int           `json:"depth" cbor:"depth"`
	Size     int64         `json:"size" cbor:"size"`
	Elapsed  time.Duration `json:"elapsed" cbor:"elapsed"`
	MIME     string        `json:"mime,omitempty" cbor:"mime,omitempty"`
	Flavors  []string      `json:"flavors,omitempty" cbor:"flavors,omitempty"`
	Fields   Fields        `json:"fields" cbor:"fields"`

	// Flags is the unique set of raised flags in first-raised order.
	Flags []string `json:"flags" cbor:"flags"`
	// FlagCounts records how many times each flag was raised.
	FlagCounts map[string]int `json:"flag_counts,omitempty" cbor:"flag_counts,omitempty"`
}

// NewEvent creates an empty event for node.
func NewEvent(node *Node) *Event {
	ev := &Event{Flags: []string{}}
	if node != nil {
		ev.NodeID = node.ID
		ev.ParentID = node.ParentID
		ev.Name = node.Name
		ev.Depth = node.Depth
		ev.Size = int64(len(node.Data))
		ev.MIME = node.MIME
		ev.Flavors = append([]string(nil), node.Flavors...)
	}
	return ev
}

// AddFlag raises flag on the event.
func (e *Event) AddFlag(flag string) {
	if e.FlagCounts == nil {
		e.FlagCounts = make(map[string]int)
	}
	if e.FlagCounts[flag] == 0 {
		e.Flags = append(e.Flags, flag)
	}
	e.FlagCounts[flag]++
}

// HasFlag reports whether flag was raised at least once.
func (e *Event) HasFlag(flag string) bool {
	return e.FlagCounts[flag] > 0
}

// FlagCount returns how many times flag was raised.
func (e *Event) FlagCount(flag string) int {
	return e.FlagCounts[flag]
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true //nolint:gosec // field counters fit in int64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true //nolint:gosec // field counters fit in int64
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

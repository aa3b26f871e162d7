package filescan

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFieldsAddAppends(t *testing.T) {
	var f Fields
	f.Add("total.files", 3)
	f.Add("url", "http://a")
	f.Add("url", "http://b")

	if diff := cmp.Diff([]string{"total.files", "url"}, f.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"http://a", "http://b"}, f.Values("url")); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if n, ok := f.Int("total.files"); !ok || n != 3 {
		t.Errorf("Int() = %d, %v", n, ok)
	}
	if _, ok := f.String("total.files"); ok {
		t.Error("String() on an int value should fail")
	}
	if _, ok := f.Get("missing"); ok {
		t.Error("Get() on a missing key should fail")
	}
}

func TestFieldsMergeAndClone(t *testing.T) {
	var a, b Fields
	a.Add("k", 1)
	b.Add("k", 2)
	b.Add("j", "x")

	clone := a.Clone()
	a.Merge(b)

	if diff := cmp.Diff([]any{1, 2}, a.Values("k")); diff != "" {
		t.Errorf("merged values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{1}, clone.Values("k")); diff != "" {
		t.Errorf("clone shares state with the original (-want +got):\n%s", diff)
	}
}

func TestFieldsMarshalJSON(t *testing.T) {
	var f Fields
	f.Add("zeta", 1)
	f.Add("alpha", "a")
	f.Add("alpha", "b")

	got, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"zeta":1,"alpha":["a","b"]}`
	if string(got) != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}

	empty, err := json.Marshal(Fields(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "{}" {
		t.Errorf("MarshalJSON() of no fields = %s", empty)
	}
}

func TestEventFlags(t *testing.T) {
	ev := NewEvent(&Node{ID: "n1", Name: "x", Depth: 2, Data: []byte("abc"), Flavors: []string{"text/plain"}})
	if ev.Size != 3 || ev.Depth != 2 || ev.Name != "x" {
		t.Errorf("NewEvent() = %+v", ev)
	}
	if ev.Flags == nil || len(ev.Flags) != 0 {
		t.Errorf("new event flags = %#v, want empty non-nil", ev.Flags)
	}

	ev.AddFlag(FlagLimitExceeded)
	ev.AddFlag("zip_error")
	ev.AddFlag(FlagLimitExceeded)

	if diff := cmp.Diff([]string{FlagLimitExceeded, "zip_error"}, ev.Flags); diff != "" {
		t.Errorf("Flags mismatch (-want +got):\n%s", diff)
	}
	if ev.FlagCount(FlagLimitExceeded) != 2 || !ev.HasFlag("zip_error") || ev.HasFlag("other") {
		t.Errorf("FlagCounts = %v", ev.FlagCounts)
	}
}

func TestInspectorOptions(t *testing.T) {
	opts := InspectorOptions{"limit": 5, "wide": int64(7), "name": "x", "on": true, "bad": "7"}
	if opts.Int("limit", 1) != 5 || opts.Int("wide", 1) != 7 || opts.Int("bad", 1) != 1 || opts.Int("none", 9) != 9 {
		t.Error("Int() mismatch")
	}
	if opts.String("name", "") != "x" || opts.String("limit", "d") != "d" {
		t.Error("String() mismatch")
	}
	if !opts.Bool("on", false) || opts.Bool("none", true) != true {
		t.Error("Bool() mismatch")
	}
}

package filescan

import (
	"context"
	"strings"
	"testing"
	"time"
)

func BenchmarkFingerprint(b *testing.B) {
	for _, size := range []int{1 << 10, 1 << 20} {
		data := []byte(strings.Repeat("x", size))
		b.Run(byteSize(size), func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				Fingerprint(data)
			}
		})
	}
}

func BenchmarkDispatch(b *testing.B) {
	d := NewDispatcher(discardLogger())
	node := &Node{ID: "n", Data: []byte(strings.Repeat("Hello, World! ", 100))}
	inspectors := resolve(
		fieldInspector("a", "k", 1),
		fieldInspector("b", "k", 2),
		fieldInspector("c", "j", "v"),
	)
	limits := Limits{InspectorTimeout: time.Second}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Dispatch(ctx, node, inspectors, limits, time.Time{})
	}
}

func BenchmarkRoute(b *testing.B) {
	table := RouteTable{
		Routes: []Route{
			{Flavors: []string{"zip_file"}, Inspectors: []InspectorRef{{Name: "zip"}, {Name: "hash"}}},
			{Flavors: []string{"text/plain"}, Inspectors: []InspectorRef{{Name: "url"}, {Name: "hash"}}},
		},
		Fallback: []InspectorRef{{Name: "hash"}},
	}
	router, err := NewRouter(table, testRegistry("zip", "hash", "url"))
	if err != nil {
		b.Fatal(err)
	}
	matches := []string{"application/zip", "zip_file", "text/plain"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.Route(matches)
	}
}

func byteSize(n int) string {
	if n >= 1<<20 {
		return "1MB"
	}
	return "1KB"
}

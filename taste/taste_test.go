package taste

import (
	"archive/zip"
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zeebo/blake3"
)

func zipBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, name := range names {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte("content of " + name)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, MIMEEmpty},
		{"pdf", []byte("%PDF-1.7\n%%EOF"), "application/pdf"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}, "image/png"},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, "application/gzip"},
		{"elf", []byte{0x7F, 'E', 'L', 'F', 2, 1, 1}, "application/x-executable"},
		{"mz", []byte("MZ\x90\x00"), "application/x-dosexec"},
		{"plain text", []byte("just some words"), "text/plain"},
		{"json", []byte(`{"a": 1}`), "application/json"},
		{"xml", []byte(`<?xml version="1.0"?><a/>`), "application/xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.data); got != tt.want {
				t.Errorf("DetectMIME() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultRules(t *testing.T) {
	rs := MustDefault()

	encrypted := zipBytes(t, "a.txt")
	encrypted[6] |= 0x01

	tests := []struct {
		name string
		data []byte
		want []string
	}{
		{"zip", zipBytes(t, "a.txt"), []string{"zip_file"}},
		{"encrypted zip", encrypted, []string{"zip_file", "encrypted_zip"}},
		{"ooxml", zipBytes(t, "[Content_Types].xml", "word/document.xml"), []string{"zip_file", "ooxml_file"}},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, []string{"gzip_file"}},
		{"mz", []byte("MZ\x90\x00"), []string{"mz_file"}},
		{"pdf with junk prefix", append([]byte("junk\n"), []byte("%PDF-1.4")...), []string{"pdf_file"}},
		{"nothing", []byte("plain words"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rs.Match(tt.data)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchIsIdempotent(t *testing.T) {
	rs := MustDefault()
	data := zipBytes(t, "a.txt", "b.txt")

	first, _ := rs.Match(data)
	for i := 0; i < 5; i++ {
		again, _ := rs.Match(data)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Match() not idempotent (-first +again):\n%s", diff)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"missing name", []Rule{{Patterns: []Pattern{{Text: "x"}}}}},
		{"duplicate", []Rule{{Name: "a", Patterns: []Pattern{{Text: "x"}}}, {Name: "a", Patterns: []Pattern{{Text: "y"}}}}},
		{"no patterns", []Rule{{Name: "a"}}},
		{"bad hex", []Rule{{Name: "a", Patterns: []Pattern{{Hex: "zz"}}}}},
		{"hex and text", []Rule{{Name: "a", Patterns: []Pattern{{Hex: "00", Text: "x"}}}}},
		{"mask length", []Rule{{Name: "a", Patterns: []Pattern{{Hex: "0001", Mask: "01"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.rules); err == nil {
				t.Error("Compile() expected error")
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	src := `
rules:
  - name: cafe_file
    patterns:
      - hex: "ca fe ba be"
  - name: not_text
    patterns:
      - text: "hello"
        not: true
`
	rs, err := LoadRules(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rs.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rs.Len())
	}

	got, _ := rs.Match([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	if diff := cmp.Diff([]string{"cafe_file", "not_text"}, got); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
	got, _ = rs.Match([]byte("hello"))
	if len(got) != 0 {
		t.Errorf("Match() = %v, want none", got)
	}
}

func TestLoadWithFilenames(t *testing.T) {
	src := `
rules:
  - name: cafe_file
    patterns:
      - hex: "cafebabe"
filenames:
  - pattern: "*.class"
    flavor: class_name
`
	rs, filenames, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rs.Len())
	}
	want := []FilenameRule{{Pattern: "*.class", Flavor: "class_name"}}
	if diff := cmp.Diff(want, filenames); diff != "" {
		t.Errorf("filenames mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := Load(strings.NewReader("unknown: 1\n")); err == nil {
		t.Error("Load() expected error for an unknown key")
	}
}

func TestDefaultFilenameRules(t *testing.T) {
	taster, err := New(MustDefault(), WithFilenameRules(DefaultFilenameRules...))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"dropper.JS":      "javascript_name",
		"run.ps1":         "powershell_name",
		"start.cmd":       "batch_name",
		"dir/invoice.lnk": "shortcut_name",
	}
	for name, flavor := range tests {
		got := taster.Taste([]byte("x"), name)
		if !slices.Contains(got.Flavors, flavor) {
			t.Errorf("Taste(%q).Flavors = %v, want %s", name, got.Flavors, flavor)
		}
	}
}

type failingMatcher struct{}

func (failingMatcher) Match([]byte) ([]string, error) { return nil, errors.New("engine crashed") }

func TestTaster(t *testing.T) {
	t.Run("mime then rules then filename", func(t *testing.T) {
		ts, err := New(nil, WithFilenameRules(FilenameRule{Pattern: "*.zip", Flavor: "zip_name"}), WithCacheSize(16))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		got := ts.Taste(zipBytes(t, "a.txt"), "dir/Archive.ZIP")
		want := []string{"application/zip", "zip_file", "zip_name"}
		if diff := cmp.Diff(want, got.Flavors); diff != "" {
			t.Errorf("Flavors mismatch (-want +got):\n%s", diff)
		}
		if got.MIME != "application/zip" {
			t.Errorf("MIME = %q", got.MIME)
		}
	})

	t.Run("matcher error means no rule flavors", func(t *testing.T) {
		ts, err := New(failingMatcher{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		got := ts.Taste([]byte("plain words"), "")
		if diff := cmp.Diff([]string{"text/plain"}, got.Flavors); diff != "" {
			t.Errorf("Flavors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("uncompiled rule set", func(t *testing.T) {
		var rs *RuleSet
		if _, err := rs.Match([]byte("x")); !errors.Is(err, ErrNoRules) {
			t.Errorf("Match() error = %v, want ErrNoRules", err)
		}
	})

	t.Run("cache returns identical tastes", func(t *testing.T) {
		ts, _ := New(nil, WithCacheSize(4))
		data := []byte("%PDF-1.4 body")
		first := ts.Taste(data, "a.pdf")
		second := ts.Taste(data, "a.pdf")
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("cached taste differs (-first +second):\n%s", diff)
		}
		if ts.cache.Len() != 1 {
			t.Errorf("cache.Len() = %d, want 1", ts.cache.Len())
		}
	})

	t.Run("cache is keyed by content digest", func(t *testing.T) {
		archive := zipBytes(t, "a.txt")
		text := bytes.Repeat([]byte("a"), len(archive))

		uncached, _ := New(nil)
		want := uncached.Taste(archive, "")

		cached, _ := New(nil, WithCacheSize(4))
		cached.Taste(text, "")
		if got := cached.Taste(archive, ""); !cmp.Equal(want, got) {
			t.Errorf("cached taste after text = %+v, want %+v", got, want)
		}
		if cached.cache.Len() != 2 {
			t.Errorf("cache.Len() = %d, want 2", cached.cache.Len())
		}

		if keyOf(archive) != contentKey(blake3.Sum256(archive)) {
			t.Error("cache key is not the blake3 digest")
		}
		flipped := bytes.Clone(archive)
		flipped[len(flipped)-1] ^= 1
		if keyOf(archive) == keyOf(flipped) {
			t.Error("one changed byte kept the same cache key")
		}
	})
}

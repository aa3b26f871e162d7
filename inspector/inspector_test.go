package inspector

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/gobeaver/filescan"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func inspect(t *testing.T, ins filescan.Inspector, data []byte, name string, opts filescan.InspectorOptions) *filescan.Result {
	t.Helper()
	res, err := ins.Inspect(context.Background(), &filescan.Request{
		Data:    data,
		File:    filescan.FileMeta{Name: name},
		Options: opts,
	})
	if err != nil {
		t.Fatalf("%s.Inspect() error = %v", ins.Name(), err)
	}
	return res
}

func hasFlag(res *filescan.Result, flag string) bool {
	for _, f := range res.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func childNames(res *filescan.Result) []string {
	var names []string
	for _, c := range res.Children {
		names = append(names, c.Name)
	}
	return names
}

type member struct {
	name      string
	body      string
	encrypted bool
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.name, Method: zip.Deflate}
		if m.encrypted {
			hdr.Flags |= 0x1
		}
		f, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create %s: %v", m.name, err)
		}
		if _, err := f.Write([]byte(m.body)); err != nil {
			t.Fatalf("write %s: %v", m.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestZip(t *testing.T) {
	three := buildZip(t,
		member{name: "a.txt", body: "alpha"},
		member{name: "b.txt", body: "bravo"},
		member{name: "c.txt", body: "charlie"},
	)

	t.Run("yields every member in order", func(t *testing.T) {
		res := inspect(t, Zip{}, three, "three.zip", nil)
		if diff := cmp.Diff([]string{"a.txt", "b.txt", "c.txt"}, childNames(res)); diff != "" {
			t.Errorf("children mismatch (-want +got):\n%s", diff)
		}
		if n, _ := res.Fields.Int("total.files"); n != 3 {
			t.Errorf("total.files = %d, want 3", n)
		}
		if n, _ := res.Fields.Int("total.extracted"); n != 3 {
			t.Errorf("total.extracted = %d, want 3", n)
		}
		if string(res.Children[2].Data) != "charlie" {
			t.Errorf("child data = %q", res.Children[2].Data)
		}
	})

	t.Run("limit option", func(t *testing.T) {
		res := inspect(t, Zip{}, three, "three.zip", filescan.InspectorOptions{"limit": 1})
		if len(res.Children) != 1 {
			t.Fatalf("children = %d, want 1", len(res.Children))
		}
		if n, _ := res.Fields.Int("total.files"); n != 3 {
			t.Errorf("total.files = %d, want 3", n)
		}
		if !hasFlag(res, FlagLimitReached) {
			t.Errorf("flags = %v, want %s", res.Flags, FlagLimitReached)
		}
	})

	t.Run("encrypted and dangerous members", func(t *testing.T) {
		data := buildZip(t,
			member{name: "secret.txt", body: "s", encrypted: true},
			member{name: "~/.ssh/authorized_keys", body: "root"},
		)
		res := inspect(t, Zip{}, data, "", nil)
		if !hasFlag(res, FlagEncrypted) || !hasFlag(res, FlagDangerousPath) {
			t.Errorf("flags = %v", res.Flags)
		}
		if diff := cmp.Diff([]string{"~/.ssh/authorized_keys"}, childNames(res)); diff != "" {
			t.Errorf("children mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("compression ratio", func(t *testing.T) {
		data := buildZip(t, member{name: "zeros", body: string(make([]byte, 1<<16))})
		res := inspect(t, Zip{}, data, "", nil)
		if !hasFlag(res, "compression_ratio") {
			t.Errorf("flags = %v, want compression_ratio", res.Flags)
		}
	})

	t.Run("max_size truncates", func(t *testing.T) {
		data := buildZip(t, member{name: "big", body: "0123456789"})
		res := inspect(t, Zip{}, data, "", filescan.InspectorOptions{"max_size": 4})
		if string(res.Children[0].Data) != "0123" || !hasFlag(res, FlagTruncated) {
			t.Errorf("child = %q flags = %v", res.Children[0].Data, res.Flags)
		}
	})

	t.Run("not a zip", func(t *testing.T) {
		if _, err := (Zip{}).Inspect(context.Background(), &filescan.Request{Data: []byte("nope")}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestTar(t *testing.T) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	write := func(hdr *tar.Header, body string) {
		hdr.Size = int64(len(body))
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	write(&tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o755}, "")
	write(&tar.Header{Name: "dir/one.txt", Typeflag: tar.TypeReg}, "one")
	write(&tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc/shadow"}, "")
	write(&tar.Header{Name: "two.txt", Typeflag: tar.TypeReg}, "two")
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	res := inspect(t, Tar{}, buf.Bytes(), "x.tar", nil)
	if diff := cmp.Diff([]string{"dir/one.txt", "two.txt"}, childNames(res)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if !hasFlag(res, "symlink") {
		t.Errorf("flags = %v, want symlink", res.Flags)
	}
	if n, _ := res.Fields.Int("total.extracted"); n != 2 {
		t.Errorf("total.extracted = %d, want 2", n)
	}
}

func TestSingleStream(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	gz := new(bytes.Buffer)
	gw := gzip.NewWriter(gz)
	gw.Name = "fox.txt"
	gw.Write(payload)
	gw.Close()

	enc, _ := zstd.NewWriter(nil)
	zst := enc.EncodeAll(payload, nil)
	enc.Close()

	lz := new(bytes.Buffer)
	lw := lz4.NewWriter(lz)
	lw.Write(payload)
	lw.Close()

	tests := []struct {
		name      string
		ins       filescan.Inspector
		data      []byte
		parent    string
		wantChild string
	}{
		{"gzip header name", Gzip{}, gz.Bytes(), "anything.gz", "fox.txt"},
		{"zstd strips extension", Zstd{}, zst, "dir/fox.txt.zst", "fox.txt"},
		{"lz4 fallback name", LZ4{}, lz.Bytes(), "", "lz4_member"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := inspect(t, tt.ins, tt.data, tt.parent, nil)
			if len(res.Children) != 1 {
				t.Fatalf("children = %d, want 1", len(res.Children))
			}
			if res.Children[0].Name != tt.wantChild {
				t.Errorf("child name = %q, want %q", res.Children[0].Name, tt.wantChild)
			}
			if !bytes.Equal(res.Children[0].Data, payload) {
				t.Errorf("child data = %q", res.Children[0].Data)
			}
		})
	}

	t.Run("bzip2 rejects garbage", func(t *testing.T) {
		if _, err := (Bzip2{}).Inspect(context.Background(), &filescan.Request{Data: []byte("BZh9garbage")}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCCN(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"valid visa", "card: 4111111111111111 exp 12/30", true},
		{"fails luhn", "card: 4111111111111112", false},
		{"no number", "nothing here", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := inspect(t, CCN{}, []byte(tt.data), "", nil)
			if got := hasFlag(res, "luhn_match"); got != tt.want {
				t.Errorf("luhn_match = %v, want %v", got, tt.want)
			}
			if len(res.Fields) != 0 {
				t.Errorf("fields = %v, want none", res.Fields)
			}
		})
	}
}

func TestURL(t *testing.T) {
	data := []byte(`see https://example.com/a and "http://evil.test/x?y=1" then https://example.com/a again`)
	res := inspect(t, URL{}, data, "", nil)
	want := []any{"https://example.com/a", "http://evil.test/x?y=1"}
	if diff := cmp.Diff(want, res.Fields.Values("urls")); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
}

func TestHTML(t *testing.T) {
	doc := `<html><head><title> Hi </title><script src="/a.js"></script></head>
<body><a href="https://x.test">x</a><script>alert(1)</script><iframe src="//f.test"></iframe>
<form action="/post"></form></body></html>`
	res := inspect(t, HTML{}, []byte(doc), "", nil)

	if s, _ := res.Fields.String("title"); s != "Hi" {
		t.Errorf("title = %q", s)
	}
	if s, _ := res.Fields.String("links"); s != "https://x.test" {
		t.Errorf("links = %q", s)
	}
	if s, _ := res.Fields.String("scripts"); s != "/a.js" {
		t.Errorf("scripts = %q", s)
	}
	if diff := cmp.Diff([]string{"script_1"}, childNames(res)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if !hasFlag(res, "embedded_frame") {
		t.Errorf("flags = %v", res.Flags)
	}
}

func TestJSON(t *testing.T) {
	res := inspect(t, JSON{}, []byte(`{"b": {"c": [1]}, "a": 2}`), "", nil)
	if diff := cmp.Diff([]any{"a", "b"}, res.Fields.Values("keys")); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if d, _ := res.Fields.Int("depth"); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}

	bad := inspect(t, JSON{}, []byte(`{"a":`), "", nil)
	if !hasFlag(bad, "json_parse_error") {
		t.Errorf("flags = %v", bad.Flags)
	}
}

func TestXML(t *testing.T) {
	doc := `<?xml version="1.0"?><!DOCTYPE r [<!ENTITY x "y">]><r xmlns="urn:a"><c><d/></c></r>`
	res := inspect(t, XML{}, []byte(doc), "", nil)
	if s, _ := res.Fields.String("root"); s != "r" {
		t.Errorf("root = %q", s)
	}
	if d, _ := res.Fields.Int("depth"); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}
	if !hasFlag(res, "doctype") || !hasFlag(res, "entity_declaration") {
		t.Errorf("flags = %v", res.Flags)
	}
}

func TestPDF(t *testing.T) {
	res := inspect(t, PDF{}, []byte("%PDF-1.7\n1 0 obj << /OpenAction 2 0 R /JS (x) >> endobj\n/JSON\n%%EOF"), "", nil)
	if s, _ := res.Fields.String("version"); s != "1.7" {
		t.Errorf("version = %q", s)
	}
	for _, f := range []string{"open_action", "javascript"} {
		if !hasFlag(res, f) {
			t.Errorf("missing flag %s in %v", f, res.Flags)
		}
	}
	if hasFlag(res, "missing_eof") {
		t.Errorf("unexpected missing_eof")
	}

	plain := inspect(t, PDF{}, []byte("%PDF-1.4\n/JSON only"), "", nil)
	if hasFlag(plain, "javascript") || !hasFlag(plain, "missing_eof") {
		t.Errorf("flags = %v", plain.Flags)
	}

	if _, err := (PDF{}).Inspect(context.Background(), &filescan.Request{Data: []byte("not pdf")}); err == nil {
		t.Error("expected error for missing header")
	}
}

func TestImage(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, image.NewGray(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}
	res := inspect(t, Image{}, buf.Bytes(), "", nil)
	if w, _ := res.Fields.Int("width"); w != 3 {
		t.Errorf("width = %d", w)
	}
	if h, _ := res.Fields.Int("height"); h != 2 {
		t.Errorf("height = %d", h)
	}
	if f, _ := res.Fields.String("format"); f != "png" {
		t.Errorf("format = %q", f)
	}
}

func TestOOXML(t *testing.T) {
	core := `<cp:coreProperties xmlns:cp="c" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator>alice</dc:creator></cp:coreProperties>`
	data := buildZip(t,
		member{name: "[Content_Types].xml", body: "<Types/>"},
		member{name: "_rels/.rels", body: "<Relationships/>"},
		member{name: "docProps/core.xml", body: core},
		member{name: "word/document.xml", body: "<w:document/>"},
		member{name: "word/vbaProject.bin", body: "VBA"},
	)
	res := inspect(t, OOXML{}, data, "", nil)

	if s, _ := res.Fields.String("doc_type"); s != "docx" {
		t.Errorf("doc_type = %q", s)
	}
	if s, _ := res.Fields.String("creator"); s != "alice" {
		t.Errorf("creator = %q", s)
	}
	if !hasFlag(res, "macros") || hasFlag(res, "malformed_package") {
		t.Errorf("flags = %v", res.Flags)
	}
	if diff := cmp.Diff([]string{"word/vbaProject.bin"}, childNames(res)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestHashAndEntropy(t *testing.T) {
	res := inspect(t, Hash{}, []byte("abc"), "", filescan.InspectorOptions{"algorithms": "md5, sha256"})
	if diff := cmp.Diff([]string{"md5", "sha256"}, res.Fields.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if s, _ := res.Fields.String("md5"); s != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("md5 = %q", s)
	}

	random := make([]byte, 256*64)
	for i := range random {
		random[i] = byte(i)
	}
	e := inspect(t, Entropy{}, random, "", nil)
	if v, _ := e.Fields.Get("entropy"); v != 8.0 {
		t.Errorf("entropy = %v, want 8", v)
	}
	if !hasFlag(e, "high_entropy") {
		t.Errorf("flags = %v", e.Flags)
	}
}

func TestDefaultRouteTable(t *testing.T) {
	router, err := filescan.NewRouter(DefaultRouteTable(), DefaultRegistry())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	names := func(rs []filescan.Resolved) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Inspector.Name())
		}
		return out
	}

	tests := []struct {
		name    string
		flavors []string
		want    []string
	}{
		{"zip", []string{"application/zip", "zip_file"}, []string{"zip", "hash"}},
		{"docx before zip", []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "zip_file", "ooxml_file"}, []string{"ooxml", "hash", "zip"}},
		{"unmatched", nil, []string{"hash", "entropy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, names(router.Route(tt.flavors))); diff != "" {
				t.Errorf("route mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

package inspector

import (
	"time"

	"github.com/gobeaver/filescan"
)

// All returns one instance of every built-in inspector.
func All() []filescan.Inspector {
	return []filescan.Inspector{
		Hash{},
		Entropy{},
		CCN{},
		URL{},
		HTML{},
		JSON{},
		XML{},
		PDF{},
		Image{},
		OOXML{},
		Zip{},
		Tar{},
		Gzip{},
		Zstd{},
		LZ4{},
		Bzip2{},
	}
}

// DefaultRegistry returns a registry with all built-in inspectors registered.
func DefaultRegistry() *filescan.Registry {
	registry := filescan.NewRegistry()
	for _, ins := range All() {
		registry.Register(ins)
	}
	return registry
}

func refs(names ...string) []filescan.InspectorRef {
	out := make([]filescan.InspectorRef, len(names))
	for i, name := range names {
		out[i] = filescan.InspectorRef{Name: name}
	}
	return out
}

// DefaultRouteTable routes MIME and signature-rule flavors to the built-in
// inspectors. Unmatched content is hashed and scanned for URLs.
func DefaultRouteTable() filescan.RouteTable {
	return filescan.RouteTable{
		Routes: []filescan.Route{
			{
				Flavors: []string{
					"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
					"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
					"application/vnd.openxmlformats-officedocument.presentationml.presentation",
					"ooxml_file",
				},
				Inspectors: refs("ooxml", "hash"),
			},
			{
				Flavors:    []string{"application/zip", "zip_file", "encrypted_zip"},
				Inspectors: []filescan.InspectorRef{{Name: "zip", Timeout: 60 * time.Second}, {Name: "hash"}},
			},
			{
				Flavors:    []string{"application/x-tar", "tar_file"},
				Inspectors: refs("tar", "hash"),
			},
			{
				Flavors:    []string{"application/gzip", "gzip_file"},
				Inspectors: refs("gzip", "hash"),
			},
			{
				Flavors:    []string{"application/zstd", "zstd_file"},
				Inspectors: refs("zstd", "hash"),
			},
			{
				Flavors:    []string{"application/x-lz4", "lz4_file"},
				Inspectors: refs("lz4", "hash"),
			},
			{
				Flavors:    []string{"application/x-bzip2", "bzip2_file"},
				Inspectors: refs("bzip2", "hash"),
			},
			{
				Flavors:    []string{"application/pdf", "pdf_file"},
				Inspectors: refs("pdf", "url", "hash", "entropy"),
			},
			{
				Flavors:    []string{"image/png", "image/jpeg", "image/gif", "png_file", "jpeg_file", "gif_file"},
				Inspectors: refs("image", "hash"),
			},
			{
				Flavors:    []string{"text/html", "html_file"},
				Inspectors: refs("html", "url", "hash"),
			},
			{
				Flavors:    []string{"application/json"},
				Inspectors: refs("json", "url", "ccn", "hash"),
			},
			{
				Flavors:    []string{"application/xml", "text/xml", "xml_file"},
				Inspectors: refs("xml", "url", "hash"),
			},
			{
				Flavors:    []string{"text/plain", "text/rtf", "rtf_file"},
				Inspectors: refs("url", "ccn", "hash"),
			},
			{
				Flavors:    []string{"javascript_name", "vbscript_name", "powershell_name", "batch_name", "shortcut_name"},
				Inspectors: refs("url", "hash", "entropy"),
			},
			{
				Flavors: []string{
					"application/x-dosexec", "application/x-executable", "application/x-mach-binary",
					"mz_file", "elf_file", "macho_file", "olecf_file",
				},
				Inspectors: refs("hash", "entropy"),
			},
		},
		Fallback: refs("hash", "entropy"),
	}
}

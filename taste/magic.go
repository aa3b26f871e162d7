package taste

import (
	"bytes"
	"net/http"
	"strings"
)

// MIMEEmpty is reported for zero-length content.
const MIMEEmpty = "application/x-empty"

// MagicSignature defines a file type signature
type MagicSignature struct {
	MIME   string
	Offset int    // Offset from start of file
	Magic  []byte // Magic bytes to match
}

// magicSignatures contains file signatures for MIME detection
// Ordered by specificity (most specific first)
var magicSignatures = []MagicSignature{
	// Images
	{MIME: "image/jpeg", Offset: 0, Magic: []byte{0xFF, 0xD8, 0xFF}},
	{MIME: "image/png", Offset: 0, Magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{MIME: "image/gif", Offset: 0, Magic: []byte("GIF87a")},
	{MIME: "image/gif", Offset: 0, Magic: []byte("GIF89a")},
	{MIME: "image/webp", Offset: 8, Magic: []byte("WEBP")},
	{MIME: "image/bmp", Offset: 0, Magic: []byte("BM")},
	{MIME: "image/tiff", Offset: 0, Magic: []byte{0x49, 0x49, 0x2A, 0x00}},
	{MIME: "image/tiff", Offset: 0, Magic: []byte{0x4D, 0x4D, 0x00, 0x2A}},

	// Documents
	{MIME: "application/pdf", Offset: 0, Magic: []byte("%PDF-")},
	{MIME: "application/x-ole-storage", Offset: 0, Magic: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	{MIME: "text/rtf", Offset: 0, Magic: []byte("{\\rtf")},

	// Archives and compressed streams
	{MIME: "application/zip", Offset: 0, Magic: []byte{0x50, 0x4B, 0x03, 0x04}},
	{MIME: "application/zip", Offset: 0, Magic: []byte{0x50, 0x4B, 0x05, 0x06}},
	{MIME: "application/zip", Offset: 0, Magic: []byte{0x50, 0x4B, 0x07, 0x08}},
	{MIME: "application/gzip", Offset: 0, Magic: []byte{0x1F, 0x8B}},
	{MIME: "application/x-tar", Offset: 257, Magic: []byte("ustar")},
	{MIME: "application/x-rar", Offset: 0, Magic: []byte("Rar!\x1a\x07")},
	{MIME: "application/x-7z-compressed", Offset: 0, Magic: []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
	{MIME: "application/x-bzip2", Offset: 0, Magic: []byte("BZh")},
	{MIME: "application/x-xz", Offset: 0, Magic: []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}},
	{MIME: "application/zstd", Offset: 0, Magic: []byte{0x28, 0xB5, 0x2F, 0xFD}},
	{MIME: "application/x-lz4", Offset: 0, Magic: []byte{0x04, 0x22, 0x4D, 0x18}},

	// Executables
	{MIME: "application/x-dosexec", Offset: 0, Magic: []byte("MZ")},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xCE, 0xFA, 0xED, 0xFE}},
	{MIME: "application/x-executable", Offset: 0, Magic: []byte{0x7F, 'E', 'L', 'F'}},

	// Media
	{MIME: "audio/mpeg", Offset: 0, Magic: []byte("ID3")},
	{MIME: "audio/flac", Offset: 0, Magic: []byte("fLaC")},
	{MIME: "audio/ogg", Offset: 0, Magic: []byte("OggS")},
	{MIME: "audio/wav", Offset: 0, Magic: []byte("RIFF")},
	{MIME: "video/webm", Offset: 0, Magic: []byte{0x1A, 0x45, 0xDF, 0xA3}},
	{MIME: "video/mp4", Offset: 4, Magic: []byte("ftyp")},

	// Markup
	{MIME: "application/xml", Offset: 0, Magic: []byte("<?xml")},
	{MIME: "text/html", Offset: 0, Magic: []byte("<!DOCTYPE html")},
	{MIME: "text/html", Offset: 0, Magic: []byte("<!doctype html")},
	{MIME: "text/html", Offset: 0, Magic: []byte("<html")},
	{MIME: "text/html", Offset: 0, Magic: []byte("<HTML")},
}

// DetectMIME detects the MIME type from content using magic bytes.
// Falls back to http.DetectContentType if no magic match found.
func DetectMIME(data []byte) string {
	if len(data) == 0 {
		return MIMEEmpty
	}

	if mime := detectByMagic(data); mime != "" {
		return refineDetection(data, mime)
	}

	contentType := http.DetectContentType(data)
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = contentType[:idx]
	}
	if contentType == "text/plain" && looksLikeJSON(data) {
		return "application/json"
	}
	return contentType
}

// detectByMagic checks data against known magic signatures
func detectByMagic(data []byte) string {
	for _, sig := range magicSignatures {
		if sig.Offset+len(sig.Magic) > len(data) {
			continue
		}
		if bytes.Equal(data[sig.Offset:sig.Offset+len(sig.Magic)], sig.Magic) {
			return sig.MIME
		}
	}
	return ""
}

// refineDetection handles cases where multiple formats share magic bytes
func refineDetection(data []byte, initialMIME string) string {
	switch initialMIME {
	case "audio/wav":
		if len(data) >= 12 {
			switch string(data[8:12]) {
			case "WAVE":
				return "audio/wav"
			case "AVI ":
				return "video/x-msvideo"
			case "WEBP":
				return "image/webp"
			}
		}
		return initialMIME

	case "application/zip":
		// OOXML packages list [Content_Types].xml or their part folders
		// in the first local headers.
		head := data
		if len(head) > 4096 {
			head = head[:4096]
		}
		switch {
		case bytes.Contains(head, []byte("word/")):
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case bytes.Contains(head, []byte("xl/")):
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case bytes.Contains(head, []byte("ppt/")):
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
		return initialMIME

	default:
		return initialMIME
	}
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) < 2 {
		return false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

// IsExecutableMIME returns true if the MIME type indicates an executable
func IsExecutableMIME(mime string) bool {
	switch mime {
	case "application/x-msdownload", "application/x-dosexec", "application/x-executable",
		"application/x-mach-binary", "application/x-sharedlib":
		return true
	}
	return false
}

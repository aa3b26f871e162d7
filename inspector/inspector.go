// Package inspector provides the built-in inspectors and the default flavor
// table that routes to them.
//
// Inspectors read only what they need to extract metadata and members. They
// are deliberately shallow: archive inspectors yield members as children and
// leave their analysis to the next pass.
package inspector

import (
	"bytes"
	"io"
	"strings"

	"github.com/gobeaver/filescan"
)

const (
	// DefaultLimit is the default number of members an archive inspector
	// yields. Override with the "limit" option.
	DefaultLimit = 1000

	// DefaultMaxMemberSize caps the bytes read for one member. Override with
	// the "max_size" option.
	DefaultMaxMemberSize = 64 << 20
)

// Flags raised by several inspectors.
const (
	FlagTruncated     = "truncated"
	FlagDangerousPath = "dangerous_path"
	FlagEncrypted     = "encrypted"
	FlagLimitReached  = "member_limit_reached"
)

// extraction holds the per-call member budget of an archive inspector.
type extraction struct {
	limit   int
	maxSize int64
}

func newExtraction(opts filescan.InspectorOptions) extraction {
	limit := opts.Int("limit", DefaultLimit)
	if limit < 0 {
		limit = 0
	}
	maxSize := int64(opts.Int("max_size", DefaultMaxMemberSize))
	if maxSize <= 0 {
		maxSize = DefaultMaxMemberSize
	}
	return extraction{limit: limit, maxSize: maxSize}
}

// read drains r up to the size cap and reports whether data was cut off.
func (e extraction) read(r io.Reader) ([]byte, bool, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, e.maxSize+1))
	if err != nil {
		return nil, false, err
	}
	if n > e.maxSize {
		return buf.Bytes()[:e.maxSize], true, nil
	}
	return buf.Bytes(), false, nil
}

// dangerousPatterns mark member paths that try to escape an extraction root.
var dangerousPatterns = []string{
	"../",
	"..\\",
	"/etc/",
	"/sys/",
	"/proc/",
	"/dev/",
	"C:\\Windows\\",
	"C:\\System32\\",
	"~",
}

// isDangerousPath checks a member path for traversal or absolute targets.
func isDangerousPath(path string) bool {
	if path == ".." || strings.HasSuffix(path, "/..") {
		return true
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return isAbsolutePath(path)
}

func isAbsolutePath(path string) bool {
	if len(path) > 0 && path[0] == '/' {
		return true
	}
	// C:\ and C:/
	if len(path) > 2 && path[1] == ':' && (path[2] == '\\' || path[2] == '/') {
		return true
	}
	// \\server\share
	return len(path) > 1 && path[0] == '\\' && path[1] == '\\'
}

// memberName derives a child name for single-stream formats such as gzip.
func memberName(parent, ext, fallback string) string {
	base := parent
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if strings.HasSuffix(strings.ToLower(base), ext) {
		if trimmed := base[:len(base)-len(ext)]; trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// head returns at most n leading elements of s.
func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// flagSet raises each flag at most once per inspector call.
type flagSet map[string]bool

func (s flagSet) raise(res *filescan.Result, flag string) {
	if s[flag] {
		return
	}
	s[flag] = true
	res.AddFlag(flag)
}

// splitList splits a comma separated option value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package inspector

import (
	"bytes"
	"context"
	"errors"
	"regexp"

	"github.com/gobeaver/filescan"
)

var (
	pdfVersion = regexp.MustCompile(`%PDF-(\d\.\d)`)
	pdfObject  = regexp.MustCompile(`\d+\s+\d+\s+obj\b`)
)

// pdfMarkers maps name tokens to the flag they raise.
var pdfMarkers = []struct {
	token []byte
	flag  string
}{
	{[]byte("/JavaScript"), "javascript"},
	{[]byte("/JS"), "javascript"},
	{[]byte("/OpenAction"), "open_action"},
	{[]byte("/AA"), "additional_actions"},
	{[]byte("/Launch"), "launch_action"},
	{[]byte("/EmbeddedFile"), "embedded_file"},
	{[]byte("/AcroForm"), "acroform"},
	{[]byte("/Encrypt"), FlagEncrypted},
}

// PDF reads the header, trailer and name tokens of a PDF without parsing
// its object graph.
type PDF struct{}

func (PDF) Name() string { return "pdf" }

func (PDF) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	m := pdfVersion.FindSubmatch(head(req.Data, 1024))
	if m == nil {
		return nil, errors.New("pdf header not found")
	}

	res := &filescan.Result{}
	res.AddField("version", string(m[1]))
	res.AddField("objects", len(pdfObject.FindAllIndex(req.Data, -1)))

	flags := flagSet{}
	for _, marker := range pdfMarkers {
		if containsName(req.Data, marker.token) {
			flags.raise(res, marker.flag)
		}
	}

	tail := req.Data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		flags.raise(res, "missing_eof")
	}
	return res, nil
}

// containsName matches a PDF name token so that /JS does not match /JSON.
func containsName(data, name []byte) bool {
	for off := 0; ; {
		i := bytes.Index(data[off:], name)
		if i < 0 {
			return false
		}
		end := off + i + len(name)
		if end >= len(data) || !isNameChar(data[end]) {
			return true
		}
		off = end
	}
}

func isNameChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '.'
}

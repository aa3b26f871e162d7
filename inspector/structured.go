package inspector

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"sort"

	"github.com/gobeaver/filescan"
)

// JSON parses a document and records its top-level type, keys and nesting
// depth. A parse failure is reported as json_parse_error rather than an
// inspector error.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	res := &filescan.Result{}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(req.Data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		res.AddFlag("json_parse_error")
		return res, nil
	}

	switch v := doc.(type) {
	case map[string]any:
		res.AddField("type", "object")
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range head(keys, req.Options.Int("limit", DefaultLimit)) {
			res.AddField("keys", key)
		}
	case []any:
		res.AddField("type", "array")
		res.AddField("length", len(v))
	default:
		res.AddField("type", "scalar")
	}
	res.AddField("depth", jsonDepth(doc, 0))
	return res, nil
}

func jsonDepth(v any, current int) int {
	deepest := current
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			if d := jsonDepth(child, current+1); d > deepest {
				deepest = d
			}
		}
	case []any:
		for _, child := range val {
			if d := jsonDepth(child, current+1); d > deepest {
				deepest = d
			}
		}
	}
	return deepest
}

// XML streams a document and records its root element, namespaces and
// depth. Documents carrying a DOCTYPE or ENTITY declaration are flagged.
type XML struct{}

func (XML) Name() string { return "xml" }

func (XML) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	res := &filescan.Result{}
	flags := flagSet{}

	dec := xml.NewDecoder(bytes.NewReader(req.Data))
	dec.Strict = false

	var depth, deepest int
	namespaces := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			flags.raise(res, "xml_parse_error")
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && len(res.Fields.Values("root")) == 0 {
				res.AddField("root", t.Name.Local)
			}
			depth++
			if depth > deepest {
				deepest = depth
			}
			if ns := t.Name.Space; ns != "" && !namespaces[ns] {
				namespaces[ns] = true
				res.AddField("namespaces", ns)
			}
		case xml.EndElement:
			depth--
		case xml.Directive:
			d := bytes.TrimSpace(t)
			if bytes.HasPrefix(d, []byte("DOCTYPE")) {
				flags.raise(res, "doctype")
			}
			if bytes.Contains(d, []byte("ENTITY")) {
				flags.raise(res, "entity_declaration")
			}
		}
	}

	res.AddField("depth", deepest)
	return res, nil
}

package inspector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gobeaver/filescan"
	"golang.org/x/net/html"
)

// HTML tokenizes a document and records its title, links, script sources
// and form actions. Inline script bodies are yielded as children.
//
// Options: limit (max inline scripts yielded).
type HTML struct{}

func (HTML) Name() string { return "html" }

func (HTML) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	limit := req.Options.Int("limit", DefaultLimit)
	res := &filescan.Result{}
	flags := flagSet{}
	z := html.NewTokenizer(bytes.NewReader(req.Data))

	var (
		inScript bool
		inTitle  bool
		scripts  int
		script   strings.Builder
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize html: %w", err)
			}
			res.AddField("total.scripts", scripts)
			return res, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "a", "link", "area":
				if v := attr(tok, "href"); v != "" {
					res.AddField("links", v)
				}
			case "script":
				if v := attr(tok, "src"); v != "" {
					res.AddField("scripts", v)
				} else if tt == html.StartTagToken {
					inScript = true
					script.Reset()
				}
			case "iframe", "frame", "embed":
				if v := attr(tok, "src"); v != "" {
					res.AddField("frames", v)
				}
				flags.raise(res, "embedded_frame")
			case "form":
				res.AddField("forms", attr(tok, "action"))
			case "title":
				inTitle = true
			}

		case html.TextToken:
			switch {
			case inScript:
				script.Write(z.Text())
			case inTitle:
				res.AddField("title", strings.TrimSpace(string(z.Text())))
				inTitle = false
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				if inScript && strings.TrimSpace(script.String()) != "" {
					scripts++
					if scripts <= limit {
						res.AddChild(fmt.Sprintf("script_%d", scripts), []byte(script.String()))
					} else {
						flags.raise(res, FlagLimitReached)
					}
				}
				inScript = false
			case "title":
				inTitle = false
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

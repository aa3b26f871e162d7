package inspector

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/gobeaver/filescan"
	"github.com/klauspost/compress/zip"
)

// coreProperties is the subset of docProps/core.xml that is recorded.
type coreProperties struct {
	Title          string `xml:"title"`
	Creator        string `xml:"creator"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
}

// OOXML reads the package structure of a Word, Excel or PowerPoint file. VBA
// projects are flagged as macros and yielded as children.
type OOXML struct{}

func (OOXML) Name() string { return "ooxml" }

func (OOXML) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	ext := newExtraction(req.Options)
	zr, err := zip.NewReader(bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}

	res := &filescan.Result{}
	flags := flagSet{}
	var (
		docType         string
		hasContentTypes bool
		hasRels         bool
	)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch f.Name {
		case "[Content_Types].xml":
			hasContentTypes = true
		case "_rels/.rels":
			hasRels = true
		case "docProps/core.xml":
			if props, err := readCore(f, ext); err == nil {
				addCore(res, props)
			}
		}
		if docType == "" {
			docType = ooxmlDocType(f.Name)
		}

		if strings.HasSuffix(f.Name, "vbaProject.bin") {
			flags.raise(res, "macros")
			rc, err := f.Open()
			if err != nil {
				flags.raise(res, "ooxml_member_error")
				continue
			}
			data, truncated, err := ext.read(rc)
			rc.Close()
			if err != nil {
				flags.raise(res, "ooxml_member_error")
				continue
			}
			if truncated {
				flags.raise(res, FlagTruncated)
			}
			res.AddChild(f.Name, data)
		}
	}

	if docType != "" {
		res.AddField("doc_type", docType)
	}
	if !hasContentTypes || !hasRels {
		flags.raise(res, "malformed_package")
	}
	return res, nil
}

func ooxmlDocType(path string) string {
	switch {
	case strings.HasPrefix(path, "word/"):
		return "docx"
	case strings.HasPrefix(path, "xl/"):
		return "xlsx"
	case strings.HasPrefix(path, "ppt/"):
		return "pptx"
	}
	return ""
}

func readCore(f *zip.File, ext extraction) (coreProperties, error) {
	var props coreProperties
	rc, err := f.Open()
	if err != nil {
		return props, err
	}
	defer rc.Close()
	data, _, err := ext.read(rc)
	if err != nil {
		return props, err
	}
	err = xml.Unmarshal(data, &props)
	return props, err
}

func addCore(res *filescan.Result, p coreProperties) {
	for _, kv := range [][2]string{
		{"title", p.Title},
		{"creator", p.Creator},
		{"last_modified_by", p.LastModifiedBy},
		{"created", p.Created},
		{"modified", p.Modified},
	} {
		if kv[1] != "" {
			res.AddField(kv[0], kv[1])
		}
	}
}

package main

import (
	"encoding/json"
	"io"

	"github.com/gobeaver/filescan"
)

// eventLine is one line of scan output.
type eventLine struct {
	Submission string `json:"submission"`
	Source     string `json:"source"`
	Incomplete bool   `json:"incomplete,omitempty"`
	*filescan.Event
}

// writeReport writes the report's events as JSON lines, root first.
func writeReport(w io.Writer, source string, report *filescan.Report, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	for _, ev := range report.Events {
		line := eventLine{
			Submission: report.SubmissionID,
			Source:     source,
			Incomplete: report.Incomplete,
			Event:      ev,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

package inspector

import (
	"context"
	"regexp"

	"github.com/gobeaver/filescan"
)

var (
	visaPattern = regexp.MustCompile(`\b4[0-9]{12}(?:[0-9]{3})?\b`)
	urlPattern  = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s"'<>()\[\]{}]+`)
)

// CCN looks for Visa card numbers and raises luhn_match when one passes the
// Luhn check. Matching numbers are never stored.
type CCN struct{}

func (CCN) Name() string { return "ccn" }

func (CCN) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	res := &filescan.Result{}
	for _, m := range visaPattern.FindAll(req.Data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if luhn(m) {
			res.AddFlag("luhn_match")
			break
		}
	}
	return res, nil
}

// luhn validates a string of ASCII digits.
func luhn(digits []byte) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return len(digits) > 0 && sum%10 == 0
}

// URL collects distinct URLs in order of appearance under "urls".
//
// Options: limit (max URLs recorded, default 1000).
type URL struct{}

func (URL) Name() string { return "url" }

func (URL) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	limit := req.Options.Int("limit", DefaultLimit)
	res := &filescan.Result{}
	seen := make(map[string]struct{})
	for _, m := range urlPattern.FindAll(req.Data, -1) {
		u := string(m)
		if _, dup := seen[u]; dup {
			continue
		}
		if len(seen) >= limit {
			res.AddFlag(FlagLimitReached)
			break
		}
		seen[u] = struct{}{}
		res.AddField("urls", u)
	}
	return res, nil
}

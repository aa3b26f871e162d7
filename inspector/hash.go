package inspector

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/gobeaver/filescan"
)

// defaultHashes are computed when the route entry gives no "algorithms".
var defaultHashes = []filescan.ChecksumAlgorithm{
	filescan.ChecksumMD5,
	filescan.ChecksumSHA1,
	filescan.ChecksumSHA256,
	filescan.ChecksumBLAKE3,
}

// Hash records content digests as fields named after their algorithm.
//
// Options: algorithms (comma separated, e.g. "md5,xxhash").
type Hash struct{}

func (Hash) Name() string { return "hash" }

func (Hash) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	algorithms := defaultHashes
	if list := req.Options.String("algorithms", ""); list != "" {
		algorithms = nil
		for _, a := range splitList(list) {
			algorithms = append(algorithms, filescan.ChecksumAlgorithm(a))
		}
	}

	sums, err := filescan.CalculateChecksums(bytes.NewReader(req.Data), algorithms)
	if err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}

	res := &filescan.Result{}
	for _, a := range algorithms {
		res.AddField(string(a), sums[a])
	}
	return res, nil
}

// Entropy records the Shannon entropy of the content in bits per byte and
// flags content above the "threshold" option (default 7.2) as high_entropy.
type Entropy struct{}

func (Entropy) Name() string { return "entropy" }

func (Entropy) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	res := &filescan.Result{}
	e := shannon(req.Data)
	res.AddField("entropy", math.Round(e*1000)/1000)

	threshold := 7.2
	if v, ok := req.Options["threshold"].(float64); ok {
		threshold = v
	}
	if len(req.Data) > 0 && e > threshold {
		res.AddFlag("high_entropy")
	}
	return res, nil
}

func shannon(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	var e float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		e -= p * math.Log2(p)
	}
	return e
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/gobeaver/filescan"
	"github.com/gobeaver/filescan/inspector"
	"github.com/gobeaver/filescan/logging"
	"github.com/gobeaver/filescan/taste"
)

// newTaster builds the taster from BEAVER_FILESCAN_RULES_FILE, or the built-in
// rules when it is unset.
func newTaster(cfg *filescan.Config) (*taste.Taster, error) {
	var (
		rules     *taste.RuleSet
		filenames = taste.DefaultFilenameRules
	)
	if cfg.RulesFile != "" {
		f, err := os.Open(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("open rules: %w", err)
		}
		defer f.Close()

		rs, names, err := taste.Load(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.RulesFile, err)
		}
		rules = rs
		filenames = append(filenames[:len(filenames):len(filenames)], names...)
	}

	var matcher taste.Matcher = taste.MustDefault()
	if rules != nil {
		matcher = rules
	}
	return taste.New(matcher,
		taste.WithFilenameRules(filenames...),
		taste.WithCacheSize(cfg.TasteCacheSize),
		taste.WithLogger(logging.New("taste")),
	)
}

// routeTable reads BEAVER_FILESCAN_ROUTES_FILE, or returns the built-in table.
func routeTable(cfg *filescan.Config) (filescan.RouteTable, error) {
	if cfg.RoutesFile == "" {
		return inspector.DefaultRouteTable(), nil
	}
	f, err := os.Open(cfg.RoutesFile)
	if err != nil {
		return filescan.RouteTable{}, fmt.Errorf("open routes: %w", err)
	}
	defer f.Close()

	table, err := filescan.LoadRouteTable(f)
	if err != nil {
		return filescan.RouteTable{}, fmt.Errorf("%s: %w", cfg.RoutesFile, err)
	}
	return table, nil
}

func newRouter(cfg *filescan.Config) (*filescan.Router, error) {
	table, err := routeTable(cfg)
	if err != nil {
		return nil, err
	}
	return filescan.NewRouter(table, inspector.DefaultRegistry())
}

func newBackend(cfg *filescan.Config, options ...filescan.Option) (*filescan.Backend, error) {
	taster, err := newTaster(cfg)
	if err != nil {
		return nil, err
	}
	router, err := newRouter(cfg)
	if err != nil {
		return nil, err
	}
	options = append([]filescan.Option{filescan.WithLogger(logging.New("backend"))}, options...)
	return filescan.NewFromConfig(cfg, taster, router, options...)
}

// limitFlags are per-submission overrides of the configured limits.
type limitFlags struct {
	maxDepth          int
	maxFiles          int64
	maxBytes          int64
	inspectorTimeout  time.Duration
	submissionTimeout time.Duration
}

func (l *limitFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("limits", pflag.ContinueOnError)
	fs.IntVar(&l.maxDepth, "max-depth", 0, "deepest extraction level (0 keeps BEAVER_FILESCAN_MAX_DEPTH)")
	fs.Int64Var(&l.maxFiles, "max-files", 0, "extracted files per submission (0 keeps BEAVER_FILESCAN_MAX_FILES)")
	fs.Int64Var(&l.maxBytes, "max-bytes", 0, "extracted bytes per submission (0 keeps BEAVER_FILESCAN_MAX_BYTES)")
	fs.DurationVar(&l.inspectorTimeout, "inspector-timeout", 0, "default per-inspector timeout")
	fs.DurationVar(&l.submissionTimeout, "timeout", 0, "submission deadline measured from submit")
	return fs
}

// submission builds a submission for data with the configured limits and
// any flag overrides applied.
func (l *limitFlags) submission(cfg *filescan.Config, name string, data []byte) (filescan.Submission, error) {
	limits, err := cfg.Limits()
	if err != nil {
		return filescan.Submission{}, err
	}
	if l.maxDepth > 0 {
		limits.MaxDepth = l.maxDepth
	}
	if l.maxFiles > 0 {
		limits.MaxFiles = l.maxFiles
	}
	if l.maxBytes > 0 {
		limits.MaxBytes = l.maxBytes
	}
	if l.inspectorTimeout > 0 {
		limits.InspectorTimeout = l.inspectorTimeout
	}

	sub := filescan.Submission{Name: name, Data: data, Limits: limits}
	if l.submissionTimeout > 0 {
		sub.ExpireAt = time.Now().Add(l.submissionTimeout)
	}
	return sub, nil
}

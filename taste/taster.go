package taste

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gobeaver/filescan"
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// FilenameRule assigns Flavor to files whose base name matches Pattern.
type FilenameRule struct {
	Pattern string `yaml:"pattern"`
	Flavor  string `yaml:"flavor"`
}

type filenameMatcher struct {
	g      glob.Glob
	flavor string
}

// contentKey identifies content in the taste cache. It must be collision
// resistant: a shared key hands one blob's flavors to another.
type contentKey [32]byte

func keyOf(data []byte) contentKey { return blake3.Sum256(data) }

// contentTaste is the cached, name-independent part of a taste.
type contentTaste struct {
	mime  string
	rules []string
}

// Taster combines MIME detection, signature rules and filename patterns.
// It implements filescan.Taster.
type Taster struct {
	matcher   Matcher
	filenames []filenameMatcher
	cache     *lru.Cache[contentKey, contentTaste]
	logger    *slog.Logger
}

// Option configures a Taster.
type Option func(*Taster) error

// WithFilenameRules adds filename flavors. Patterns use glob syntax and are
// matched case-insensitively against the base name.
func WithFilenameRules(rules ...FilenameRule) Option {
	return func(t *Taster) error {
		for _, r := range rules {
			g, err := glob.Compile(strings.ToLower(r.Pattern))
			if err != nil {
				return fmt.Errorf("taste: filename pattern %q: %w", r.Pattern, err)
			}
			t.filenames = append(t.filenames, filenameMatcher{g: g, flavor: r.Flavor})
		}
		return nil
	}
}

// WithCacheSize enables an LRU cache of content tastes keyed by the blake3
// digest of the content. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(t *Taster) error {
		if size <= 0 {
			t.cache = nil
			return nil
		}
		c, err := lru.New[contentKey, contentTaste](size)
		if err != nil {
			return err
		}
		t.cache = c
		return nil
	}
}

// WithLogger sets the logger used to report matcher faults.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Taster) error {
		t.logger = logger
		return nil
	}
}

// New creates a Taster around matcher. A nil matcher uses the built-in rules.
func New(matcher Matcher, opts ...Option) (*Taster, error) {
	if matcher == nil {
		matcher = MustDefault()
	}
	t := &Taster{matcher: matcher, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Taste implements filescan.Taster. A matcher error is logged and treated
// as no rule matches.
func (t *Taster) Taste(data []byte, name string) filescan.Taste {
	ct := t.content(data)

	flavors := make([]string, 0, 1+len(ct.rules)+len(t.filenames))
	seen := make(map[string]struct{})
	add := func(f string) {
		if f == "" {
			return
		}
		if _, dup := seen[f]; dup {
			return
		}
		seen[f] = struct{}{}
		flavors = append(flavors, f)
	}

	add(ct.mime)
	for _, r := range ct.rules {
		add(r)
	}
	if name != "" {
		base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
		for _, fm := range t.filenames {
			if fm.g.Match(base) {
				add(fm.flavor)
			}
		}
	}

	return filescan.Taste{MIME: ct.mime, Flavors: flavors}
}

func (t *Taster) content(data []byte) contentTaste {
	var key contentKey
	if t.cache != nil {
		key = keyOf(data)
		if ct, ok := t.cache.Get(key); ok {
			return ct
		}
	}

	ct := contentTaste{mime: DetectMIME(data)}
	rules, err := t.matcher.Match(data)
	if err != nil {
		t.logger.Warn("signature matcher failed, treating as no match", "error", err, "size", len(data))
		return ct
	}
	ct.rules = rules

	if t.cache != nil {
		t.cache.Add(key, ct)
	}
	return ct
}

var _ filescan.Taster = (*Taster)(nil)

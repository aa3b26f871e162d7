package taste

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoRules is returned by Match on a rule set that was never compiled.
var ErrNoRules = errors.New("taste: no compiled rules")

// Matcher evaluates content against a rule set and returns match names.
// Match must be pure and safe for concurrent use.
type Matcher interface {
	Match(data []byte) ([]string, error)
}

// Pattern is one byte condition of a rule.
type Pattern struct {
	// Offset is where Hex or Text must appear.
	Offset int `yaml:"offset,omitempty"`
	// Hex is the expected bytes, hex encoded.
	Hex string `yaml:"hex,omitempty"`
	// Text is the expected bytes as a literal string.
	Text string `yaml:"text,omitempty"`
	// Mask, when set, is ANDed with the content before comparing with Hex.
	Mask string `yaml:"mask,omitempty"`
	// Within searches the first Within bytes instead of matching at Offset.
	Within int `yaml:"within,omitempty"`
	// Not inverts the condition.
	Not bool `yaml:"not,omitempty"`
}

// Rule names a flavor and the patterns that must all hold.
type Rule struct {
	Name     string    `yaml:"name"`
	Patterns []Pattern `yaml:"patterns"`
}

type compiledPattern struct {
	offset int
	want   []byte
	mask   []byte
	within int
	not    bool
}

type compiledRule struct {
	name     string
	patterns []compiledPattern
}

// RuleSet is a compiled list of rules evaluated in declaration order.
type RuleSet struct {
	rules []compiledRule
}

// Compile validates and compiles rules.
func Compile(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, errors.New("taste: rule without a name")
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("taste: duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("taste: rule %q has no patterns", r.Name)
		}

		cr := compiledRule{name: r.Name}
		for i, p := range r.Patterns {
			cp, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("taste: rule %q pattern %d: %w", r.Name, i, err)
			}
			cr.patterns = append(cr.patterns, cp)
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

func compilePattern(p Pattern) (compiledPattern, error) {
	cp := compiledPattern{offset: p.Offset, within: p.Within, not: p.Not}
	switch {
	case p.Hex != "" && p.Text != "":
		return cp, errors.New("hex and text are exclusive")
	case p.Hex != "":
		b, err := hex.DecodeString(strings.ReplaceAll(p.Hex, " ", ""))
		if err != nil {
			return cp, fmt.Errorf("invalid hex: %w", err)
		}
		cp.want = b
	case p.Text != "":
		cp.want = []byte(p.Text)
	default:
		return cp, errors.New("hex or text is required")
	}
	if p.Mask != "" {
		m, err := hex.DecodeString(strings.ReplaceAll(p.Mask, " ", ""))
		if err != nil {
			return cp, fmt.Errorf("invalid mask: %w", err)
		}
		if len(m) != len(cp.want) {
			return cp, errors.New("mask length differs from pattern length")
		}
		cp.mask = m
	}
	if cp.offset < 0 || cp.within < 0 {
		return cp, errors.New("offset and within must not be negative")
	}
	return cp, nil
}

// Document is the YAML layout of a rules file.
type Document struct {
	Rules     []Rule         `yaml:"rules"`
	Filenames []FilenameRule `yaml:"filenames,omitempty"`
}

// Load decodes a rules file and compiles its signature rules. Filename
// rules are returned as written, for WithFilenameRules.
func Load(r io.Reader) (*RuleSet, []FilenameRule, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("taste: decode rules: %w", err)
	}
	rs, err := Compile(doc.Rules)
	if err != nil {
		return nil, nil, err
	}
	return rs, doc.Filenames, nil
}

// LoadRules is Load without the filename rules.
func LoadRules(r io.Reader) (*RuleSet, error) {
	rs, _, err := Load(r)
	return rs, err
}

// Match implements Matcher.
func (rs *RuleSet) Match(data []byte) ([]string, error) {
	if rs == nil {
		return nil, ErrNoRules
	}
	var out []string
	for _, r := range rs.rules {
		if r.matches(data) {
			out = append(out, r.name)
		}
	}
	return out, nil
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

func (r compiledRule) matches(data []byte) bool {
	for _, p := range r.patterns {
		if p.matches(data) == p.not {
			return false
		}
	}
	return true
}

func (p compiledPattern) matches(data []byte) bool {
	if p.within > 0 {
		window := data
		if len(window) > p.within {
			window = window[:p.within]
		}
		return bytes.Contains(window, p.want)
	}

	end := p.offset + len(p.want)
	if end > len(data) {
		return false
	}
	chunk := data[p.offset:end]
	if p.mask == nil {
		return bytes.Equal(chunk, p.want)
	}
	for i := range chunk {
		if chunk[i]&p.mask[i] != p.want[i] {
			return false
		}
	}
	return true
}

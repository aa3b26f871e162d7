package filescan

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// InspectorRef names an inspector in a route entry.
type InspectorRef struct {
	Name    string           `yaml:"name"`
	Timeout time.Duration    `yaml:"timeout,omitempty"`
	Options InspectorOptions `yaml:"options,omitempty"`
}

// Route maps a group of flavors to the inspectors they select.
type Route struct {
	Flavors    []string       `yaml:"flavors"`
	Inspectors []InspectorRef `yaml:"inspectors"`
}

// RouteTable is the static flavor -> inspector table. Routes are evaluated
// in declaration order.
type RouteTable struct {
	Routes   []Route        `yaml:"routes"`
	Fallback []InspectorRef `yaml:"fallback"`
}

// LoadRouteTable decodes a YAML route table.
func LoadRouteTable(r io.Reader) (RouteTable, error) {
	var table RouteTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil && err != io.EOF {
		return RouteTable{}, fmt.Errorf("decode route table: %w", err)
	}
	return table, nil
}

// Registry holds inspectors by name. Registration happens once at start-up.
type Registry struct {
	mu         sync.RWMutex
	inspectors map[string]Inspector
}

// NewRegistry creates an empty inspector registry.
func NewRegistry() *Registry {
	return &Registry{inspectors: make(map[string]Inspector)}
}

// Register adds an inspector under its own name, replacing any previous one.
func (r *Registry) Register(ins Inspector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inspectors[ins.Name()] = ins
}

// Get returns the inspector registered under name.
func (r *Registry) Get(name string) (Inspector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.inspectors[name]
	return ins, ok
}

// Names returns the registered inspector names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.inspectors))
	for name := range r.inspectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolved is one routed inspector call.
type Resolved struct {
	Inspector Inspector
	Timeout   time.Duration
	Options   InspectorOptions
}

// Router resolves flavor matches to an ordered, duplicate-free inspector list.
type Router struct {
	table      RouteTable
	inspectors map[string]Inspector
}

// NewRouter binds table to the inspectors in registry. Every name in the
// table must be registered.
func NewRouter(table RouteTable, registry *Registry) (*Router, error) {
	r := &Router{table: table, inspectors: make(map[string]Inspector)}

	bind := func(refs []InspectorRef) error {
		for _, ref := range refs {
			ins, ok := registry.Get(ref.Name)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownInspector, ref.Name)
			}
			r.inspectors[ref.Name] = ins
		}
		return nil
	}

	for _, route := range table.Routes {
		if err := bind(route.Inspectors); err != nil {
			return nil, err
		}
	}
	if err := bind(table.Fallback); err != nil {
		return nil, err
	}
	return r, nil
}

// Route returns the inspectors selected by matches. Inspectors of earlier
// declared routes come first, declared order is kept within a route, and an
// inspector reachable through several flavors runs once. When nothing is
// selected, including for an empty match set, the fallback list applies.
func (r *Router) Route(matches []string) []Resolved {
	matched := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		matched[m] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []Resolved
	add := func(ref InspectorRef) {
		if _, dup := seen[ref.Name]; dup {
			return
		}
		seen[ref.Name] = struct{}{}
		out = append(out, Resolved{
			Inspector: r.inspectors[ref.Name],
			Timeout:   ref.Timeout,
			Options:   ref.Options,
		})
	}

	for _, route := range r.table.Routes {
		if !routeMatches(route, matched) {
			continue
		}
		for _, ref := range route.Inspectors {
			add(ref)
		}
	}

	if len(out) == 0 {
		for _, ref := range r.table.Fallback {
			add(ref)
		}
	}
	return out
}

func routeMatches(route Route, matched map[string]struct{}) bool {
	for _, f := range route.Flavors {
		if _, ok := matched[f]; ok {
			return true
		}
	}
	return false
}

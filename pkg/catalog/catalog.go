// Package catalog lists the module kinds the manager can build, each with
// a semantic version and a factory for a fresh handle.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/morezero/modules-manager/pkg/module"
	"github.com/morezero/modules-manager/pkg/modules/counter"
	"github.com/morezero/modules-manager/pkg/modules/kvstore"
	"github.com/morezero/modules-manager/pkg/semver"
)

const logPrefix = "catalog:catalog"

var (
	ErrUnknownKind    = errors.New("unknown module kind")
	ErrNoMatch        = errors.New("no version satisfies range")
	ErrDuplicateEntry = errors.New("catalog entry already exists")
	ErrInvalidEntry   = errors.New("invalid catalog entry")
)

// Factory builds a new, uninstantiated module handle.
type Factory func() module.Handler

// Entry is one buildable version of a module kind.
type Entry struct {
	Kind        string  `json:"kind"`
	Version     string  `json:"version"`
	Description string  `json:"description,omitempty"`
	Deprecated  bool    `json:"deprecated,omitempty"`
	New         Factory `json:"-"`
}

// Catalog maps kinds to their available versions.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string][]Entry)}
}

// Builtin returns a catalog holding the modules shipped with the manager.
func Builtin() *Catalog {
	c := New()
	for _, e := range []Entry{
		{Kind: counter.Kind, Version: counter.Version, Description: "In-memory signed counter with an owner", New: counter.NewHandler},
		{Kind: kvstore.Kind, Version: kvstore.Version, Description: "String key/value pairs in the host store", New: kvstore.NewHandler},
	} {
		if err := c.Add(e); err != nil {
			panic(fmt.Sprintf("%s - builtin entry %s: %v", logPrefix, e.Kind, err))
		}
	}
	return c
}

// Add makes e available. A kind may carry several versions but each
// version only once.
func (c *Catalog) Add(e Entry) error {
	if !semver.ValidateKind(e.Kind) || e.New == nil {
		return fmt.Errorf("%s - %w: kind %q", logPrefix, ErrInvalidEntry, e.Kind)
	}
	if !semver.IsExactVersion(e.Version) {
		return fmt.Errorf("%s - %w: %s version %q", logPrefix, ErrInvalidEntry, e.Kind, e.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.entries[e.Kind] {
		if existing.Version == e.Version {
			return fmt.Errorf("%s - %w: %s@%s", logPrefix, ErrDuplicateEntry, e.Kind, e.Version)
		}
	}
	c.entries[e.Kind] = append(c.entries[e.Kind], e)
	return nil
}

// Resolve finds the entry for a reference such as "counter@^1.0.0".
func (c *Catalog) Resolve(ref string) (*Entry, error) {
	parsed, err := semver.ParseModuleRef(ref)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	versions := append([]Entry(nil), c.entries[parsed.Kind]...)
	c.mu.RUnlock()
	if len(versions) == 0 {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrUnknownKind, parsed.Kind)
	}

	candidates := make([]semver.Candidate, len(versions))
	for i, v := range versions {
		candidates[i] = semver.Candidate{Kind: v.Kind, Version: v.Version, Deprecated: v.Deprecated}
	}
	best, err := semver.Resolve(candidates, parsed.Range, false)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrNoMatch, parsed)
	}
	for i := range versions {
		if versions[i].Version == best.Version {
			return &versions[i], nil
		}
	}
	return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrNoMatch, parsed)
}

// List returns every entry sorted by kind, then version as added.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]string, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var out []Entry
	for _, k := range kinds {
		out = append(out, c.entries[k]...)
	}
	return out
}

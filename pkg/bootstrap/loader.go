package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/modules-manager/pkg/catalog"
	"github.com/morezero/modules-manager/pkg/registry"
)

const logPrefix = "bootstrap:loader"

// ErrInvalidManifest is returned for a manifest that fails validation.
var ErrInvalidManifest = errors.New("invalid module manifest")

// LoadManifest loads the manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then MODULES_MANIFEST_FILE env, then defaults.
// A missing file is skipped; a file that exists but does not parse is an error.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+4)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("MODULES_MANIFEST_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/modules.yaml", "modules.yaml", "modules.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := ParseManifest(data, formatOf(p))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to parse manifest %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest %s from %s (%d modules)", logPrefix, m.Name, p, len(m.Modules)))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return GetDefaultManifest(), nil
}

// ParseManifest decodes and validates a manifest. format is "yaml" or "json".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every module has a name and a reference. Duplicate
// names are left to the registry, which rejects them.
func (m *Manifest) Validate() error {
	for i, mod := range m.Modules {
		if strings.TrimSpace(mod.Name) == "" {
			return fmt.Errorf("%w: module %d has no name", ErrInvalidManifest, i)
		}
		if strings.TrimSpace(mod.Module) == "" {
			return fmt.Errorf("%w: module %q has no catalog reference", ErrInvalidManifest, mod.Name)
		}
	}
	return nil
}

// GetDefaultManifest returns the embedded fallback manifest.
func GetDefaultManifest() *Manifest {
	return &Manifest{
		Name:        "default",
		Version:     "1.0.0",
		Description: "Builtin modules under their kind names",
		Modules: []ManifestModule{
			{Name: "counter", Module: "counter@^1.0.0"},
			{Name: "kvstore", Module: "kvstore@^1.0.0"},
		},
	}
}

// Registered describes one module registered from the manifest.
type Registered struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// Apply resolves every manifest module in cat and registers a fresh handle
// in reg, in manifest order. The first failure stops the walk; modules
// already registered stay registered.
func Apply(m *Manifest, cat *catalog.Catalog, reg *registry.Registry) ([]Registered, error) {
	out := make([]Registered, 0, len(m.Modules))
	for _, mod := range m.Modules {
		entry, err := cat.Resolve(mod.Module)
		if err != nil {
			return out, fmt.Errorf("%s - module %s: %w", logPrefix, mod.Name, err)
		}
		if err := reg.Register(mod.Name, entry.New()); err != nil {
			return out, fmt.Errorf("%s - module %s: %w", logPrefix, mod.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Registered %s as %s@%s", logPrefix, mod.Name, entry.Kind, entry.Version))
		out = append(out, Registered{Name: mod.Name, Kind: entry.Kind, Version: entry.Version})
	}
	return out, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

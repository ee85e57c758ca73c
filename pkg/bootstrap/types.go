// Package bootstrap loads the module manifest: which catalog modules the
// manager registers at start, under which names, and with which optional
// instantiate message.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ManifestModule is one module registration in the manifest.
type ManifestModule struct {
	// Name the module is registered and addressed under.
	Name string `json:"name" yaml:"name"`
	// Module is a catalog reference such as "counter@^1.2.0".
	Module string `json:"module" yaml:"module"`
	// Instantiate, when set, is sent to the module at start.
	Instantiate any `json:"instantiate,omitempty" yaml:"instantiate,omitempty"`
}

// Manifest is the root manifest document.
type Manifest struct {
	Name        string           `json:"name" yaml:"name"`
	Version     string           `json:"version" yaml:"version"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Modules     []ManifestModule `json:"modules" yaml:"modules"`
}

// Names returns the module names in manifest order.
func (m *Manifest) Names() []string {
	out := make([]string, len(m.Modules))
	for i, mod := range m.Modules {
		out[i] = mod.Name
	}
	return out
}

// InstantiateEnvelope builds an instantiate envelope from every module that
// carries an Instantiate message, keeping manifest order. ok is false when
// no module has one.
func (m *Manifest) InstantiateEnvelope() (envelope string, ok bool, err error) {
	var b strings.Builder
	b.WriteByte('{')
	n := 0
	for _, mod := range m.Modules {
		if mod.Instantiate == nil {
			continue
		}
		key, err := json.Marshal(mod.Name)
		if err != nil {
			return "", false, err
		}
		payload, err := json.Marshal(mod.Instantiate)
		if err != nil {
			return "", false, fmt.Errorf("%s - instantiate message for %s: %w", logPrefix, mod.Name, err)
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(payload)
		n++
	}
	b.WriteByte('}')
	return b.String(), n > 0, nil
}

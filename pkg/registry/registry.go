// Package registry maps module names to their dynamic handlers.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/modules-manager/pkg/module"
)

const logPrefix = "registry:registry"

// ErrInvalidRegistration is returned for an empty name or a nil handler.
var ErrInvalidRegistration = errors.New("invalid module registration")

// Registry is an append-only, insert-once mapping from name to handler.
// All registrations are expected to happen before the first dispatch.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]module.Handler
	names   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]module.Handler)}
}

// Register adds h under name. A name can be registered once; a second
// attempt returns an AlreadyRegistered error and keeps the first handler.
func (r *Registry) Register(name string, h module.Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("%s - %w: name=%q nil=%t", logPrefix, ErrInvalidRegistration, name, h == nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		slog.Warn(fmt.Sprintf("%s - module %q already registered", logPrefix, name))
		return module.AlreadyRegistered(name)
	}
	r.modules[name] = h
	r.names = append(r.names, name)

	slog.Debug(fmt.Sprintf("%s - Registered module %q", logPrefix, name))
	return nil
}

// Resolve returns the handler registered under name.
func (r *Registry) Resolve(name string) (module.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.modules[name]
	return h, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

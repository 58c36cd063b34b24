// Package exec runs workers as one-shot subprocesses speaking a JSON-line
// protocol: the worker brief goes in on stdin, the work result comes back
// as a JSON line on stdout.
package exec

import (
	"sort"
	"sync"

	"github.com/taskroute/engine/internal/domain"
)

// DefaultProvider is the fallback spec used for workers without a
// dedicated entry.
const DefaultProvider = "default"

// ProviderSpec describes how to launch the process backing a worker.
type ProviderSpec struct {
	// Name is a worker id, or DefaultProvider for the fallback.
	Name       string            `yaml:"name"`
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	TimeoutSec int               `yaml:"timeout_sec"`
}

// ProviderRegistry is a thread-safe registry of provider specifications.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderSpec
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]ProviderSpec)}
}

// Register adds a provider spec. Registering the same name twice fails
// with ProviderUnavailable.
func (r *ProviderRegistry) Register(spec ProviderSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[spec.Name]; exists {
		return domain.NewEngineError(domain.ErrProviderUnavailable.Code,
			"provider already registered: "+spec.Name)
	}
	r.providers[spec.Name] = spec
	return nil
}

// Resolve returns the spec for the worker id, falling back to the default
// provider. Fails with ProviderUnavailable when neither exists.
func (r *ProviderRegistry) Resolve(workerID string) (ProviderSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if spec, ok := r.providers[workerID]; ok {
		return spec, nil
	}
	if spec, ok := r.providers[DefaultProvider]; ok {
		return spec, nil
	}
	return ProviderSpec{}, domain.ErrProviderUnavailable
}

// List returns all registered provider names in sorted order.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package registry holds the immutable catalog of worker profiles.
package registry

import (
	"fmt"

	"github.com/taskroute/engine/internal/domain"
)

// Registry is a read-only catalog of worker profiles. It is built once by
// Load and never mutated, so concurrent reads need no locking.
type Registry struct {
	profiles []domain.WorkerProfile
	byID     map[string]int
}

// Load validates the given profiles and builds a Registry.
// It fails with ErrDuplicateWorkerID if two profiles share an id, or
// ErrEmptyCapabilitySet if any profile has no capability tags.
func Load(profiles []domain.WorkerProfile) (*Registry, error) {
	r := &Registry{
		profiles: make([]domain.WorkerProfile, 0, len(profiles)),
		byID:     make(map[string]int, len(profiles)),
	}

	for _, p := range profiles {
		if p.ID == "" {
			return nil, domain.NewEngineError(
				domain.ErrCatalogInvalid.Code,
				"worker profile has an empty id",
			)
		}
		if _, exists := r.byID[p.ID]; exists {
			return nil, domain.NewEngineError(
				domain.ErrDuplicateWorkerID.Code,
				fmt.Sprintf("duplicate worker id %q", p.ID),
			)
		}
		if len(p.CapabilityTags) == 0 {
			return nil, domain.NewEngineError(
				domain.ErrEmptyCapabilitySet.Code,
				fmt.Sprintf("worker %q has no capability tags", p.ID),
			)
		}
		r.byID[p.ID] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}

	return r, nil
}

// Lookup returns the profile for the given id, or ErrWorkerNotFound.
func (r *Registry) Lookup(id string) (domain.WorkerProfile, error) {
	idx, ok := r.byID[id]
	if !ok {
		return domain.WorkerProfile{}, domain.NewEngineError(
			domain.ErrWorkerNotFound.Code,
			fmt.Sprintf("worker %q not found", id),
		)
	}
	return r.profiles[idx], nil
}

// FindByDomain returns every profile carrying the given domain tag, in
// registration order. The stable order keeps routing decisions reproducible.
func (r *Registry) FindByDomain(tag string) []domain.WorkerProfile {
	var matches []domain.WorkerProfile
	for _, p := range r.profiles {
		if p.HasDomain(tag) {
			matches = append(matches, p)
		}
	}
	return matches
}

// FindByCapability returns every profile carrying the given capability tag,
// in registration order.
func (r *Registry) FindByCapability(tag string) []domain.WorkerProfile {
	var matches []domain.WorkerProfile
	for _, p := range r.profiles {
		if p.HasCapability(tag) {
			matches = append(matches, p)
		}
	}
	return matches
}

// All returns every profile in registration order. The returned slice is a
// copy; mutating it does not affect the registry.
func (r *Registry) All() []domain.WorkerProfile {
	return append([]domain.WorkerProfile(nil), r.profiles...)
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}

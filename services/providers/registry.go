package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrKindMismatch is returned when a spec declares a kind its adapter does not serve
	ErrKindMismatch = errors.New("provider kind mismatch")
)

// ActivationFunc decides whether a provider is eligible to be tried at all
type ActivationFunc func() bool

// ProviderSpec describes one configured provider: identity, rank, activation and adapter
type ProviderSpec struct {
	// Name identifies the provider in reports and status output; defaults to the adapter name
	Name string

	// Kind is the request kind served; defaults to the adapter kind
	Kind RequestKind

	// Priority orders providers of the same kind, lower first
	Priority int

	// Active is the activation predicate; nil means always active
	Active ActivationFunc

	// Credential is only used to render a redacted preview
	Credential string

	// Adapter performs the call
	Adapter Adapter

	seq int
}

// Enabled evaluates the activation predicate
func (s ProviderSpec) Enabled() bool {
	return s.Active == nil || s.Active()
}

// ProviderStatus is the read-only status of one provider
type ProviderStatus struct {
	Name              string      `json:"name"`
	Kind              RequestKind `json:"kind"`
	Priority          int         `json:"priority"`
	Enabled           bool        `json:"enabled"`
	CredentialPreview string      `json:"credential_preview"`
}

// Registry holds the provider specs of every request kind.
// Specs are registered once at start; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs []ProviderSpec
	names map[string]struct{}
	seq   int
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// Register adds a provider spec
func (r *Registry) Register(spec ProviderSpec) error {
	if spec.Adapter == nil {
		return errors.New("provider adapter cannot be nil")
	}
	if spec.Name == "" {
		spec.Name = spec.Adapter.Name()
	}
	if spec.Name == "" {
		return errors.New("provider name cannot be empty")
	}
	if spec.Kind == "" {
		spec.Kind = spec.Adapter.Kind()
	}
	if spec.Kind != spec.Adapter.Kind() {
		return fmt.Errorf("%w: %s declares %s but adapter serves %s", ErrKindMismatch, spec.Name, spec.Kind, spec.Adapter.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, spec.Name)
	}

	spec.seq = r.seq
	r.seq++
	r.names[spec.Name] = struct{}{}
	r.specs = append(r.specs, spec)

	return nil
}

// AdaptersFor returns the active specs of kind in ascending priority.
// Equal priorities keep registration order. The result is a fresh slice.
func (r *Registry) AdaptersFor(kind RequestKind) []ProviderSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]ProviderSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		if spec.Kind != kind || !spec.Enabled() {
			continue
		}
		active = append(active, spec)
	}

	sortSpecs(active)
	return active
}

// Status reports every registered provider, active or not, grouped by kind and ordered by priority
func (r *Registry) Status() []ProviderStatus {
	r.mu.RLock()
	all := make([]ProviderSpec, len(r.specs))
	copy(all, r.specs)
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		return all[i].seq < all[j].seq
	})

	statuses := make([]ProviderStatus, len(all))
	for i, spec := range all {
		statuses[i] = ProviderStatus{
			Name:              spec.Name,
			Kind:              spec.Kind,
			Priority:          spec.Priority,
			Enabled:           spec.Enabled(),
			CredentialPreview: RedactCredential(spec.Credential),
		}
	}
	return statuses
}

// Count returns the number of active providers of kind
func (r *Registry) Count(kind RequestKind) int {
	return len(r.AdaptersFor(kind))
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.specs)
}

func sortSpecs(specs []ProviderSpec) {
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].Priority != specs[j].Priority {
			return specs[i].Priority < specs[j].Priority
		}
		return specs[i].seq < specs[j].seq
	})
}

// Package profile holds agent participant profiles and loads them from
// YAML, TOML or JSON files.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// ErrInvalidProfile is returned for profiles without an ID.
var ErrInvalidProfile = errors.New("invalid profile")

// Registry is a concurrency-safe profile store. It implements
// core.ProfileSource.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]core.Profile
}

var _ core.ProfileSource = (*Registry)(nil)

// NewRegistry creates a registry seeded with profiles.
func NewRegistry(profiles ...core.Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]core.Profile, len(profiles))}
	for _, p := range profiles {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers or replaces a profile.
func (r *Registry) Add(p core.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	if p.ID == core.UserActorID || p.ID == core.SystemActorID {
		return fmt.Errorf("%w: id %q is reserved", ErrInvalidProfile, p.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = clone(p)
	return nil
}

// Get returns the profile for id.
func (r *Registry) Get(id string) (core.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return core.Profile{}, false
	}
	return clone(p), true
}

// Profiles resolves ids. Unknown IDs get a bare profile carrying only the
// ID, so callers can always render a name.
func (r *Registry) Profiles(ids []string) map[string]core.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]core.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			out[id] = clone(p)
			continue
		}
		out[id] = core.Profile{ID: id}
	}
	return out
}

// List returns all profiles sorted by ID.
func (r *Registry) List() []core.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(p core.Profile) core.Profile {
	p.Skills = append([]string(nil), p.Skills...)
	p.Domains = append([]string(nil), p.Domains...)
	return p
}

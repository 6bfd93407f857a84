// Package profile holds the quality specifications each product is judged against.
package profile

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/qcline/internal/errors"
)

var (
	// ErrUnknownProfile is returned when a profile name does not resolve.
	ErrUnknownProfile = errors.Newf("unknown profile").
				Component("profile").
				Category(errors.CategoryProfileLookup).
				Build()

	// ErrInvalidProfileSpec is returned when profile values fail validation.
	ErrInvalidProfileSpec = errors.Newf("invalid profile spec").
				Component("profile").
				Category(errors.CategoryProfileSpec).
				Build()
)

// Profile is the quality specification for one product type.
type Profile struct {
	Name            string  `json:"name"`
	Diameter        float64 `json:"diameter"`         // nominal diameter, mm
	TargetHeight    float64 `json:"target_height"`    // nominal height, mm
	HeightTolerance float64 `json:"height_tolerance"` // allowed |height - target|, exclusive
	SoftnessMin     float64 `json:"softness_min"`
	SoftnessMax     float64 `json:"softness_max"`
}

// SoftnessMidpoint is the centre of the accepted softness range.
func (p Profile) SoftnessMidpoint() float64 {
	return (p.SoftnessMin + p.SoftnessMax) / 2
}

// Validate checks that every numeric field is finite and the ranges are sane.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalidSpec(p.Name, "name must not be empty")
	}

	fields := map[string]float64{
		"diameter":         p.Diameter,
		"target_height":    p.TargetHeight,
		"height_tolerance": p.HeightTolerance,
		"softness_min":     p.SoftnessMin,
		"softness_max":     p.SoftnessMax,
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if v := fields[key]; math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidSpec(p.Name, key+" must be finite")
		}
	}

	switch {
	case p.SoftnessMin > p.SoftnessMax:
		return invalidSpec(p.Name, "softness_min must not exceed softness_max")
	case p.Diameter <= 0:
		return invalidSpec(p.Name, "diameter must be positive")
	case p.HeightTolerance <= 0:
		// The height check fails at |deviation| >= tolerance, so zero would
		// reject every item.
		return invalidSpec(p.Name, "height_tolerance must be positive")
	}

	return nil
}

func invalidSpec(name, reason string) error {
	return errors.Newf("invalid profile spec %q: %s", name, reason).
		Component("profile").
		Category(errors.CategoryProfileSpec).
		Context("profile", name).
		Build()
}

// Registry maps profile names to profiles. Profiles can be replaced at
// runtime but are never removed.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry builds a registry from an initial profile set. The first
// invalid profile aborts construction.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := r.Upsert(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// MustResolve returns the profile or an ErrUnknownProfile-matching error.
func (r *Registry) MustResolve(name string) (Profile, error) {
	p, ok := r.Get(name)
	if !ok {
		return Profile{}, errors.Newf("profile %q is not registered", name).
			Component("profile").
			Category(errors.CategoryProfileLookup).
			Context("profile", name).
			Build()
	}
	return p, nil
}

// Upsert validates p and stores it under p.Name. An invalid profile leaves
// the previous entry untouched.
func (r *Registry) Upsert(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// Names returns the registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns a copy of every profile sorted by name.
func (r *Registry) All() []Profile {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(names))
	for _, name := range names {
		out = append(out, r.profiles[name])
	}
	return out
}

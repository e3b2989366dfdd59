package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// IdentityMap translates physics-simulator object names into splat-scene
// object names. The two naming schemes are authored independently (physics
// scene vs capture pipeline) and may drift, so the mapping is explicit
// configuration rather than inferred at render time.
//
// The map is immutable after construction and bijective for every object
// present in both representations. Simulated objects without a splat
// counterpart are simply absent and fall back to mesh-only rendering.
type IdentityMap struct {
	simToSplat map[ObjectIdentity]ObjectIdentity
}

// NewIdentityMap builds an IdentityMap from sim-name → splat-name pairs.
// Duplicate splat targets break bijectivity and are rejected.
func NewIdentityMap(pairs map[ObjectIdentity]ObjectIdentity) (*IdentityMap, error) {
	seen := make(map[ObjectIdentity]ObjectIdentity, len(pairs))
	for sim, splat := range pairs {
		if sim == "" || splat == "" {
			return nil, fmt.Errorf("identity map entry %q -> %q: empty name", sim, splat)
		}
		if prev, dup := seen[splat]; dup {
			return nil, fmt.Errorf("identity map not bijective: %q and %q both map to %q", prev, sim, splat)
		}
		seen[splat] = sim
	}
	m := make(map[ObjectIdentity]ObjectIdentity, len(pairs))
	for sim, splat := range pairs {
		m[sim] = splat
	}
	return &IdentityMap{simToSplat: m}, nil
}

// LoadIdentityMap reads a JSON object of {"sim_name": "splat_name", ...}.
// Loaded once at environment construction; never mutated mid-episode.
func LoadIdentityMap(path string) (*IdentityMap, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("identity map must be a .json file, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read identity map: %w", err)
	}
	var raw map[ObjectIdentity]ObjectIdentity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse identity map: %w", err)
	}
	return NewIdentityMap(raw)
}

// Lookup resolves a simulator object name to its splat scene name.
func (m *IdentityMap) Lookup(sim ObjectIdentity) (ObjectIdentity, bool) {
	splat, ok := m.simToSplat[sim]
	return splat, ok
}

// Len returns the number of mapped objects.
func (m *IdentityMap) Len() int { return len(m.simToSplat) }

// SimObjects returns the mapped simulator names in sorted order.
func (m *IdentityMap) SimObjects() []ObjectIdentity {
	out := make([]ObjectIdentity, 0, len(m.simToSplat))
	for sim := range m.simToSplat {
		out = append(out, sim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

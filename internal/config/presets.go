package config

import (
	"fmt"
	"sort"
	"strings"

	"photonlag/internal/errors"
)

// CosmologyParams are resolved flat or curved Lambda-CDM parameters
type CosmologyParams struct {
	Name   string
	H0     float64 // km/s/Mpc
	OmegaM float64
	OmegaL float64
}

var cosmologyPresets = map[string]CosmologyParams{
	"planck18": {Name: "planck18", H0: 67.66, OmegaM: 0.30966, OmegaL: 0.68885},
	"planck15": {Name: "planck15", H0: 67.74, OmegaM: 0.3075, OmegaL: 0.6910},
	"wmap9":    {Name: "wmap9", H0: 69.32, OmegaM: 0.2865, OmegaL: 0.7134},
	"flat70":   {Name: "flat70", H0: 70.0, OmegaM: 0.3, OmegaL: 0.7},
}

// GetCosmologyPreset looks up a named cosmology
func GetCosmologyPreset(name string) (CosmologyParams, bool) {
	p, ok := cosmologyPresets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ListCosmologyPresets returns preset names in sorted order
func ListCosmologyPresets() []string {
	names := make([]string, 0, len(cosmologyPresets))
	for k := range cosmologyPresets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve returns explicit parameters when H0 is set, otherwise the preset.
func (c CosmologyConfig) Resolve() (CosmologyParams, error) {
	if c.H0 > 0 {
		if c.OmegaM+c.OmegaL <= 0 {
			return CosmologyParams{}, errors.ConfigInvalid("cosmology needs omega_m + omega_lambda > 0")
		}
		return CosmologyParams{Name: "custom", H0: c.H0, OmegaM: c.OmegaM, OmegaL: c.OmegaL}, nil
	}
	p, ok := GetCosmologyPreset(c.Preset)
	if !ok {
		return CosmologyParams{}, errors.ConfigInvalid(fmt.Sprintf("unknown cosmology preset %q (known: %s)",
			c.Preset, strings.Join(ListCosmologyPresets(), ", ")))
	}
	return p, nil
}

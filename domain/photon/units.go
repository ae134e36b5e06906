package photon

import (
	"fmt"
	"strings"
)

// EnergyUnit names the unit an instrument reports photon energies in.
type EnergyUnit string

const (
	UnitEV  EnergyUnit = "eV"
	UnitKeV EnergyUnit = "keV"
	UnitMeV EnergyUnit = "MeV"
	UnitGeV EnergyUnit = "GeV"
	UnitTeV EnergyUnit = "TeV"
	UnitPeV EnergyUnit = "PeV"
)

// unitsPerGeV holds how many of each unit make one GeV. Dividing by an
// exact power of ten keeps ToGeV/FromGeV inverse to within one ulp.
var unitsPerGeV = map[EnergyUnit]float64{
	UnitEV:  1e9,
	UnitKeV: 1e6,
	UnitMeV: 1e3,
	UnitGeV: 1,
	UnitTeV: 1e-3,
	UnitPeV: 1e-6,
}

// ParseEnergyUnit accepts case-insensitive unit names.
func ParseEnergyUnit(s string) (EnergyUnit, error) {
	for u := range unitsPerGeV {
		if strings.EqualFold(string(u), strings.TrimSpace(s)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown energy unit %q", s)
}

// ToGeV converts a value expressed in u to GeV.
func (u EnergyUnit) ToGeV(v float64) (float64, error) {
	f, ok := unitsPerGeV[u]
	if !ok {
		return 0, fmt.Errorf("unknown energy unit %q", u)
	}
	if f >= 1 {
		return v / f, nil
	}
	return v * (1 / f), nil
}

// FromGeV converts a GeV value into u.
func (u EnergyUnit) FromGeV(v float64) (float64, error) {
	f, ok := unitsPerGeV[u]
	if !ok {
		return 0, fmt.Errorf("unknown energy unit %q", u)
	}
	if f >= 1 {
		return v * f, nil
	}
	return v / (1 / f), nil
}

// TimeUnit names the unit of an instrument's time column.
type TimeUnit string

const (
	TimeSeconds TimeUnit = "s"
	TimeDays    TimeUnit = "day"
)

// Seconds converts a time value in u to seconds.
func (u TimeUnit) Seconds(v float64) (float64, error) {
	switch u {
	case TimeSeconds, "":
		return v, nil
	case TimeDays:
		return v * 86400, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", u)
	}
}

// Epoch identifies the zero point of a time axis.
type Epoch string

const (
	EpochUnix     Epoch = "unix"
	EpochFermiMET Epoch = "fermi-met"
	EpochMJD      Epoch = "mjd"
	// EpochRelative times are already seconds since the trigger.
	EpochRelative Epoch = "relative"
	// EpochLocal times have an unknown zero and can only be aligned against
	// another instrument or an explicit offset.
	EpochLocal Epoch = "local"
)

// UnitSpec is one row of an instrument unit table.
type UnitSpec struct {
	EnergyUnit EnergyUnit `yaml:"energy_unit" json:"energy_unit"`
	TimeUnit   TimeUnit   `yaml:"time_unit" json:"time_unit"`
	Epoch      Epoch      `yaml:"epoch" json:"epoch"`
}

// UnitTable maps instruments to the units of their raw tables.
type UnitTable map[string]UnitSpec

// Merge returns a new table with override entries replacing base entries.
func (t UnitTable) Merge(override UnitTable) UnitTable {
	out := make(UnitTable, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

package instrument

import (
	"fmt"
	"math"

	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/internal/errors"
)

// ColumnAdapter maps named columns onto canonical photon fields. The
// instrument-specific adapters are ColumnAdapters with fixed layouts.
type ColumnAdapter struct {
	name           string
	timeColumn     string
	energyColumn   string
	qualityColumns map[string]string // raw column -> canonical quality key
}

// NewColumnAdapter creates an adapter for an arbitrary two-column layout.
func NewColumnAdapter(name, timeColumn, energyColumn string, quality map[string]string) *ColumnAdapter {
	q := make(map[string]string, len(quality))
	for k, v := range quality {
		q[k] = v
	}
	return &ColumnAdapter{name: name, timeColumn: timeColumn, energyColumn: energyColumn, qualityColumns: q}
}

// NewFermiLATAdapter reads LAT photon tables (FT1 layout exported to rows).
func NewFermiLATAdapter() *ColumnAdapter {
	return NewColumnAdapter("fermi-lat", "TIME", "ENERGY", map[string]string{
		"ZENITH_ANGLE":    "zenith_angle",
		"EVENT_CLASS":     "event_class",
		"CONVERSION_TYPE": "conversion_type",
		"RA":              "ra",
		"DEC":             "dec",
	})
}

// NewLHAASOAdapter reads LHAASO event lists.
func NewLHAASOAdapter() *ColumnAdapter {
	return NewColumnAdapter("lhaaso", "time", "energy", map[string]string{
		"zenith": "zenith_angle",
		"nhit":   "nhit",
		"ra":     "ra",
		"dec":    "dec",
	})
}

// NewGenericAdapter reads lower-case "time"/"energy" tables such as the
// synthetic generator output and hand-made CSV files.
func NewGenericAdapter() *ColumnAdapter {
	return NewColumnAdapter("generic", "time", "energy", map[string]string{
		"zenith_angle": "zenith_angle",
		"event_class":  "event_class",
	})
}

// Name returns the schema key
func (a *ColumnAdapter) Name() string { return a.name }

// RequiredColumns returns the columns every record must carry
func (a *ColumnAdapter) RequiredColumns() []string {
	return []string{a.timeColumn, a.energyColumn}
}

// Normalize converts raw records into canonical photons
func (a *ColumnAdapter) Normalize(instrument core.InstrumentID, records []photon.RawRecord, units photon.UnitSpec) ([]photon.PhotonEvent, error) {
	events := make([]photon.PhotonEvent, 0, len(records))
	for i, rec := range records {
		rawTime, ok := rec[a.timeColumn]
		if !ok {
			return nil, errors.InvalidSchema(fmt.Sprintf("%s row %d: missing required column %q", a.name, i, a.timeColumn))
		}
		rawEnergy, ok := rec[a.energyColumn]
		if !ok {
			return nil, errors.InvalidSchema(fmt.Sprintf("%s row %d: missing required column %q", a.name, i, a.energyColumn))
		}
		if !finite(rawTime) || !finite(rawEnergy) {
			return nil, errors.InvalidSchema(fmt.Sprintf("%s row %d: non-finite time or energy", a.name, i))
		}

		seconds, err := units.TimeUnit.Seconds(rawTime)
		if err != nil {
			return nil, errors.WithCode(errors.CodeInvalidSchema, err)
		}
		gev, err := units.EnergyUnit.ToGeV(rawEnergy)
		if err != nil {
			return nil, errors.WithCode(errors.CodeInvalidSchema, err)
		}
		if gev <= 0 {
			return nil, errors.InvalidSchema(fmt.Sprintf("%s row %d: energy must be > 0, got %g %s", a.name, i, rawEnergy, units.EnergyUnit))
		}

		var quality map[string]float64
		for raw, key := range a.qualityColumns {
			if v, ok := rec[raw]; ok {
				if quality == nil {
					quality = make(map[string]float64, len(a.qualityColumns))
				}
				quality[key] = v
			}
		}

		events = append(events, photon.PhotonEvent{
			Time:       seconds,
			Epoch:      units.Epoch,
			Energy:     gev,
			Instrument: instrument,
			Quality:    quality,
		})
	}
	return events, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

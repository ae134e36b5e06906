package photon

import (
	"fmt"
	"math"

	"photonlag/domain/core"
)

// RawRecord is one row of an instrument table keyed by column name, as
// delivered by the data acquisition side.
type RawRecord map[string]float64

// RawTable is an instrument-specific event table before normalization.
type RawTable struct {
	Instrument core.InstrumentID `json:"instrument"`
	Schema     string            `json:"schema"`
	Records    []RawRecord       `json:"records"`
}

// PhotonEvent is a canonical photon: energy in GeV, time in seconds on the
// axis named by Epoch.
type PhotonEvent struct {
	Time       float64            `json:"time"`
	Epoch      Epoch              `json:"epoch"`
	Energy     float64            `json:"energy_gev"`
	Instrument core.InstrumentID  `json:"instrument"`
	Quality    map[string]float64 `json:"quality,omitempty"`
}

// Metadata describes the transient a dataset belongs to.
type Metadata struct {
	Name         string    `json:"name" yaml:"name"`
	TriggerTime  float64   `json:"trigger_time" yaml:"trigger_time"`
	TriggerEpoch Epoch     `json:"trigger_epoch" yaml:"trigger_epoch"`
	Redshift     float64   `json:"redshift" yaml:"redshift"`
	Units        UnitTable `json:"instrument_unit_table,omitempty" yaml:"units"`
}

// Validate checks the physical constraints on metadata.
func (m Metadata) Validate() error {
	if math.IsNaN(m.Redshift) || math.IsInf(m.Redshift, 0) || m.Redshift < 0 {
		return fmt.Errorf("redshift must be finite and >= 0, got %v", m.Redshift)
	}
	if math.IsNaN(m.TriggerTime) || math.IsInf(m.TriggerTime, 0) {
		return fmt.Errorf("trigger time must be finite")
	}
	return nil
}

// Trigger returns the trigger time and the epoch it is expressed in. A
// non-zero trigger time without an epoch is read as unix seconds.
func (m Metadata) Trigger() (float64, Epoch, bool) {
	switch {
	case m.TriggerEpoch != "":
		return m.TriggerTime, m.TriggerEpoch, true
	case m.TriggerTime != 0:
		return m.TriggerTime, EpochUnix, true
	}
	return 0, "", false
}

// Dataset is an immutable ordered collection of photons owned by one run.
type Dataset struct {
	id     core.DatasetID
	meta   Metadata
	events []PhotonEvent
}

// NewDataset copies events so later mutation by the caller cannot leak in.
func NewDataset(id core.DatasetID, meta Metadata, events []PhotonEvent) *Dataset {
	cp := make([]PhotonEvent, len(events))
	copy(cp, events)
	return &Dataset{id: id, meta: meta, events: cp}
}

func (d *Dataset) ID() core.DatasetID { return d.id }
func (d *Dataset) Meta() Metadata     { return d.meta }
func (d *Dataset) Len() int           { return len(d.events) }

// Events returns a copy of the photons.
func (d *Dataset) Events() []PhotonEvent {
	cp := make([]PhotonEvent, len(d.events))
	copy(cp, d.events)
	return cp
}

// Instruments lists the distinct instruments in first-seen order.
func (d *Dataset) Instruments() []core.InstrumentID {
	seen := make(map[core.InstrumentID]bool)
	var out []core.InstrumentID
	for _, e := range d.events {
		if !seen[e.Instrument] {
			seen[e.Instrument] = true
			out = append(out, e.Instrument)
		}
	}
	return out
}

// AlignedEvent is a photon on the common relative-time axis.
type AlignedEvent struct {
	RelTime    float64            `json:"t_rel"`
	Energy     float64            `json:"energy_gev"`
	Instrument core.InstrumentID  `json:"instrument"`
	Quality    map[string]float64 `json:"quality,omitempty"`
}

// AlignedDataset holds photons whose relative times t - T0 were checked to
// lie inside the plausible window.
type AlignedDataset struct {
	id     core.DatasetID
	meta   Metadata
	t0     float64
	events []AlignedEvent
}

// NewAlignedDataset is used by the aligner once the window check passed.
func NewAlignedDataset(id core.DatasetID, meta Metadata, t0 float64, events []AlignedEvent) *AlignedDataset {
	cp := make([]AlignedEvent, len(events))
	copy(cp, events)
	return &AlignedDataset{id: id, meta: meta, t0: t0, events: cp}
}

func (a *AlignedDataset) ID() core.DatasetID { return a.id }
func (a *AlignedDataset) Meta() Metadata     { return a.meta }
func (a *AlignedDataset) T0() float64        { return a.t0 }
func (a *AlignedDataset) Len() int           { return len(a.events) }

// Events returns a copy of the aligned photons.
func (a *AlignedDataset) Events() []AlignedEvent {
	cp := make([]AlignedEvent, len(a.events))
	copy(cp, a.events)
	return cp
}

// Columns splits events into parallel time and energy slices.
func Columns(events []AlignedEvent) (times, energies []float64) {
	times = make([]float64, len(events))
	energies = make([]float64, len(events))
	for i, e := range events {
		times[i] = e.RelTime
		energies[i] = e.Energy
	}
	return times, energies
}

package testkit

import (
	"math"
	"math/rand"

	"photonlag/adapters/excel"
	"photonlag/domain/core"
	"photonlag/domain/photon"
)

// PhotonGeneratorConfig configures synthetic photon lists. Arrival times
// follow t = Intercept + Slope*E + N(0, NoiseSigma); a fraction of photons
// can be replaced by outliers drawn uniformly from [OutlierMin, OutlierMax].
type PhotonGeneratorConfig struct {
	Count           int     `json:"count"`
	EnergyMin       float64 `json:"energy_min"` // GeV
	EnergyMax       float64 `json:"energy_max"` // GeV
	LogUniform      bool    `json:"log_uniform"`
	Intercept       float64 `json:"intercept"` // s
	Slope           float64 `json:"slope"`     // s/GeV
	NoiseSigma      float64 `json:"noise_sigma"`
	OutlierFraction float64 `json:"outlier_fraction"`
	OutlierMin      float64 `json:"outlier_min"`
	OutlierMax      float64 `json:"outlier_max"`
	Instrument      string  `json:"instrument"`
	Seed            int64   `json:"seed"`
}

// DefaultPhotonConfig returns a null dataset of 1000 photons over
// [0.1, 100] GeV with 10 s Gaussian jitter around t = 100 s.
func DefaultPhotonConfig() PhotonGeneratorConfig {
	return PhotonGeneratorConfig{
		Count:      1000,
		EnergyMin:  0.1,
		EnergyMax:  100,
		Intercept:  100,
		NoiseSigma: 10,
		OutlierMin: 0,
		OutlierMax: 1000,
		Instrument: "synthetic",
		Seed:       42,
	}
}

// PhotonGenerator produces synthetic aligned photon lists
type PhotonGenerator struct {
	config PhotonGeneratorConfig
	rng    *rand.Rand
}

// NewPhotonGenerator creates a generator seeded from the config
func NewPhotonGenerator(config PhotonGeneratorConfig) *PhotonGenerator {
	return NewPhotonGeneratorWithRand(config, rand.New(rand.NewSource(config.Seed)))
}

// NewPhotonGeneratorWithRand creates a generator drawing from rng, for
// callers that manage their own streams.
func NewPhotonGeneratorWithRand(config PhotonGeneratorConfig, rng *rand.Rand) *PhotonGenerator {
	if config.Instrument == "" {
		config.Instrument = "synthetic"
	}
	return &PhotonGenerator{config: config, rng: rng}
}

// Generate returns the events and a mask of injected outliers
func (g *PhotonGenerator) Generate() ([]photon.AlignedEvent, []bool) {
	c := g.config
	events := make([]photon.AlignedEvent, c.Count)
	outlier := make([]bool, c.Count)
	for i := range events {
		e := g.energy()
		t := c.Intercept + c.Slope*e + g.rng.NormFloat64()*c.NoiseSigma
		if c.OutlierFraction > 0 && g.rng.Float64() < c.OutlierFraction {
			t = c.OutlierMin + g.rng.Float64()*(c.OutlierMax-c.OutlierMin)
			outlier[i] = true
		}
		events[i] = photon.AlignedEvent{
			RelTime:    t,
			Energy:     e,
			Instrument: core.InstrumentID(c.Instrument),
		}
	}
	return events, outlier
}

// Dataset wraps Generate into an aligned dataset with T0 = 0
func (g *PhotonGenerator) Dataset(id core.DatasetID, meta photon.Metadata) *photon.AlignedDataset {
	events, _ := g.Generate()
	return photon.NewAlignedDataset(id, meta, 0, events)
}

// RawTable renders the photons as a "generic" schema table on the
// trigger-relative axis, the input form of the normalizer.
func (g *PhotonGenerator) RawTable() photon.RawTable {
	events, _ := g.Generate()
	records := make([]photon.RawRecord, len(events))
	for i, e := range events {
		records[i] = photon.RawRecord{"time": e.RelTime, "energy": e.Energy}
	}
	return photon.RawTable{
		Instrument: core.InstrumentID(g.config.Instrument),
		Schema:     "generic",
		Records:    records,
	}
}

// WriteTable exports the photons as an xlsx or csv event list
func (g *PhotonGenerator) WriteTable(path string) error {
	events, _ := g.Generate()
	rows := make([][]float64, len(events))
	for i, e := range events {
		rows[i] = []float64{e.RelTime, e.Energy}
	}
	return excel.WriteTable(path, []string{"time", "energy"}, rows)
}

func (g *PhotonGenerator) energy() float64 {
	lo, hi := g.config.EnergyMin, g.config.EnergyMax
	if g.config.LogUniform && lo > 0 {
		return math.Exp(math.Log(lo) + g.rng.Float64()*(math.Log(hi)-math.Log(lo)))
	}
	return lo + g.rng.Float64()*(hi-lo)
}

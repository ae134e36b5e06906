package correlation

import (
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"photonlag/adapters/stats/significance"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
)

// Subset kinds
const (
	KindEnergyBand      = "energy_band"
	KindTimeSplit       = "time_split"
	KindWindow          = "window"
	KindEnergyThreshold = "energy_threshold"
)

// maxWindows bounds the sliding-window scan.
const maxWindows = 10000

// Engine computes energy-time correlations under each configured method.
type Engine struct {
	cfg    config.CorrelationConfig
	logger *internal.Logger
}

// NewEngine creates a correlation engine
func NewEngine(cfg config.CorrelationConfig, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{cfg: cfg, logger: logger.WithComponent("correlation")}
}

// Axes returns the energy axis (log10 when configured) and the time axis.
func (e *Engine) Axes(events []photon.AlignedEvent) (energy, time []float64) {
	time, energy = photon.Columns(events)
	if e.cfg.LogEnergy {
		for i, v := range energy {
			energy[i] = math.Log10(v)
		}
	}
	return energy, time
}

// Correlate applies one method to the sample with closed-form significance.
// Samples below MinEvents yield the insufficient-data sentinel and
// zero-variance samples the degenerate sentinel.
func (e *Engine) Correlate(method stats.Method, energy, time []float64) stats.CorrelationResult {
	n := len(energy)
	if n < e.minEvents() {
		return stats.InsufficientResult(method, n)
	}
	r, ok := Coefficient(method, energy, time)
	if !ok {
		return stats.DegenerateResult(method, n)
	}
	return significance.ClosedForm(method, r, n)
}

// CorrelateAll applies every configured method.
func (e *Engine) CorrelateAll(energy, time []float64) map[stats.Method]stats.CorrelationResult {
	out := make(map[stats.Method]stats.CorrelationResult, len(e.cfg.Methods))
	for _, m := range e.cfg.Methods {
		out[m] = e.Correlate(m, energy, time)
	}
	return out
}

// Subsets evaluates every configured subset of the events.
func (e *Engine) Subsets(events []photon.AlignedEvent) []stats.SubsetResult {
	if len(events) == 0 {
		return nil
	}
	times, energies := photon.Columns(events)
	var out []stats.SubsetResult

	for _, band := range e.cfg.EnergyBands {
		lo, errLo := mstats.Percentile(energies, math.Max(band[0], 1e-9))
		hi, errHi := mstats.Percentile(energies, band[1])
		if band[0] <= 0 || errLo != nil {
			lo = floats.Min(energies)
		}
		if band[1] >= 100 || errHi != nil {
			hi = floats.Max(energies)
		}
		sel := filter(events, func(ev photon.AlignedEvent) bool { return ev.Energy >= lo && ev.Energy <= hi })
		out = append(out, e.subset(fmt.Sprintf("energy P%g-P%g", band[0], band[1]), KindEnergyBand, lo, hi, sel))
	}

	if e.cfg.EarlyLateSplit {
		split := e.cfg.SplitTime
		if split == 0 {
			split, _ = mstats.Median(times)
		}
		lo, hi := floats.Min(times), floats.Max(times)
		early := filter(events, func(ev photon.AlignedEvent) bool { return ev.RelTime < split })
		late := filter(events, func(ev photon.AlignedEvent) bool { return ev.RelTime >= split })
		out = append(out,
			e.subset(fmt.Sprintf("early t<%g", split), KindTimeSplit, lo, split, early),
			e.subset(fmt.Sprintf("late t>=%g", split), KindTimeSplit, split, hi, late),
		)
	}

	if w := e.cfg.Window; w.Width > 0 && w.Step > 0 {
		start, end := floats.Min(times), floats.Max(times)
		for k := 0; k < maxWindows; k++ {
			lo := start + float64(k)*w.Step
			if lo > end {
				break
			}
			hi := lo + w.Width
			sel := filter(events, func(ev photon.AlignedEvent) bool { return ev.RelTime >= lo && ev.RelTime < hi })
			out = append(out, e.subset(fmt.Sprintf("window [%g, %g)", lo, hi), KindWindow, lo, hi, sel))
		}
	}

	for _, thr := range e.cfg.EnergyThresholds {
		sel := filter(events, func(ev photon.AlignedEvent) bool { return ev.Energy > thr })
		out = append(out, e.subset(fmt.Sprintf("E>%g GeV", thr), KindEnergyThreshold, thr, math.MaxFloat64, sel))
	}

	e.logger.Debug("%d subsets evaluated over %d photons", len(out), len(events))
	return out
}

func (e *Engine) subset(label, kind string, lo, hi float64, events []photon.AlignedEvent) stats.SubsetResult {
	energy, time := e.Axes(events)
	return stats.SubsetResult{
		Label:        label,
		Kind:         kind,
		Lower:        lo,
		Upper:        hi,
		N:            len(events),
		Correlations: e.CorrelateAll(energy, time),
	}
}

func (e *Engine) minEvents() int {
	if e.cfg.MinEvents < 3 {
		return 3
	}
	return e.cfg.MinEvents
}

func filter(events []photon.AlignedEvent, keep func(photon.AlignedEvent) bool) []photon.AlignedEvent {
	var out []photon.AlignedEvent
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

package alignment

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"photonlag/domain/core"
	"photonlag/domain/photon"
	domainstats "photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
	"photonlag/internal/errors"
)

// Mode is how one instrument's times were brought onto the unix axis.
type Mode string

const (
	ModeEpoch    Mode = "epoch"    // epoch table conversion
	ModeExplicit Mode = "explicit" // externally supplied offset
	ModeMedian   Mode = "median"   // median offset against the reference instrument
)

// Report describes the alignment of one dataset.
type Report struct {
	Summary domainstats.AlignmentSummary
	Flags   []string
}

// Aligner reconciles instrument epochs onto one relative-time axis.
type Aligner struct {
	cfg    config.AlignmentConfig
	logger *internal.Logger
}

// NewAligner creates an aligner for one configuration
func NewAligner(cfg config.AlignmentConfig, logger *internal.Logger) *Aligner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Aligner{cfg: cfg, logger: logger.WithComponent("aligner")}
}

type series struct {
	instrument core.InstrumentID
	epoch      photon.Epoch
	index      []int     // positions in the dataset
	raw        []float64 // seconds on the instrument axis
	abs        []float64 // seconds on the common axis
	mode       Mode
}

// Align converts every photon to t - T0 and checks the plausible window.
// A relative time outside [WindowMin, WindowMax] is a TIME_ALIGNMENT error.
func (a *Aligner) Align(ds *photon.Dataset) (*photon.AlignedDataset, Report, error) {
	meta := ds.Meta()
	events := ds.Events()
	report := Report{Summary: domainstats.AlignmentSummary{
		Modes:   make(map[string]string),
		Offsets: make(map[string]float64),
	}}

	all := groupByInstrument(events)
	triggerTime, triggerEpoch, triggerKnown := meta.Trigger()
	triggerUnix := triggerTime
	if triggerKnown {
		triggerUnix, _ = ToUnix(triggerTime, triggerEpoch)
	}

	hasAbsolute := false
	for _, s := range all {
		if Absolute(s.epoch) {
			hasAbsolute = true
		}
	}

	// First pass: everything that does not depend on a reference series.
	var pending []*series
	for _, s := range all {
		name := s.instrument.String()
		if off, ok := a.cfg.Offsets[name]; ok {
			s.mode = ModeExplicit
			for i, t := range s.raw {
				base, _ := ToUnix(t, s.epoch)
				s.abs[i] = base + off
			}
			continue
		}
		switch {
		case Absolute(s.epoch):
			s.mode = ModeEpoch
			for i, t := range s.raw {
				s.abs[i], _ = ToUnix(t, s.epoch)
			}
		case s.epoch == photon.EpochRelative:
			if hasAbsolute && !triggerKnown {
				return nil, report, errors.TimeAlignment(fmt.Sprintf("instrument %s reports trigger-relative times but the dataset has no trigger time", name))
			}
			s.mode = ModeEpoch
			base := 0.0
			if triggerKnown {
				base = triggerUnix
			}
			for i, t := range s.raw {
				s.abs[i] = base + t
			}
		default:
			pending = append(pending, s)
		}
	}

	ref := a.reference(all, pending)

	// Local-epoch instruments are placed by their median offset to the
	// reference. A local reference keeps its own axis.
	if ref != nil && ref.mode == "" {
		ref.mode = ModeEpoch
		copy(ref.abs, ref.raw)
	}
	for _, s := range pending {
		if s == ref {
			continue
		}
		off := median(ref.abs) - median(s.raw)
		s.mode = ModeMedian
		for i, t := range s.raw {
			s.abs[i] = t + off
		}
	}

	// Epoch mismatch diagnostic against the reference.
	if ref != nil {
		refMedian := median(ref.abs)
		for _, s := range all {
			if s == ref || len(s.abs) == 0 {
				continue
			}
			diff := median(s.abs) - refMedian
			if math.Abs(diff) <= a.cfg.MismatchThreshold {
				continue
			}
			msg := fmt.Sprintf("%s vs %s: median offset %.1f s", s.instrument, ref.instrument, diff)
			report.Summary.Mismatches = append(report.Summary.Mismatches, msg)
			if s.mode != ModeEpoch {
				a.logger.Warn("%s: %s (offset not corrected, mode %s)", ds.ID(), msg, s.mode)
				continue
			}
			a.logger.Warn("%s: %s, correcting by median offset", ds.ID(), msg)
			for i := range s.abs {
				s.abs[i] -= diff
			}
			s.mode = ModeMedian
			report.Flags = domainstats.AddFlags(report.Flags, domainstats.FlagEpochMismatchCorrected)
		}
	}

	absAll := make([]float64, len(events))
	for _, s := range all {
		name := s.instrument.String()
		report.Summary.Modes[name] = string(s.mode)
		report.Summary.Offsets[name] = median(s.abs) - median(s.raw)
		for i, pos := range s.index {
			absAll[pos] = s.abs[i]
		}
	}

	t0 := a.origin(absAll, triggerKnown, triggerUnix, hasAbsolute)
	report.Summary.T0 = t0

	aligned := make([]photon.AlignedEvent, len(events))
	rel := make([]float64, len(events))
	for i, e := range events {
		rel[i] = absAll[i] - t0
		aligned[i] = photon.AlignedEvent{
			RelTime:    rel[i],
			Energy:     e.Energy,
			Instrument: e.Instrument,
			Quality:    e.Quality,
		}
	}

	if len(rel) > 0 {
		report.Summary.MinRelTime = floats.Min(rel)
		report.Summary.MaxRelTime = floats.Max(rel)
	}
	if err := a.checkWindow(rel); err != nil {
		return nil, report, errors.Wrapf(err, "dataset %s (T0 %.3f)", ds.ID(), t0)
	}

	a.logger.Debug("%s: %d photons aligned, T0=%.3f, t_rel in [%.3f, %.3f]", ds.ID(), len(aligned), t0, report.Summary.MinRelTime, report.Summary.MaxRelTime)
	return photon.NewAlignedDataset(ds.ID(), meta, t0, aligned), report, nil
}

// reference picks the configured reference instrument, else the largest
// series with an absolute epoch, else the largest local series.
func (a *Aligner) reference(all []*series, pending []*series) *series {
	if len(all) == 0 {
		return nil
	}
	if a.cfg.Reference != "" {
		for _, s := range all {
			if s.instrument.String() == a.cfg.Reference {
				return s
			}
		}
	}
	var best *series
	for _, s := range all {
		if s.mode == "" {
			continue
		}
		if best == nil || len(s.raw) > len(best.raw) {
			best = s
		}
	}
	if best != nil {
		return best
	}
	for _, s := range pending {
		if best == nil || len(s.raw) > len(best.raw) {
			best = s
		}
	}
	return best
}

func (a *Aligner) origin(abs []float64, triggerKnown bool, triggerUnix float64, hasAbsolute bool) float64 {
	if a.cfg.T0Mode != "earliest" {
		if triggerKnown {
			return triggerUnix
		}
		if !hasAbsolute {
			return 0
		}
	}
	if len(abs) == 0 {
		return 0
	}
	return floats.Min(abs)
}

func (a *Aligner) checkWindow(rel []float64) error {
	violations := 0
	worst, worstDist := 0.0, 0.0
	for _, t := range rel {
		var d float64
		switch {
		case math.IsNaN(t):
			d = math.Inf(1)
		case t < a.cfg.WindowMin:
			d = a.cfg.WindowMin - t
		case t > a.cfg.WindowMax:
			d = t - a.cfg.WindowMax
		default:
			continue
		}
		violations++
		if d > worstDist {
			worst, worstDist = t, d
		}
	}
	if violations == 0 {
		return nil
	}
	return errors.TimeAlignment(fmt.Sprintf("%d of %d relative times outside plausible window [%g, %g] s (worst %.6g s)",
		violations, len(rel), a.cfg.WindowMin, a.cfg.WindowMax, worst))
}

func groupByInstrument(events []photon.PhotonEvent) []*series {
	byName := make(map[core.InstrumentID]*series)
	for i, e := range events {
		s, ok := byName[e.Instrument]
		if !ok {
			s = &series{instrument: e.Instrument, epoch: e.Epoch}
			byName[e.Instrument] = s
		}
		s.index = append(s.index, i)
		s.raw = append(s.raw, e.Time)
	}
	out := make([]*series, 0, len(byName))
	for _, s := range byName {
		s.abs = make([]float64, len(s.raw))
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].instrument < out[j].instrument })
	return out
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m, err := stats.Median(xs)
	if err != nil {
		return 0
	}
	return m
}

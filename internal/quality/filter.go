package quality

import (
	"fmt"

	"photonlag/domain/photon"
	"photonlag/internal"
	"photonlag/internal/config"
	"photonlag/internal/errors"
)

// Fields that address the photon itself rather than a quality column.
const (
	FieldEnergy = "energy"
	FieldTime   = "time"
)

// Result of applying the cut set to one dataset.
type Result struct {
	Events           []photon.AlignedEvent
	Retained         int
	Total            int
	RetainedFraction float64
	MissingField     int            // events rejected because a cut column was absent
	RejectedBy       map[string]int // first failing cut -> count
	NoData           bool
}

// Filter applies declarative selection cuts. Cuts are data, never code.
type Filter struct {
	cuts   []config.CutConfig
	logger *internal.Logger
}

// NewFilter validates the cuts and returns a filter
func NewFilter(cuts []config.CutConfig, logger *internal.Logger) (*Filter, error) {
	for i, c := range cuts {
		if c.Field == "" {
			return nil, errors.ConfigInvalid(fmt.Sprintf("cut %d: field is required", i))
		}
		if _, err := compare(c.Op, 0, 0); err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("cut %d: %v", i, err))
		}
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Filter{cuts: cuts, logger: logger.WithComponent("quality")}, nil
}

// Apply keeps the events passing every applicable cut. The input is not
// modified. An empty result is reported through NoData, not as an error.
func (f *Filter) Apply(ds *photon.AlignedDataset) Result {
	events := ds.Events()
	res := Result{Total: len(events), RejectedBy: make(map[string]int)}

	kept := make([]photon.AlignedEvent, 0, len(events))
	for _, e := range events {
		ok, cut, missing := f.passes(e)
		if ok {
			kept = append(kept, e)
			continue
		}
		if missing {
			res.MissingField++
		}
		res.RejectedBy[cut]++
	}

	res.Events = kept
	res.Retained = len(kept)
	if res.Total > 0 {
		res.RetainedFraction = float64(res.Retained) / float64(res.Total)
	}
	res.NoData = res.Retained == 0

	f.logger.Debug("%s: retained %d/%d photons (%d missing cut fields)", ds.ID(), res.Retained, res.Total, res.MissingField)
	return res
}

func (f *Filter) passes(e photon.AlignedEvent) (ok bool, failed string, missing bool) {
	for _, c := range f.cuts {
		if c.Instrument != "" && c.Instrument != e.Instrument.String() {
			continue
		}
		v, present := value(e, c.Field)
		label := fmt.Sprintf("%s %s %g", c.Field, c.Op, c.Threshold)
		if !present {
			return false, label, true
		}
		pass, _ := compare(c.Op, v, c.Threshold)
		if !pass {
			return false, label, false
		}
	}
	return true, "", false
}

func value(e photon.AlignedEvent, field string) (float64, bool) {
	switch field {
	case FieldEnergy:
		return e.Energy, true
	case FieldTime:
		return e.RelTime, true
	}
	v, ok := e.Quality[field]
	return v, ok
}

func compare(op string, v, threshold float64) (bool, error) {
	switch op {
	case ">":
		return v > threshold, nil
	case ">=":
		return v >= threshold, nil
	case "<":
		return v < threshold, nil
	case "<=":
		return v <= threshold, nil
	case "==":
		return v == threshold, nil
	case "!=":
		return v != threshold, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

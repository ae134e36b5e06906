package validation

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat"

	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/analysis"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/internal/testkit"
	"photonlag/ports"
)

// Maker builds the dataset for trial i from its own random stream.
type Maker func(i int, r *rand.Rand) *photon.AlignedDataset

// Harness runs the per-dataset analysis core over null and signal-injected
// trials to calibrate the decision threshold before any real data is seen.
type Harness struct {
	cfg     config.Config
	engine  *analysis.Engine
	rng     ports.RNGPort
	workers int
	logger  *internal.Logger
}

// NewHarness derives the trial configuration from cfg: the same cuts,
// methods and significance rule, without subsets and bootstraps, with
// Validation.Permutations shuffles per trial.
func NewHarness(cfg config.Config, rng ports.RNGPort, logger *internal.Logger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	trial := cfg
	trial.Workers = 1
	trial.Significance.Permutations = cfg.Validation.Permutations
	trial.Significance.Bootstraps = 0
	trial.Correlation.Methods = []stats.Method{cfg.Correlation.PrimaryMethod}
	trial.Correlation.EnergyBands = nil
	trial.Correlation.EarlyLateSplit = false
	trial.Correlation.Window = config.WindowConfig{}
	trial.Correlation.EnergyThresholds = nil

	engine, err := analysis.NewEngine(trial, rng, logger)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Harness{
		cfg:     cfg,
		engine:  engine,
		rng:     rng,
		workers: workers,
		logger:  logger.WithComponent("validation"),
	}, nil
}

// Synthetic calibrates on generated photon lists: nulls with no lag and
// alternatives with Validation.InjectedSlope.
func (h *Harness) Synthetic(ctx context.Context) (*Calibration, error) {
	v := h.cfg.Validation
	gen := func(kind string, slope float64) Maker {
		return func(i int, r *rand.Rand) *photon.AlignedDataset {
			pc := testkit.DefaultPhotonConfig()
			pc.Count = v.EventsPerTrial
			pc.EnergyMin = v.EnergyMin
			pc.EnergyMax = v.EnergyMax
			pc.NoiseSigma = v.NoiseSigma
			pc.Slope = slope
			id := core.DatasetID(fmt.Sprintf("%s-%d", kind, i))
			return testkit.NewPhotonGeneratorWithRand(pc, r).Dataset(id, photon.Metadata{Name: string(id)})
		}
	}
	return h.Run(ctx, "synthetic", gen("null", 0), gen("signal", v.InjectedSlope))
}

// Shuffled calibrates on label-shuffled copies of ds. Shuffling arrival
// times against energies destroys any real lag; signal trials add
// Validation.InjectedSlope back on top of the shuffled times.
func (h *Harness) Shuffled(ctx context.Context, ds *photon.AlignedDataset) (*Calibration, error) {
	events := ds.Events()
	slope := h.cfg.Validation.InjectedSlope
	shuffle := func(kind string, slope float64) Maker {
		return func(i int, r *rand.Rand) *photon.AlignedDataset {
			out := make([]photon.AlignedEvent, len(events))
			copy(out, events)
			r.Shuffle(len(out), func(a, b int) {
				out[a].RelTime, out[b].RelTime = out[b].RelTime, out[a].RelTime
			})
			for j := range out {
				out[j].RelTime += slope * out[j].Energy
			}
			id := core.DatasetID(fmt.Sprintf("%s/%s-%d", ds.ID(), kind, i))
			return photon.NewAlignedDataset(id, ds.Meta(), ds.T0(), out)
		}
	}
	return h.Run(ctx, "shuffled:"+ds.ID().String(), shuffle("null", 0), shuffle("signal", slope))
}

// Run executes Validation.Trials null and signal trials, builds the ROC
// curve and selects the threshold for Validation.TargetFPR. Trials whose
// analysis fails are counted and left out of the curve.
func (h *Harness) Run(ctx context.Context, source string, null, signal Maker) (*Calibration, error) {
	v := h.cfg.Validation
	nullSigmas, nullFailed, err := h.trials(ctx, "validation/null", v.Trials, null)
	if err != nil {
		return nil, err
	}
	signalSigmas, signalFailed, err := h.trials(ctx, "validation/signal", v.Trials, signal)
	if err != nil {
		return nil, err
	}

	cal := &Calibration{
		Source:         source,
		NullTrials:     len(nullSigmas),
		SignalTrials:   len(signalSigmas),
		FailedTrials:   nullFailed + signalFailed,
		InjectedSlope:  v.InjectedSlope,
		NullSigmas:     nullSigmas,
		SignalSigmas:   signalSigmas,
		NullQuantiles:  quantiles(nullSigmas),
		Curve:          BuildCurve(v.Grid, nullSigmas, signalSigmas),
		TargetFPR:      v.TargetFPR,
		configBaseline: baseline(h.cfg),
	}
	if len(nullSigmas) == 0 {
		return cal, errors.InsufficientData("every null trial failed")
	}

	if p, ok := cal.SelectThreshold(v.TargetFPR); ok {
		cal.Selected = &p
		locked, _ := cal.Lock(h.cfg)
		cal.Fingerprint = locked.Decision.Fingerprint
		h.logger.Info("%s: %.2fσ reaches FPR %.4f (target %g) with sensitivity %.3f",
			source, p.Threshold, p.FalsePositiveRate, v.TargetFPR, p.Sensitivity)
	} else {
		h.logger.Warn("%s: no grid threshold reaches FPR %g", source, v.TargetFPR)
	}
	return cal, nil
}

// trials runs n trials concurrently, at most h.workers at a time. Each
// trial draws its dataset from stream (name, i), so the outcome does not
// depend on scheduling.
func (h *Harness) trials(ctx context.Context, name string, n int, build Maker) ([]float64, int, error) {
	sigmas := make([]float64, n)
	ok := make([]bool, n)
	sem := semaphore.NewWeighted(int64(h.workers))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res := h.engine.Analyze(ctx, build(i, h.rng.Stream(name, i)))
			if res.Status == stats.ResultOK {
				sigmas[i] = res.SignificanceSigma
				ok[i] = true
			} else {
				h.logger.Debug("%s trial %d: %s %s", name, i, res.Status, res.Error)
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.Incomplete("validation", err)
	}

	out := make([]float64, 0, n)
	for i := range sigmas {
		if ok[i] {
			out = append(out, sigmas[i])
		}
	}
	return out, n - len(out), nil
}

func quantiles(xs []float64) Quantiles {
	if len(xs) == 0 {
		return Quantiles{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return Quantiles{
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

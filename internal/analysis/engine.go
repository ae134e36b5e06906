package analysis

import (
	"context"
	"fmt"

	"photonlag/adapters/stats/correlation"
	"photonlag/adapters/stats/resample"
	"photonlag/adapters/stats/robust"
	"photonlag/adapters/stats/significance"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
	"photonlag/internal/cosmology"
	"photonlag/internal/errors"
	"photonlag/internal/quality"
	"photonlag/ports"
)

// Engine is the per-dataset analysis core shared by the pipeline and the
// validation harness: quality cuts, correlation, significance, robust fit
// and energy scale on an already aligned dataset.
type Engine struct {
	cfg    config.Config
	rng    ports.RNGPort
	filter *quality.Filter
	corr   *correlation.Engine
	sig    *significance.Estimator
	fitter *robust.Fitter
	scale  *cosmology.ScaleEstimator
	logger *internal.Logger
}

// NewEngine wires the components for one validated configuration
func NewEngine(cfg config.Config, rng ports.RNGPort, logger *internal.Logger) (*Engine, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	params, err := cfg.Cosmology.Resolve()
	if err != nil {
		return nil, err
	}
	filter, err := quality.NewFilter(cfg.Cuts, logger)
	if err != nil {
		return nil, err
	}
	pool := resample.NewPool(rng, cfg.Workers, cfg.Significance.ChunkSize)

	return &Engine{
		cfg:    cfg,
		rng:    rng,
		filter: filter,
		corr:   correlation.NewEngine(cfg.Correlation, logger),
		sig:    significance.NewEstimator(cfg.Significance, pool, logger),
		fitter: robust.NewFitter(cfg.RANSAC, logger),
		scale:  cosmology.NewScaleEstimator(cosmology.New(params), cfg.Scale),
		logger: logger.WithComponent("analysis"),
	}, nil
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() config.Config { return e.cfg }

// Analyze runs the core on one aligned dataset. It never returns an error:
// failures are recorded on the result with an error code and flags.
func (e *Engine) Analyze(ctx context.Context, ds *photon.AlignedDataset) stats.DatasetResult {
	meta := ds.Meta()
	method := e.cfg.Correlation.PrimaryMethod
	res := stats.DatasetResult{
		DatasetID:              ds.ID(),
		Name:                   meta.Name,
		Status:                 stats.ResultOK,
		PrimaryMethod:          method,
		Correlation:            make(map[stats.Method]float64),
		DecisionThresholdSigma: e.cfg.Decision.ThresholdSigma,
		Flags:                  []string{},
	}
	if !e.cfg.ThresholdCalibrated() {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagThresholdNotCalibrated)
	}

	filtered := e.filter.Apply(ds)
	res.N = filtered.Retained
	res.RetainedFraction = filtered.RetainedFraction
	if filtered.NoData {
		res.Status = stats.ResultNoData
		res.PValue = 1
		res.Flags = stats.AddFlags(res.Flags, stats.FlagNoData)
		e.logger.Warn("%s: no photons survive the quality cuts (%d in)", ds.ID(), filtered.Total)
		return res
	}

	energyAxis, timeAxis := e.corr.Axes(filtered.Events)
	details := e.corr.CorrelateAll(energyAxis, timeAxis)
	res.CorrelationDetails = details
	for m, d := range details {
		res.Correlation[m] = d.Coefficient
		res.Flags = stats.AddFlags(res.Flags, d.Flags...)
	}

	primary := details[method]
	res.PValue = primary.PValue
	res.Log10PValue = primary.Log10PValue
	switch primary.Status {
	case stats.StatusInsufficientData:
		return fail(res, errors.InsufficientData(fmt.Sprintf("%d photons after cuts, need at least %d", res.N, e.cfg.Correlation.MinEvents)))
	case stats.StatusDegenerate:
		return fail(res, errors.NumericalDegeneracy("zero variance in photon energies or arrival times"))
	}

	sig, err := e.sig.Estimate(ctx, fmt.Sprintf("%s/%s", ds.ID(), method), energyAxis, timeAxis, primary, correlation.StatisticFor(method))
	if err != nil {
		return fail(res, err)
	}
	res.SignificanceSigma = primary.SignificanceSigma
	res.Permutation = sig.Permutation
	res.Bootstrap = sig.Bootstrap
	res.Flags = stats.AddFlags(res.Flags, sig.Flags...)

	if err := ctx.Err(); err != nil {
		return fail(res, errors.Incomplete("analysis", err))
	}

	times, energies := photon.Columns(filtered.Events)
	fit := e.fitter.Fit(e.rng.Stream(ds.ID().String()+"/ransac", 0), energies, times)
	res.Fit = &fit
	res.Slope = fit.Slope
	res.Intercept = fit.Intercept
	res.InlierFraction = fit.InlierFraction
	if fit.Status != stats.StatusOK {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagRobustFitDegenerate)
	}
	if fit.OutlierInfluence > e.cfg.RANSAC.OutlierInfluence {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagOutlierDriven)
	}

	scale, flags := e.scale.Estimate(fit.Slope, meta.Redshift)
	res.Scale = &scale
	res.EScale = scale.EScaleGeV
	res.EScaleOverPlanck = scale.EScaleOverPlanck
	res.Flags = stats.AddFlags(res.Flags, flags...)

	res.Subsets = e.corr.Subsets(filtered.Events)

	res.Detected = res.SignificanceSigma >= e.cfg.Decision.ThresholdSigma
	if res.Detected {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagDetectionAboveThreshold)
	}

	e.logger.Debug("%s: n=%d r=%.4f %.2fσ slope=%.4g s/GeV", ds.ID(), res.N, primary.Coefficient, res.SignificanceSigma, res.Slope)
	return res
}

// fail records err on the result. Context cancellation maps to the
// incomplete status, everything else to failed.
func fail(res stats.DatasetResult, err error) stats.DatasetResult {
	res.ErrorCode = errors.GetCode(err)
	res.Error = err.Error()
	res.Detected = false
	if res.ErrorCode == errors.CodeIncomplete {
		res.Status = stats.ResultIncomplete
		res.Flags = stats.AddFlags(res.Flags, stats.FlagIncomplete)
		return res
	}
	res.Status = stats.ResultFailed
	if res.ErrorCode == errors.CodeInsufficientData {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagInsufficientData)
	}
	return res
}

// Fail builds the result record for a dataset that failed before the core
// ran (normalization or alignment).
func Fail(id core.DatasetID, name string, threshold float64, err error) stats.DatasetResult {
	return fail(stats.DatasetResult{
		DatasetID:              id,
		Name:                   name,
		Correlation:            map[stats.Method]float64{},
		PValue:                 1,
		DecisionThresholdSigma: threshold,
		Flags:                  []string{},
	}, err)
}

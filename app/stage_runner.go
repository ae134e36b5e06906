package app

import (
	"context"
	"time"

	"photonlag/adapters/instrument"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/alignment"
	"photonlag/internal/analysis"
	"photonlag/internal/errors"
)

// DatasetInput is one transient as delivered by data acquisition: its raw
// instrument tables plus the metadata needed to align them.
type DatasetInput struct {
	ID     core.DatasetID    `json:"id"`
	Meta   photon.Metadata   `json:"metadata"`
	Tables []photon.RawTable `json:"tables"`

	// LoadError is set when the tables could not be read.
	LoadError error `json:"-"`
}

// StageRunner executes the per-dataset stages in order: normalize, align,
// then the analysis core.
type StageRunner struct {
	normalizer *instrument.Normalizer
	aligner    *alignment.Aligner
	engine     *analysis.Engine
	logger     *internal.Logger
}

// NewStageRunner creates a stage runner
func NewStageRunner(normalizer *instrument.Normalizer, aligner *alignment.Aligner, engine *analysis.Engine, logger *internal.Logger) *StageRunner {
	return &StageRunner{
		normalizer: normalizer,
		aligner:    aligner,
		engine:     engine,
		logger:     logger.WithComponent("stages"),
	}
}

// Run always yields a result record. Errors from any stage are attached to
// it with their code.
func (r *StageRunner) Run(ctx context.Context, in DatasetInput) stats.DatasetResult {
	threshold := r.engine.Config().Decision.ThresholdSigma
	if err := ctx.Err(); err != nil {
		return analysis.Fail(in.ID, in.Meta.Name, threshold, errors.Incomplete("dataset", err))
	}

	if in.LoadError != nil {
		return analysis.Fail(in.ID, in.Meta.Name, threshold, in.LoadError)
	}
	aligned, report, err := r.Prepare(in)
	if err != nil {
		return analysis.Fail(in.ID, in.Meta.Name, threshold, err)
	}

	start := time.Now()
	res := r.engine.Analyze(ctx, aligned)
	res.Alignment = &report.Summary
	res.Flags = stats.AddFlags(res.Flags, report.Flags...)
	r.logger.Debug("%s: analysis %s in %v", in.ID, res.Status, time.Since(start))
	return res
}

// Prepare runs the normalize and align stages only.
func (r *StageRunner) Prepare(in DatasetInput) (*photon.AlignedDataset, alignment.Report, error) {
	if in.LoadError != nil {
		return nil, alignment.Report{}, in.LoadError
	}
	start := time.Now()
	ds, err := r.normalizer.Normalize(in.ID, in.Meta, in.Tables)
	if err != nil {
		return nil, alignment.Report{}, err
	}
	r.logger.Debug("%s: normalized %d photons in %v", in.ID, ds.Len(), time.Since(start))

	start = time.Now()
	aligned, report, err := r.aligner.Align(ds)
	if err != nil {
		return nil, report, err
	}
	r.logger.Debug("%s: aligned on T0=%.3f in %v", in.ID, report.Summary.T0, time.Since(start))
	return aligned, report, nil
}

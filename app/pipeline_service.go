package app

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"photonlag/adapters/instrument"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/alignment"
	"photonlag/internal/analysis"
	"photonlag/internal/combiner"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/ports"
)

// PipelineService runs the full analysis over one or many datasets
type PipelineService struct {
	cfg      config.Config
	runner   *StageRunner
	combiner *combiner.Combiner
	rngPort  ports.RNGPort
	logger   *internal.Logger
}

// BatchResult is the output of one multi-dataset run
type BatchResult struct {
	RunID             core.RunID              `json:"run_id"`
	Seed              int64                   `json:"seed"`
	ConfigFingerprint core.Hash               `json:"config_fingerprint"`
	ThresholdSigma    float64                 `json:"decision_threshold_sigma"`
	Calibrated        bool                    `json:"threshold_calibrated"`
	Datasets          []stats.DatasetResult   `json:"datasets"`
	Combined          *stats.CombinedEvidence `json:"combined,omitempty"`
	Detections        int                     `json:"detections"`
	Failures          int                     `json:"failures"`
	StartedAt         time.Time               `json:"started_at"`
	RuntimeMs         int64                   `json:"runtime_ms"`
}

// NewPipelineService validates cfg and wires the stages. A nil registry
// uses the built-in instrument adapters.
func NewPipelineService(cfg config.Config, rngPort ports.RNGPort, registry *instrument.Registry, logger *internal.Logger) (*PipelineService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if registry == nil {
		registry = instrument.NewRegistry()
	}

	engine, err := analysis.NewEngine(cfg, rngPort, logger)
	if err != nil {
		return nil, err
	}
	return &PipelineService{
		cfg: cfg,
		runner: NewStageRunner(
			instrument.NewNormalizer(registry, logger),
			alignment.NewAligner(cfg.Alignment, logger),
			engine,
			logger,
		),
		combiner: combiner.New(cfg.Combiner, logger),
		rngPort:  rngPort,
		logger:   logger.WithComponent("pipeline"),
	}, nil
}

// AnalyzeDataset runs one dataset end to end. It never returns an error:
// failures are recorded on the result.
func (s *PipelineService) AnalyzeDataset(ctx context.Context, in DatasetInput) stats.DatasetResult {
	if s.cfg.DatasetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DatasetTimeout)
		defer cancel()
	}
	res := s.runner.Run(ctx, in)
	if res.Status != stats.ResultOK {
		s.logger.Warn("%s: %s %s", in.ID, res.Status, res.Error)
	}
	return res
}

// AlignDataset normalizes and aligns one input without analyzing it, for
// callers such as the validation harness that run their own trials.
func (s *PipelineService) AlignDataset(in DatasetInput) (*photon.AlignedDataset, error) {
	aligned, _, err := s.runner.Prepare(in)
	return aligned, err
}

// RunBatch analyzes every input concurrently and pools the usable results.
// The only error is a configuration problem found before any dataset is
// processed; every dataset otherwise yields a result record.
func (s *PipelineService) RunBatch(ctx context.Context, inputs []DatasetInput) (*BatchResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	inputs, err := assignIDs(inputs)
	if err != nil {
		return nil, err
	}

	out := &BatchResult{
		RunID:             core.NewRunID(),
		Seed:              s.rngPort.Seed(),
		ConfigFingerprint: s.cfg.Fingerprint(),
		ThresholdSigma:    s.cfg.Decision.ThresholdSigma,
		Calibrated:        s.cfg.ThresholdCalibrated(),
		Datasets:          make([]stats.DatasetResult, len(inputs)),
		StartedAt:         time.Now(),
	}
	if !out.Calibrated {
		s.logger.Warn("decision threshold %.2fσ carries no calibration fingerprint", out.ThresholdSigma)
	}

	limit := s.cfg.MaxConcurrentDatasets
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			out.Datasets[i] = s.AnalyzeDataset(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range out.Datasets {
		if r.Detected {
			out.Detections++
		}
		if r.Status == stats.ResultFailed || r.Status == stats.ResultIncomplete {
			out.Failures++
		}
	}
	if len(inputs) > 1 {
		combined := s.combiner.Combine(s.cfg.Correlation.PrimaryMethod, out.Datasets)
		out.Combined = &combined
	}
	out.RuntimeMs = time.Since(out.StartedAt).Milliseconds()

	s.logger.Info("run %s: %d datasets, %d detections, %d failures in %dms",
		out.RunID, len(inputs), out.Detections, out.Failures, out.RuntimeMs)
	return out, nil
}

// assignIDs names anonymous inputs by position and rejects duplicates,
// which would otherwise share random streams.
func assignIDs(inputs []DatasetInput) ([]DatasetInput, error) {
	out := make([]DatasetInput, len(inputs))
	seen := make(map[core.DatasetID]bool, len(inputs))
	for i, in := range inputs {
		if in.ID.String() == "" {
			in.ID = core.DatasetID(fmt.Sprintf("dataset-%d", i+1))
		}
		if seen[in.ID] {
			return nil, errors.ConfigInvalid(fmt.Sprintf("duplicate dataset id %q", in.ID))
		}
		seen[in.ID] = true
		out[i] = in
	}
	return out, nil
}

package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/adapters/rng"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal/analysis"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/internal/testkit"
)

func smallConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = 4
	cfg.Validation.Trials = 60
	cfg.Validation.EventsPerTrial = 200
	cfg.Validation.NoiseSigma = 0.5
	cfg.Validation.InjectedSlope = 0.01
	cfg.Validation.TargetFPR = 0.05
	return cfg
}

func newHarness(t *testing.T, cfg config.Config) *Harness {
	t.Helper()
	h, err := NewHarness(cfg, rng.NewSeededRNG(cfg.Seed), nil)
	require.NoError(t, err)
	return h
}

func TestBuildCurve(t *testing.T) {
	grid := config.ThresholdGrid{Min: 0, Max: 3, Step: 1}
	curve := BuildCurve(grid, []float64{0.1, 0.5, 1.5, 2.5}, []float64{1.2, 2.2, 3.5, 4})

	require.Len(t, curve, 4)
	assert.Equal(t, 0.0, curve[0].Threshold)
	assert.Equal(t, 1.0, curve[0].FalsePositiveRate)
	assert.Equal(t, 1.0, curve[0].Sensitivity)

	assert.Equal(t, 1.0, curve[1].Sensitivity)
	assert.Equal(t, 3, curve[2].TruePositives)
	assert.Equal(t, 1, curve[2].FalsePositives)
	assert.Equal(t, 0.25, curve[2].FalsePositiveRate)
	assert.Equal(t, 0.75, curve[2].Specificity)
	assert.Equal(t, 0.75, curve[2].Sensitivity)

	assert.Equal(t, 0.0, curve[3].FalsePositiveRate)
	assert.Equal(t, 0.5, curve[3].Sensitivity)
	assert.InDelta(t, 0.0027, curve[3].NominalFPR, 1e-4)
}

func TestSelectThreshold_SmallestMeetingTarget(t *testing.T) {
	cal := &Calibration{Curve: BuildCurve(config.ThresholdGrid{Min: 0, Max: 4, Step: 0.5},
		[]float64{0.2, 0.4, 0.9, 1.1, 1.6, 2.2}, nil)}

	p, ok := cal.SelectThreshold(0.2)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Threshold)

	p, ok = cal.SelectThreshold(0)
	require.True(t, ok)
	assert.Equal(t, 2.5, p.Threshold)
}

func TestLock(t *testing.T) {
	cfg := smallConfig()
	p := ROCPoint{Threshold: 3.25}
	cal := &Calibration{Selected: &p, configBaseline: baseline(cfg)}

	locked, err := cal.Lock(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3.25, locked.Decision.ThresholdSigma)
	assert.True(t, locked.ThresholdCalibrated())
	assert.False(t, cfg.ThresholdCalibrated())

	retuned := locked
	retuned.Decision.ThresholdSigma = 2.5
	assert.False(t, retuned.ThresholdCalibrated())

	other := cfg
	other.Cuts = []config.CutConfig{{Field: "energy", Op: ">", Threshold: 1}}
	_, err = cal.Lock(other)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)

	_, err = (&Calibration{TargetFPR: 1e-9}).Lock(cfg)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func TestSynthetic_CalibratesAndLocks(t *testing.T) {
	cfg := smallConfig()
	cal, err := newHarness(t, cfg).Synthetic(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, cal.NullTrials)
	assert.Equal(t, 60, cal.SignalTrials)
	assert.Zero(t, cal.FailedTrials)
	require.NotNil(t, cal.Selected)
	assert.LessOrEqual(t, cal.Selected.FalsePositiveRate, 0.05)
	assert.LessOrEqual(t, cal.Selected.Threshold, 3.0)
	assert.GreaterOrEqual(t, cal.Selected.Sensitivity, 0.95)
	assert.Less(t, cal.NullQuantiles.Median, 1.5)
	assert.NotEmpty(t, cal.Fingerprint)

	locked, err := cal.Lock(cfg)
	require.NoError(t, err)
	assert.Equal(t, cal.Fingerprint, locked.Decision.Fingerprint)

	// A lagged burst evaluated against the locked threshold.
	locked.Significance.Permutations = 0
	locked.Significance.Bootstraps = 0
	locked.RANSAC.ResidualThreshold = 0.3
	engine, err := analysis.NewEngine(locked, rng.NewSeededRNG(1), nil)
	require.NoError(t, err)
	gen := testkit.DefaultPhotonConfig()
	gen.Slope = 0.01
	gen.NoiseSigma = 0.1
	res := engine.Analyze(context.Background(), testkit.NewPhotonGenerator(gen).Dataset("burst", photon.Metadata{Redshift: 0.4}))

	require.Equal(t, stats.ResultOK, res.Status)
	assert.True(t, res.Detected)
	assert.Equal(t, cal.Selected.Threshold, res.DecisionThresholdSigma)
	assert.NotContains(t, res.Flags, stats.FlagThresholdNotCalibrated)
	assert.InEpsilon(t, 0.01, res.Slope, 0.1)
}

func TestSynthetic_IndependentOfWorkerCount(t *testing.T) {
	cfg := smallConfig()
	cfg.Validation.Trials = 20
	cfg.Workers = 1
	a, err := newHarness(t, cfg).Synthetic(context.Background())
	require.NoError(t, err)

	cfg.Workers = 8
	b, err := newHarness(t, cfg).Synthetic(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.NullSigmas, b.NullSigmas)
	assert.Equal(t, a.SignalSigmas, b.SignalSigmas)
}

func TestShuffled_DestroysRealLag(t *testing.T) {
	cfg := smallConfig()
	cfg.Validation.Trials = 40
	gen := testkit.DefaultPhotonConfig()
	gen.Count = 300
	gen.Slope = 0.01
	gen.NoiseSigma = 0.1
	ds := testkit.NewPhotonGenerator(gen).Dataset("lagged", photon.Metadata{})

	cal, err := newHarness(t, cfg).Shuffled(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, "shuffled:lagged", cal.Source)
	assert.Less(t, cal.NullQuantiles.P95, 3.0)
	for _, s := range cal.SignalSigmas {
		assert.Greater(t, s, 5.0)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newHarness(t, smallConfig()).Synthetic(ctx)
	assert.ErrorIs(t, err, errors.ErrIncomplete)
}

func TestNewHarness_RejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Validation.TargetFPR = 2
	_, err := NewHarness(cfg, rng.NewSeededRNG(1), nil)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

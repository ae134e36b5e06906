package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/adapters/rng"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/internal/testkit"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Significance.Permutations = 199
	cfg.Significance.Bootstraps = 100
	cfg.Workers = 2
	return cfg
}

func newEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, rng.NewSeededRNG(cfg.Seed), nil)
	require.NoError(t, err)
	return e
}

func synthetic(seed int64, slope, noise float64) *photon.AlignedDataset {
	gen := testkit.DefaultPhotonConfig()
	gen.Seed = seed
	gen.Slope = slope
	gen.NoiseSigma = noise
	return testkit.NewPhotonGenerator(gen).Dataset(core.DatasetID(fmt.Sprintf("synthetic-%d", seed)), photon.Metadata{Name: "synthetic", Redshift: 0.151})
}

func TestAnalyze_NullScenario(t *testing.T) {
	e := newEngine(t, testConfig())

	quiet := 0
	for seed := int64(1); seed <= 10; seed++ {
		res := e.Analyze(context.Background(), synthetic(seed, 0, 10))
		require.Equal(t, stats.ResultOK, res.Status, res.Error)
		assert.Less(t, math.Abs(res.Correlation[stats.MethodPearson]), 0.1, "seed %d", seed)
		assert.False(t, res.Detected, "seed %d", seed)
		if res.SignificanceSigma < 2 {
			quiet++
		}
	}
	assert.GreaterOrEqual(t, quiet, 8)
}

func TestAnalyze_InjectedLag(t *testing.T) {
	cfg := testConfig()
	cfg.RANSAC.ResidualThreshold = 0.3
	e := newEngine(t, cfg)
	require.Equal(t, 0.3, e.Config().RANSAC.ResidualThreshold)

	res := e.Analyze(context.Background(), synthetic(3, 0.01, 0.1))
	require.Equal(t, stats.ResultOK, res.Status, res.Error)

	assert.InEpsilon(t, 0.01, res.Slope, 0.1)
	assert.Greater(t, res.SignificanceSigma, cfg.Decision.ThresholdSigma)
	assert.True(t, res.Detected)
	assert.Contains(t, res.Flags, stats.FlagDetectionAboveThreshold)
	assert.Contains(t, res.Flags, stats.FlagPermutationAtFloor)
	require.NotNil(t, res.Scale)
	assert.False(t, res.Scale.Unconstrained)
	assert.Greater(t, res.EScale, 0.0)
	assert.InEpsilon(t, res.EScale/1.22e19, res.EScaleOverPlanck, 1e-12)
	require.NotNil(t, res.Bootstrap)
	assert.True(t, res.Bootstrap.CI.Contains(res.Correlation[stats.MethodPearson]))
}

func TestAnalyze_ThresholdCalibrationFlag(t *testing.T) {
	cfg := testConfig()
	res := newEngine(t, cfg).Analyze(context.Background(), synthetic(1, 0, 10))
	assert.Contains(t, res.Flags, stats.FlagThresholdNotCalibrated)

	locked := cfg.WithDecision(4.5, "")
	locked = locked.WithDecision(4.5, locked.Fingerprint().String())
	res = newEngine(t, locked).Analyze(context.Background(), synthetic(1, 0, 10))
	assert.NotContains(t, res.Flags, stats.FlagThresholdNotCalibrated)
	assert.Equal(t, 4.5, res.DecisionThresholdSigma)
}

func TestAnalyze_NoDataAfterCuts(t *testing.T) {
	cfg := testConfig()
	cfg.Cuts = []config.CutConfig{{Field: "energy", Op: ">", Threshold: 1e9}}
	res := newEngine(t, cfg).Analyze(context.Background(), synthetic(1, 0, 10))

	assert.Equal(t, stats.ResultNoData, res.Status)
	assert.Contains(t, res.Flags, stats.FlagNoData)
	assert.Equal(t, 0, res.N)
	assert.False(t, res.Usable())
}

func TestAnalyze_InsufficientData(t *testing.T) {
	ds := photon.NewAlignedDataset("tiny", photon.Metadata{}, 0, []photon.AlignedEvent{
		{RelTime: 1, Energy: 1}, {RelTime: 2, Energy: 2},
	})
	res := newEngine(t, testConfig()).Analyze(context.Background(), ds)

	assert.Equal(t, stats.ResultFailed, res.Status)
	assert.Equal(t, errors.CodeInsufficientData, res.ErrorCode)
	assert.Contains(t, res.Flags, stats.FlagInsufficientData)
}

func TestAnalyze_ZeroVarianceEnergy(t *testing.T) {
	events := make([]photon.AlignedEvent, 20)
	for i := range events {
		events[i] = photon.AlignedEvent{RelTime: float64(i), Energy: 5}
	}
	res := newEngine(t, testConfig()).Analyze(context.Background(), photon.NewAlignedDataset("flat", photon.Metadata{}, 0, events))

	assert.Equal(t, stats.ResultFailed, res.Status)
	assert.Equal(t, errors.CodeNumericalDegeneracy, res.ErrorCode)
	assert.Contains(t, res.Flags, stats.FlagZeroVariance)
	_, err := json.Marshal(res)
	assert.NoError(t, err)
}

func TestAnalyze_CancelledIsIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newEngine(t, testConfig()).Analyze(ctx, synthetic(1, 0, 10))

	assert.Equal(t, stats.ResultIncomplete, res.Status)
	assert.Equal(t, errors.CodeIncomplete, res.ErrorCode)
	assert.Contains(t, res.Flags, stats.FlagIncomplete)
}

func TestAnalyze_OutlierDrivenSignalFlagged(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	var events []photon.AlignedEvent
	for i := 0; i < 300; i++ {
		events = append(events, photon.AlignedEvent{Energy: 0.1 + r.Float64()*10, RelTime: 50 + r.NormFloat64()})
	}
	for i := 0; i < 15; i++ {
		events = append(events, photon.AlignedEvent{Energy: 80 + r.Float64()*20, RelTime: 400 + r.Float64()*100})
	}
	cfg := testConfig()
	cfg.RANSAC.ResidualThreshold = 3
	res := newEngine(t, cfg).Analyze(context.Background(), photon.NewAlignedDataset("spiky", photon.Metadata{Redshift: 1}, 0, events))

	require.Equal(t, stats.ResultOK, res.Status)
	assert.Contains(t, res.Flags, stats.FlagOutlierDriven)
	assert.Greater(t, res.Fit.FullSigma, res.Fit.InlierSigma)
}

func TestAnalyze_ExtremeSignificanceSerializes(t *testing.T) {
	cfg := testConfig()
	cfg.Significance.Permutations = 0
	cfg.Significance.Bootstraps = 0
	gen := testkit.DefaultPhotonConfig()
	gen.Count = 20000
	gen.Slope = 1
	gen.NoiseSigma = 0.01
	ds := testkit.NewPhotonGenerator(gen).Dataset("extreme", photon.Metadata{Redshift: 0.5})

	res := newEngine(t, cfg).Analyze(context.Background(), ds)
	require.Equal(t, stats.ResultOK, res.Status, res.Error)
	assert.Contains(t, res.Flags, stats.FlagPBelowPrecision)
	assert.Equal(t, 1e-300, res.PValue)
	assert.False(t, math.IsInf(res.SignificanceSigma, 0) || math.IsNaN(res.SignificanceSigma))

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"E_scale"`)
}

func TestAnalyze_Deterministic(t *testing.T) {
	cfg := testConfig()
	a := newEngine(t, cfg).Analyze(context.Background(), synthetic(4, 0.01, 0.5))
	cfg.Workers = 7
	b := newEngine(t, cfg).Analyze(context.Background(), synthetic(4, 0.01, 0.5))
	assert.Equal(t, a, b)
}

func TestFail_RecordsCode(t *testing.T) {
	res := Fail("broken", "GRB x", 5, errors.TimeAlignment("3 of 3 relative times outside window"))
	assert.Equal(t, stats.ResultFailed, res.Status)
	assert.Equal(t, errors.CodeTimeAlignment, res.ErrorCode)
	assert.Contains(t, res.Error, "outside window")
	assert.Equal(t, 1.0, res.PValue)
}

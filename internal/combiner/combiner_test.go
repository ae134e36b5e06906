package combiner

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/adapters/rng"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal/analysis"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/internal/testkit"
)

func result(id string, r float64, n int) stats.DatasetResult {
	return stats.DatasetResult{
		DatasetID:   core.DatasetID(id),
		Name:        id,
		Status:      stats.ResultOK,
		N:           n,
		Correlation: map[stats.Method]float64{stats.MethodPearson: r},
		CorrelationDetails: map[stats.Method]stats.CorrelationResult{
			stats.MethodPearson: {Method: stats.MethodPearson, Coefficient: r, N: n, Status: stats.StatusOK},
		},
	}
}

func newCombiner() *Combiner {
	return New(config.DefaultConfig().Combiner, nil)
}

func TestCombine_FisherPooling(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("a", 0.2, 103),
		result("b", 0.1, 203),
	})

	za, zb := math.Atanh(0.2), math.Atanh(0.1)
	zbar := (100*za + 200*zb) / 300
	assert.InDelta(t, math.Tanh(zbar), res.PooledCorrelation, 1e-12)
	assert.InDelta(t, zbar*math.Sqrt(300), res.PooledSignificance, 1e-12)
	assert.InDelta(t, 150*zbar*zbar, res.LogLikelihoodRatio, 1e-12)
	assert.InDelta(t, 100*(za-zbar)*(za-zbar)+200*(zb-zbar)*(zb-zbar), res.HeterogeneityQ, 1e-12)
	assert.Equal(t, 306, res.TotalN)
	require.Len(t, res.PerSourceResults, 2)
	assert.InDelta(t, 1.0/3, res.PerSourceResults[0].WeightShare, 1e-12)
	assert.InDelta(t, 2.0/3, res.SampleDominanceRatio, 1e-12)
	assert.Greater(t, res.PooledPValue, 0.0)
	assert.LessOrEqual(t, res.PooledPValue, 1.0)
}

func TestCombine_EvidenceSharesSumToOne(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("a", 0.05, 500), result("b", -0.02, 500), result("c", 0.01, 500), result("d", 0.03, 500),
	})
	var total float64
	for _, s := range res.PerSourceResults {
		total += s.EvidenceShare
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.Equal(t, core.DatasetID("a"), res.DominantSource)
}

func TestCombine_ExcludesUnusableResults(t *testing.T) {
	failed := analysis.Fail("broken", "broken", 5, errors.TimeAlignment("12 of 40 relative times outside plausible window"))
	noData := stats.DatasetResult{DatasetID: "empty", Status: stats.ResultNoData}
	tiny := result("tiny", 0.9, 3)
	degenerate := result("flat", 0, 50)
	degenerate.CorrelationDetails[stats.MethodPearson] = stats.DegenerateResult(stats.MethodPearson, 50)

	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("a", 0.1, 400), failed, noData, tiny, degenerate, result("b", 0.12, 400),
	})

	require.Len(t, res.Excluded, 4)
	for _, ex := range res.Excluded {
		assert.Contains(t, ex.Reason, "excluded: ")
	}
	assert.Contains(t, res.Excluded[0].Reason, errors.CodeTimeAlignment)
	assert.Contains(t, res.Excluded[1].Reason, stats.ResultNoData)
	assert.Len(t, res.PerSourceResults, 2)
	assert.Equal(t, 800, res.TotalN)
}

func TestCombine_InsufficientSources(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{result("only", 0.3, 100)})
	assert.Contains(t, res.Flags, stats.FlagInsufficientSources)
	assert.False(t, res.Representative)

	res = newCombiner().Combine(stats.MethodPearson, nil)
	assert.Contains(t, res.Flags, stats.FlagInsufficientSources)
	assert.Equal(t, 1.0, res.PooledPValue)
	assert.Empty(t, res.PerSourceResults)
}

func TestCombine_HeterogeneityFlag(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("pos", 0.4, 500), result("neg", -0.4, 500),
	})
	assert.Contains(t, res.Flags, stats.FlagHeterogeneousSources)
	assert.Less(t, res.HeterogeneityPValue, 1e-10)
	assert.InDelta(t, 0, res.PooledCorrelation, 1e-12)

	res = newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("x", 0.1, 500), result("y", 0.11, 500), result("z", 0.09, 500),
	})
	assert.NotContains(t, res.Flags, stats.FlagHeterogeneousSources)
	assert.True(t, res.Representative)
}

func TestCombine_SampleDominance(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("big", 0.1, 10003), result("small", 0.1, 103),
	})
	assert.Greater(t, res.SampleDominanceRatio, 0.6)
	assert.Contains(t, res.Flags, stats.FlagNonRepresentative)
	assert.False(t, res.Representative)
}

func TestCombine_ExtremeSourceStaysFinite(t *testing.T) {
	res := newCombiner().Combine(stats.MethodPearson, []stats.DatasetResult{
		result("a", 1, 100000), result("b", 0.999999999999, 100000),
	})
	assert.False(t, math.IsInf(res.PooledSignificance, 0) || math.IsNaN(res.PooledSignificance))
	assert.Equal(t, 1e-300, res.PooledPValue)
	assert.Contains(t, res.Flags, stats.FlagPBelowPrecision)
}

// Five null sources and one strong source: the pooled detection is driven
// by a single burst and must not read as a universal effect.
func TestCombine_OneStrongSourceAmongNulls(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Significance.Permutations = 0
	cfg.Significance.Bootstraps = 0
	engine, err := analysis.NewEngine(cfg, rng.NewSeededRNG(cfg.Seed), nil)
	require.NoError(t, err)

	var results []stats.DatasetResult
	for i := 0; i < 5; i++ {
		gen := testkit.DefaultPhotonConfig()
		gen.Seed = int64(100 + i)
		ds := testkit.NewPhotonGenerator(gen).Dataset(core.DatasetID(fmt.Sprintf("null-%d", i)), photon.Metadata{Redshift: 1})
		results = append(results, engine.Analyze(context.Background(), ds))
	}
	strong := testkit.DefaultPhotonConfig()
	strong.Seed = 7
	strong.Slope = 0.01
	strong.NoiseSigma = 0.1
	results = append(results, engine.Analyze(context.Background(),
		testkit.NewPhotonGenerator(strong).Dataset("strong", photon.Metadata{Redshift: 0.5})))

	res := New(cfg.Combiner, nil).Combine(stats.MethodPearson, results)

	require.Len(t, res.PerSourceResults, 6)
	assert.Greater(t, res.PooledSignificance, 5.0)
	assert.Equal(t, core.DatasetID("strong"), res.DominantSource)
	assert.Greater(t, res.DominanceRatio, cfg.Combiner.DominanceThreshold)
	assert.InDelta(t, 1.0/6, res.SampleDominanceRatio, 1e-12)
	assert.Contains(t, res.Flags, stats.FlagNonRepresentative)
	assert.Contains(t, res.Flags, stats.FlagHeterogeneousSources)
	assert.False(t, res.Representative)
}

func TestCombine_PoolingMatchesPerMethodSigma(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Significance.Permutations = 0
	cfg.Significance.Bootstraps = 0
	engine, err := analysis.NewEngine(cfg, rng.NewSeededRNG(cfg.Seed), nil)
	require.NoError(t, err)

	lagged := func(seed int64) stats.DatasetResult {
		gen := testkit.DefaultPhotonConfig()
		gen.Seed = seed
		gen.Slope = 0.1
		id := core.DatasetID(fmt.Sprintf("lagged-%d", seed))
		return engine.Analyze(context.Background(), testkit.NewPhotonGenerator(gen).Dataset(id, photon.Metadata{Redshift: 1}))
	}
	a, b := lagged(11), lagged(12)
	require.Equal(t, stats.ResultOK, a.Status, a.Error)
	require.Equal(t, stats.ResultOK, b.Status, b.Error)

	c := New(cfg.Combiner, nil)
	for _, method := range stats.AllMethods {
		t.Run(string(method), func(t *testing.T) {
			own := a.CorrelationDetails[method].SignificanceSigma
			require.Greater(t, own, 3.0)

			single := c.Combine(method, []stats.DatasetResult{a})
			assert.InEpsilon(t, own, single.PooledSignificance, 0.06)
			assert.InDelta(t, a.CorrelationDetails[method].Coefficient, single.PooledCorrelation, 1e-9)

			pooled := c.Combine(method, []stats.DatasetResult{a, b})
			assert.Greater(t, pooled.PooledSignificance, math.Max(own, b.CorrelationDetails[method].SignificanceSigma))
		})
	}

	kendall := c.Combine(stats.MethodKendall, []stats.DatasetResult{a})
	assert.InDelta(t, a.CorrelationDetails[stats.MethodKendall].SignificanceSigma, kendall.PooledSignificance, 1e-9)
}

package robust

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/domain/photon"
	"photonlag/domain/stats"
	"photonlag/internal/config"
	"photonlag/internal/testkit"
)

func fitter(threshold float64) *Fitter {
	cfg := config.DefaultConfig().RANSAC
	cfg.ResidualThreshold = threshold
	return NewFitter(cfg, nil)
}

func TestFit_RecoversInjectedSlope(t *testing.T) {
	gen := testkit.DefaultPhotonConfig()
	gen.Slope = 0.01
	gen.NoiseSigma = 0.1
	gen.Seed = 1
	events, _ := testkit.NewPhotonGenerator(gen).Generate()
	time, energy := photon.Columns(events)

	res := fitter(0.3).Fit(rand.New(rand.NewSource(1)), energy, time)
	require.Equal(t, stats.StatusOK, res.Status)
	assert.InEpsilon(t, 0.01, res.Slope, 0.1)
	assert.InDelta(t, 100, res.Intercept, 0.05)
	assert.Greater(t, res.InlierFraction, 0.9)
}

func TestFit_TenPercentOutliers(t *testing.T) {
	gen := testkit.DefaultPhotonConfig()
	gen.Intercept = 0
	gen.Slope = 0.01
	gen.NoiseSigma = 0.1
	gen.OutlierFraction = 0.1
	gen.OutlierMin, gen.OutlierMax = -1000, 1000
	gen.Seed = 5
	events, outliers := testkit.NewPhotonGenerator(gen).Generate()
	time, energy := photon.Columns(events)

	res := fitter(1.0).Fit(rand.New(rand.NewSource(5)), energy, time)
	require.Equal(t, stats.StatusOK, res.Status)
	assert.GreaterOrEqual(t, res.InlierFraction, 0.85)
	assert.LessOrEqual(t, res.InlierFraction, 0.95)
	assert.InEpsilon(t, 0.01, res.Slope, 0.1)

	flagged := 0
	for i, o := range outliers {
		if o && !res.InlierMask[i] {
			flagged++
		}
	}
	total := 0
	for _, o := range outliers {
		if o {
			total++
		}
	}
	assert.GreaterOrEqual(t, float64(flagged), 0.98*float64(total))

	// The outliers wash the full-sample correlation out; the inliers keep it.
	assert.Greater(t, res.InlierSigma, res.FullSigma)
	assert.Less(t, res.OutlierInfluence, 0.0)
}

func TestFit_OutlierDrivenSignal(t *testing.T) {
	// Null inliers plus a handful of late high-energy photons.
	r := rand.New(rand.NewSource(9))
	var energy, time []float64
	for i := 0; i < 300; i++ {
		energy = append(energy, 0.1+r.Float64()*10)
		time = append(time, 50+r.NormFloat64())
	}
	for i := 0; i < 15; i++ {
		energy = append(energy, 80+r.Float64()*20)
		time = append(time, 400+r.Float64()*100)
	}

	res := fitter(3).Fit(rand.New(rand.NewSource(9)), energy, time)
	require.Equal(t, stats.StatusOK, res.Status)
	assert.Greater(t, res.FullSigma, 5.0)
	assert.Less(t, res.InlierSigma, 3.0)
	assert.Greater(t, res.OutlierInfluence, 2.0)
	assert.InDelta(t, 0, res.Slope, 0.2)
}

func TestFit_Deterministic(t *testing.T) {
	gen := testkit.DefaultPhotonConfig()
	gen.Count = 200
	events, _ := testkit.NewPhotonGenerator(gen).Generate()
	time, energy := photon.Columns(events)

	a := fitter(0).Fit(rand.New(rand.NewSource(3)), energy, time)
	b := fitter(0).Fit(rand.New(rand.NewSource(3)), energy, time)
	assert.Equal(t, a, b)
	assert.Greater(t, a.ResidualThreshold, 0.0)
}

func TestFit_Degenerate(t *testing.T) {
	res := fitter(1).Fit(rand.New(rand.NewSource(1)), []float64{5, 5, 5}, []float64{1, 2, 3})
	assert.Equal(t, stats.StatusDegenerate, res.Status)
	assert.Equal(t, 0.0, res.Slope)

	res = fitter(1).Fit(rand.New(rand.NewSource(1)), []float64{1}, []float64{1})
	assert.Equal(t, stats.StatusInsufficientData, res.Status)
}

func TestFit_NoiselessLineIsExact(t *testing.T) {
	energy := []float64{1, 2, 3, 4, 5, 6}
	time := make([]float64, len(energy))
	for i, e := range energy {
		time[i] = 2 + 0.5*e
	}
	res := fitter(0.01).Fit(rand.New(rand.NewSource(1)), energy, time)
	assert.InDelta(t, 0.5, res.Slope, 1e-12)
	assert.InDelta(t, 2, res.Intercept, 1e-12)
	assert.Equal(t, 1.0, res.InlierFraction)
	assert.Equal(t, 1, res.Trials)
	assert.False(t, math.IsNaN(res.FullSigma))
}

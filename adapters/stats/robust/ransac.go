package robust

import (
	"math"
	"math/rand"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"photonlag/adapters/stats/correlation"
	"photonlag/adapters/stats/significance"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
)

// minimalSampleAttempts bounds redraws when a minimal sample has two
// equal energies.
const minimalSampleAttempts = 100

// Fitter runs RANSAC for the linear lag model t = a + b*E.
type Fitter struct {
	cfg    config.RANSACConfig
	logger *internal.Logger
}

// NewFitter creates a RANSAC fitter
func NewFitter(cfg config.RANSACConfig, logger *internal.Logger) *Fitter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fitter{cfg: cfg, logger: logger.WithComponent("ransac")}
}

type model struct {
	intercept, slope float64
}

func (m model) residual(e, t float64) float64 {
	return math.Abs(t - m.intercept - m.slope*e)
}

// Fit estimates the slope (s/GeV) robustly. Fewer than two distinct
// energies give a degenerate result with a zero slope, never an error.
func (f *Fitter) Fit(rng *rand.Rand, energy, time []float64) stats.RobustFitResult {
	n := len(energy)
	res := stats.RobustFitResult{InlierMask: make([]bool, n)}
	if n < 2 || n != len(time) {
		res.Status = stats.StatusInsufficientData
		return res
	}
	if !distinct(energy) {
		res.Status = stats.StatusDegenerate
		return res
	}

	thr := f.threshold(time)
	res.ResidualThreshold = thr

	var best model
	bestCount, bestResid := -1, math.Inf(1)
	trials := 0
	for trials < f.cfg.MaxTrials {
		trials++
		i, j, ok := minimalSample(rng, energy)
		if !ok {
			continue
		}
		slope := (time[j] - time[i]) / (energy[j] - energy[i])
		m := model{intercept: time[i] - slope*energy[i], slope: slope}

		count, resid := 0, 0.0
		for k := 0; k < n; k++ {
			if r := m.residual(energy[k], time[k]); r <= thr {
				count++
				resid += r
			}
		}
		if count > bestCount || (count == bestCount && resid < bestResid) {
			best, bestCount, bestResid = m, count, resid
		}
		if float64(bestCount)/float64(n) >= f.cfg.StopInlierFraction {
			break
		}
	}
	res.Trials = trials

	final := refit(best, energy, time, thr)
	count := 0
	for k := 0; k < n; k++ {
		res.InlierMask[k] = final.residual(energy[k], time[k]) <= thr
		if res.InlierMask[k] {
			count++
		}
	}

	res.Slope = final.slope
	res.Intercept = final.intercept
	res.Inliers = count
	res.InlierFraction = float64(count) / float64(n)
	res.Status = stats.StatusOK

	res.FullSigma = pearsonSigma(energy, time)
	inE, inT := masked(energy, res.InlierMask), masked(time, res.InlierMask)
	res.InlierSigma = pearsonSigma(inE, inT)
	res.OutlierInfluence = res.FullSigma - res.InlierSigma

	f.logger.Debug("slope=%.6g s/GeV intercept=%.4g inliers=%d/%d thr=%.4g trials=%d", res.Slope, res.Intercept, count, n, thr, trials)
	return res
}

// threshold is the configured residual threshold, or the median absolute
// deviation of the arrival times when none is configured.
func (f *Fitter) threshold(time []float64) float64 {
	if f.cfg.ResidualThreshold > 0 {
		return f.cfg.ResidualThreshold
	}
	mad, err := mstats.MedianAbsoluteDeviation(time)
	if err != nil || mad <= 0 || math.IsNaN(mad) {
		return 1e-9
	}
	return mad
}

// refit runs ordinary least squares on the consensus set of m.
func refit(m model, energy, time []float64, thr float64) model {
	var xs, ys []float64
	for k := range energy {
		if m.residual(energy[k], time[k]) <= thr {
			xs = append(xs, energy[k])
			ys = append(ys, time[k])
		}
	}
	if len(xs) < 2 || !distinct(xs) {
		return m
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return m
	}
	return model{intercept: alpha, slope: beta}
}

func minimalSample(rng *rand.Rand, energy []float64) (int, int, bool) {
	n := len(energy)
	for a := 0; a < minimalSampleAttempts; a++ {
		i := rng.Intn(n)
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		if energy[i] != energy[j] {
			return i, j, true
		}
	}
	return 0, 0, false
}

func pearsonSigma(x, y []float64) float64 {
	r, ok := correlation.Coefficient(stats.MethodPearson, x, y)
	if !ok {
		return 0
	}
	return significance.ClosedForm(stats.MethodPearson, r, len(x)).SignificanceSigma
}

func masked(v []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(v))
	for i, keep := range mask {
		if keep {
			out = append(out, v[i])
		}
	}
	return out
}

func distinct(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return true
		}
	}
	return false
}

package validation

import (
	"fmt"
	"math"

	"photonlag/adapters/stats/significance"
	"photonlag/internal/config"
	"photonlag/internal/errors"
)

// ROCPoint is the operating point of one decision threshold.
type ROCPoint struct {
	Threshold         float64 `json:"threshold_sigma"`
	Sensitivity       float64 `json:"sensitivity"`
	Specificity       float64 `json:"specificity"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	NominalFPR        float64 `json:"nominal_fpr"` // two-sided Gaussian tail at the threshold
	TruePositives     int     `json:"true_positives"`
	FalsePositives    int     `json:"false_positives"`
}

// BuildCurve scans the threshold grid. A trial counts as positive when its
// sigma is at least the threshold, the same rule the pipeline applies.
func BuildCurve(grid config.ThresholdGrid, nullSigmas, signalSigmas []float64) []ROCPoint {
	steps := int(math.Floor((grid.Max-grid.Min)/grid.Step+1e-9)) + 1
	curve := make([]ROCPoint, 0, steps)
	for i := 0; i < steps; i++ {
		thr := grid.Min + float64(i)*grid.Step
		fp := countAtLeast(nullSigmas, thr)
		tp := countAtLeast(signalSigmas, thr)
		p := ROCPoint{
			Threshold:      thr,
			TruePositives:  tp,
			FalsePositives: fp,
			NominalFPR:     math.Exp(significance.LogNormalTwoSided(thr)),
		}
		if len(nullSigmas) > 0 {
			p.FalsePositiveRate = float64(fp) / float64(len(nullSigmas))
		}
		p.Specificity = 1 - p.FalsePositiveRate
		if len(signalSigmas) > 0 {
			p.Sensitivity = float64(tp) / float64(len(signalSigmas))
		}
		curve = append(curve, p)
	}
	return curve
}

func countAtLeast(xs []float64, thr float64) int {
	n := 0
	for _, x := range xs {
		if x >= thr {
			n++
		}
	}
	return n
}

// Calibration is the outcome of a harness run: the empirical null and
// alternative sigma distributions and the ROC curve built from them.
type Calibration struct {
	Source         string     `json:"source"` // "synthetic" or "shuffled:<dataset>"
	NullTrials     int        `json:"null_trials"`
	SignalTrials   int        `json:"signal_trials"`
	FailedTrials   int        `json:"failed_trials"`
	InjectedSlope  float64    `json:"injected_slope"`
	NullSigmas     []float64  `json:"null_sigmas"`
	SignalSigmas   []float64  `json:"signal_sigmas"`
	NullQuantiles  Quantiles  `json:"null_quantiles"`
	Curve          []ROCPoint `json:"roc"`
	TargetFPR      float64    `json:"target_fpr"`
	Selected       *ROCPoint  `json:"selected,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	configBaseline string
}

// Quantiles of the null sigma distribution
type Quantiles struct {
	Median float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
}

// SelectThreshold picks the smallest grid threshold whose empirical false
// positive rate does not exceed target.
func (c *Calibration) SelectThreshold(target float64) (ROCPoint, bool) {
	for _, p := range c.Curve {
		if p.FalsePositiveRate <= target {
			return p, true
		}
	}
	return ROCPoint{}, false
}

// Lock returns cfg with the selected threshold and its calibration
// fingerprint. It refuses configurations whose analysis settings differ
// from the ones the calibration was run under.
func (c *Calibration) Lock(cfg config.Config) (config.Config, error) {
	if c.Selected == nil {
		return cfg, errors.ConfigInvalid(fmt.Sprintf("no threshold in the grid reaches a false positive rate of %g", c.TargetFPR))
	}
	if baseline(cfg) != c.configBaseline {
		return cfg, errors.ConfigInvalid("calibration was made under different analysis settings")
	}
	locked := cfg.WithDecision(c.Selected.Threshold, "")
	return locked.WithDecision(c.Selected.Threshold, locked.Fingerprint().String()), nil
}

// baseline fingerprints the analysis settings independent of any threshold.
func baseline(cfg config.Config) string {
	return cfg.WithDecision(0, "").Fingerprint().String()
}

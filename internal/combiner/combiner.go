package combiner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"photonlag/adapters/stats/significance"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
)

// Pooling needs n > 3 for a positive Fisher-z weight.
const minSourceEvents = 4

// zClamp keeps atanh finite for clamped coefficients.
const zClamp = 1 - 1e-12

// spearmanVarianceFactor scales the Fisher-z null variance for rank
// correlation (Fieller, Hartley and Pearson).
const spearmanVarianceFactor = 1.06

// Combiner pools per-dataset correlations into one piece of evidence.
// It is read-only over its inputs.
type Combiner struct {
	cfg    config.CombinerConfig
	logger *internal.Logger
}

// New creates a combiner
func New(cfg config.CombinerConfig, logger *internal.Logger) *Combiner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Combiner{cfg: cfg, logger: logger.WithComponent("combiner")}
}

type source struct {
	contrib stats.SourceContribution
	z       float64
}

// Combine pools the coefficients of method across results.
//
// Each source enters as an effect with the inverse of its null variance
// as weight: Fisher z = atanh(r) with n-3 for Pearson, the same with
// (n-3)/1.06 for Spearman, and tau itself with 9n(n-1)/(2(2n+5)) for
// Kendall. The pooled effect is the weighted mean and its significance is
// |zbar|*sqrt(sum w), so a single source keeps its own sigma. The
// log-likelihood ratio compares the common-effect model against r = 0 and
// Cochran's Q tests whether one common effect fits every source.
func (c *Combiner) Combine(method stats.Method, results []stats.DatasetResult) stats.CombinedEvidence {
	out := stats.CombinedEvidence{
		Method:           method,
		PooledPValue:     1,
		PerSourceResults: []stats.SourceContribution{},
	}

	var sources []source
	for _, r := range results {
		if reason := exclusion(method, r); reason != "" {
			out.Excluded = append(out.Excluded, stats.ExcludedSource{
				DatasetID: r.DatasetID,
				Name:      r.Name,
				Reason:    "excluded: " + reason,
			})
			c.logger.Info("%s excluded from pooling: %s", r.DatasetID, reason)
			continue
		}
		coef := coefficient(method, r)
		n := r.N
		if d, ok := r.CorrelationDetails[method]; ok {
			n = d.N
		}
		sigma := r.SignificanceSigma
		if d, ok := r.CorrelationDetails[method]; ok {
			sigma = d.SignificanceSigma
		}
		z, w := effect(method, coef, n)
		sources = append(sources, source{
			z: z,
			contrib: stats.SourceContribution{
				DatasetID:   r.DatasetID,
				Name:        r.Name,
				N:           n,
				Correlation: coef,
				Sigma:       sigma,
				Weight:      w,
			},
		})
	}

	if len(sources) < c.cfg.MinSources {
		out.Flags = stats.AddFlags(out.Flags, stats.FlagInsufficientSources)
	}
	if len(sources) == 0 {
		return out
	}

	weights := make([]float64, len(sources))
	zs := make([]float64, len(sources))
	for i, s := range sources {
		weights[i] = s.contrib.Weight
		zs[i] = s.z
		out.TotalN += s.contrib.N
	}
	sumW := floats.Sum(weights)
	zbar := floats.Dot(weights, zs) / sumW

	out.PooledCorrelation = correlation(method, zbar)
	out.PooledSignificance = math.Abs(zbar) * math.Sqrt(sumW)
	logP := significance.LogNormalTwoSided(out.PooledSignificance)
	out.Log10PooledPValue = logP / math.Ln10
	if logP < math.Log(significance.PFloor) {
		out.PooledPValue = significance.PFloor
		out.Flags = stats.AddFlags(out.Flags, stats.FlagPBelowPrecision)
	} else {
		out.PooledPValue = math.Exp(logP)
	}
	out.LogLikelihoodRatio = 0.5 * sumW * zbar * zbar

	var q, evidence float64
	for i := range sources {
		d := zs[i] - zbar
		q += weights[i] * d * d
		evidence += weights[i] * zs[i] * zs[i]
	}
	out.HeterogeneityQ = q
	out.HeterogeneityPValue = 1
	if len(sources) > 1 {
		out.HeterogeneityPValue = distuv.ChiSquared{K: float64(len(sources) - 1)}.Survival(q)
		if out.HeterogeneityPValue < c.cfg.HeterogeneityAlpha {
			out.Flags = stats.AddFlags(out.Flags, stats.FlagHeterogeneousSources)
		}
	}

	for i := range sources {
		s := &sources[i].contrib
		s.WeightShare = s.Weight / sumW
		if evidence > 0 {
			s.EvidenceShare = s.Weight * zs[i] * zs[i] / evidence
		} else {
			s.EvidenceShare = s.WeightShare
		}
		if s.EvidenceShare > out.DominanceRatio {
			out.DominanceRatio = s.EvidenceShare
			out.DominantSource = s.DatasetID
		}
		out.SampleDominanceRatio = math.Max(out.SampleDominanceRatio, s.WeightShare)
		out.PerSourceResults = append(out.PerSourceResults, *s)
	}

	dominated := out.DominanceRatio > c.cfg.DominanceThreshold || out.SampleDominanceRatio > c.cfg.DominanceThreshold
	if dominated {
		out.Flags = stats.AddFlags(out.Flags, stats.FlagNonRepresentative)
		c.logger.Warn("pooled %s result dominated by %s (evidence share %.2f, sample share %.2f)",
			method, out.DominantSource, out.DominanceRatio, out.SampleDominanceRatio)
	}
	out.Representative = !dominated && len(sources) >= c.cfg.MinSources

	c.logger.Info("pooled %d sources: r=%.4f %.2fσ Q=%.2f (p=%.3g)",
		len(sources), out.PooledCorrelation, out.PooledSignificance, q, out.HeterogeneityPValue)
	return out
}

// effect maps a coefficient onto the pooled scale and returns the inverse
// of its variance under independence.
func effect(method stats.Method, coef float64, n int) (z, weight float64) {
	if method == stats.MethodKendall {
		k := significance.KendallZ(1, n)
		return coef, k * k
	}
	z = math.Atanh(math.Max(-zClamp, math.Min(zClamp, coef)))
	if method == stats.MethodSpearman {
		return z, float64(n-3) / spearmanVarianceFactor
	}
	return z, float64(n - 3)
}

func correlation(method stats.Method, z float64) float64 {
	if method == stats.MethodKendall {
		return z
	}
	return math.Tanh(z)
}

func coefficient(method stats.Method, r stats.DatasetResult) float64 {
	if d, ok := r.CorrelationDetails[method]; ok {
		return d.Coefficient
	}
	return r.Correlation[method]
}

// exclusion returns why a result cannot be pooled, or "" if it can.
func exclusion(method stats.Method, r stats.DatasetResult) string {
	if !r.Usable() {
		if r.ErrorCode != "" {
			return fmt.Sprintf("%s (%s): %s", r.Status, r.ErrorCode, r.Error)
		}
		return r.Status
	}
	if d, ok := r.CorrelationDetails[method]; ok && !d.OK() {
		return fmt.Sprintf("%s correlation %s", method, d.Status)
	}
	if _, ok := r.Correlation[method]; !ok {
		return fmt.Sprintf("%s correlation not computed", method)
	}
	n := r.N
	if d, ok := r.CorrelationDetails[method]; ok {
		n = d.N
	}
	if n < minSourceEvents {
		return fmt.Sprintf("%d photons, pooling needs at least %d", n, minSourceEvents)
	}
	if c := coefficient(method, r); math.IsNaN(c) {
		return fmt.Sprintf("%s correlation is not a number", method)
	}
	return ""
}

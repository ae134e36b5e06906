package significance

import (
	"context"
	"fmt"
	"math"

	"photonlag/adapters/stats/resample"
	"photonlag/domain/stats"
	"photonlag/internal"
	"photonlag/internal/config"
)

// Estimator joins the closed-form and resampling significance paths for
// one configuration.
type Estimator struct {
	cfg    config.SignificanceConfig
	pool   *resample.Pool
	logger *internal.Logger
}

// NewEstimator creates an estimator on a resampling pool
func NewEstimator(cfg config.SignificanceConfig, pool *resample.Pool, logger *internal.Logger) *Estimator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Estimator{cfg: cfg, pool: pool, logger: logger.WithComponent("significance")}
}

// Estimate runs the permutation and bootstrap paths for an already
// computed closed-form result and cross-checks them. stream names the
// random streams, normally "<dataset>/<method>".
func (e *Estimator) Estimate(ctx context.Context, stream string, x, y []float64, closed stats.CorrelationResult, statistic Statistic) (stats.SignificanceResult, error) {
	res := stats.SignificanceResult{ClosedForm: closed, Flags: stats.AddFlags(nil, closed.Flags...)}
	if !closed.OK() {
		return res, nil
	}

	perm, err := Permutation(ctx, e.pool, stream+"/permutation", x, y, closed.Coefficient, e.cfg.Permutations, statistic)
	if err != nil {
		return res, err
	}
	res.Permutation = perm

	boot, err := Bootstrap(ctx, e.pool, stream+"/bootstrap", x, y, e.cfg.Bootstraps, e.cfg.ConfidenceLevel, statistic)
	if err != nil {
		return res, err
	}
	res.Bootstrap = boot

	if perm != nil {
		if perm.AtFloor {
			res.Flags = stats.AddFlags(res.Flags, stats.FlagPermutationAtFloor)
		}
		if Disagree(closed.SignificanceSigma, perm, e.cfg.DisagreementSigma) {
			res.Flags = stats.AddFlags(res.Flags, stats.FlagResamplingDisagreement)
			e.logger.Warn("%s: closed-form %.2f sigma vs permutation %.2f sigma", stream, closed.SignificanceSigma, perm.Sigma)
		}
	}
	if boot != nil && boot.Valid < boot.Iterations {
		res.Flags = stats.AddFlags(res.Flags, stats.FlagBootstrapDegenerate)
	}

	e.logger.Debug("%s", describe(stream, res))
	return res, nil
}

// Disagree reports whether the closed-form sigma and the permutation sigma
// differ by more than tol. A permutation at its floor only bounds the
// sigma from below, so it disagrees only with a smaller closed form.
func Disagree(closedSigma float64, perm *stats.PermutationResult, tol float64) bool {
	if perm == nil {
		return false
	}
	if perm.AtFloor {
		return closedSigma+tol < perm.Sigma
	}
	return math.Abs(closedSigma-perm.Sigma) > tol
}

func describe(stream string, res stats.SignificanceResult) string {
	s := fmt.Sprintf("%s: r=%.4f closed=%.2fσ", stream, res.ClosedForm.Coefficient, res.ClosedForm.SignificanceSigma)
	if res.Permutation != nil {
		s += fmt.Sprintf(" perm p=%.4g (%d/%d)", res.Permutation.PValue, res.Permutation.Exceedances, res.Permutation.Iterations)
	}
	if res.Bootstrap != nil {
		s += fmt.Sprintf(" boot CI [%.4f, %.4f]", res.Bootstrap.CI.Lower, res.Bootstrap.CI.Upper)
	}
	return s
}

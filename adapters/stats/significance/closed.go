package significance

import (
	"math"

	"photonlag/domain/stats"
)

// ClosedForm attaches the analytic two-sided p-value and sigma to a
// coefficient. Pearson and Spearman use Student-t with n-2 degrees of
// freedom, Kendall the normal approximation of tau.
//
// All arithmetic is in log space. A p-value below PFloor is reported as
// PFloor with FlagPBelowPrecision while Log10PValue and the sigma keep the
// exact value. |r| within 1e-12 of 1 is clamped and flagged.
func ClosedForm(method stats.Method, r float64, n int) stats.CorrelationResult {
	if n < 3 {
		return stats.InsufficientResult(method, n)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return stats.DegenerateResult(method, n)
	}

	res := stats.CorrelationResult{Method: method, N: n, Status: stats.StatusOK}
	if math.Abs(r) >= 1-degeneracyMargin {
		r = math.Copysign(1-degeneracyMargin, r)
		res.Flags = stats.AddFlags(res.Flags, stats.FlagNumericalDegeneracy)
	}
	res.Coefficient = r

	var logP, sigma float64
	switch method {
	case stats.MethodKendall:
		z := KendallZ(r, n)
		logP = LogNormalTwoSided(z)
		sigma = math.Abs(z)
	default:
		df := float64(n - 2)
		t := r * math.Sqrt(df/((1-r)*(1+r)))
		logP = LogStudentTTwoSided(t, df)
		sigma = SigmaFromLogP(logP)
	}

	return finish(res, logP, sigma)
}

// KendallZ is the normal score of tau under independence.
func KendallZ(tau float64, n int) float64 {
	fn := float64(n)
	return 3 * tau * math.Sqrt(fn*(fn-1)) / math.Sqrt(2*(2*fn+5))
}

func finish(res stats.CorrelationResult, logP, sigma float64) stats.CorrelationResult {
	if logP > 0 || math.IsNaN(logP) {
		logP = 0
	}
	res.Log10PValue = logP / math.Ln10
	if logP < lnPFloor {
		res.PValue = PFloor
		res.Flags = stats.AddFlags(res.Flags, stats.FlagPBelowPrecision)
	} else {
		res.PValue = math.Exp(logP)
	}
	if math.IsInf(res.Log10PValue, -1) {
		res.Log10PValue = -math.MaxFloat64
	}
	if math.IsNaN(sigma) || sigma < 0 {
		sigma = 0
	}
	res.SignificanceSigma = sigma
	return res
}

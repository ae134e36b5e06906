package significance

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

const (
	// PFloor is the smallest p-value reported as a plain number.
	PFloor = 1e-300
	// degeneracyMargin bounds |r| away from 1 before forming t.
	degeneracyMargin = 1e-12
)

var (
	lnPFloor    = math.Log(PFloor)
	halfLn2Pi   = 0.5 * math.Log(2*math.Pi)
	betaCFIters = 20000
)

// LogRegIncBeta returns ln I_x(a, b), the log of the regularized incomplete
// beta function, without ever forming I_x itself when it underflows.
func LogRegIncBeta(a, b, x float64) float64 {
	switch {
	case x <= 0:
		return math.Inf(-1)
	case x >= 1:
		return 0
	}
	lnFront := a*math.Log(x) + b*math.Log1p(-x) - mathext.Lbeta(a, b)
	if x < (a+1)/(a+b+2) {
		return lnFront - math.Log(a) + math.Log(betaCF(a, b, x))
	}
	// I_x(a,b) = 1 - I_{1-x}(b,a)
	v := math.Exp(lnFront - math.Log(b) + math.Log(betaCF(b, a, 1-x)))
	if v >= 1 {
		return math.Inf(-1)
	}
	return math.Log1p(-v)
}

// betaCF evaluates the incomplete beta continued fraction by modified Lentz.
func betaCF(a, b, x float64) float64 {
	const (
		eps  = 1e-15
		tiny = 1e-300
	)
	qab, qap, qam := a+b, a+1, a-1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d
	for m := 1; m <= betaCFIters; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}

// LogStudentTTwoSided returns ln P(|T| >= |t|) for T ~ Student-t(df).
func LogStudentTTwoSided(t, df float64) float64 {
	if t == 0 {
		return 0
	}
	return LogRegIncBeta(df/2, 0.5, df/(df+t*t))
}

// logNormalTail is the asymptotic ln P(Z > z) for large z.
func logNormalTail(z float64) float64 {
	z2 := z * z
	series := 1 - 1/z2 + 3/(z2*z2) - 15/(z2*z2*z2)
	return -z2/2 - math.Log(z) - halfLn2Pi + math.Log(series)
}

// LogNormalTwoSided returns ln P(|Z| >= |z|) for a standard normal Z.
func LogNormalTwoSided(z float64) float64 {
	z = math.Abs(z)
	p := math.Erfc(z / math.Sqrt2)
	if p >= PFloor {
		return math.Log(p)
	}
	return math.Ln2 + logNormalTail(z)
}

// SigmaFromLogP converts a two-sided log p-value to the equivalent number
// of Gaussian standard deviations. The result is finite for any finite
// input, including p far below the float64 range.
func SigmaFromLogP(logP float64) float64 {
	if math.IsNaN(logP) || logP >= 0 {
		return 0
	}
	if math.IsInf(logP, -1) {
		logP = -math.MaxFloat64 / 4
	}
	logHalf := logP - math.Ln2
	if logHalf >= lnPFloor {
		z := -mathext.NormalQuantile(math.Exp(logHalf))
		if z < 0 {
			return 0
		}
		return z
	}

	// Newton on the asymptotic tail: f(z) = logNormalTail(z) - logHalf.
	z := math.Sqrt(-2 * logHalf)
	for i := 0; i < 50; i++ {
		f := logNormalTail(z) - logHalf
		df := -z - 1/z
		step := f / df
		z -= step
		if math.Abs(step) < 1e-12*z {
			break
		}
	}
	return z
}

// SigmaFromP is SigmaFromLogP for an ordinary p-value.
func SigmaFromP(p float64) float64 {
	if p <= 0 {
		return SigmaFromLogP(math.Inf(-1))
	}
	return SigmaFromLogP(math.Log(p))
}

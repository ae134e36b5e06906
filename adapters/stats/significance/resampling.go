package significance

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"photonlag/adapters/stats/resample"
	"photonlag/domain/stats"
)

// Statistic computes a coefficient from paired samples. ok is false when
// the sample is degenerate (zero variance).
type Statistic func(x, y []float64) (value float64, ok bool)

// Permutation shuffles y against x and counts permuted |stat| at least as
// large as the observed |stat|. p = (count+1)/(N+1), so it is never zero;
// when no permutation reaches the observed value the sigma is a lower bound.
func Permutation(ctx context.Context, pool *resample.Pool, stream string, x, y []float64, observed float64, iterations int, statistic Statistic) (*stats.PermutationResult, error) {
	if iterations <= 0 {
		return nil, nil
	}
	n := len(y)
	values, err := pool.Map(ctx, stream, iterations, n, func(rng *rand.Rand, buf []float64) float64 {
		copy(buf, y)
		rng.Shuffle(n, func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
		v, ok := statistic(x, buf)
		if !ok {
			return 0
		}
		return v
	})
	if err != nil {
		return nil, err
	}

	target := math.Abs(observed) * (1 - 1e-12)
	count := 0
	for _, v := range values {
		if math.Abs(v) >= target {
			count++
		}
	}

	p := float64(count+1) / float64(iterations+1)
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return &stats.PermutationResult{
		Iterations:  iterations,
		Exceedances: count,
		PValue:      p,
		Sigma:       SigmaFromP(p),
		AtFloor:     count == 0,
		NullMean:    mean,
		NullStdDev:  std,
	}, nil
}

// Bootstrap resamples (x, y) pairs with replacement and returns the
// percentile interval at the given level. Degenerate resamples are skipped
// and show up as Valid < Iterations.
func Bootstrap(ctx context.Context, pool *resample.Pool, stream string, x, y []float64, iterations int, level float64, statistic Statistic) (*stats.BootstrapResult, error) {
	if iterations <= 0 {
		return nil, nil
	}
	n := len(x)
	values, err := pool.Map(ctx, stream, iterations, 2*n, func(rng *rand.Rand, buf []float64) float64 {
		bx, by := buf[:n], buf[n:]
		for i := 0; i < n; i++ {
			k := rng.Intn(n)
			bx[i], by[i] = x[k], y[k]
		}
		v, ok := statistic(bx, by)
		if !ok {
			return math.NaN()
		}
		return v
	})
	if err != nil {
		return nil, err
	}

	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	res := &stats.BootstrapResult{
		Iterations: iterations,
		Valid:      len(valid),
		CI:         stats.ConfidenceInterval{Level: level},
	}
	if len(valid) == 0 {
		return res, nil
	}

	sort.Float64s(valid)
	res.Mean = stat.Mean(valid, nil)
	if len(valid) > 1 {
		res.StdErr = stat.StdDev(valid, nil)
	}
	alpha := (1 - level) / 2
	res.CI.Lower = stat.Quantile(alpha, stat.Empirical, valid, nil)
	res.CI.Upper = stat.Quantile(1-alpha, stat.Empirical, valid, nil)
	return res, nil
}

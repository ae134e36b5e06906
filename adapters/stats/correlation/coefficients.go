package correlation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"photonlag/adapters/stats/significance"
	"photonlag/domain/stats"
)

// kendallQuadraticLimit is the sample size up to which tau-b is counted
// pair by pair.
const kendallQuadraticLimit = 64

// Coefficient computes one estimator on paired samples. ok is false for
// mismatched lengths, fewer than two points, or zero variance.
func Coefficient(method stats.Method, x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	if constant(x) || constant(y) {
		return 0, false
	}
	var r float64
	switch method {
	case stats.MethodPearson:
		r = stat.Correlation(x, y, nil)
	case stats.MethodSpearman:
		r = stat.Correlation(Ranks(x), Ranks(y), nil)
	case stats.MethodKendall:
		if len(x) <= kendallQuadraticLimit {
			r = kendallTauBQuadratic(x, y)
		} else {
			r = KendallTauB(x, y)
		}
	default:
		return 0, false
	}
	if math.IsNaN(r) {
		return 0, false
	}
	return clamp(r), true
}

// StatisticFor returns the resampling statistic for a method.
func StatisticFor(method stats.Method) significance.Statistic {
	return func(x, y []float64) (float64, bool) {
		return Coefficient(method, x, y)
	}
}

// Ranks converts values to 1-based ranks, giving ties their average rank.
func Ranks(data []float64) []float64 {
	n := len(data)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return data[idx[a]] < data[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && data[idx[j]] == data[idx[i]] {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

// KendallTauB computes tau-b in O(n log n) by sorting on x and counting
// discordant pairs as merge-sort swaps on y.
func KendallTauB(x, y []float64) float64 {
	n := len(x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if x[idx[a]] != x[idx[b]] {
			return x[idx[a]] < x[idx[b]]
		}
		return y[idx[a]] < y[idx[b]]
	})

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, k := range idx {
		xs[i], ys[i] = x[k], y[k]
	}

	// Pairs tied in x, and tied in both x and y.
	var xTies, jointTies int64
	for i := 0; i < n; {
		j := i + 1
		for j < n && xs[j] == xs[i] {
			j++
		}
		xTies += pairs(j - i)
		for a := i; a < j; {
			b := a + 1
			for b < j && ys[b] == ys[a] {
				b++
			}
			jointTies += pairs(b - a)
			a = b
		}
		i = j
	}

	buf := make([]float64, n)
	swaps := mergeCount(ys, buf)

	var yTies int64
	for i := 0; i < n; {
		j := i + 1
		for j < n && ys[j] == ys[i] {
			j++
		}
		yTies += pairs(j - i)
		i = j
	}

	total := pairs(n)
	num := float64(total - xTies - yTies + jointTies - 2*swaps)
	den := math.Sqrt(float64(total-xTies)) * math.Sqrt(float64(total-yTies))
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// mergeCount sorts v ascending and returns the number of inversions.
func mergeCount(v, buf []float64) int64 {
	n := len(v)
	if n < 2 {
		return 0
	}
	mid := n / 2
	count := mergeCount(v[:mid], buf[:mid]) + mergeCount(v[mid:], buf[mid:])
	i, j, k := 0, mid, 0
	for i < mid && j < n {
		if v[j] < v[i] {
			buf[k] = v[j]
			count += int64(mid - i)
			j++
		} else {
			buf[k] = v[i]
			i++
		}
		k++
	}
	k += copy(buf[k:], v[i:mid])
	copy(buf[k:], v[j:])
	copy(v, buf[:n])
	return count
}

func kendallTauBQuadratic(x, y []float64) float64 {
	n := len(x)
	var concordant, discordant, xTies, yTies int64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := sign(x[i] - x[j])
			dy := sign(y[i] - y[j])
			switch {
			case dx == 0 && dy == 0:
				xTies++
				yTies++
			case dx == 0:
				xTies++
			case dy == 0:
				yTies++
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}
	total := pairs(n)
	den := math.Sqrt(float64(total-xTies)) * math.Sqrt(float64(total-yTies))
	if den == 0 {
		return math.NaN()
	}
	return float64(concordant-discordant) / den
}

func pairs(k int) int64 {
	return int64(k) * int64(k-1) / 2
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

func clamp(r float64) float64 {
	return math.Max(-1, math.Min(1, r))
}

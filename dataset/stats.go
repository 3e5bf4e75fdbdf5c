package dataset

import (
	"math"
	"sort"

	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// values returns the non-missing numeric values of s in row order.
func values(s series.Series) []float64 {
	na := s.IsNaN()
	all := s.Float()
	out := make([]float64, 0, len(all))
	for i, v := range all {
		if na[i] || math.IsNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// popStdDev is the population standard deviation; NaN for no values.
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.PopStdDev(xs, nil)
}

// sampleStdDev is NaN below two values.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.StdDev(xs, nil)
}

// quantile interpolates linearly between the closest ranks (gonum's
// LinInterp cumulant is a different estimator).
func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func median(xs []float64) float64 {
	return quantile(xs, 0.5)
}

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// valueCounts counts the non-missing records of s. order lists distinct
// values by first appearance.
func valueCounts(s series.Series) (counts map[string]int, order []string) {
	na := s.IsNaN()
	counts = make(map[string]int)
	for i, rec := range s.Records() {
		if na[i] {
			continue
		}
		if _, ok := counts[rec]; !ok {
			order = append(order, rec)
		}
		counts[rec]++
	}
	return counts, order
}

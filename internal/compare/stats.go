// Package compare certifies one gap sequence against another with a paired
// design over identical corpus permutations.
package compare

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

var ErrNoSamples = errors.New("no samples")

// Number is any sample type Summarize and Paired accept.
type Number interface {
	constraints.Integer | constraints.Float
}

// Summary describes one sample with a tiered confidence interval.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	StdErr float64 `json:"stderr"`
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// CriticalValue approximates the two-sided 95% t quantile for n samples.
func CriticalValue(n int) float64 {
	switch {
	case n < 10:
		return 2.262
	case n < 20:
		return 2.093
	case n < 30:
		return 2.045
	default:
		return 1.96
	}
}

func toFloat64[T Number](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// Summarize computes mean and sample (n-1) deviation. A single value has zero
// spread.
func Summarize[T Number](values []T) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	xs := toFloat64(values)
	s := Summary{N: len(xs), Min: xs[0], Max: xs[0]}
	for _, x := range xs[1:] {
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	if len(xs) == 1 {
		s.Mean = xs[0]
	} else {
		var variance float64
		s.Mean, variance = stat.MeanVariance(xs, nil)
		s.StdDev = math.Sqrt(variance)
		s.StdErr = s.StdDev / math.Sqrt(float64(len(xs)))
	}
	half := CriticalValue(s.N) * s.StdErr
	s.CILow, s.CIHigh = s.Mean-half, s.Mean+half
	return s
}

// PairedResult is a paired test over per-trial differences reference-candidate.
// A positive MeanDiff means the candidate needs fewer comparisons.
type PairedResult struct {
	N            int     `json:"n"`
	MeanDiff     float64 `json:"mean_diff"`
	StdDev       float64 `json:"stddev"`
	StdErr       float64 `json:"stderr"`
	T            float64 `json:"t"`
	P            float64 `json:"p"`
	ZeroVariance bool    `json:"zero_variance,omitempty"`
}

// Significant reports whether the two-sided p-value is below alpha.
func (r PairedResult) Significant(alpha float64) bool {
	return r.P < alpha
}

// Paired runs the normal-approximation paired t-test. Constant differences
// have no standard error: a zero difference yields T=0 and P=1, any other
// constant difference T=±Inf and P=0.
func Paired[T Number](reference, candidate []T) (PairedResult, error) {
	if len(reference) != len(candidate) {
		return PairedResult{}, fmt.Errorf("paired samples differ in length: %d vs %d", len(reference), len(candidate))
	}
	if len(reference) == 0 {
		return PairedResult{}, ErrNoSamples
	}
	diffs := make([]float64, len(reference))
	for i := range reference {
		diffs[i] = float64(reference[i]) - float64(candidate[i])
	}

	res := PairedResult{N: len(diffs)}
	variance := 0.0
	if len(diffs) == 1 {
		res.MeanDiff = diffs[0]
	} else {
		res.MeanDiff, variance = stat.MeanVariance(diffs, nil)
	}
	if variance <= 0 {
		res.ZeroVariance = true
		switch {
		case res.MeanDiff == 0:
			res.T, res.P = 0, 1
		default:
			res.T, res.P = math.Copysign(math.Inf(1), res.MeanDiff), 0
		}
		return res, nil
	}

	res.StdDev = math.Sqrt(variance)
	res.StdErr = res.StdDev / math.Sqrt(float64(res.N))
	res.T = res.MeanDiff / res.StdErr
	res.P = math.Erfc(math.Abs(res.T) / math.Sqrt2)
	return res, nil
}

// Improvement is the percentage by which candidate lowers reference.
func Improvement(reference, candidate float64) float64 {
	if reference == 0 {
		return 0
	}
	return (reference - candidate) / reference * 100
}

// Package baseline provides the closed-form reference gap sequences used as
// search seeds and comparison points. Every generator returns a fresh slice
// bounded by maxGap.
package baseline

import (
	"fmt"
	"math"
	"sort"

	"gapsearch/internal/gapseq"
)

// MaxGaps caps generated sequence length.
const MaxGaps = 64

const ciuraExtension = 2.25

var (
	ciuraBase         = []int{1, 4, 10, 23, 57, 132, 301, 701}
	ciuraExtendedBase = []int{1, 4, 10, 23, 57, 132, 301, 701, 1750}
	evolvedBase       = []int{
		1, 4, 10, 23, 57, 132, 301, 701,
		1577, 3524, 7705, 17961, 40056, 94681, 199137, 460316,
		1035711, 3236462,
	}
)

// Generator builds a named sequence whose gaps do not exceed maxGap.
type Generator func(maxGap int) gapseq.Named

var registry = map[string]Generator{
	"ciura":          Ciura,
	"ciura-extended": CiuraExtended,
	"tokuda":         Tokuda,
	"lee":            Lee,
	"skean":          Skean,
	"sedgewick86":    Sedgewick86,
	"evolved":        Evolved,
}

// Names lists registered generators in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName resolves a registered generator.
func ByName(name string) (Generator, error) {
	gen, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown baseline sequence: %s", name)
	}
	return gen, nil
}

// All returns the six reference baselines. The evolved sequence is left out
// so a search does not start from its own published answer.
func All(maxGap int) []gapseq.Named {
	return []gapseq.Named{
		Ciura(maxGap),
		CiuraExtended(maxGap),
		Tokuda(maxGap),
		Lee(maxGap),
		Skean(maxGap),
		Sedgewick86(maxGap),
	}
}

func Ciura(maxGap int) gapseq.Named {
	return gapseq.Named{Name: "Ciura", Gaps: extendFrom(ciuraBase, maxGap)}
}

// CiuraExtended adds 1750 (OEIS A102549) before the 2.25x extension.
func CiuraExtended(maxGap int) gapseq.Named {
	return gapseq.Named{Name: "Ciura-Extended", Gaps: extendFrom(ciuraExtendedBase, maxGap)}
}

// Evolved is the best sequence published by earlier search runs.
func Evolved(maxGap int) gapseq.Named {
	return gapseq.Named{Name: "Evolved", Gaps: extendFrom(evolvedBase, maxGap)}
}

func extendFrom(base []int, maxGap int) gapseq.Sequence {
	out := make(gapseq.Sequence, 0, len(base))
	for _, g := range base {
		if g > maxGap {
			break
		}
		out = append(out, g)
	}
	for len(out) > 0 && len(out) < MaxGaps {
		last := out[len(out)-1]
		next := int(float64(last) * ciuraExtension)
		if next > maxGap || next <= last {
			break
		}
		out = append(out, next)
	}
	return out
}

// Tokuda: h_k = ceil((9^k - 4^k) / (5 * 4^(k-1))).
func Tokuda(maxGap int) gapseq.Named {
	out := make(gapseq.Sequence, 0, 16)
	for k := 1; len(out) < MaxGaps; k++ {
		num := math.Pow(9, float64(k)) - math.Pow(4, float64(k))
		den := 5 * math.Pow(4, float64(k-1))
		gap, ok := nextIncreasing(out, int(math.Ceil(num/den)), maxGap)
		if !ok {
			break
		}
		out = append(out, gap)
	}
	return gapseq.Named{Name: "Tokuda", Gaps: out}
}

const leeGamma = 2.243609061420001

// Lee (2021): h_k = floor((gamma^k - 1) / (gamma - 1)).
func Lee(maxGap int) gapseq.Named {
	// Both sides of the quotient must be rounded to float64 the same way,
	// or h_1 evaluates to 0.999... and floors to 0.
	gamma := float64(leeGamma)
	out := make(gapseq.Sequence, 0, 16)
	for k := 1; len(out) < MaxGaps; k++ {
		v := (math.Pow(gamma, float64(k)) - 1) / (gamma - 1)
		gap, ok := nextIncreasing(out, int(math.Floor(v)), maxGap)
		if !ok {
			break
		}
		out = append(out, gap)
	}
	return gapseq.Named{Name: "Lee-2021", Gaps: out}
}

const (
	skeanA = 4.0816
	skeanB = 8.5714
	skeanC = 2.2449
)

// Skean (2023): h_k = floor(A * B^(k/C)) for k >= 0, with 1 prepended
// because the formula starts at 4.
func Skean(maxGap int) gapseq.Named {
	out := gapseq.Sequence{1}
	for k := 0; len(out) < MaxGaps; k++ {
		gap := int(math.Floor(skeanA * math.Pow(skeanB, float64(k)/skeanC)))
		if gap > maxGap {
			break
		}
		if gap <= out[len(out)-1] {
			continue
		}
		out = append(out, gap)
	}
	return gapseq.Named{Name: "Skean-2023", Gaps: out}
}

// Sedgewick86: h_0 = 1, h_k = 4^k + 3*2^(k-1) + 1.
func Sedgewick86(maxGap int) gapseq.Named {
	out := gapseq.Sequence{1}
	for k := 1; len(out) < MaxGaps && k < 31; k++ {
		gap := (1 << (2 * k)) + 3*(1<<(k-1)) + 1
		if gap > maxGap {
			break
		}
		out = append(out, gap)
	}
	return gapseq.Named{Name: "Sedgewick-1986", Gaps: out}
}

// Ratio builds h_1 = 1, h_{k+1} = ceil(h_k * ratio).
func Ratio(ratio float64, maxGap int) gapseq.Named {
	return SplitRatio(ratio, ratio, math.MaxInt, maxGap)
}

// SplitRatio uses r1 below threshold and r2 from there on.
func SplitRatio(r1, r2 float64, threshold, maxGap int) gapseq.Named {
	name := fmt.Sprintf("Ratio-%.6f", r1)
	if r1 != r2 {
		name = fmt.Sprintf("Split-%.3f-%.3f@%d", r1, r2, threshold)
	}
	out := make(gapseq.Sequence, 0, 16)
	for gap := 1; len(out) < MaxGaps && gap <= maxGap; {
		out = append(out, gap)
		ratio := r1
		if gap >= threshold {
			ratio = r2
		}
		next := int(math.Ceil(float64(gap) * ratio))
		if next <= gap {
			next = gap + 1
		}
		gap = next
	}
	return gapseq.Named{Name: name, Gaps: out}
}

func nextIncreasing(seq gapseq.Sequence, gap, maxGap int) (int, bool) {
	if gap > maxGap {
		return 0, false
	}
	if len(seq) > 0 && gap <= seq[len(seq)-1] {
		gap = seq[len(seq)-1] + 1
		if gap > maxGap {
			return 0, false
		}
	}
	return gap, true
}

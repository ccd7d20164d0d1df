// Package shellsort implements Shellsort instrumented to count data
// comparisons.
//
// One comparison is counted each time "arr[j-gap] > temp" is evaluated,
// including the final evaluation that ends the inner loop. Loop bounds,
// shifts and index arithmetic are never counted.
package shellsort

import "gapsearch/internal/gapseq"

// Stats carries the counters produced by SortStats.
type Stats struct {
	Comparisons uint64 `json:"comparisons"`
	Moves       uint64 `json:"moves"`
}

// Sort sorts arr in place and returns the number of data comparisons.
// Gaps are applied in descending order; gaps >= len(arr) are skipped.
func Sort(arr []int32, seq gapseq.Sequence) uint64 {
	n := len(arr)
	var comparisons uint64
	for k := len(seq) - 1; k >= 0; k-- {
		gap := seq[k]
		if gap <= 0 || gap >= n {
			continue
		}
		for i := gap; i < n; i++ {
			temp := arr[i]
			j := i
			for j >= gap {
				comparisons++
				if arr[j-gap] <= temp {
					break
				}
				arr[j] = arr[j-gap]
				j -= gap
			}
			arr[j] = temp
		}
	}
	return comparisons
}

// SortStats behaves like Sort and additionally counts moves: one per shift
// and one for each final placement.
func SortStats(arr []int32, seq gapseq.Sequence) Stats {
	n := len(arr)
	var stats Stats
	for k := len(seq) - 1; k >= 0; k-- {
		gap := seq[k]
		if gap <= 0 || gap >= n {
			continue
		}
		for i := gap; i < n; i++ {
			temp := arr[i]
			j := i
			for j >= gap {
				stats.Comparisons++
				if arr[j-gap] <= temp {
					break
				}
				arr[j] = arr[j-gap]
				stats.Moves++
				j -= gap
			}
			arr[j] = temp
			stats.Moves++
		}
	}
	return stats
}

// Count sorts a copy of src held in scratch and returns the comparisons.
// scratch is grown when it is shorter than src; the (possibly new) buffer is
// returned so workers can reuse it across trials.
func Count(src []int32, seq gapseq.Sequence, scratch []int32) (uint64, []int32) {
	scratch = prepare(src, scratch)
	return Sort(scratch, seq), scratch
}

// CountStats is the SortStats counterpart of Count.
func CountStats(src []int32, seq gapseq.Sequence, scratch []int32) (Stats, []int32) {
	scratch = prepare(src, scratch)
	return SortStats(scratch, seq), scratch
}

func prepare(src, scratch []int32) []int32 {
	if cap(scratch) < len(src) {
		scratch = make([]int32, len(src))
	}
	scratch = scratch[:len(src)]
	copy(scratch, src)
	return scratch
}

// IsSorted reports whether arr is in non-decreasing order.
func IsSorted(arr []int32) bool {
	for i := 1; i < len(arr); i++ {
		if arr[i-1] > arr[i] {
			return false
		}
	}
	return true
}

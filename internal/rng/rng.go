// Package rng provides the deterministic generators used to build
// permutation corpora and to drive the evolutionary search.
//
// Seeds are expanded with splitmix64 and numbers are produced by
// xoshiro256**. Every generator is an explicit value owned by its caller;
// nothing in this package keeps global state.
package rng

import "math/bits"

const (
	goldenGamma = 0x9e3779b97f4a7c15
	mixA        = 0xbf58476d1ce4e5b9
	mixB        = 0x94d049bb133111eb

	sizeMultiplier  = 0x517cc1b727220a95
	trialMultiplier = 0x2545f4914f6cdd1d
)

// SplitMix64 advances state and returns the next mixed value.
func SplitMix64(state *uint64) uint64 {
	*state += goldenGamma
	z := *state
	z = (z ^ (z >> 30)) * mixA
	z = (z ^ (z >> 27)) * mixB
	return z ^ (z >> 31)
}

// DeriveSeed returns the seed for trial number trial of size n.
func DeriveSeed(master, n, trial uint64) uint64 {
	state := master
	state ^= n * sizeMultiplier
	state ^= trial * trialMultiplier
	return SplitMix64(&state)
}

// Xoshiro256 is a xoshiro256** generator. It satisfies math/rand/v2.Source.
type Xoshiro256 struct {
	s [4]uint64
}

// New returns a generator whose state is expanded from seed.
func New(seed uint64) *Xoshiro256 {
	x := &Xoshiro256{}
	x.Seed(seed)
	return x
}

// Seed resets the state from a single 64-bit seed.
func (x *Xoshiro256) Seed(seed uint64) {
	for i := range x.s {
		x.s[i] = SplitMix64(&seed)
	}
}

// State returns a copy of the internal state words.
func (x *Xoshiro256) State() [4]uint64 {
	return x.s
}

// Uint64 advances the generator and returns the next xoshiro256** output.
func (x *Xoshiro256) Uint64() uint64 {
	s := &x.s
	result := bits.RotateLeft64(s[1]*5, 7) * 9
	t := s[1] << 17

	s[2] ^= s[0]
	s[3] ^= s[1]
	s[1] ^= s[2]
	s[0] ^= s[3]

	s[2] ^= t
	s[3] = bits.RotateLeft64(s[3], 45)

	return result
}

// Uniform returns a value in [0, n) without modulo bias. Uniform(0) is 0.
func (x *Xoshiro256) Uniform(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	threshold := -n % n
	for {
		r := x.Uint64()
		if r >= threshold {
			return r % n
		}
	}
}

// Shuffle permutes arr in place, swapping from the end.
func (x *Xoshiro256) Shuffle(arr []int32) {
	if len(arr) < 2 {
		return
	}
	for i := uint64(len(arr) - 1); i > 0; i-- {
		j := x.Uniform(i + 1)
		arr[i], arr[j] = arr[j], arr[i]
	}
}

// Permutation returns the shuffled identity of length n for the given trial.
// The same (master, n, trial) triple always produces the same slice.
func Permutation(master uint64, n, trial uint64) []int32 {
	arr := make([]int32, n)
	FillPermutation(arr, master, trial)
	return arr
}

// FillPermutation writes the permutation for (master, len(dst), trial) into dst.
func FillPermutation(dst []int32, master, trial uint64) {
	for i := range dst {
		dst[i] = int32(i)
	}
	gen := New(DeriveSeed(master, uint64(len(dst)), trial))
	gen.Shuffle(dst)
}

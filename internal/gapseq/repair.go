package gapseq

import (
	"fmt"
	"slices"
)

// TruncatePolicy decides which gaps survive when a sequence is too long.
type TruncatePolicy string

const (
	// TruncateLargest drops the excess gaps from the tail.
	TruncateLargest TruncatePolicy = "largest"
	// TruncateInterleave keeps an evenly spaced subset that includes both ends.
	TruncateInterleave TruncatePolicy = "interleave"
)

func ParseTruncatePolicy(name string) (TruncatePolicy, error) {
	switch TruncatePolicy(name) {
	case "", TruncateLargest:
		return TruncateLargest, nil
	case TruncateInterleave:
		return TruncateInterleave, nil
	default:
		return "", fmt.Errorf("unsupported truncate policy: %s", name)
	}
}

// InvariantViolation reports a sequence that could not be repaired.
type InvariantViolation struct {
	Operation string
	Sequence  Sequence
	Err       error
}

func (e *InvariantViolation) Error() string {
	op := e.Operation
	if op == "" {
		op = "repair"
	}
	return fmt.Sprintf("invariant violation after %s on %s: %v", op, e.Sequence, e.Err)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Err
}

// Repair normalises seq into a valid sequence within limits: gaps are
// sorted, collisions are bumped above their predecessor, the first gap is
// forced to 1, gaps over MaxGap are dropped and the length is clamped to
// MaxLen. A result that still fails ValidateWithin is reported as an
// *InvariantViolation and must be discarded.
func Repair(seq Sequence, limits Limits, policy TruncatePolicy) (Sequence, error) {
	out := make(Sequence, len(seq))
	for i, g := range seq {
		if g < 1 {
			g = 1
		}
		out[i] = g
	}
	slices.Sort(out)

	for i := 1; i < len(out); i++ {
		if out[i] <= out[i-1] {
			out[i] = out[i-1] + 1
		}
	}
	if len(out) > 0 {
		out[0] = 1
	}

	if limits.MaxGap > 0 {
		end := len(out)
		for end > 1 && out[end-1] > limits.MaxGap {
			end--
		}
		out = out[:end]
	}

	if limits.MaxLen > 0 && len(out) > limits.MaxLen {
		out = truncate(out, limits.MaxLen, policy)
	}

	if err := ValidateWithin(out, limits); err != nil {
		return nil, &InvariantViolation{Sequence: seq.Clone(), Err: err}
	}
	return out, nil
}

func truncate(seq Sequence, n int, policy TruncatePolicy) Sequence {
	if n <= 0 {
		return Sequence{}
	}
	if policy != TruncateInterleave || n < 2 {
		return seq[:n].Clone()
	}
	out := make(Sequence, 0, n)
	last := len(seq) - 1
	for i := 0; i < n; i++ {
		idx := i * last / (n - 1)
		out = append(out, seq[idx])
	}
	return out
}

package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gapsearch/internal/gapseq"
)

const (
	// DefaultMaxRepairAttempts bounds how often a failed mutation is retried
	// before the parent is cloned unchanged.
	DefaultMaxRepairAttempts = 8

	// fallback ratio for extrapolating past a single-gap tail
	defaultTailRatio = 2.25
)

var (
	ErrNoMutationChoice = errors.New("no mutation choice available")
	errRandRequired     = errors.New("random source is required")
)

// InsertGap adds one gap, either strictly between two random neighbours or
// past the tail using the current trailing ratio.
type InsertGap struct {
	Rand *rand.Rand
	// MaxLen stops insertion into sequences already at the length cap.
	MaxLen int
}

func (o *InsertGap) Name() string {
	return "insert_gap"
}

func (o *InsertGap) Apply(_ context.Context, parent gapseq.Sequence) (gapseq.Sequence, error) {
	if o == nil || o.Rand == nil {
		return nil, errRandRequired
	}
	if len(parent) == 0 {
		return nil, ErrNoMutationChoice
	}
	if o.MaxLen > 0 && len(parent) >= o.MaxLen {
		return nil, ErrNoMutationChoice
	}

	i := o.Rand.IntN(len(parent))
	var value int
	if i < len(parent)-1 && parent[i+1]-parent[i] >= 2 {
		lo, hi := parent[i], parent[i+1]
		value = lo + 1 + o.Rand.IntN(hi-lo-1)
	} else {
		value = extrapolate(parent)
	}

	child := make(gapseq.Sequence, 0, len(parent)+1)
	child = append(child, parent...)
	child = append(child, value)
	slices.Sort(child)
	return child, nil
}

func extrapolate(seq gapseq.Sequence) int {
	last := seq[len(seq)-1]
	ratio := defaultTailRatio
	if len(seq) >= 2 {
		ratio = float64(last) / float64(seq[len(seq)-2])
	}
	return max(int(math.Round(float64(last)*ratio)), last+1)
}

// DeleteGap removes one non-first gap. Index pins the removed position when
// positive; otherwise a position in [1, len) is chosen uniformly.
type DeleteGap struct {
	Rand   *rand.Rand
	Index  int
	MinLen int
}

func (o *DeleteGap) Name() string {
	return "delete_gap"
}

func (o *DeleteGap) Apply(_ context.Context, parent gapseq.Sequence) (gapseq.Sequence, error) {
	if o == nil {
		return nil, errRandRequired
	}
	if len(parent) < 2 || len(parent)-1 < max(o.MinLen, 1) {
		return nil, ErrNoMutationChoice
	}
	idx := o.Index
	if idx <= 0 {
		if o.Rand == nil {
			return nil, errRandRequired
		}
		idx = 1 + o.Rand.IntN(len(parent)-1)
	}
	if idx >= len(parent) {
		return nil, fmt.Errorf("gap index out of range: %d", idx)
	}
	return slices.Delete(parent.Clone(), idx, idx+1), nil
}

// ModifyGap multiplies one non-first gap by 1±[MinFactor, MaxFactor).
type ModifyGap struct {
	Rand      *rand.Rand
	MinFactor float64
	MaxFactor float64
}

func (o *ModifyGap) Name() string {
	return "modify_gap"
}

func (o *ModifyGap) Apply(_ context.Context, parent gapseq.Sequence) (gapseq.Sequence, error) {
	if o == nil || o.Rand == nil {
		return nil, errRandRequired
	}
	if len(parent) < 2 {
		return nil, ErrNoMutationChoice
	}
	lo, hi := o.MinFactor, o.MaxFactor
	if lo <= 0 && hi <= 0 {
		lo, hi = 0.05, 0.20
	}
	if hi < lo {
		return nil, fmt.Errorf("modify factor range is empty: [%g, %g)", lo, hi)
	}

	child := parent.Clone()
	idx := 1 + o.Rand.IntN(len(child)-1)
	sign := 1.0
	if o.Rand.IntN(2) == 0 {
		sign = -1
	}
	factor := 1 + sign*(lo+o.Rand.Float64()*(hi-lo))
	value := int(math.Round(float64(child[idx]) * factor))
	if value == child[idx] {
		value += int(sign)
	}
	child[idx] = value
	return child, nil
}

// ScaleAll multiplies every gap after the first by one factor in
// [1-Spread, 1+Spread].
type ScaleAll struct {
	Rand   *rand.Rand
	Spread float64
}

func (o *ScaleAll) Name() string {
	return "scale_all"
}

func (o *ScaleAll) Apply(_ context.Context, parent gapseq.Sequence) (gapseq.Sequence, error) {
	if o == nil || o.Rand == nil {
		return nil, errRandRequired
	}
	if len(parent) < 2 {
		return nil, ErrNoMutationChoice
	}
	spread := o.Spread
	if spread <= 0 {
		spread = 0.05
	}
	factor := 1 + (o.Rand.Float64()*2-1)*spread
	child := parent.Clone()
	for i := 1; i < len(child); i++ {
		child[i] = int(math.Round(float64(child[i]) * factor))
	}
	return child, nil
}

// Jitter perturbs every gap after the first independently, multiplicatively
// by up to ±Relative and additively by -1, 0 or +1.
type Jitter struct {
	Rand     *rand.Rand
	Relative float64
}

func (o *Jitter) Name() string {
	return "jitter"
}

func (o *Jitter) Apply(_ context.Context, parent gapseq.Sequence) (gapseq.Sequence, error) {
	if o == nil || o.Rand == nil {
		return nil, errRandRequired
	}
	if len(parent) < 2 {
		return nil, ErrNoMutationChoice
	}
	relative := o.Relative
	if relative <= 0 {
		relative = 0.03
	}
	child := parent.Clone()
	for i := 1; i < len(child); i++ {
		scaled := float64(child[i]) * (1 + (o.Rand.Float64()*2-1)*relative)
		child[i] = int(math.Round(scaled)) + o.Rand.IntN(3) - 1
	}
	return child, nil
}

// Repairer normalises operator output into a sequence within Limits.
type Repairer struct {
	Limits gapseq.Limits
	Policy gapseq.TruncatePolicy
}

func (r Repairer) Repair(operation string, seq gapseq.Sequence) (gapseq.Sequence, error) {
	out, err := gapseq.Repair(seq, r.Limits, r.Policy)
	if err != nil {
		var violation *gapseq.InvariantViolation
		if errors.As(err, &violation) {
			violation.Operation = operation
		}
		return nil, err
	}
	return out, nil
}

// ViolationObserver is told about every discarded operator result.
type ViolationObserver interface {
	ObserveInvariantViolation(operator string)
}

// Mutator picks weighted operators and repairs their output, retrying when
// the repaired child still breaks an invariant.
type Mutator struct {
	Policy      []WeightedMutation
	Rand        *rand.Rand
	Repair      Repairer
	MaxAttempts int
	Logger      *slog.Logger
	Observer    ViolationObserver
}

// MutateWithRetry returns a valid child and the name of the operator that
// produced it. When every attempt fails the parent is cloned unchanged.
func (m *Mutator) MutateWithRetry(ctx context.Context, parent gapseq.Sequence) (gapseq.Sequence, string, error) {
	if m.Rand == nil {
		return nil, "", errRandRequired
	}
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxRepairAttempts
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		op, err := m.chooseMutation()
		if err != nil {
			return nil, "", err
		}
		raw, err := op.Apply(ctx, parent)
		if err != nil {
			if errors.Is(err, ErrNoMutationChoice) {
				continue
			}
			return nil, "", fmt.Errorf("%s: %w", op.Name(), err)
		}
		child, err := m.Repair.Repair(op.Name(), raw)
		if err != nil {
			var violation *gapseq.InvariantViolation
			if !errors.As(err, &violation) {
				return nil, "", err
			}
			m.logViolation(violation, attempt)
			continue
		}
		return child, op.Name(), nil
	}
	return parent.Clone(), "clone(repair_exhausted)", nil
}

func (m *Mutator) logViolation(violation *gapseq.InvariantViolation, attempt int) {
	if m.Logger != nil {
		m.Logger.Warn("discarding invalid offspring", "operator", violation.Operation, "attempt", attempt+1, "error", violation.Err)
	}
	if m.Observer != nil {
		m.Observer.ObserveInvariantViolation(violation.Operation)
	}
}

func (m *Mutator) chooseMutation() (Operator, error) {
	total := 0.0
	for _, item := range m.Policy {
		if item.Weight > 0 {
			total += item.Weight
		}
	}
	if total <= 0 {
		return nil, errors.New("mutation policy requires at least one positive weight")
	}
	pick := m.Rand.Float64() * total
	acc := 0.0
	var last Operator
	for _, item := range m.Policy {
		if item.Weight <= 0 {
			continue
		}
		acc += item.Weight
		last = item.Operator
		if pick < acc {
			return item.Operator, nil
		}
	}
	return last, nil
}

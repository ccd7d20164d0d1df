package evo

import (
	"context"

	"gapsearch/internal/gapseq"
)

// Operator derives one child from one parent. The child may violate the
// sequence invariants; callers repair it before it enters a population.
type Operator interface {
	Name() string
	Apply(ctx context.Context, parent gapseq.Sequence) (gapseq.Sequence, error)
}

// WeightedMutation pairs an operator with its relative selection weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}

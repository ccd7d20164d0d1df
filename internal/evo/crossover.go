package evo

import (
	"slices"

	"gapsearch/internal/gapseq"
)

// Crossover combines two parents into one child.
type Crossover interface {
	Name() string
	Cross(a, b gapseq.Sequence) (gapseq.Sequence, error)
}

// MergeCrossover takes the value union of both parents and repairs it. The
// repair policy decides which gaps survive an over-long union.
type MergeCrossover struct {
	Repair Repairer
}

func (MergeCrossover) Name() string {
	return "merge_crossover"
}

func (c MergeCrossover) Cross(a, b gapseq.Sequence) (gapseq.Sequence, error) {
	union := make(gapseq.Sequence, 0, len(a)+len(b))
	union = append(union, a...)
	union = append(union, b...)
	slices.Sort(union)
	union = slices.Compact(union)
	return c.Repair.Repair(c.Name(), union)
}

package evo

import (
	"errors"
	"math/rand/v2"
	"testing"

	"gapsearch/internal/gapseq"
)

func rankedFixture() []ScoredCandidate {
	fitnesses := []float64{10, 20, 30, 40, 50}
	ranked := make([]ScoredCandidate, len(fitnesses))
	for i, f := range fitnesses {
		ranked[i] = ScoredCandidate{
			Candidate: Candidate{ID: candidateID(0, i), Sequence: gapseq.Sequence{1, 4 + i}},
			Fitness:   f,
		}
	}
	return ranked
}

func TestTournamentSelectorPicksLowestFitness(t *testing.T) {
	ranked := rankedFixture()
	selector := TournamentSelector{TournamentSize: 200}
	r := newRand(1)
	for i := 0; i < 20; i++ {
		picked, err := selector.PickParent(r, ranked, 1)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if picked.Fitness != 10 {
			t.Fatalf("expected best candidate, got fitness %f", picked.Fitness)
		}
	}
}

func TestTournamentSelectorSizeOneIsUniform(t *testing.T) {
	ranked := rankedFixture()
	selector := TournamentSelector{TournamentSize: 1}
	r := newRand(2)
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		picked, err := selector.PickParent(r, ranked, 1)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		counts[picked.ID]++
	}
	for _, c := range ranked {
		if counts[c.ID] < 300 {
			t.Fatalf("candidate %s picked only %d times", c.ID, counts[c.ID])
		}
	}
}

func TestTournamentSelectorPoolSize(t *testing.T) {
	ranked := rankedFixture()
	selector := TournamentSelector{PoolSize: 2, TournamentSize: 1}
	r := newRand(3)
	for i := 0; i < 200; i++ {
		picked, err := selector.PickParent(r, ranked, 1)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if picked.Fitness > 20 {
			t.Fatalf("picked outside pool: %f", picked.Fitness)
		}
	}
}

func TestEliteSelector(t *testing.T) {
	ranked := rankedFixture()
	r := newRand(4)
	for i := 0; i < 100; i++ {
		picked, err := EliteSelector{}.PickParent(r, ranked, 2)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if picked.Fitness > 20 {
			t.Fatalf("picked non-elite: %f", picked.Fitness)
		}
	}
	if _, err := (EliteSelector{}).PickParent(r, ranked, 6); err == nil {
		t.Fatal("expected invalid elite count error")
	}
}

func TestSelectorsRequireRandAndCandidates(t *testing.T) {
	if _, err := (TournamentSelector{}).PickParent(nil, rankedFixture(), 1); !errors.Is(err, errRandRequired) {
		t.Fatalf("expected random source error, got %v", err)
	}
	if _, err := (TournamentSelector{}).PickParent(newRand(1), nil, 1); err == nil {
		t.Fatal("expected empty population error")
	}
	if _, err := (EliteSelector{}).PickParent(nil, rankedFixture(), 1); err == nil {
		t.Fatal("expected random source error")
	}
}

func TestMergeCrossover(t *testing.T) {
	a := gapseq.Sequence{1, 4, 10, 23}
	b := gapseq.Sequence{1, 5, 10, 57}

	cases := []struct {
		name   string
		limits gapseq.Limits
		policy gapseq.TruncatePolicy
		want   gapseq.Sequence
	}{
		{name: "union", limits: gapseq.Limits{MaxLen: 10}, want: gapseq.Sequence{1, 4, 5, 10, 23, 57}},
		{name: "drop largest", limits: gapseq.Limits{MaxLen: 4}, policy: gapseq.TruncateLargest, want: gapseq.Sequence{1, 4, 5, 10}},
		{name: "interleave", limits: gapseq.Limits{MaxLen: 4}, policy: gapseq.TruncateInterleave, want: gapseq.Sequence{1, 4, 10, 57}},
		{name: "max gap", limits: gapseq.Limits{MaxLen: 10, MaxGap: 30}, want: gapseq.Sequence{1, 4, 5, 10, 23}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			child, err := MergeCrossover{Repair: Repairer{Limits: tc.limits, Policy: tc.policy}}.Cross(a, b)
			if err != nil {
				t.Fatalf("cross: %v", err)
			}
			if !child.Equal(tc.want) {
				t.Fatalf("unexpected child: got=%v want=%v", child, tc.want)
			}
		})
	}

	_, err := MergeCrossover{Repair: Repairer{Limits: gapseq.Limits{MinLen: 8}}}.Cross(a, b)
	var violation *gapseq.InvariantViolation
	if !errors.As(err, &violation) || violation.Operation != "merge_crossover" {
		t.Fatalf("expected tagged InvariantViolation, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	if err := RegisterOperator("insert_gap", func(_ *rand.Rand, _ gapseq.Limits) Operator { return &InsertGap{} }); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got %v", err)
	}
	if _, err := ResolveOperator("nope", newRand(1), testLimits); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}

	policy, err := BuildMutationPolicy(map[string]float64{"jitter": 2, "delete_gap": 0.5}, newRand(1), testLimits)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	if len(policy) != 2 || policy[0].Operator.Name() != "delete_gap" || policy[1].Weight != 2 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if del, ok := policy[0].Operator.(*DeleteGap); !ok || del.MinLen != testLimits.MinLen {
		t.Fatalf("delete_gap not bound to limits: %+v", policy[0].Operator)
	}

	if _, err := BuildMutationPolicy(map[string]float64{"jitter": 0}, newRand(1), testLimits); err == nil {
		t.Fatal("expected error for all-zero weights")
	}
	if _, err := BuildMutationPolicy(map[string]float64{"jitter": -1}, newRand(1), testLimits); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := BuildMutationPolicy(map[string]float64{"bogus": 1}, newRand(1), testLimits); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}

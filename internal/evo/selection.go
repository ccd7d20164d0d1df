package evo

import (
	"fmt"
	"math/rand/v2"
)

// Selector chooses parents from a population ranked best (lowest fitness)
// first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredCandidate, eliteCount int) (ScoredCandidate, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredCandidate, eliteCount int) (ScoredCandidate, error) {
	if rng == nil {
		return ScoredCandidate{}, errRandRequired
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return ScoredCandidate{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.IntN(eliteCount)], nil
}

// TournamentSelector draws TournamentSize candidates uniformly, with
// replacement, and keeps the one with the lowest fitness. PoolSize limits
// the draw to the top of the ranking; zero means the whole population.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredCandidate, _ int) (ScoredCandidate, error) {
	if rng == nil {
		return ScoredCandidate{}, errRandRequired
	}
	if len(ranked) == 0 {
		return ScoredCandidate{}, fmt.Errorf("cannot select from an empty population")
	}

	poolSize := s.PoolSize
	if poolSize <= 0 || poolSize > len(ranked) {
		poolSize = len(ranked)
	}
	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}

	best := ranked[rng.IntN(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.IntN(poolSize)]
		if candidate.Fitness < best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

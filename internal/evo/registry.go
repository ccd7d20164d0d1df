package evo

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"gapsearch/internal/gapseq"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorFactory builds an operator bound to a run's random source and
// sequence limits.
type OperatorFactory func(rng *rand.Rand, limits gapseq.Limits) Operator

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]OperatorFactory
}{
	m: make(map[string]OperatorFactory),
}

func init() {
	builtins := map[string]OperatorFactory{
		"insert_gap": func(rng *rand.Rand, limits gapseq.Limits) Operator {
			return &InsertGap{Rand: rng, MaxLen: limits.MaxLen}
		},
		"delete_gap": func(rng *rand.Rand, limits gapseq.Limits) Operator {
			return &DeleteGap{Rand: rng, MinLen: limits.MinLen}
		},
		"modify_gap": func(rng *rand.Rand, _ gapseq.Limits) Operator {
			return &ModifyGap{Rand: rng, MinFactor: 0.05, MaxFactor: 0.20}
		},
		"scale_all": func(rng *rand.Rand, _ gapseq.Limits) Operator {
			return &ScaleAll{Rand: rng, Spread: 0.05}
		},
		"jitter": func(rng *rand.Rand, _ gapseq.Limits) Operator {
			return &Jitter{Rand: rng, Relative: 0.03}
		},
	}
	for name, factory := range builtins {
		if err := RegisterOperator(name, factory); err != nil {
			panic(err)
		}
	}
}

// RegisterOperator makes an operator available to mutation policies by name.
func RegisterOperator(name string, factory OperatorFactory) error {
	if name == "" {
		return errors.New("operator name is required")
	}
	if factory == nil {
		return errors.New("operator factory is required")
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	operatorRegistry.m[name] = factory
	return nil
}

// ResolveOperator builds the named operator.
func ResolveOperator(name string, rng *rand.Rand, limits gapseq.Limits) (Operator, error) {
	operatorRegistry.mu.RLock()
	factory, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return factory(rng, limits), nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildMutationPolicy resolves weights by operator name. An empty map
// weights every registered operator equally.
func BuildMutationPolicy(weights map[string]float64, rng *rand.Rand, limits gapseq.Limits) ([]WeightedMutation, error) {
	names := ListOperators()
	if len(weights) > 0 {
		names = make([]string, 0, len(weights))
		for name := range weights {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	policy := make([]WeightedMutation, 0, len(names))
	positive := false
	for _, name := range names {
		weight := 1.0
		if len(weights) > 0 {
			weight = weights[name]
		}
		if weight < 0 {
			return nil, fmt.Errorf("mutation weight for %s must be >= 0", name)
		}
		if weight > 0 {
			positive = true
		}
		op, err := ResolveOperator(name, rng, limits)
		if err != nil {
			return nil, err
		}
		policy = append(policy, WeightedMutation{Operator: op, Weight: weight})
	}
	if !positive {
		return nil, errors.New("mutation policy requires at least one positive weight")
	}
	return policy, nil
}

package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"gapsearch/internal/fitness"
	"gapsearch/internal/gapseq"
)

// Termination names why a run stopped.
type Termination string

const (
	TerminationMaxGenerations Termination = "max_generations"
	TerminationPlateau        Termination = "plateau"
	TerminationCanceled       Termination = "canceled"
)

// Candidate is a sequence waiting to be scored.
type Candidate struct {
	ID         string          `json:"id"`
	Sequence   gapseq.Sequence `json:"sequence"`
	Generation int             `json:"generation"`
}

type ScoredCandidate struct {
	Candidate
	Fitness float64        `json:"fitness"`
	Result  fitness.Result `json:"result"`
}

type GenerationDiagnostics struct {
	Generation       int     `json:"generation"`
	BestFitness      float64 `json:"best_fitness"`
	BestEverFitness  float64 `json:"best_ever_fitness"`
	MeanFitness      float64 `json:"mean_fitness"`
	StdDevFitness    float64 `json:"stddev_fitness"`
	WorstFitness     float64 `json:"worst_fitness"`
	Abandoned        int     `json:"abandoned"`
	DistinctSequence int     `json:"distinct_sequences"`
	MeanLength       float64 `json:"mean_length"`
	Stall            int     `json:"stall"`
	Trials           int     `json:"trials"`
	Improved         bool    `json:"improved"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

type LineageRecord struct {
	CandidateID string   `json:"candidate_id"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
	Generation  int      `json:"generation"`
	Operation   string   `json:"operation"`
	Sequence    string   `json:"sequence"`
}

type RunResult struct {
	Best             ScoredCandidate         `json:"best"`
	BestByGeneration []float64               `json:"best_by_generation"`
	Diagnostics      []GenerationDiagnostics `json:"diagnostics"`
	FinalPopulation  []ScoredCandidate       `json:"final_population"`
	Lineage          []LineageRecord         `json:"lineage"`
	Termination      Termination             `json:"termination"`
	Generations      int                     `json:"generations"`
}

// PopulationEvaluator scores a whole population against the current
// champion. *fitness.Evaluator implements it.
type PopulationEvaluator interface {
	EvaluatePopulation(ctx context.Context, seqs []gapseq.Sequence, ref *fitness.Reference) ([]fitness.Result, error)
}

// Observer receives per-generation progress. *metrics.Collectors implements
// it.
type Observer interface {
	ViolationObserver
	ObserveGeneration(generation int, best float64, stall int, elapsed time.Duration)
}

type MonitorConfig struct {
	Evaluator PopulationEvaluator
	Mutator   *Mutator
	Crossover Crossover
	Selector  Selector

	PopulationSize     int
	EliteCount         int
	Generations        int
	PlateauGenerations int
	CrossoverRate      float64
	// MutationRate only gates children produced by crossover. A child
	// bred without crossover is always mutated so it differs from its
	// parent.
	MutationRate       float64
	Limits             gapseq.Limits

	Rand     *rand.Rand
	Logger   *slog.Logger
	Observer Observer
	Status   *StatusWriter
	// StatusEvery writes the status file every n generations; 0 means every
	// generation. The final state is always written.
	StatusEvery int
	Now         func() time.Time
}

// PopulationMonitor drives the generation loop: evaluate, rank, keep the
// elites and breed the rest until the generation cap or a plateau.
type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
	log *slog.Logger
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Mutator == nil || len(cfg.Mutator.Policy) == 0 {
		return nil, fmt.Errorf("mutation policy is required")
	}
	for i, item := range cfg.Mutator.Policy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
	}
	if cfg.Rand == nil {
		return nil, errRandRequired
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [0, population size)")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.PlateauGenerations < 0 {
		return nil, fmt.Errorf("plateau generations must be >= 0")
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate must be in [0, 1]")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1]")
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{TournamentSize: 3}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = MergeCrossover{Repair: cfg.Mutator.Repair}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Mutator.Rand == nil {
		cfg.Mutator.Rand = cfg.Rand
	}
	if cfg.Mutator.Logger == nil {
		cfg.Mutator.Logger = logger
	}
	if cfg.Mutator.Observer == nil && cfg.Observer != nil {
		cfg.Mutator.Observer = cfg.Observer
	}

	return &PopulationMonitor{cfg: cfg, rng: cfg.Rand, log: logger}, nil
}

// Run evolves from seeds until a termination condition fires. On
// cancellation the result so far is returned together with the context
// error.
func (m *PopulationMonitor) Run(ctx context.Context, seeds []gapseq.Sequence) (RunResult, error) {
	population, lineage, err := m.initialPopulation(ctx, seeds)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		BestByGeneration: make([]float64, 0, m.cfg.Generations),
		Diagnostics:      make([]GenerationDiagnostics, 0, m.cfg.Generations),
		Lineage:          lineage,
	}
	var (
		best  *ScoredCandidate
		ref   *fitness.Reference
		stall int
	)

	for gen := 0; ; gen++ {
		if err := ctx.Err(); err != nil {
			return m.finish(result, best, TerminationCanceled), err
		}
		started := m.cfg.Now()

		ranked, err := m.evaluate(ctx, population, ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return m.finish(result, best, TerminationCanceled), ctxErr
			}
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}

		improved := false
		for i := range ranked {
			if ranked[i].Result.Abandoned {
				continue
			}
			if best == nil || ranked[i].Fitness < best.Fitness {
				champion := ranked[i]
				best = &champion
				improved = true
			}
		}
		if best == nil {
			return RunResult{}, fmt.Errorf("generation %d: no candidate was fully evaluated", gen)
		}
		if improved {
			stall = 0
			ref = fitness.NewReference(best.Result)
		} else {
			stall++
		}

		elapsed := m.cfg.Now().Sub(started)
		diag := summarizeGeneration(ranked, gen, best.Fitness, stall, improved, elapsed)
		result.BestByGeneration = append(result.BestByGeneration, best.Fitness)
		result.Diagnostics = append(result.Diagnostics, diag)
		result.FinalPopulation = ranked
		result.Generations = gen + 1
		if m.cfg.Observer != nil {
			m.cfg.Observer.ObserveGeneration(gen, best.Fitness, stall, elapsed)
		}
		m.log.Info("generation evaluated",
			"generation", gen,
			"best_ever", best.Fitness,
			"generation_best", diag.BestFitness,
			"mean", diag.MeanFitness,
			"abandoned", diag.Abandoned,
			"stall", stall,
			"best_sequence", best.Sequence.String(),
		)

		var termination Termination
		switch {
		case gen+1 >= m.cfg.Generations:
			termination = TerminationMaxGenerations
		case m.cfg.PlateauGenerations > 0 && stall >= m.cfg.PlateauGenerations:
			termination = TerminationPlateau
		}
		if termination != "" {
			return m.finish(result, best, termination), nil
		}
		m.writeStatus(gen, best, stall, "", false)

		var generationLineage []LineageRecord
		population, generationLineage, err = m.nextGeneration(ctx, ranked, gen)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return m.finish(result, best, TerminationCanceled), ctxErr
			}
			return RunResult{}, err
		}
		result.Lineage = append(result.Lineage, generationLineage...)
	}
}

func (m *PopulationMonitor) finish(result RunResult, best *ScoredCandidate, termination Termination) RunResult {
	result.Termination = termination
	if best != nil {
		result.Best = *best
		m.writeStatus(result.Generations-1, best, stallOf(result), termination, true)
	}
	m.log.Info("run terminated", "reason", string(termination), "generations", result.Generations, "best", result.Best.Fitness)
	return result
}

func stallOf(result RunResult) int {
	if len(result.Diagnostics) == 0 {
		return 0
	}
	return result.Diagnostics[len(result.Diagnostics)-1].Stall
}

func (m *PopulationMonitor) writeStatus(gen int, best *ScoredCandidate, stall int, termination Termination, final bool) {
	if m.cfg.Status == nil || best == nil {
		return
	}
	every := max(m.cfg.StatusEvery, 1)
	if !final && gen%every != 0 {
		return
	}
	err := m.cfg.Status.Write(Status{
		Generation:   gen,
		MaxGen:       m.cfg.Generations,
		BestFitness:  best.Fitness,
		BestSequence: best.Sequence,
		BestID:       best.ID,
		Stall:        stall,
		Termination:  termination,
		UpdatedAt:    m.cfg.Now(),
	})
	if err != nil {
		m.log.Warn("write status file", "path", m.cfg.Status.Path(), "error", err)
	}
}

func (m *PopulationMonitor) initialPopulation(ctx context.Context, seeds []gapseq.Sequence) ([]Candidate, []LineageRecord, error) {
	if len(seeds) == 0 {
		return nil, nil, fmt.Errorf("at least one seed sequence is required")
	}
	for i, seed := range seeds {
		if err := gapseq.ValidateWithin(seed, m.cfg.Limits); err != nil {
			return nil, nil, fmt.Errorf("seed sequence %d %s: %w", i, seed, err)
		}
	}

	population := make([]Candidate, 0, m.cfg.PopulationSize)
	lineage := make([]LineageRecord, 0, m.cfg.PopulationSize)
	for i := 0; i < len(seeds) && len(population) < m.cfg.PopulationSize; i++ {
		c := Candidate{ID: candidateID(0, len(population)), Sequence: seeds[i].Clone()}
		population = append(population, c)
		lineage = append(lineage, LineageRecord{CandidateID: c.ID, Operation: "seed", Sequence: c.Sequence.Key()})
	}

	for len(population) < m.cfg.PopulationSize {
		parent := population[len(population)%len(seeds)]
		child := parent.Sequence
		steps := 1 + m.rng.IntN(3)
		ops := make([]string, 0, steps)
		for s := 0; s < steps; s++ {
			next, op, err := m.cfg.Mutator.MutateWithRetry(ctx, child)
			if err != nil {
				return nil, nil, fmt.Errorf("seed variant: %w", err)
			}
			child = next
			ops = append(ops, op)
		}
		c := Candidate{ID: candidateID(0, len(population)), Sequence: child}
		population = append(population, c)
		lineage = append(lineage, LineageRecord{
			CandidateID: c.ID,
			ParentIDs:   []string{parent.ID},
			Operation:   "seed_variant:" + strings.Join(ops, "+"),
			Sequence:    child.Key(),
		})
	}
	return population, lineage, nil
}

func candidateID(generation, index int) string {
	return fmt.Sprintf("g%d-i%d", generation, index)
}

// evaluate scores the population and ranks it best first. Ties keep a
// complete result ahead of an abandoned one, then order by sequence key.
func (m *PopulationMonitor) evaluate(ctx context.Context, population []Candidate, ref *fitness.Reference) ([]ScoredCandidate, error) {
	seqs := make([]gapseq.Sequence, len(population))
	for i, c := range population {
		seqs[i] = c.Sequence
	}
	results, err := m.cfg.Evaluator.EvaluatePopulation(ctx, seqs, ref)
	if err != nil {
		return nil, err
	}
	if len(results) != len(population) {
		return nil, fmt.Errorf("evaluator returned %d results for %d candidates", len(results), len(population))
	}

	ranked := make([]ScoredCandidate, len(population))
	for i, c := range population {
		ranked[i] = ScoredCandidate{Candidate: c, Fitness: results[i].Fitness, Result: results[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Fitness != ranked[j].Fitness {
			return ranked[i].Fitness < ranked[j].Fitness
		}
		if ranked[i].Result.Abandoned != ranked[j].Result.Abandoned {
			return !ranked[i].Result.Abandoned
		}
		return ranked[i].Sequence.Key() < ranked[j].Sequence.Key()
	})
	return ranked, nil
}

func summarizeGeneration(ranked []ScoredCandidate, generation int, bestEver float64, stall int, improved bool, elapsed time.Duration) GenerationDiagnostics {
	diag := GenerationDiagnostics{
		Generation:      generation,
		BestEverFitness: bestEver,
		Stall:           stall,
		Improved:        improved,
		ElapsedSeconds:  elapsed.Seconds(),
	}
	if len(ranked) == 0 {
		return diag
	}

	complete := make([]float64, 0, len(ranked))
	distinct := make(map[string]struct{}, len(ranked))
	totalLen := 0
	for _, c := range ranked {
		distinct[c.Sequence.Key()] = struct{}{}
		totalLen += len(c.Sequence)
		diag.Trials += c.Result.TrialsRun()
		if c.Result.Abandoned {
			diag.Abandoned++
			continue
		}
		complete = append(complete, c.Fitness)
	}
	diag.BestFitness = ranked[0].Fitness
	diag.WorstFitness = ranked[len(ranked)-1].Fitness
	diag.DistinctSequence = len(distinct)
	diag.MeanLength = float64(totalLen) / float64(len(ranked))
	switch len(complete) {
	case 0:
	case 1:
		diag.MeanFitness = complete[0]
	default:
		diag.MeanFitness, diag.StdDevFitness = stat.MeanStdDev(complete, nil)
	}
	return diag
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredCandidate, generation int) ([]Candidate, []LineageRecord, error) {
	next := make([]Candidate, 0, m.cfg.PopulationSize)
	lineage := make([]LineageRecord, 0, m.cfg.PopulationSize)
	nextGeneration := generation + 1

	for i := 0; i < m.cfg.EliteCount && i < len(ranked); i++ {
		elite := ranked[i].Candidate
		elite.Sequence = elite.Sequence.Clone()
		next = append(next, elite)
		lineage = append(lineage, LineageRecord{
			CandidateID: elite.ID,
			ParentIDs:   []string{ranked[i].ID},
			Generation:  nextGeneration,
			Operation:   "elite_clone",
			Sequence:    elite.Sequence.Key(),
		})
	}

	eliteCount := max(m.cfg.EliteCount, 1)
	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		parent, err := m.cfg.Selector.PickParent(m.rng, ranked, eliteCount)
		if err != nil {
			return nil, nil, err
		}

		child := parent.Sequence
		parents := []string{parent.ID}
		ops := make([]string, 0, 2)
		crossed := false
		if m.cfg.CrossoverRate > 0 && len(ranked) > 1 && m.rng.Float64() < m.cfg.CrossoverRate {
			mate, err := m.cfg.Selector.PickParent(m.rng, ranked, eliteCount)
			if err != nil {
				return nil, nil, err
			}
			merged, err := m.cfg.Crossover.Cross(parent.Sequence, mate.Sequence)
			if err != nil {
				var violation *gapseq.InvariantViolation
				if !errors.As(err, &violation) {
					return nil, nil, err
				}
				m.cfg.Mutator.logViolation(violation, 0)
			} else {
				child = merged
				parents = append(parents, mate.ID)
				ops = append(ops, m.cfg.Crossover.Name())
				crossed = true
			}
		}
		if !crossed || m.rng.Float64() < m.cfg.MutationRate {
			mutated, op, err := m.cfg.Mutator.MutateWithRetry(ctx, child)
			if err != nil {
				return nil, nil, err
			}
			child = mutated
			ops = append(ops, op)
		}

		c := Candidate{ID: candidateID(nextGeneration, len(next)), Sequence: child, Generation: nextGeneration}
		next = append(next, c)
		lineage = append(lineage, LineageRecord{
			CandidateID: c.ID,
			ParentIDs:   parents,
			Generation:  nextGeneration,
			Operation:   strings.Join(ops, "+"),
			Sequence:    child.Key(),
		})
	}
	return next, lineage, nil
}

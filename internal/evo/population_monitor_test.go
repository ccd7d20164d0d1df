package evo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gapsearch/internal/corpus"
	"gapsearch/internal/fitness"
	"gapsearch/internal/gapseq"
)

var monitorLimits = gapseq.Limits{MinLen: 3, MaxLen: 10, MaxGap: 199}

var seedSequence = gapseq.Sequence{1, 4, 10, 23, 57, 132}

type stubEvaluator struct {
	calls  int
	score  func(seq gapseq.Sequence) fitness.Result
	onCall func(call int)
}

func (s *stubEvaluator) EvaluatePopulation(ctx context.Context, seqs []gapseq.Sequence, _ *fitness.Reference) ([]fitness.Result, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]fitness.Result, len(seqs))
	for i, seq := range seqs {
		out[i] = s.score(seq)
	}
	return out, nil
}

func constantScore(seq gapseq.Sequence) fitness.Result {
	return fitness.Result{Sequence: seq, Fitness: 100, Complete: true}
}

func newTestMonitor(t *testing.T, evaluator PopulationEvaluator, seed uint64, mutate func(*MonitorConfig)) *PopulationMonitor {
	t.Helper()
	r := newRand(seed)
	policy, err := BuildMutationPolicy(nil, r, monitorLimits)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	cfg := MonitorConfig{
		Evaluator:      evaluator,
		Mutator:        &Mutator{Policy: policy, Repair: Repairer{Limits: monitorLimits}},
		Selector:       TournamentSelector{TournamentSize: 3},
		PopulationSize: 12,
		EliteCount:     2,
		Generations:    6,
		CrossoverRate:  0.5,
		MutationRate:   0.8,
		Limits:         monitorLimits,
		Rand:           r,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return monitor
}

func newCorpusEvaluator(t *testing.T) *fitness.Evaluator {
	t.Helper()
	ds, err := corpus.Generate(context.Background(), 0xC0FFEE1234, 200, 8, 2)
	if err != nil {
		t.Fatalf("generate corpus: %v", err)
	}
	ev, err := fitness.NewEvaluator(fitness.Config{
		Corpus:    corpus.New(ds),
		Targets:   []fitness.Target{{Size: 200, Weight: 1, Trials: 8}},
		EarlyStop: fitness.DefaultEarlyStop(),
		Threads:   4,
	})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return ev
}

func TestPopulationMonitorBestEverNeverRegresses(t *testing.T) {
	monitor := newTestMonitor(t, newCorpusEvaluator(t), 42, nil)
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Termination != TerminationMaxGenerations || result.Generations != 6 {
		t.Fatalf("unexpected termination: %s after %d", result.Termination, result.Generations)
	}
	if len(result.BestByGeneration) != 6 {
		t.Fatalf("expected 6 history entries, got %d", len(result.BestByGeneration))
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] > result.BestByGeneration[i-1] {
			t.Fatalf("best-ever regressed at generation %d: %v", i, result.BestByGeneration)
		}
	}
	if result.Best.Result.Abandoned || !result.Best.Result.Complete {
		t.Fatalf("best candidate was not fully evaluated: %+v", result.Best.Result)
	}
	if result.Best.Fitness != result.BestByGeneration[len(result.BestByGeneration)-1] {
		t.Fatalf("best fitness %f does not match history %v", result.Best.Fitness, result.BestByGeneration)
	}

	seedFitness, err := newCorpusEvaluator(t).Evaluate(context.Background(), seedSequence, nil)
	if err != nil {
		t.Fatalf("evaluate seed: %v", err)
	}
	if result.Best.Fitness > seedFitness.Fitness {
		t.Fatalf("best %f is worse than the seed %f", result.Best.Fitness, seedFitness.Fitness)
	}
}

func TestPopulationMonitorMutatesChildrenWithoutCrossover(t *testing.T) {
	monitor := newTestMonitor(t, &stubEvaluator{score: constantScore}, 11, func(cfg *MonitorConfig) {
		cfg.CrossoverRate = 0
		cfg.MutationRate = 0
		cfg.Generations = 3
	})
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	crossName := MergeCrossover{}.Name()
	bred := 0
	for _, record := range result.Lineage {
		if record.Generation == 0 || record.Operation == "elite_clone" {
			continue
		}
		bred++
		if record.Operation == "" || strings.Contains(record.Operation, crossName) {
			t.Fatalf("child %s bred without a mutation: %q", record.CandidateID, record.Operation)
		}
	}
	if bred == 0 {
		t.Fatal("expected bred children in lineage")
	}
}

func TestPopulationMonitorOnlyAdmitsValidSequences(t *testing.T) {
	monitor := newTestMonitor(t, newCorpusEvaluator(t), 7, nil)
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence, {1, 3, 7, 16, 36, 81}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, record := range result.Lineage {
		seq, err := gapseq.Parse(record.Sequence)
		if err != nil {
			t.Fatalf("parse lineage sequence %q: %v", record.Sequence, err)
		}
		if err := gapseq.ValidateWithin(seq, monitorLimits); err != nil {
			t.Fatalf("candidate %s (%s) invalid: %v", record.CandidateID, record.Operation, err)
		}
	}
	if len(result.FinalPopulation) != 12 {
		t.Fatalf("expected 12 final candidates, got %d", len(result.FinalPopulation))
	}
}

func TestPopulationMonitorDeterministic(t *testing.T) {
	run := func() RunResult {
		monitor := newTestMonitor(t, newCorpusEvaluator(t), 99, nil)
		result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}
	a, b := run(), run()
	if !a.Best.Sequence.Equal(b.Best.Sequence) || a.Best.Fitness != b.Best.Fitness {
		t.Fatalf("runs diverged: %v (%f) vs %v (%f)", a.Best.Sequence, a.Best.Fitness, b.Best.Sequence, b.Best.Fitness)
	}
	if len(a.Lineage) != len(b.Lineage) {
		t.Fatalf("lineage length differs: %d vs %d", len(a.Lineage), len(b.Lineage))
	}
	for i := range a.Lineage {
		if a.Lineage[i].Sequence != b.Lineage[i].Sequence || a.Lineage[i].Operation != b.Lineage[i].Operation {
			t.Fatalf("lineage diverged at %d: %+v vs %+v", i, a.Lineage[i], b.Lineage[i])
		}
	}
}

func TestPopulationMonitorPlateau(t *testing.T) {
	stub := &stubEvaluator{score: constantScore}
	monitor := newTestMonitor(t, stub, 1, func(cfg *MonitorConfig) {
		cfg.Generations = 50
		cfg.PlateauGenerations = 3
	})
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Termination != TerminationPlateau {
		t.Fatalf("expected plateau termination, got %s", result.Termination)
	}
	// Generation 0 sets the best; generations 1..3 stall.
	if result.Generations != 4 || stub.calls != 4 {
		t.Fatalf("expected 4 generations, got %d (calls=%d)", result.Generations, stub.calls)
	}
	last := result.Diagnostics[len(result.Diagnostics)-1]
	if last.Stall != 3 || last.Improved {
		t.Fatalf("unexpected final diagnostics: %+v", last)
	}
}

func TestPopulationMonitorIgnoresAbandonedResults(t *testing.T) {
	stub := &stubEvaluator{score: func(seq gapseq.Sequence) fitness.Result {
		if len(seq) != len(seedSequence) {
			// A misleadingly low estimate that must never become the champion.
			return fitness.Result{Sequence: seq, Fitness: 1, Abandoned: true}
		}
		return fitness.Result{Sequence: seq, Fitness: 500, Complete: true}
	}}
	monitor := newTestMonitor(t, stub, 5, nil)
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Best.Fitness != 500 || result.Best.Result.Abandoned {
		t.Fatalf("abandoned result became champion: %+v", result.Best)
	}
}

func TestPopulationMonitorKeepsElites(t *testing.T) {
	stub := &stubEvaluator{score: func(seq gapseq.Sequence) fitness.Result {
		return fitness.Result{Sequence: seq, Fitness: float64(seq.Max()), Complete: true}
	}}
	monitor := newTestMonitor(t, stub, 8, func(cfg *MonitorConfig) { cfg.Generations = 3 })
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	elites := map[int]int{}
	for _, record := range result.Lineage {
		if record.Operation == "elite_clone" {
			elites[record.Generation]++
		}
	}
	if elites[1] != 2 || elites[2] != 2 {
		t.Fatalf("expected 2 elites per bred generation, got %v", elites)
	}
}

func TestPopulationMonitorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stub := &stubEvaluator{score: constantScore, onCall: func(call int) {
		if call == 2 {
			cancel()
		}
	}}
	monitor := newTestMonitor(t, stub, 2, nil)
	result, err := monitor.Run(ctx, []gapseq.Sequence{seedSequence})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Termination != TerminationCanceled || result.Generations != 1 {
		t.Fatalf("unexpected result: %s after %d", result.Termination, result.Generations)
	}
	if result.Best.Fitness != 100 {
		t.Fatalf("expected best from generation 0, got %f", result.Best.Fitness)
	}
}

func TestPopulationMonitorWritesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status", "search.txt")
	writer, err := NewStatusWriter(path)
	if err != nil {
		t.Fatalf("status writer: %v", err)
	}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	monitor := newTestMonitor(t, &stubEvaluator{score: constantScore}, 3, func(cfg *MonitorConfig) {
		cfg.Status = writer
		cfg.StatusEvery = 2
		cfg.Generations = 3
		cfg.Now = func() time.Time { return fixed }
	})
	result, err := monitor.Run(context.Background(), []gapseq.Sequence{seedSequence})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"state: terminated (max_generations)",
		"generation: 2 / 3",
		"best_fitness: 100",
		"best_sequence: " + result.Best.Sequence.String(),
		"best_id: " + result.Best.ID,
		"updated_at: 2024-05-01T12:00:00Z",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("status missing %q:\n%s", want, text)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestNewPopulationMonitorValidation(t *testing.T) {
	r := newRand(1)
	policy, err := BuildMutationPolicy(nil, r, monitorLimits)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	base := MonitorConfig{
		Evaluator:      &stubEvaluator{score: constantScore},
		Mutator:        &Mutator{Policy: policy},
		PopulationSize: 4,
		EliteCount:     1,
		Generations:    1,
		Rand:           r,
	}
	cases := map[string]func(cfg *MonitorConfig){
		"no evaluator":      func(cfg *MonitorConfig) { cfg.Evaluator = nil },
		"no mutator":        func(cfg *MonitorConfig) { cfg.Mutator = nil },
		"elite too large":   func(cfg *MonitorConfig) { cfg.EliteCount = 4 },
		"no generations":    func(cfg *MonitorConfig) { cfg.Generations = 0 },
		"bad crossover":     func(cfg *MonitorConfig) { cfg.CrossoverRate = 1.5 },
		"bad mutation rate": func(cfg *MonitorConfig) { cfg.MutationRate = -0.1 },
		"no rand":           func(cfg *MonitorConfig) { cfg.Rand = nil },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewPopulationMonitor(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	monitor, err := NewPopulationMonitor(base)
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if _, err := monitor.Run(context.Background(), []gapseq.Sequence{{4, 10}}); err == nil {
		t.Fatal("expected invalid seed to be rejected")
	}
	if _, err := monitor.Run(context.Background(), nil); err == nil {
		t.Fatal("expected missing seeds to be rejected")
	}
}

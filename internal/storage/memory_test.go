package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"gapsearch/internal/model"
)

func newInitializedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.RunRecord{ID: "run-1"}); !errors.Is(err, ErrStoreNotInitialized) {
		t.Fatalf("expected ErrStoreNotInitialized, got %v", err)
	}
	if _, ok, err := store.GetRun(context.Background(), "run-1"); ok || err != nil {
		t.Fatalf("expected missing run, got ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := model.RunRecord{VersionedRecord: Versioned(), ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour), BestSequence: []int{1, 4}}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-c" || runs[2].ID != "run-a" {
		t.Fatalf("unexpected order: %+v", runs)
	}

	runs[0].BestSequence[0] = 99
	stored, ok, err := store.GetRun(ctx, "run-c")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if stored.BestSequence[0] != 1 {
		t.Fatal("list result aliases stored run")
	}
}

func TestMemoryStoreLineageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)

	input := []model.LineageRecord{{
		VersionedRecord: Versioned(),
		CandidateID:     "g1-i3",
		ParentIDs:       []string{"g0-i1"},
		Generation:      1,
		Operation:       "jitter",
		Sequence:        "1,4,9",
	}}
	if err := store.SaveLineage(ctx, "run-1", input); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	input[0].ParentIDs[0] = "mutated"

	output, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil {
		t.Fatalf("get lineage: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted lineage")
	}
	if len(output) != 1 || output[0].CandidateID != "g1-i3" || output[0].ParentIDs[0] != "g0-i1" {
		t.Fatalf("unexpected lineage: %+v", output)
	}
}

func TestMemoryStoreFitnessHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)

	input := []float64{13000.5, 12990.25, 12990.25}
	if err := store.SaveFitnessHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	output, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted fitness history")
	}
	if len(output) != len(input) || output[2] != input[2] {
		t.Fatalf("unexpected history: %+v", output)
	}
	if _, ok, _ := store.GetFitnessHistory(ctx, "run-2"); ok {
		t.Fatal("expected no history for unknown run")
	}
}

func TestMemoryStoreGenerationDiagnosticsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)

	input := []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 13000.5, MeanFitness: 13100, DistinctSequences: 16, Improved: true},
		{Generation: 1, BestFitness: 12990.25, MeanFitness: 13050, DistinctSequences: 14, Abandoned: 5},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", input); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	output, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted diagnostics")
	}
	if len(output) != len(input) || output[1].Abandoned != input[1].Abandoned {
		t.Fatalf("unexpected diagnostics: %+v", output)
	}
}

func TestMemoryStoreComparisonsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newInitializedMemoryStore(t)

	input := []model.ComparisonRecord{{
		VersionedRecord: Versioned(),
		Size:            1000,
		Reference:       "Ciura",
		Candidate:       "Evolved",
		MeanDiff:        9.75,
		Significant:     map[string]bool{"0.05": true},
	}}
	if err := store.SaveComparisons(ctx, "run-1", input); err != nil {
		t.Fatalf("save comparisons: %v", err)
	}
	input[0].Significant["0.05"] = false

	output, ok, err := store.GetComparisons(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get comparisons: ok=%t err=%v", ok, err)
	}
	if len(output) != 1 || !output[0].Significant["0.05"] || output[0].MeanDiff != 9.75 {
		t.Fatalf("unexpected comparisons: %+v", output)
	}
}

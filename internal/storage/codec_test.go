package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"gapsearch/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data := readFixture(t, "run_v1.json")
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-fixture-1" || run.Termination != "plateau" || run.Generations != 120 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.BestSequence) != 9 || run.BestSequence[8] != 1577 {
		t.Fatalf("unexpected best sequence: %v", run.BestSequence)
	}
	if !run.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %s", run.CreatedAt)
	}
	if len(run.Config) == 0 {
		t.Fatal("expected embedded config payload")
	}
}

func TestDecodeComparisonsFixture(t *testing.T) {
	records, err := DecodeComparisons(readFixture(t, "comparisons_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0]
	if record.Reference != "Ciura" || record.Candidate != "Evolved" || record.Size != 1000 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.Significant["0.05"] || record.Significant["0.01"] {
		t.Fatalf("unexpected significance: %+v", record.Significant)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	input := model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              "run-1",
		CreatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Config:          []byte(`{"population":8}`),
		BestID:          "g3-i0",
		BestSequence:    []int{1, 4, 10},
		BestFitness:     42.5,
		Generations:     4,
		Termination:     "max_generations",
	}
	data, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\ninput=%+v\noutput=%+v", input, output)
	}
}

func TestRunCodecFixtureEquality(t *testing.T) {
	data := readFixture(t, "run_v1.json")
	first, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	encoded, err := EncodeRun(first)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := DecodeRun(encoded)
	if err != nil {
		t.Fatalf("decode re-encoded: %v", err)
	}
	if first.ID != second.ID || first.BestFitness != second.BestFitness || !reflect.DeepEqual(first.BestSequence, second.BestSequence) {
		t.Fatalf("fixture changed across round trip:\nfirst=%+v\nsecond=%+v", first, second)
	}
}

func TestLineageCodecRoundTrip(t *testing.T) {
	input := []model.LineageRecord{
		{VersionedRecord: Versioned(), CandidateID: "g0-i0", Operation: "seed", Sequence: "1,4,10"},
		{VersionedRecord: Versioned(), CandidateID: "g1-i2", ParentIDs: []string{"g0-i0", "g0-i3"}, Generation: 1, Operation: "merge_crossover+jitter", Sequence: "1,4,9,23"},
	}
	data, err := EncodeLineage(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeLineage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v", output)
	}
}

func TestCodecVersionMismatch(t *testing.T) {
	stale := model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion}

	data, err := EncodeRun(model.RunRecord{VersionedRecord: stale, ID: "run-1"})
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch for run, got %v", err)
	}

	data, err = EncodeLineage([]model.LineageRecord{{VersionedRecord: stale, CandidateID: "g0-i0"}})
	if err != nil {
		t.Fatalf("encode lineage: %v", err)
	}
	if _, err := DecodeLineage(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch for lineage, got %v", err)
	}

	data, err = EncodeComparisons([]model.ComparisonRecord{{Size: 1000}})
	if err != nil {
		t.Fatalf("encode comparisons: %v", err)
	}
	if _, err := DecodeComparisons(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch for comparisons, got %v", err)
	}
}

func TestFitnessHistoryAndDiagnosticsCodecRoundTrip(t *testing.T) {
	history := []float64{13000.5, 12990.25, 12990.25}
	data, err := EncodeFitnessHistory(history)
	if err != nil {
		t.Fatalf("encode history: %v", err)
	}
	decodedHistory, err := DecodeFitnessHistory(data)
	if err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if !reflect.DeepEqual(history, decodedHistory) {
		t.Fatalf("history mismatch: %v", decodedHistory)
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 13000.5, BestEverFitness: 13000.5, MeanFitness: 13100, Abandoned: 0, DistinctSequences: 16, Improved: true},
		{Generation: 1, BestFitness: 12990.25, BestEverFitness: 12990.25, MeanFitness: 13050, Abandoned: 5, DistinctSequences: 14, Stall: 0, Trials: 900},
	}
	data, err = EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		t.Fatalf("encode diagnostics: %v", err)
	}
	decoded, err := DecodeGenerationDiagnostics(data)
	if err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if !reflect.DeepEqual(diagnostics, decoded) {
		t.Fatalf("diagnostics mismatch: %+v", decoded)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

package stats

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gapsearch/internal/compare"
	"gapsearch/internal/corpus"
	"gapsearch/internal/gapseq"
)

func TestBenchFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	if got := BenchFileName(now); got != "bench_20240309_070501.csv" {
		t.Fatalf("unexpected file name: %s", got)
	}
}

func TestWriteBenchCSV(t *testing.T) {
	env := Environment{CPU: "Test CPU, 8 cores", OS: "linux amd64", Compiler: "go1.24", Threads: 4, Timestamp: "20240309_070501"}
	rows := []BenchRow{{
		SequenceName:    "Ciura",
		N:               1000,
		Trials:          100,
		MeanComparisons: 12345.678,
		CompStdDev:      12.5,
		CompStdErr:      1.25,
		MeanMoves:       9000,
		MovesStdDev:     10,
		MeanRuntimeUS:   40.126,
		RuntimeStdDevUS: 2,
		RuntimeStdErrUS: 0.2,
	}}

	var buf bytes.Buffer
	if err := WriteBenchCSV(&buf, rows, env); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "sequence_name,N,trials,mean_comparisons,comp_stddev,comp_stderr,mean_moves,moves_stddev,mean_runtime_us,runtime_stddev_us,runtime_stderr_us,cpu,os,compiler,threads,timestamp" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	want := []string{"Ciura", "1000", "100", "12345.68", "12.50", "1.25", "9000.00", "10.00", "40.13", "2.00", "0.20", "Test CPU, 8 cores", "linux amd64", "go1.24", "4", "20240309_070501"}
	for i := range want {
		if records[1][i] != want[i] {
			t.Fatalf("column %s: got %q want %q", BenchHeader[i], records[1][i], want[i])
		}
	}
}

func TestBenchAndComparisonFromCorpus(t *testing.T) {
	ctx := context.Background()
	ds, err := corpus.Generate(ctx, 0xC0FFEE1234, 300, 12, 2)
	if err != nil {
		t.Fatalf("generate corpus: %v", err)
	}
	reference := gapseq.Named{Name: "Ciura", Gaps: gapseq.Sequence{1, 4, 10, 23, 57, 132}}
	candidate := gapseq.Named{Name: "Knuth", Gaps: gapseq.Sequence{1, 4, 13, 40, 121}}

	ref, err := compare.Bench(ctx, ds, reference, 12, 2)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	row := BenchRowFrom(ref)
	if row.SequenceName != "Ciura" || row.N != 300 || row.Trials != 12 || row.MeanComparisons != ref.Comparisons.Mean {
		t.Fatalf("unexpected row: %+v", row)
	}

	dir := filepath.Join(t.TempDir(), "bench")
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	path, err := WriteBenchFile(dir, []BenchRow{row}, DetectEnvironment(2, now), now)
	if err != nil {
		t.Fatalf("write bench file: %v", err)
	}
	if filepath.Base(path) != "bench_20240309_070501.csv" {
		t.Fatalf("unexpected path: %s", path)
	}

	report, err := compare.Compare(ctx, ds, reference, candidate, 12, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	runDir := t.TempDir()
	csvPath, err := WriteComparisonFile(runDir, []compare.Report{report})
	if err != nil {
		t.Fatalf("write comparison: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read comparison: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse comparison: %v", err)
	}
	if len(records) != 2 || len(records[1]) != len(ComparisonHeader) {
		t.Fatalf("unexpected comparison csv: %v", records)
	}
	if records[1][2] != "Ciura" || records[1][3] != "Knuth" {
		t.Fatalf("unexpected names: %v", records[1])
	}

	persisted := ComparisonRecords([]compare.Report{report})
	if len(persisted) != 1 || persisted[0].MeanDiff != report.Paired.MeanDiff || persisted[0].SchemaVersion == 0 {
		t.Fatalf("unexpected records: %+v", persisted)
	}
}

func TestComparisonRecordsClampInfiniteT(t *testing.T) {
	report := compare.Report{
		Size:   10,
		Paired: compare.PairedResult{N: 5, MeanDiff: 3, T: math.Inf(1), ZeroVariance: true},
	}
	records := ComparisonRecords([]compare.Report{report})
	if records[0].T != math.MaxFloat64 {
		t.Fatalf("expected clamped t, got %v", records[0].T)
	}
}

func TestCPUModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuinfo")
	content := "processor\t: 0\nvendor_id\t: Test\nmodel name\t: Example CPU @ 3.00GHz\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cpuinfo: %v", err)
	}
	if got := cpuModel(path); got != "Example CPU @ 3.00GHz" {
		t.Fatalf("unexpected cpu model: %q", got)
	}
	if got := cpuModel(filepath.Join(t.TempDir(), "missing")); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

package stats

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gapsearch/internal/compare"
	"gapsearch/internal/model"
	"gapsearch/internal/storage"
)

// BenchHeader is the column layout of a benchmark CSV.
var BenchHeader = []string{
	"sequence_name", "N", "trials",
	"mean_comparisons", "comp_stddev", "comp_stderr",
	"mean_moves", "moves_stddev",
	"mean_runtime_us", "runtime_stddev_us", "runtime_stderr_us",
	"cpu", "os", "compiler", "threads", "timestamp",
}

// ComparisonHeader is the column layout of a comparison CSV.
var ComparisonHeader = []string{
	"N", "trials", "reference", "candidate",
	"reference_mean", "candidate_mean", "mean_diff", "diff_stddev", "diff_stderr",
	"t", "p", "improvement_pct", "sig_0.05", "sig_0.01", "sig_0.001",
}

// Environment describes the machine a benchmark ran on.
type Environment struct {
	CPU       string
	OS        string
	Compiler  string
	Threads   int
	Timestamp string
}

// DetectEnvironment fills Environment from the running process.
func DetectEnvironment(threads int, now time.Time) Environment {
	return Environment{
		CPU:       cpuModel("/proc/cpuinfo"),
		OS:        runtime.GOOS + " " + runtime.GOARCH,
		Compiler:  runtime.Version(),
		Threads:   threads,
		Timestamp: Timestamp(now),
	}
}

// Timestamp formats t the way benchmark file names carry it.
func Timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

func BenchFileName(now time.Time) string {
	return "bench_" + Timestamp(now) + ".csv"
}

func cpuModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return "unknown"
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(value)
		}
	}
	return "unknown"
}

// BenchRow is one sequence on one corpus size.
type BenchRow struct {
	SequenceName    string
	N               int
	Trials          int
	MeanComparisons float64
	CompStdDev      float64
	CompStdErr      float64
	MeanMoves       float64
	MovesStdDev     float64
	MeanRuntimeUS   float64
	RuntimeStdDevUS float64
	RuntimeStdErrUS float64
}

func BenchRowFrom(s compare.SequenceStats) BenchRow {
	return BenchRow{
		SequenceName:    s.Name,
		N:               s.Size,
		Trials:          s.Comparisons.N,
		MeanComparisons: s.Comparisons.Mean,
		CompStdDev:      s.Comparisons.StdDev,
		CompStdErr:      s.Comparisons.StdErr,
		MeanMoves:       s.Moves.Mean,
		MovesStdDev:     s.Moves.StdDev,
		MeanRuntimeUS:   s.RuntimeMicros.Mean,
		RuntimeStdDevUS: s.RuntimeMicros.StdDev,
		RuntimeStdErrUS: s.RuntimeMicros.StdErr,
	}
}

func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func WriteBenchCSV(w io.Writer, rows []BenchRow, env Environment) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(BenchHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.SequenceName,
			strconv.Itoa(row.N),
			strconv.Itoa(row.Trials),
			fixed2(row.MeanComparisons),
			fixed2(row.CompStdDev),
			fixed2(row.CompStdErr),
			fixed2(row.MeanMoves),
			fixed2(row.MovesStdDev),
			fixed2(row.MeanRuntimeUS),
			fixed2(row.RuntimeStdDevUS),
			fixed2(row.RuntimeStdErrUS),
			env.CPU,
			env.OS,
			env.Compiler,
			strconv.Itoa(env.Threads),
			env.Timestamp,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBenchFile writes rows to dir/bench_<timestamp>.csv.
func WriteBenchFile(dir string, rows []BenchRow, env Environment, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, BenchFileName(now))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteBenchCSV(file, rows, env); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func WriteComparisonCSV(w io.Writer, reports []compare.Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ComparisonHeader); err != nil {
		return err
	}
	for _, r := range reports {
		record := []string{
			strconv.Itoa(r.Size),
			strconv.Itoa(r.Trials),
			r.Reference.Name,
			r.Candidate.Name,
			fixed2(r.Reference.Comparisons.Mean),
			fixed2(r.Candidate.Comparisons.Mean),
			fixed2(r.Paired.MeanDiff),
			fixed2(r.Paired.StdDev),
			fixed2(r.Paired.StdErr),
			strconv.FormatFloat(r.Paired.T, 'f', 4, 64),
			strconv.FormatFloat(r.Paired.P, 'g', 6, 64),
			strconv.FormatFloat(r.Improvement, 'f', 4, 64),
		}
		for _, alpha := range compare.Alphas {
			record = append(record, strconv.FormatBool(r.Significant[fmt.Sprintf("%g", alpha)]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteComparisonFile writes the comparison CSV into a run directory.
func WriteComparisonFile(runDir string, reports []compare.Report) (string, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(runDir, ComparisonsFile)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteComparisonCSV(file, reports); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// ComparisonRecords converts reports for persistence.
func ComparisonRecords(reports []compare.Report) []model.ComparisonRecord {
	out := make([]model.ComparisonRecord, len(reports))
	for i, r := range reports {
		significant := make(map[string]bool, len(r.Significant))
		for k, v := range r.Significant {
			significant[k] = v
		}
		out[i] = model.ComparisonRecord{
			VersionedRecord:   storage.Versioned(),
			Size:              r.Size,
			Trials:            r.Trials,
			Reference:         r.Reference.Name,
			ReferenceSequence: r.Reference.Sequence.Clone(),
			ReferenceMean:     r.Reference.Comparisons.Mean,
			Candidate:         r.Candidate.Name,
			CandidateSequence: r.Candidate.Sequence.Clone(),
			CandidateMean:     r.Candidate.Comparisons.Mean,
			MeanDiff:          r.Paired.MeanDiff,
			T:                 finite(r.Paired.T),
			P:                 r.Paired.P,
			Improvement:       r.Improvement,
			Significant:       significant,
		}
	}
	return out
}

// finite clamps the infinite t of a zero-variance difference so the record
// stays JSON-encodable.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"gapsearch/internal/baseline"
	"gapsearch/internal/config"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/logging"
	"gapsearch/internal/storage"
	api "gapsearch/pkg/gapsearch"
)

const (
	runsDir    = "results/runs"
	benchDir   = "results/bench"
	exportsDir = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "permgen":
		return runPermGen(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "bench":
		return runBench(ctx, args[1:])
	case "compare":
		return runCompare(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "baselines":
		return runBaselines(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "champion":
		return runChampion(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", storage.DefaultSQLitePath, "sqlite database path"),
	}
}

func newClient(sf storeFlags, opts api.Options) (*api.Client, error) {
	opts.StoreKind = *sf.kind
	opts.DBPath = *sf.dbPath
	if opts.RunsDir == "" {
		opts.RunsDir = runsDir
	}
	if opts.BenchDir == "" {
		opts.BenchDir = benchDir
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = exportsDir
	}
	return api.New(opts)
}

func commandLogger(level string) (*slog.Logger, error) {
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{Level: parsed, Writer: os.Stderr, Component: "gapsearchctl"}), nil
}

func runPermGen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("permgen", flag.ContinueOnError)
	out := fs.String("out", config.Default().PermsDir, "output directory for perm_<N>.bin files")
	sizesRaw := fs.String("sizes", "", "comma-separated corpus sizes (required)")
	trialsRaw := fs.String("trials", "1000", "trials per size: one value or one per size")
	seedRaw := fs.String("seed", config.DefaultMasterSeed.String(), "master seed (decimal or 0x hex)")
	threads := fs.Int("threads", 0, "generator goroutines (0 uses GOMAXPROCS)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sizes, err := parseIntList(*sizesRaw)
	if err != nil {
		return fmt.Errorf("sizes: %w", err)
	}
	if len(sizes) == 0 {
		return errors.New("permgen requires --sizes")
	}
	trials, err := parseIntList(*trialsRaw)
	if err != nil {
		return fmt.Errorf("trials: %w", err)
	}
	seed, err := config.ParseSeed(*seedRaw)
	if err != nil {
		return err
	}
	logger, err := commandLogger(*logLevel)
	if err != nil {
		return err
	}

	client, err := newClient(storeFlags{kind: ptr("memory"), dbPath: ptr("")}, api.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	paths, err := client.PermGen(ctx, api.PermGenRequest{
		Dir:        *out,
		Sizes:      sizes,
		Trials:     trials,
		MasterSeed: uint64(seed),
		Threads:    *threads,
	})
	if err != nil {
		return err
	}
	for _, path := range paths {
		size := "?"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("wrote %s (%s)\n", path, size)
	}
	fmt.Printf("master_seed=%s\n", seed)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path")
	sf := addStoreFlags(fs)
	overrides := registerConfigFlags(fs)
	reference := fs.String("reference", "ciura", "baseline the champion is certified against: "+strings.Join(baseline.Names(), "|"))
	noCompare := fs.Bool("no-compare", false, "skip the post-run comparison against the reference")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		return err
	}
	if err := overrides.apply(fs, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.Logging()
	logCfg.Component = "gapsearchctl"
	logger := logging.New(logCfg)

	opts := api.Options{Logger: logger}
	var stopMetrics func()
	if *metricsAddr != "" {
		reg, stop, err := serveMetrics(*metricsAddr, logger)
		if err != nil {
			return err
		}
		opts.Registerer = reg
		stopMetrics = stop
	}
	if stopMetrics != nil {
		defer stopMetrics()
	}

	client, err := newClient(sf, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	bar := newProgress(os.Stderr, cfg.Generations)
	summary, runErr := client.Run(ctx, api.RunRequest{
		Config:      cfg,
		Reference:   *reference,
		SkipCompare: *noCompare,
		Progress:    bar.Update,
	})
	bar.Done()
	if runErr != nil && summary.RunID == "" {
		return runErr
	}

	if *jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
		return runErr
	}
	fmt.Printf("run completed run_id=%s pop=%d gens=%d termination=%s\n", summary.RunID, cfg.Population, summary.Generations, summary.Termination)
	fmt.Printf("best_id=%s best_fitness=%s\n", summary.BestID, commaf(summary.BestFitness))
	fmt.Printf("best_sequence=%s\n", summary.BestSequence)
	for _, s := range summary.Sizes {
		fmt.Printf("size=%d weight=%g mean_comparisons=%s trials=%d\n", s.Size, s.Weight, commaf(s.Mean), s.TrialsRun)
	}
	for _, r := range summary.Comparisons {
		fmt.Printf("compare N=%d reference=%s improvement=%+.4f%% t=%.3f p=%.3g\n", r.Size, r.Reference.Name, r.Improvement, r.Paired.T, r.Paired.P)
	}
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return runErr
}

func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	cf := addCorpusFlags(fs)
	out := fs.String("out", benchDir, "directory for bench_<timestamp>.csv")
	sequencesRaw := fs.String("sequences", "", "comma-separated baseline names (default: all baselines and the evolved sequence)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	corpusReq, err := cf.request()
	if err != nil {
		return err
	}

	var sequences []gapseq.Named
	if *sequencesRaw != "" {
		largest := 0
		for _, n := range corpusReq.Sizes {
			largest = max(largest, n)
		}
		for _, name := range strings.Split(*sequencesRaw, ",") {
			seq, err := resolveSequence(strings.TrimSpace(name), largest)
			if err != nil {
				return err
			}
			sequences = append(sequences, seq)
		}
	}

	client, err := newClient(storeFlags{kind: ptr("memory"), dbPath: ptr("")}, api.Options{Logger: cf.logger()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Bench(ctx, api.BenchRequest{CorpusRequest: corpusReq, Sequences: sequences, OutDir: *out})
	if err != nil {
		return err
	}
	fmt.Printf("%-16s %10s %7s %18s %12s %14s\n", "sequence", "N", "trials", "mean_comparisons", "stderr", "mean_runtime_us")
	for _, s := range summary.Stats {
		fmt.Printf("%-16s %10d %7d %18s %12.2f %14.2f\n",
			s.Name, s.Size, s.Comparisons.N,
			commaf(s.Comparisons.Mean),
			s.Comparisons.StdErr, s.RuntimeMicros.Mean,
		)
	}
	fmt.Printf("bench_csv=%s\n", summary.Path)
	return nil
}

func runCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	cf := addCorpusFlags(fs)
	sf := addStoreFlags(fs)
	referenceRaw := fs.String("reference", "ciura", "reference: baseline name, ratio:R, split:R1:R2:T or explicit gaps \"1,4,10,...\"")
	candidateRaw := fs.String("candidate", "evolved", "candidate: baseline name, ratio:R, split:R1:R2:T or explicit gaps \"1,4,10,...\"")
	runID := fs.String("run-id", "", "attach the comparison to a stored run")
	jsonOut := fs.Bool("json", false, "emit reports as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	corpusReq, err := cf.request()
	if err != nil {
		return err
	}
	largest := 0
	for _, n := range corpusReq.Sizes {
		largest = max(largest, n)
	}
	reference, err := resolveSequence(*referenceRaw, largest)
	if err != nil {
		return err
	}
	candidate, err := resolveSequence(*candidateRaw, largest)
	if err != nil {
		return err
	}

	client, err := newClient(sf, api.Options{Logger: cf.logger()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	reports, err := client.Compare(ctx, api.CompareRequest{
		CorpusRequest: corpusReq,
		Reference:     reference,
		Candidate:     candidate,
		RunID:         *runID,
	})
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("no corpus sizes available")
		return nil
	}
	if *jsonOut {
		return printJSON(reports)
	}

	fmt.Printf("%-10s %18s %18s %10s %10s %10s %s\n", "N", reference.Name, candidate.Name, "diff_%", "t", "p", "significant")
	refTotal, candTotal := 0.0, 0.0
	for _, r := range reports {
		var sig []string
		for _, alpha := range []string{"0.05", "0.01", "0.001"} {
			if r.Significant[alpha] {
				sig = append(sig, alpha)
			}
		}
		fmt.Printf("%-10d %18s %18s %+9.4f%% %10.3f %10.3g %s\n",
			r.Size,
			commaf(r.Reference.Comparisons.Mean),
			commaf(r.Candidate.Comparisons.Mean),
			r.Improvement, r.Paired.T, r.Paired.P, strings.Join(sig, ","),
		)
		refTotal += r.Reference.Comparisons.Mean
		candTotal += r.Candidate.Comparisons.Mean
	}
	total := (refTotal - candTotal) / refTotal * 100
	verdict := "better"
	if total <= 0 {
		verdict = "worse"
	}
	fmt.Printf("total: %s is %.4f%% %s than %s\n", candidate.Name, math.Abs(total), verdict, reference.Name)
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	sequenceRaw := fs.String("sequence", "", "baseline name, ratio:R, split:R1:R2:T or explicit gaps \"1,4,10,...\" (required)")
	n := fs.Int("n", 10000, "permutation size used for the sort check")
	trials := fs.Int("trials", 10, "permutations sorted")
	seedRaw := fs.String("seed", config.DefaultMasterSeed.String(), "master seed for the generated permutations")
	minGaps := fs.Int("min-gaps", 0, "minimum gap count (0 skips the length check)")
	maxGaps := fs.Int("max-gaps", 0, "maximum gap count (0 skips the length check)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sequenceRaw == "" {
		return errors.New("validate requires --sequence")
	}
	seq, err := resolveSequence(*sequenceRaw, *n)
	if err != nil {
		return err
	}
	if *minGaps > 0 || *maxGaps > 0 {
		if err := gapseq.ValidateWithin(seq.Gaps, gapseq.Limits{MinLen: *minGaps, MaxLen: *maxGaps}); err != nil {
			return err
		}
	}
	seed, err := config.ParseSeed(*seedRaw)
	if err != nil {
		return err
	}

	client, err := newClient(storeFlags{kind: ptr("memory"), dbPath: ptr("")}, api.Options{Logger: logging.New(logging.Config{Level: logging.LevelWarn})})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Validate(ctx, api.ValidateRequest{Sequence: seq.Gaps, N: *n, Trials: *trials, MasterSeed: uint64(seed)})
	if err != nil {
		return err
	}
	if !summary.Sorted {
		return fmt.Errorf("sequence %s failed to sort N=%d", seq.Gaps, *n)
	}
	fmt.Printf("valid sequence=%s gaps=%d N=%d trials=%d mean_comparisons=%s\n",
		seq.Gaps, len(seq.Gaps), *n, summary.Trials, commaf(summary.MeanComparison))
	return nil
}

func runBaselines(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("baselines", flag.ContinueOnError)
	maxGap := fs.Int("max-gap", 1000000, "largest gap to generate")
	jsonOut := fs.Bool("json", false, "emit baselines as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *maxGap < 1 {
		return errors.New("max-gap must be >= 1")
	}
	sequences := append(baseline.All(*maxGap), baseline.Evolved(*maxGap))
	if *jsonOut {
		return printJSON(sequences)
	}
	for _, s := range sequences {
		fmt.Printf("%-16s gaps=%-3d %s\n", s.Name, len(s.Gaps), s.Gaps)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(storeFlags{kind: ptr("memory"), dbPath: ptr("")}, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		return printJSON(runs)
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s pop=%d gens=%d termination=%s master_seed=%s run_seed=%s best_fitness=%s best_sequence=%s\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Population,
			r.Generations,
			r.Termination,
			r.MasterSeed,
			r.RunSeed,
			commaf(r.FinalBestFitness),
			r.BestSequence,
		)
	}
	return nil
}

type runRefFlags struct {
	runID   *string
	latest  *bool
	limit   *int
	jsonOut *bool
	store   storeFlags
}

func addRunRefFlags(fs *flag.FlagSet, what string) runRefFlags {
	return runRefFlags{
		runID:   fs.String("run-id", "", "run id"),
		latest:  fs.Bool("latest", false, "show "+what+" for the most recent run from run index"),
		limit:   fs.Int("limit", 50, "max rows to print (<=0 for all)"),
		jsonOut: fs.Bool("json", false, "emit "+what+" as JSON"),
		store:   addStoreFlags(fs),
	}
}

func (f runRefFlags) ref(command string) (api.RunRef, error) {
	if *f.runID != "" && *f.latest {
		return api.RunRef{}, errors.New("use either --run-id or --latest, not both")
	}
	if *f.runID == "" && !*f.latest {
		return api.RunRef{}, fmt.Errorf("%s requires --run-id or --latest", command)
	}
	limit := *f.limit
	if limit < 0 {
		limit = 0
	}
	return api.RunRef{RunID: *f.runID, Latest: *f.latest, Limit: limit}, nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	rf := addRunRefFlags(fs, "fitness history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := rf.ref("fitness")
	if err != nil {
		return err
	}
	client, err := newClient(rf.store, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, ref)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *rf.jsonOut {
		return printJSON(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.4f\n", i, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	rf := addRunRefFlags(fs, "diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := rf.ref("diagnostics")
	if err != nil {
		return err
	}
	client, err := newClient(rf.store, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, ref)
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *rf.jsonOut {
		return printJSON(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.4f best_ever=%.4f mean=%.4f stddev=%.4f worst=%.4f abandoned=%d distinct=%d mean_len=%.2f stall=%d trials=%s improved=%t elapsed=%.3fs\n",
			d.Generation,
			d.BestFitness,
			d.BestEverFitness,
			d.MeanFitness,
			d.StdDevFitness,
			d.WorstFitness,
			d.Abandoned,
			d.DistinctSequences,
			d.MeanLength,
			d.Stall,
			humanize.Comma(int64(d.Trials)),
			d.Improved,
			d.ElapsedSeconds,
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	rf := addRunRefFlags(fs, "lineage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := rf.ref("lineage")
	if err != nil {
		return err
	}
	client, err := newClient(rf.store, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, ref)
	if err != nil {
		return err
	}
	if len(lineage) == 0 {
		fmt.Println("no lineage records")
		return nil
	}
	if *rf.jsonOut {
		return printJSON(lineage)
	}
	for _, rec := range lineage {
		parents := strings.Join(rec.ParentIDs, "+")
		if parents == "" {
			parents = "-"
		}
		fmt.Printf("gen=%d candidate_id=%s parents=%s op=%s sequence=%s\n",
			rec.Generation,
			rec.CandidateID,
			parents,
			rec.Operation,
			rec.Sequence,
		)
	}
	return nil
}

func runChampion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("champion", flag.ContinueOnError)
	rf := addRunRefFlags(fs, "champion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := rf.ref("champion")
	if err != nil {
		return err
	}
	client, err := newClient(rf.store, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	champion, err := client.Champion(ctx, ref)
	if err != nil {
		return err
	}
	if *rf.jsonOut {
		return printJSON(champion)
	}
	fmt.Printf("id=%s fitness=%s generations=%d termination=%s\n",
		champion.ID, commaf(champion.Fitness), champion.Generations, champion.Termination)
	fmt.Printf("sequence=%s\n", gapseq.Sequence(champion.Sequence))
	for _, s := range champion.Sizes {
		fmt.Printf("size=%d weight=%g mean_comparisons=%s trials=%d\n", s.Size, s.Weight, commaf(s.Mean), s.TrialsRun)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	out := fs.String("out", exportsDir, "export directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}

	client, err := newClient(storeFlags{kind: ptr("memory"), dbPath: ptr("")}, api.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, api.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *out})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

// resolveSequence accepts a baseline name, a generated ratio sequence
// (ratio:R or split:R1:R2:THRESHOLD) or an explicit gap list.
func resolveSequence(raw string, maxGap int) (gapseq.Named, error) {
	raw = strings.TrimSpace(raw)
	if gen, err := baseline.ByName(strings.ToLower(raw)); err == nil {
		return gen(maxGap), nil
	}
	if kind, params, ok := strings.Cut(raw, ":"); ok {
		return resolveRatio(kind, strings.Split(params, ":"), maxGap)
	}
	seq, err := gapseq.Parse(raw)
	if err != nil {
		return gapseq.Named{}, fmt.Errorf("sequence %q is neither a baseline (%s) nor a gap list: %w", raw, strings.Join(baseline.Names(), "|"), err)
	}
	if err := gapseq.Validate(seq); err != nil {
		return gapseq.Named{}, err
	}
	return gapseq.Named{Name: "Custom", Gaps: seq}, nil
}

func resolveRatio(kind string, params []string, maxGap int) (gapseq.Named, error) {
	floats := func(raw []string) ([]float64, error) {
		out := make([]float64, len(raw))
		for i, p := range raw {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("%s parameter %q: %w", kind, p, err)
			}
			if v <= 1 {
				return nil, fmt.Errorf("%s ratio must be > 1, got %g", kind, v)
			}
			out[i] = v
		}
		return out, nil
	}
	switch strings.ToLower(kind) {
	case "ratio":
		if len(params) != 1 {
			return gapseq.Named{}, errors.New("ratio sequence wants ratio:R")
		}
		r, err := floats(params)
		if err != nil {
			return gapseq.Named{}, err
		}
		return baseline.Ratio(r[0], maxGap), nil
	case "split":
		if len(params) != 3 {
			return gapseq.Named{}, errors.New("split sequence wants split:R1:R2:THRESHOLD")
		}
		r, err := floats(params[:2])
		if err != nil {
			return gapseq.Named{}, err
		}
		threshold, err := strconv.Atoi(strings.TrimSpace(params[2]))
		if err != nil || threshold < 1 {
			return gapseq.Named{}, fmt.Errorf("split threshold %q must be a positive integer", params[2])
		}
		return baseline.SplitRatio(r[0], r[1], threshold, maxGap), nil
	default:
		return gapseq.Named{}, fmt.Errorf("unknown generated sequence %q (want ratio or split)", kind)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ptr[T any](v T) *T {
	return &v
}

// commaf renders v with thousands separators, rounded to two decimals.
func commaf(v float64) string {
	return humanize.CommafWithDigits(math.Round(v*100)/100, 2)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gapsearchctl <permgen|run|bench|compare|validate|baselines|runs|fitness|diagnostics|lineage|champion|export> [flags]", msg)
}

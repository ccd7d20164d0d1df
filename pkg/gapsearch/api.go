package gapsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"gapsearch/internal/baseline"
	"gapsearch/internal/compare"
	"gapsearch/internal/config"
	"gapsearch/internal/corpus"
	"gapsearch/internal/evo"
	"gapsearch/internal/fitness"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/logging"
	"gapsearch/internal/metrics"
	"gapsearch/internal/model"
	"gapsearch/internal/rng"
	"gapsearch/internal/shellsort"
	"gapsearch/internal/stats"
	"gapsearch/internal/storage"
)

const (
	defaultRunsDir    = "results/runs"
	defaultBenchDir   = "results/bench"
	defaultExportsDir = "exports"
)

// DefaultCompareSizes are the corpus sizes a certification compares on.
var DefaultCompareSizes = []int{1000, 2000, 10000, 20000, 100000, 200000, 1000000, 2000000}

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	BenchDir   string
	ExportsDir string
	Logger     *slog.Logger
	// Registerer receives the search metrics. Nil disables them.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

type Client struct {
	store   storage.Store
	log     *slog.Logger
	metrics *metrics.Collectors
	now     func() time.Time

	initOnce sync.Once
	initErr  error

	runsDir    string
	benchDir   string
	exportsDir string
}

type RunRequest struct {
	Config config.Config
	// Seeds overrides the configured seed sequence.
	Seeds []gapseq.Sequence
	// Reference names the baseline the champion is certified against after
	// the search. Empty selects Ciura.
	Reference   string
	SkipCompare bool
	// Progress is called after every evaluated generation.
	Progress func(generation int, best float64, stall int)
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestID           string
	BestSequence     gapseq.Sequence
	BestFitness      float64
	Sizes            []fitness.SizeResult
	BestByGeneration []float64
	Generations      int
	Termination      string
	Comparisons      []compare.Report
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Population       int
	Generations      int
	Termination      string
	MasterSeed       string
	RunSeed          string
	FinalBestFitness float64
	BestSequence     string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// RunRef selects a stored run by id or the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
	Limit  int
}

type PermGenRequest struct {
	Dir   string
	Sizes []int
	// Trials holds either one count for every size or one count per size.
	Trials     []int
	MasterSeed uint64
	Threads    int
}

type CorpusRequest struct {
	PermsDir       string
	Sizes          []int
	Trials         int
	Threads        int
	MaxCorpusBytes uint64
}

type BenchRequest struct {
	CorpusRequest
	// Sequences defaults to every baseline bounded by each size.
	Sequences []gapseq.Named
	OutDir    string
}

type BenchSummary struct {
	Path  string
	Stats []compare.SequenceStats
}

type CompareRequest struct {
	CorpusRequest
	Reference gapseq.Named
	Candidate gapseq.Named
	// RunID attaches the reports to a stored run.
	RunID string
}

type ValidateRequest struct {
	Sequence   gapseq.Sequence
	N          int
	Trials     int
	MasterSeed uint64
}

type ValidateSummary struct {
	Trials         int
	Sorted         bool
	MeanComparison float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = storage.DefaultSQLitePath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	benchDir := opts.BenchDir
	if benchDir == "" {
		benchDir = defaultBenchDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var collectors *metrics.Collectors
	if opts.Registerer != nil {
		var err error
		collectors, err = metrics.New(opts.Registerer)
		if err != nil {
			return nil, err
		}
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		log:        logging.OrDiscard(opts.Logger),
		metrics:    collectors,
		now:        now,
		runsDir:    runsDir,
		benchDir:   benchDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Run performs one evolutionary search. A canceled search still persists the
// best result found so far and returns it together with the context error.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	createdAt := c.now().UTC()
	logger := c.log.With("run_id", runID)

	pool, err := corpus.Load(cfg.PermsDir, cfg.Sizes(), corpus.Limits{MaxBytes: cfg.MaxCorpusBytes}, logger)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load corpus: %w", err)
	}
	evalCfg := fitness.Config{
		Corpus:    pool,
		Targets:   cfg.Targets,
		EarlyStop: cfg.EarlyStop,
		Threads:   cfg.Threads,
		Logger:    logger,
	}
	if c.metrics != nil {
		evalCfg.Recorder = c.metrics
	}
	evaluator, err := fitness.NewEvaluator(evalCfg)
	if err != nil {
		return RunSummary{}, err
	}

	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = []gapseq.Sequence{seedSequence(cfg)}
	}

	monitor, err := c.newMonitor(cfg, evaluator, logger, req.Progress)
	if err != nil {
		return RunSummary{}, err
	}
	logger.Info("search started",
		"population", cfg.Population,
		"generations", cfg.Generations,
		"sizes", cfg.Sizes(),
		"threads", evaluator.Threads(),
		"seed_sequence", seeds[0].String(),
	)
	result, runErr := monitor.Run(ctx, seeds)
	if runErr != nil && result.Generations == 0 {
		return RunSummary{}, runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return RunSummary{}, runErr
	}

	// Persist even after cancellation.
	saveCtx := context.WithoutCancel(ctx)
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	diagnostics := toModelDiagnostics(result.Diagnostics)
	lineage := toModelLineage(result.Lineage)
	best := result.Best
	if err := c.store.SaveRun(saveCtx, model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAt:       createdAt,
		Config:          configJSON,
		BestID:          best.ID,
		BestSequence:    best.Sequence.Clone(),
		BestFitness:     best.Fitness,
		Generations:     result.Generations,
		Termination:     string(result.Termination),
	}); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveFitnessHistory(saveCtx, runID, result.BestByGeneration); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveGenerationDiagnostics(saveCtx, runID, diagnostics); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveLineage(saveCtx, runID, lineage); err != nil {
		return RunSummary{}, err
	}

	var reports []compare.Report
	if runErr == nil && !req.SkipCompare {
		reports, err = c.certify(ctx, pool, cfg, evaluator.Threads(), req.Reference, best.Sequence)
		if err != nil {
			return RunSummary{}, err
		}
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			CreatedAtUTC: createdAt.Format(time.RFC3339Nano),
			Search:       cfg,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: diagnostics,
		Champion: stats.Champion{
			ID:          best.ID,
			Sequence:    best.Sequence.Clone(),
			Fitness:     best.Fitness,
			Sizes:       best.Result.Sizes,
			Generations: result.Generations,
			Termination: string(result.Termination),
		},
		Lineage: lineage,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if len(reports) > 0 {
		if _, err := stats.WriteComparisonFile(runDir, reports); err != nil {
			return RunSummary{}, err
		}
		if err := c.store.SaveComparisons(saveCtx, runID, stats.ComparisonRecords(reports)); err != nil {
			return RunSummary{}, err
		}
	}

	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:            runID,
		PopulationSize:   cfg.Population,
		Generations:      result.Generations,
		Termination:      string(result.Termination),
		MasterSeed:       cfg.MasterSeed.String(),
		RunSeed:          cfg.RunSeed.String(),
		Threads:          evaluator.Threads(),
		FinalBestFitness: best.Fitness,
		BestSequence:     best.Sequence.String(),
		CreatedAtUTC:     createdAt.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestID:           best.ID,
		BestSequence:     best.Sequence.Clone(),
		BestFitness:      best.Fitness,
		Sizes:            append([]fitness.SizeResult(nil), best.Result.Sizes...),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		Generations:      result.Generations,
		Termination:      string(result.Termination),
		Comparisons:      reports,
	}, runErr
}

func (c *Client) newMonitor(cfg config.Config, evaluator *fitness.Evaluator, logger *slog.Logger, progress func(int, float64, int)) (*evo.PopulationMonitor, error) {
	random := rand.New(rng.New(uint64(cfg.RunSeed)))
	limits := cfg.Limits()
	policy, err := evo.BuildMutationPolicy(cfg.MutationWeights, random, limits)
	if err != nil {
		return nil, err
	}
	truncate, err := gapseq.ParseTruncatePolicy(cfg.TruncatePolicy)
	if err != nil {
		return nil, err
	}
	repair := evo.Repairer{Limits: limits, Policy: truncate}

	var status *evo.StatusWriter
	if cfg.StatusPath != "" {
		status, err = evo.NewStatusWriter(cfg.StatusPath)
		if err != nil {
			return nil, err
		}
	}

	var observer evo.Observer
	if c.metrics != nil || progress != nil {
		observer = progressObserver{metrics: c.metrics, progress: progress}
	}

	return evo.NewPopulationMonitor(evo.MonitorConfig{
		Evaluator:          evaluator,
		Mutator:            &evo.Mutator{Policy: policy, Rand: random, Repair: repair},
		Crossover:          evo.MergeCrossover{Repair: repair},
		Selector:           selector(cfg),
		PopulationSize:     cfg.Population,
		EliteCount:         cfg.EliteCount,
		Generations:        cfg.Generations,
		PlateauGenerations: cfg.PlateauGenerations,
		CrossoverRate:      cfg.CrossoverRate,
		MutationRate:       cfg.MutationRate,
		Limits:             limits,
		Rand:               random,
		Logger:             logger,
		Observer:           observer,
		Status:             status,
		StatusEvery:        cfg.StatusEvery,
		Now:                c.now,
	})
}

func selector(cfg config.Config) evo.Selector {
	if cfg.Selection == config.SelectionElite {
		return evo.EliteSelector{}
	}
	return evo.TournamentSelector{TournamentSize: cfg.TournamentSize}
}

// progressObserver forwards generation events to the metrics collectors and
// an optional callback.
type progressObserver struct {
	metrics  *metrics.Collectors
	progress func(generation int, best float64, stall int)
}

func (o progressObserver) ObserveInvariantViolation(operator string) {
	o.metrics.ObserveInvariantViolation(operator)
}

func (o progressObserver) ObserveGeneration(generation int, best float64, stall int, elapsed time.Duration) {
	o.metrics.ObserveGeneration(generation, best, stall, elapsed)
	if o.progress != nil {
		o.progress(generation, best, stall)
	}
}

// seedSequence is the configured seed, or Ciura bounded by the largest target
// size and fitted to the length limits.
func seedSequence(cfg config.Config) gapseq.Sequence {
	if len(cfg.SeedSequence) > 0 {
		return gapseq.Sequence(cfg.SeedSequence).Clone()
	}
	limits := cfg.Limits()
	seq := baseline.Ciura(max(limits.MaxGap, 1)).Gaps.Clone()
	if limits.MaxLen > 0 && len(seq) > limits.MaxLen {
		seq = seq[:limits.MaxLen]
	}
	return padSequence(seq, limits)
}

// padSequence splits the widest interval until seq reaches MinLen. The tail
// interval runs up to MaxGap inclusive.
func padSequence(seq gapseq.Sequence, limits gapseq.Limits) gapseq.Sequence {
	for len(seq) < limits.MinLen {
		at, lo, hi := -1, 0, 0
		for i := range seq {
			next := limits.MaxGap + 1
			if i+1 < len(seq) {
				next = seq[i+1]
			}
			if next-seq[i] > hi-lo {
				at, lo, hi = i+1, seq[i], next
			}
		}
		if at < 0 || hi-lo < 2 {
			break
		}
		seq = slices.Insert(seq, at, lo+(hi-lo)/2)
	}
	return seq
}

// certify compares the champion against a baseline on every target size that
// has corpus data, using the configured trial count for that size.
func (c *Client) certify(ctx context.Context, pool *corpus.Corpus, cfg config.Config, workers int, referenceName string, champion gapseq.Sequence) ([]compare.Report, error) {
	if referenceName == "" {
		referenceName = "ciura"
	}
	reference, err := baseline.ByName(referenceName)
	if err != nil {
		return nil, err
	}
	reports := make([]compare.Report, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		ds, err := pool.Dataset(target.Size)
		if err != nil {
			continue
		}
		report, err := compare.Compare(ctx, ds, reference(target.Size), gapseq.Named{Name: "Champion", Gaps: champion}, target.Trials, workers)
		if err != nil {
			return nil, err
		}
		c.log.Info("champion certified",
			"size", target.Size,
			"reference", report.Reference.Name,
			"improvement_pct", report.Improvement,
			"p", report.Paired.P,
		)
		reports = append(reports, report)
	}
	return reports, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			Termination:      e.Termination,
			MasterSeed:       e.MasterSeed,
			RunSeed:          e.RunSeed,
			FinalBestFitness: e.FinalBestFitness,
			BestSequence:     e.BestSequence,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(RunRef{RunID: req.RunID, Latest: req.Latest}, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ref RunRef, what string) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if ref.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if !ref.Latest {
		if ref.RunID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return ref.RunID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

// FitnessHistory reads the store first and falls back to the run's artifacts,
// which outlive an in-memory store.
func (c *Client) FitnessHistory(ctx context.Context, ref RunRef) ([]float64, error) {
	runID, err := c.resolveRunID(ref, "fitness history")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessHistory(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return append([]float64(nil), limit(history, ref.Limit)...), nil
}

func (c *Client) Diagnostics(ctx context.Context, ref RunRef) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ref, "diagnostics")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadDiagnostics(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return append([]model.GenerationDiagnostics(nil), limit(diagnostics, ref.Limit)...), nil
}

func (c *Client) Lineage(ctx context.Context, ref RunRef) ([]model.LineageRecord, error) {
	runID, err := c.resolveRunID(ref, "lineage")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		lineage, ok, err = stats.ReadLineage(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	return append([]model.LineageRecord(nil), limit(lineage, ref.Limit)...), nil
}

// Champion returns the best candidate recorded in a run's artifacts.
func (c *Client) Champion(_ context.Context, ref RunRef) (stats.Champion, error) {
	runID, err := c.resolveRunID(ref, "champion")
	if err != nil {
		return stats.Champion{}, err
	}
	champion, ok, err := stats.ReadChampion(c.runsDir, runID)
	if err != nil {
		return stats.Champion{}, err
	}
	if !ok {
		return stats.Champion{}, fmt.Errorf("champion not found for run id: %s", runID)
	}
	return champion, nil
}

func (c *Client) Comparisons(ctx context.Context, ref RunRef) ([]model.ComparisonRecord, error) {
	runID, err := c.resolveRunID(ref, "comparisons")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	records, ok, err := c.store.GetComparisons(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("comparisons not found for run id: %s", runID)
	}
	return records, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// PermGen generates and writes one corpus file per size.
func (c *Client) PermGen(ctx context.Context, req PermGenRequest) ([]string, error) {
	if req.Dir == "" {
		return nil, errors.New("perms dir is required")
	}
	if len(req.Sizes) == 0 {
		return nil, errors.New("at least one size is required")
	}
	if len(req.Trials) != 1 && len(req.Trials) != len(req.Sizes) {
		return nil, fmt.Errorf("trials count (%d) must be 1 or match sizes count (%d)", len(req.Trials), len(req.Sizes))
	}
	paths := make([]string, 0, len(req.Sizes))
	for i, n := range req.Sizes {
		trials := req.Trials[0]
		if len(req.Trials) > 1 {
			trials = req.Trials[i]
		}
		if trials <= 0 {
			return nil, fmt.Errorf("trials for N=%d must be > 0", n)
		}
		started := c.now()
		ds, err := corpus.Generate(ctx, req.MasterSeed, n, trials, req.Threads)
		if err != nil {
			return nil, fmt.Errorf("generate N=%d: %w", n, err)
		}
		path, err := corpus.WriteFile(req.Dir, ds, c.now())
		if err != nil {
			return nil, err
		}
		c.log.Info("corpus written", "size", n, "trials", trials, "path", path, "bytes", ds.Bytes(), "elapsed", c.now().Sub(started))
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Client) loadCorpus(req CorpusRequest) (*corpus.Corpus, error) {
	if len(req.Sizes) == 0 {
		req.Sizes = DefaultCompareSizes
	}
	limits := corpus.DefaultLimits()
	if req.MaxCorpusBytes > 0 {
		limits.MaxBytes = req.MaxCorpusBytes
	}
	return corpus.Load(req.PermsDir, req.Sizes, limits, c.log)
}

// Bench measures sequences on every available size and writes the benchmark
// CSV.
func (c *Client) Bench(ctx context.Context, req BenchRequest) (BenchSummary, error) {
	pool, err := c.loadCorpus(req.CorpusRequest)
	if err != nil {
		return BenchSummary{}, err
	}
	threads := workers(req.Threads)

	var all []compare.SequenceStats
	for _, n := range pool.Sizes() {
		ds, err := pool.Dataset(n)
		if err != nil {
			continue
		}
		sequences := req.Sequences
		if len(sequences) == 0 {
			sequences = append(baseline.All(n), baseline.Evolved(n))
		}
		for _, seq := range sequences {
			s, err := compare.Bench(ctx, ds, seq, req.Trials, threads)
			if err != nil {
				return BenchSummary{}, err
			}
			c.log.Info("benchmarked", "sequence", seq.Name, "size", n, "mean_comparisons", s.Comparisons.Mean, "trials", s.Comparisons.N)
			all = append(all, s)
		}
	}

	rows := make([]stats.BenchRow, len(all))
	for i, s := range all {
		rows[i] = stats.BenchRowFrom(s)
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.benchDir
	}
	now := c.now()
	path, err := stats.WriteBenchFile(outDir, rows, stats.DetectEnvironment(threads, now), now)
	if err != nil {
		return BenchSummary{}, err
	}
	return BenchSummary{Path: path, Stats: all}, nil
}

// Compare runs the paired comparison on every available size. With a run id
// the reports are stored with that run and written into its artifacts.
func (c *Client) Compare(ctx context.Context, req CompareRequest) ([]compare.Report, error) {
	if err := gapseq.Validate(req.Reference.Gaps); err != nil {
		return nil, fmt.Errorf("reference %s: %w", req.Reference.Name, err)
	}
	if err := gapseq.Validate(req.Candidate.Gaps); err != nil {
		return nil, fmt.Errorf("candidate %s: %w", req.Candidate.Name, err)
	}
	pool, err := c.loadCorpus(req.CorpusRequest)
	if err != nil {
		return nil, err
	}
	threads := workers(req.Threads)

	var reports []compare.Report
	for _, n := range pool.Sizes() {
		ds, err := pool.Dataset(n)
		if err != nil {
			continue
		}
		report, err := compare.Compare(ctx, ds, req.Reference, req.Candidate, req.Trials, threads)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	if req.RunID != "" {
		if err := c.Init(ctx); err != nil {
			return nil, err
		}
		if err := c.store.SaveComparisons(ctx, req.RunID, stats.ComparisonRecords(reports)); err != nil {
			return nil, err
		}
		if _, err := stats.WriteComparisonFile(filepath.Join(c.runsDir, req.RunID), reports); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// Validate checks the structural rules and that seq sorts freshly generated
// permutations.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) (ValidateSummary, error) {
	if err := gapseq.Validate(req.Sequence); err != nil {
		return ValidateSummary{}, err
	}
	if req.N <= 0 {
		return ValidateSummary{}, errors.New("N must be > 0")
	}
	if req.Trials <= 0 {
		req.Trials = 1
	}
	summary := ValidateSummary{Trials: req.Trials, Sorted: true}
	arr := make([]int32, req.N)
	total := 0.0
	for trial := 0; trial < req.Trials; trial++ {
		if err := ctx.Err(); err != nil {
			return ValidateSummary{}, err
		}
		rng.FillPermutation(arr, req.MasterSeed, uint64(trial))
		total += float64(shellsort.Sort(arr, req.Sequence))
		if !shellsort.IsSorted(arr) {
			summary.Sorted = false
			c.log.Warn("sequence failed to sort", "sequence", req.Sequence.String(), "N", req.N, "trial", trial)
			break
		}
	}
	summary.MeanComparison = total / float64(req.Trials)
	return summary, nil
}

func workers(threads int) int {
	if threads <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return threads
}

func toModelDiagnostics(in []evo.GenerationDiagnostics) []model.GenerationDiagnostics {
	out := make([]model.GenerationDiagnostics, len(in))
	for i, d := range in {
		out[i] = model.GenerationDiagnostics{
			Generation:        d.Generation,
			BestFitness:       d.BestFitness,
			BestEverFitness:   d.BestEverFitness,
			MeanFitness:       d.MeanFitness,
			StdDevFitness:     d.StdDevFitness,
			WorstFitness:      d.WorstFitness,
			Abandoned:         d.Abandoned,
			DistinctSequences: d.DistinctSequence,
			MeanLength:        d.MeanLength,
			Stall:             d.Stall,
			Trials:            d.Trials,
			Improved:          d.Improved,
			ElapsedSeconds:    d.ElapsedSeconds,
		}
	}
	return out
}

func toModelLineage(in []evo.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, len(in))
	for i, r := range in {
		out[i] = model.LineageRecord{
			VersionedRecord: storage.Versioned(),
			CandidateID:     r.CandidateID,
			ParentIDs:       append([]string(nil), r.ParentIDs...),
			Generation:      r.Generation,
			Operation:       r.Operation,
			Sequence:        r.Sequence,
		}
	}
	return out
}

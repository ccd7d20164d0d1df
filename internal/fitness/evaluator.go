// Package fitness scores gap sequences by the mean Shellsort comparison count
// they need on the fixed permutation corpus, weighted across target sizes.
package fitness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"gapsearch/internal/corpus"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/shellsort"
)

const (
	// DefaultMargin is the relative amount a candidate's leading-trial mean
	// may exceed the champion's mean for the same size before it is abandoned.
	DefaultMargin = 0.02
	// DefaultFraction is the share of a size's trials run before the
	// abandonment check.
	DefaultFraction = 0.25
)

var ErrNoTargets = errors.New("at least one target size is required")

// Target is one weighted problem size and the number of leading corpus trials
// scored for it.
type Target struct {
	Size   int     `json:"size" yaml:"size"`
	Weight float64 `json:"weight" yaml:"weight"`
	Trials int     `json:"trials" yaml:"trials"`
}

// EarlyStop configures abandonment of clearly inferior candidates. A zero
// Fraction disables it.
type EarlyStop struct {
	Margin   float64 `json:"margin" yaml:"margin"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

func DefaultEarlyStop() EarlyStop {
	return EarlyStop{Margin: DefaultMargin, Fraction: DefaultFraction}
}

func (e EarlyStop) Enabled() bool {
	return e.Fraction > 0 && e.Fraction < 1
}

// Source supplies corpus datasets by size. *corpus.Corpus implements it.
type Source interface {
	Dataset(n int) (*corpus.Dataset, error)
}

// Recorder receives evaluation counters. *metrics.Collectors implements it.
type Recorder interface {
	ObserveEvaluation(abandoned bool, trials int)
	ObserveCacheHit()
}

type noopRecorder struct{}

func (noopRecorder) ObserveEvaluation(bool, int) {}
func (noopRecorder) ObserveCacheHit()            {}

type Config struct {
	Corpus    Source
	Targets   []Target
	EarlyStop EarlyStop
	// Threads caps the number of concurrently sorting goroutines.
	Threads  int
	Logger   *slog.Logger
	Recorder Recorder
}

type SizeResult struct {
	Size        int     `json:"size"`
	Weight      float64 `json:"weight"`
	Mean        float64 `json:"mean"`
	TrialsRun   int     `json:"trials_run"`
	Abandoned   bool    `json:"abandoned,omitempty"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

// Result is the outcome of scoring one sequence. Complete results carry the
// exact weighted mean; abandoned ones carry a penalized estimate.
type Result struct {
	Sequence  gapseq.Sequence `json:"sequence"`
	Fitness   float64         `json:"fitness"`
	Sizes     []SizeResult    `json:"sizes"`
	Abandoned bool            `json:"abandoned,omitempty"`
	Complete  bool            `json:"complete"`
}

// TrialsRun is the number of sorts performed across all sizes.
func (r Result) TrialsRun() int {
	total := 0
	for _, s := range r.Sizes {
		total += s.TrialsRun
	}
	return total
}

// Reference is the champion an early-stop decision is measured against.
type Reference struct {
	Sequence gapseq.Sequence
	Means    map[int]float64
}

// NewReference captures the per-size means of a complete result. It returns
// nil for abandoned results, which never become champions.
func NewReference(r Result) *Reference {
	if !r.Complete {
		return nil
	}
	means := make(map[int]float64, len(r.Sizes))
	for _, s := range r.Sizes {
		if s.Unavailable {
			continue
		}
		means[s.Size] = s.Mean
	}
	return &Reference{Sequence: r.Sequence.Clone(), Means: means}
}

type sizeData struct {
	target      Target
	dataset     *corpus.Dataset
	unavailable bool
}

type Evaluator struct {
	cfg   Config
	sizes []sizeData

	mu    sync.Mutex
	cache map[string]Result
}

// NewEvaluator resolves every target against the corpus. Sizes whose data
// cannot be loaded are kept as unavailable; if none can be loaded the
// returned error wraps the first corpus.DataError.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Corpus == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if len(cfg.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.EarlyStop.Margin < 0 {
		return nil, fmt.Errorf("early stop margin must be >= 0, got %g", cfg.EarlyStop.Margin)
	}
	if cfg.EarlyStop.Fraction < 0 || cfg.EarlyStop.Fraction > 1 {
		return nil, fmt.Errorf("early stop fraction must be in [0, 1], got %g", cfg.EarlyStop.Fraction)
	}

	sizes := make([]sizeData, 0, len(cfg.Targets))
	seen := make(map[int]struct{}, len(cfg.Targets))
	var firstDataErr error
	for i, target := range cfg.Targets {
		if target.Size <= 0 {
			return nil, fmt.Errorf("target %d: size must be > 0", i)
		}
		if target.Weight <= 0 {
			return nil, fmt.Errorf("target %d (N=%d): weight must be > 0", i, target.Size)
		}
		if target.Trials <= 0 {
			return nil, fmt.Errorf("target %d (N=%d): trials must be > 0", i, target.Size)
		}
		if _, dup := seen[target.Size]; dup {
			return nil, fmt.Errorf("target %d: duplicate size %d", i, target.Size)
		}
		seen[target.Size] = struct{}{}

		ds, err := cfg.Corpus.Dataset(target.Size)
		if err == nil && ds.Trials == 0 {
			err = &corpus.DataError{Size: target.Size, Reason: corpus.ReasonEmpty, Err: errors.New("dataset holds no trials")}
		}
		if err != nil {
			var dataErr *corpus.DataError
			if !errors.As(err, &dataErr) {
				return nil, err
			}
			cfg.Logger.Warn("target size unavailable", "size", target.Size, "error", err)
			if firstDataErr == nil {
				firstDataErr = err
			}
			sizes = append(sizes, sizeData{target: target, unavailable: true})
			continue
		}
		if target.Trials > ds.Trials {
			cfg.Logger.Warn("target trials exceed corpus, clamping", "size", target.Size, "requested", target.Trials, "available", ds.Trials)
			target.Trials = ds.Trials
		}
		sizes = append(sizes, sizeData{target: target, dataset: ds})
	}
	if firstDataErr != nil && allUnavailable(sizes) {
		return nil, fmt.Errorf("%w: %w", corpus.ErrNoDatasets, firstDataErr)
	}

	return &Evaluator{cfg: cfg, sizes: sizes, cache: map[string]Result{}}, nil
}

func allUnavailable(sizes []sizeData) bool {
	for _, s := range sizes {
		if !s.unavailable {
			return false
		}
	}
	return true
}

// Targets returns the resolved targets, with trial counts clamped to the
// corpus.
func (e *Evaluator) Targets() []Target {
	out := make([]Target, 0, len(e.sizes))
	for _, s := range e.sizes {
		out = append(out, s.target)
	}
	return out
}

func (e *Evaluator) Threads() int {
	return e.cfg.Threads
}

// Evaluate scores seq using the whole thread budget for its trials.
func (e *Evaluator) Evaluate(ctx context.Context, seq gapseq.Sequence, ref *Reference) (Result, error) {
	return e.evaluate(ctx, seq, ref, e.cfg.Threads)
}

// EvaluatePopulation scores every sequence. Candidates and their trials are
// both parallel, with outer*inner never above the thread budget. Results are
// returned in input order.
func (e *Evaluator) EvaluatePopulation(ctx context.Context, seqs []gapseq.Sequence, ref *Reference) ([]Result, error) {
	outer, inner := Budget(e.cfg.Threads, len(seqs))
	results := make([]Result, len(seqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(outer)
	for i, seq := range seqs {
		g.Go(func() error {
			res, err := e.evaluate(gctx, seq, ref, inner)
			if err != nil {
				return fmt.Errorf("evaluate candidate %d %s: %w", i, seq, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Budget splits threads between candidate-level and trial-level workers.
func Budget(threads, candidates int) (outer, inner int) {
	if threads <= 0 {
		threads = 1
	}
	if candidates <= 0 {
		return 1, threads
	}
	outer = min(threads, candidates)
	inner = max(1, threads/outer)
	return outer, inner
}

func (e *Evaluator) evaluate(ctx context.Context, seq gapseq.Sequence, ref *Reference, workers int) (Result, error) {
	if err := gapseq.Validate(seq); err != nil {
		return Result{}, err
	}
	key := seq.Key()
	if cached, ok := e.cached(key); ok {
		e.cfg.Recorder.ObserveCacheHit()
		return cached, nil
	}

	earlyStop := e.cfg.EarlyStop.Enabled() && ref != nil && !ref.Sequence.Equal(seq)
	res := Result{Sequence: seq.Clone(), Sizes: make([]SizeResult, 0, len(e.sizes))}

	abandonedAt := -1
	for i, size := range e.sizes {
		sr := SizeResult{Size: size.target.Size, Weight: size.target.Weight}
		if size.unavailable {
			sr.Unavailable = true
			res.Sizes = append(res.Sizes, sr)
			continue
		}
		if abandonedAt >= 0 {
			res.Sizes = append(res.Sizes, sr)
			continue
		}

		refMean, haveRef := 0.0, false
		if earlyStop {
			refMean, haveRef = ref.Means[sr.Size]
		}
		mean, run, abandoned, err := e.scoreSize(ctx, size, seq, workers, refMean, haveRef)
		if err != nil {
			return Result{}, err
		}
		sr.Mean, sr.TrialsRun, sr.Abandoned = mean, run, abandoned
		res.Sizes = append(res.Sizes, sr)
		if abandoned {
			abandonedAt = i
			e.cfg.Logger.Debug("candidate abandoned", "sequence", seq.String(), "size", sr.Size, "partial_mean", mean, "champion_mean", refMean, "trials", run)
		}
	}

	if abandonedAt >= 0 {
		res.Abandoned = true
		res.Fitness = e.penalized(res.Sizes, ref)
	} else {
		res.Complete = true
		res.Fitness = weightedMean(res.Sizes)
		e.store(key, res)
	}
	e.cfg.Recorder.ObserveEvaluation(res.Abandoned, res.TrialsRun())
	return res, nil
}

// scoreSize runs the leading trials first when a champion mean is known and
// stops there if the candidate is already worse than the champion by more
// than the margin.
func (e *Evaluator) scoreSize(ctx context.Context, size sizeData, seq gapseq.Sequence, workers int, refMean float64, haveRef bool) (float64, int, bool, error) {
	trials := size.target.Trials
	counts := make([]uint64, trials)

	split := trials
	if haveRef {
		split = LeadingTrials(trials, e.cfg.EarlyStop.Fraction)
	}
	if err := countTrials(ctx, size.dataset, seq, counts[:split], 0, workers); err != nil {
		return 0, 0, false, err
	}
	if split < trials {
		partial := mean(counts[:split])
		if partial > refMean*(1+e.cfg.EarlyStop.Margin) {
			return partial, split, true, nil
		}
		if err := countTrials(ctx, size.dataset, seq, counts[split:], split, workers); err != nil {
			return 0, 0, false, err
		}
	}
	return mean(counts), trials, false, nil
}

// LeadingTrials is the number of trials run before the abandonment check,
// ceil(fraction*trials) clamped to [1, trials].
func LeadingTrials(trials int, fraction float64) int {
	n := int(math.Ceil(fraction * float64(trials)))
	return min(max(n, 1), trials)
}

// countTrials sorts trials [offset, offset+len(out)) in contiguous chunks,
// one private scratch buffer per worker.
func countTrials(ctx context.Context, ds *corpus.Dataset, seq gapseq.Sequence, out []uint64, offset, workers int) error {
	n := len(out)
	if n == 0 {
		return nil
	}
	workers = min(max(workers, 1), n)
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			var scratch []int32
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i], scratch = shellsort.Count(ds.Trial(offset+i), seq, scratch)
			}
			return nil
		})
	}
	return g.Wait()
}

func mean(counts []uint64) float64 {
	if len(counts) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	return sum / float64(len(counts))
}

func weightedMean(sizes []SizeResult) float64 {
	var sum, weights float64
	for _, s := range sizes {
		if s.Unavailable {
			continue
		}
		sum += s.Weight * s.Mean
		weights += s.Weight
	}
	if weights == 0 {
		return math.Inf(1)
	}
	return sum / weights
}

// penalized estimates an abandoned candidate's fitness: the partial mean for
// the abandoned size and the champion mean plus margin for skipped sizes. The
// estimate is floored at the champion's fitness and scaled by (1+margin).
func (e *Evaluator) penalized(sizes []SizeResult, ref *Reference) float64 {
	margin := e.cfg.EarlyStop.Margin
	var sum, champion, weights float64
	for _, s := range sizes {
		if s.Unavailable {
			continue
		}
		refMean, haveRef := ref.Means[s.Size]
		value := s.Mean
		switch {
		case s.TrialsRun > 0 && !haveRef:
			refMean = s.Mean
		case s.TrialsRun == 0 && haveRef:
			value = refMean * (1 + margin)
		case s.TrialsRun == 0:
			// skipped and no champion mean to stand in for it
			continue
		}
		sum += s.Weight * value
		champion += s.Weight * refMean
		weights += s.Weight
	}
	if weights == 0 {
		return math.Inf(1)
	}
	return max(sum, champion) / weights * (1 + margin)
}

func (e *Evaluator) cached(key string) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.cache[key]
	if !ok {
		return Result{}, false
	}
	res.Sequence = res.Sequence.Clone()
	res.Sizes = append([]SizeResult(nil), res.Sizes...)
	return res, true
}

func (e *Evaluator) store(key string, res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := res
	stored.Sequence = res.Sequence.Clone()
	stored.Sizes = append([]SizeResult(nil), res.Sizes...)
	e.cache[key] = stored
}

// CacheSize reports how many complete results are memoised.
func (e *Evaluator) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

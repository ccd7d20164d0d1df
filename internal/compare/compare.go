package compare

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gapsearch/internal/corpus"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/shellsort"
)

// Significance levels reported by Compare.
var Alphas = []float64{0.05, 0.01, 0.001}

// Samples holds one value per trial, in trial order.
type Samples struct {
	Comparisons []uint64
	Moves       []uint64
	Runtime     []time.Duration
}

// Collect sorts the leading trials of ds with seq. Each worker sorts a private
// copy of its contiguous block of trials.
func Collect(ctx context.Context, ds *corpus.Dataset, seq gapseq.Sequence, trials, workers int) (Samples, error) {
	if err := gapseq.Validate(seq); err != nil {
		return Samples{}, err
	}
	if trials <= 0 || trials > ds.Trials {
		trials = ds.Trials
	}
	workers = min(max(workers, 1), trials)
	out := Samples{
		Comparisons: make([]uint64, trials),
		Moves:       make([]uint64, trials),
		Runtime:     make([]time.Duration, trials),
	}

	chunk := (trials + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < trials; start += chunk {
		end := min(start+chunk, trials)
		g.Go(func() error {
			var scratch []int32
			for t := start; t < end; t++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				began := time.Now()
				var stats shellsort.Stats
				stats, scratch = shellsort.CountStats(ds.Trial(t), seq, scratch)
				out.Runtime[t] = time.Since(began)
				out.Comparisons[t] = stats.Comparisons
				out.Moves[t] = stats.Moves
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Samples{}, err
	}
	return out, nil
}

// SequenceStats summarizes one sequence on one corpus size.
type SequenceStats struct {
	Name           string          `json:"name"`
	Sequence       gapseq.Sequence `json:"sequence"`
	Size           int             `json:"size"`
	Comparisons    Summary         `json:"comparisons"`
	Moves          Summary         `json:"moves"`
	RuntimeMicros  Summary         `json:"runtime_us"`
	comparisonsRaw []uint64
}

// Bench collects and summarizes seq on ds.
func Bench(ctx context.Context, ds *corpus.Dataset, seq gapseq.Named, trials, workers int) (SequenceStats, error) {
	samples, err := Collect(ctx, ds, seq.Gaps, trials, workers)
	if err != nil {
		return SequenceStats{}, fmt.Errorf("bench %s on N=%d: %w", seq.Name, ds.N, err)
	}
	micros := make([]float64, len(samples.Runtime))
	for i, d := range samples.Runtime {
		micros[i] = float64(d.Nanoseconds()) / 1e3
	}
	return SequenceStats{
		Name:           seq.Name,
		Sequence:       seq.Gaps.Clone(),
		Size:           ds.N,
		Comparisons:    Summarize(samples.Comparisons),
		Moves:          Summarize(samples.Moves),
		RuntimeMicros:  Summarize(micros),
		comparisonsRaw: samples.Comparisons,
	}, nil
}

// Report certifies a candidate against a reference on one size.
type Report struct {
	Size        int             `json:"size"`
	Trials      int             `json:"trials"`
	Reference   SequenceStats   `json:"reference"`
	Candidate   SequenceStats   `json:"candidate"`
	Paired      PairedResult    `json:"paired"`
	Improvement float64         `json:"improvement_pct"`
	Significant map[string]bool `json:"significant"`
}

// Compare runs both sequences on the same leading trials of ds.
func Compare(ctx context.Context, ds *corpus.Dataset, reference, candidate gapseq.Named, trials, workers int) (Report, error) {
	ref, err := Bench(ctx, ds, reference, trials, workers)
	if err != nil {
		return Report{}, err
	}
	cand, err := Bench(ctx, ds, candidate, trials, workers)
	if err != nil {
		return Report{}, err
	}
	paired, err := Paired(ref.comparisonsRaw, cand.comparisonsRaw)
	if err != nil {
		return Report{}, fmt.Errorf("paired test on N=%d: %w", ds.N, err)
	}

	significant := make(map[string]bool, len(Alphas))
	for _, alpha := range Alphas {
		significant[fmt.Sprintf("%g", alpha)] = paired.Significant(alpha)
	}
	return Report{
		Size:        ds.N,
		Trials:      paired.N,
		Reference:   ref,
		Candidate:   cand,
		Paired:      paired,
		Improvement: Improvement(ref.Comparisons.Mean, cand.Comparisons.Mean),
		Significant: significant,
	}, nil
}

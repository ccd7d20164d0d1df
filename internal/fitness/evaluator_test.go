package fitness

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsearch/internal/corpus"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/shellsort"
)

const testMaster uint64 = 0xC0FFEE1234

var ciura = gapseq.Sequence{1, 4, 10, 23, 57, 132}

type countingRecorder struct {
	evaluations atomic.Int64
	abandoned   atomic.Int64
	cacheHits   atomic.Int64
}

func (r *countingRecorder) ObserveEvaluation(abandoned bool, _ int) {
	r.evaluations.Add(1)
	if abandoned {
		r.abandoned.Add(1)
	}
}

func (r *countingRecorder) ObserveCacheHit() { r.cacheHits.Add(1) }

func testCorpus(t *testing.T, sizes ...int) *corpus.Corpus {
	t.Helper()
	datasets := make([]*corpus.Dataset, 0, len(sizes))
	for _, n := range sizes {
		ds, err := corpus.Generate(context.Background(), testMaster, n, 12, 2)
		require.NoError(t, err)
		datasets = append(datasets, ds)
	}
	return corpus.New(datasets...)
}

func directMean(t *testing.T, c *corpus.Corpus, n, trials int, seq gapseq.Sequence) float64 {
	t.Helper()
	ds, err := c.Dataset(n)
	require.NoError(t, err)
	var sum uint64
	for i := 0; i < trials; i++ {
		count, _ := shellsort.Count(ds.Trial(i), seq, nil)
		sum += count
	}
	return float64(sum) / float64(trials)
}

func TestFitnessIsWeightedMeanOfSizes(t *testing.T) {
	c := testCorpus(t, 100, 300)
	ev, err := NewEvaluator(Config{
		Corpus:  c,
		Targets: []Target{{Size: 100, Weight: 1, Trials: 8}, {Size: 300, Weight: 3, Trials: 10}},
		Threads: 3,
	})
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), ciura, nil)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.False(t, res.Abandoned)

	m100 := directMean(t, c, 100, 8, ciura)
	m300 := directMean(t, c, 300, 10, ciura)
	assert.InEpsilon(t, (m100+3*m300)/4, res.Fitness, 1e-6)
	assert.InEpsilon(t, m100, res.Sizes[0].Mean, 1e-9)
	assert.Equal(t, 18, res.TrialsRun())
}

func TestEvaluateIndependentOfThreads(t *testing.T) {
	c := testCorpus(t, 200)
	targets := []Target{{Size: 200, Weight: 1, Trials: 12}}
	seqs := []gapseq.Sequence{ciura, {1, 3, 7, 16, 36, 81}, {1, 8, 23, 77}}

	var want []Result
	for _, threads := range []int{1, 2, 7} {
		ev, err := NewEvaluator(Config{Corpus: c, Targets: targets, Threads: threads})
		require.NoError(t, err)
		got, err := ev.EvaluatePopulation(context.Background(), seqs, nil)
		require.NoError(t, err)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "threads=%d", threads)
	}
}

func TestEarlyStopAbandonsInferiorCandidate(t *testing.T) {
	c := testCorpus(t, 200, 400)
	rec := &countingRecorder{}
	ev, err := NewEvaluator(Config{
		Corpus:    c,
		Targets:   []Target{{Size: 200, Weight: 1, Trials: 12}, {Size: 400, Weight: 1, Trials: 12}},
		EarlyStop: DefaultEarlyStop(),
		Threads:   2,
		Recorder:  rec,
	})
	require.NoError(t, err)

	champ, err := ev.Evaluate(context.Background(), ciura, nil)
	require.NoError(t, err)
	ref := NewReference(champ)
	require.NotNil(t, ref)

	// Plain insertion sort is far worse than the champion on every size.
	res, err := ev.Evaluate(context.Background(), gapseq.Sequence{1}, ref)
	require.NoError(t, err)
	assert.True(t, res.Abandoned)
	assert.False(t, res.Complete)
	assert.True(t, res.Sizes[0].Abandoned)
	assert.Equal(t, 3, res.Sizes[0].TrialsRun)
	assert.Equal(t, 0, res.Sizes[1].TrialsRun)
	assert.Greater(t, res.Fitness, champ.Fitness*(1+DefaultMargin))
	assert.Nil(t, NewReference(res))
	assert.EqualValues(t, 1, rec.abandoned.Load())

	// Abandoned results are not memoised.
	assert.Equal(t, 1, ev.CacheSize())
}

func TestChampionIsNeverAbandoned(t *testing.T) {
	c := testCorpus(t, 200)
	ev, err := NewEvaluator(Config{
		Corpus:    c,
		Targets:   []Target{{Size: 200, Weight: 1, Trials: 12}},
		EarlyStop: EarlyStop{Margin: 0, Fraction: 0.25},
	})
	require.NoError(t, err)

	first, err := ev.Evaluate(context.Background(), gapseq.Sequence{1}, nil)
	require.NoError(t, err)
	ref := NewReference(first)

	again, err := ev.Evaluate(context.Background(), gapseq.Sequence{1}, ref)
	require.NoError(t, err)
	assert.True(t, again.Complete)
	assert.Equal(t, first.Fitness, again.Fitness)
}

func TestUnavailableSizeExcludedFromWeights(t *testing.T) {
	c := testCorpus(t, 100)
	ev, err := NewEvaluator(Config{
		Corpus:  c,
		Targets: []Target{{Size: 100, Weight: 1, Trials: 6}, {Size: 5000, Weight: 9, Trials: 6}},
	})
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), ciura, nil)
	require.NoError(t, err)
	require.Len(t, res.Sizes, 2)
	assert.True(t, res.Sizes[1].Unavailable)
	assert.Zero(t, res.Sizes[1].Mean)
	assert.InEpsilon(t, directMean(t, c, 100, 6, ciura), res.Fitness, 1e-9)
}

func TestEmptyDatasetIsUnavailable(t *testing.T) {
	empty, err := corpus.NewDataset(50, testMaster, nil)
	require.NoError(t, err)
	full, err := corpus.Generate(context.Background(), testMaster, 100, 4, 1)
	require.NoError(t, err)

	c := corpus.New(empty, full)
	ev, err := NewEvaluator(Config{
		Corpus:  c,
		Targets: []Target{{Size: 50, Weight: 1, Trials: 4}, {Size: 100, Weight: 1, Trials: 4}},
	})
	require.NoError(t, err)
	res, err := ev.Evaluate(context.Background(), ciura, nil)
	require.NoError(t, err)
	assert.True(t, res.Sizes[0].Unavailable)
	assert.False(t, math.IsNaN(res.Fitness))
	assert.InEpsilon(t, directMean(t, c, 100, 4, ciura), res.Fitness, 1e-9)

	_, err = NewEvaluator(Config{
		Corpus:  corpus.New(empty),
		Targets: []Target{{Size: 50, Weight: 1, Trials: 4}},
	})
	var dataErr *corpus.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, corpus.ReasonEmpty, dataErr.Reason)
}

func TestPenalizedWithoutChampionMean(t *testing.T) {
	ev := &Evaluator{cfg: Config{EarlyStop: EarlyStop{Margin: 0.02, Fraction: 0.25}}}
	ref := &Reference{Means: map[int]float64{100: 40}}

	sizes := []SizeResult{
		{Size: 100, Weight: 1, Mean: 50, TrialsRun: 3, Abandoned: true},
		{Size: 200, Weight: 1},
	}
	assert.InEpsilon(t, 51.0, ev.penalized(sizes, ref), 1e-12)

	sizes = []SizeResult{
		{Size: 300, Weight: 1, Mean: 70, TrialsRun: 3, Abandoned: true},
		{Size: 100, Weight: 1},
	}
	assert.InEpsilon(t, (70+40*1.02)/2*1.02, ev.penalized(sizes, ref), 1e-12)

	assert.True(t, math.IsInf(ev.penalized([]SizeResult{{Size: 200, Weight: 1}}, ref), 1))
}

func TestAllSizesUnavailable(t *testing.T) {
	_, err := NewEvaluator(Config{
		Corpus:  corpus.New(),
		Targets: []Target{{Size: 100, Weight: 1, Trials: 6}},
	})
	require.ErrorIs(t, err, corpus.ErrNoDatasets)
	var dataErr *corpus.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, 100, dataErr.Size)
}

func TestInvalidConfigAndSequence(t *testing.T) {
	c := testCorpus(t, 100)
	_, err := NewEvaluator(Config{Corpus: c})
	require.ErrorIs(t, err, ErrNoTargets)

	_, err = NewEvaluator(Config{Corpus: c, Targets: []Target{{Size: 100, Weight: 0, Trials: 1}}})
	require.Error(t, err)

	_, err = NewEvaluator(Config{Corpus: c, Targets: []Target{{Size: 100, Weight: 1, Trials: 1}, {Size: 100, Weight: 1, Trials: 1}}})
	require.ErrorContains(t, err, "duplicate size")

	ev, err := NewEvaluator(Config{Corpus: c, Targets: []Target{{Size: 100, Weight: 1, Trials: 50}}})
	require.NoError(t, err)
	assert.Equal(t, 12, ev.Targets()[0].Trials)

	_, err = ev.Evaluate(context.Background(), gapseq.Sequence{4, 10}, nil)
	var vErr *gapseq.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCacheHits(t *testing.T) {
	c := testCorpus(t, 100)
	rec := &countingRecorder{}
	ev, err := NewEvaluator(Config{Corpus: c, Targets: []Target{{Size: 100, Weight: 1, Trials: 4}}, Recorder: rec})
	require.NoError(t, err)

	a, err := ev.Evaluate(context.Background(), ciura, nil)
	require.NoError(t, err)
	a.Sizes[0].Mean = -1

	b, err := ev.Evaluate(context.Background(), ciura.Clone(), nil)
	require.NoError(t, err)
	assert.Positive(t, b.Sizes[0].Mean)
	assert.EqualValues(t, 1, rec.cacheHits.Load())
	assert.EqualValues(t, 1, rec.evaluations.Load())
}

func TestBudget(t *testing.T) {
	cases := []struct {
		threads, candidates int
		outer, inner        int
	}{
		{threads: 8, candidates: 20, outer: 8, inner: 1},
		{threads: 8, candidates: 3, outer: 3, inner: 2},
		{threads: 1, candidates: 5, outer: 1, inner: 1},
		{threads: 0, candidates: 0, outer: 1, inner: 1},
	}
	for _, tc := range cases {
		outer, inner := Budget(tc.threads, tc.candidates)
		assert.Equal(t, tc.outer, outer)
		assert.Equal(t, tc.inner, inner)
		assert.LessOrEqual(t, outer*inner, max(tc.threads, 1))
	}
}

func TestLeadingTrials(t *testing.T) {
	assert.Equal(t, 5, LeadingTrials(20, 0.25))
	assert.Equal(t, 1, LeadingTrials(3, 0.25))
	assert.Equal(t, 10, LeadingTrials(10, 1))
	assert.Equal(t, 1, LeadingTrials(10, 0))
}

func TestEvaluateCanceled(t *testing.T) {
	c := testCorpus(t, 100)
	ev, err := NewEvaluator(Config{Corpus: c, Targets: []Target{{Size: 100, Weight: 1, Trials: 4}}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ev.Evaluate(ctx, ciura, nil)
	require.ErrorIs(t, err, context.Canceled)
}

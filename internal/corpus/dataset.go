package corpus

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"gapsearch/internal/rng"
)

// Dataset is an immutable set of permutations of {0..N-1} for one size.
type Dataset struct {
	N          int
	Trials     int
	MasterSeed uint64

	data []int32
}

// NewDataset wraps rows that were produced elsewhere. Every row must have
// length n.
func NewDataset(n int, masterSeed uint64, rows [][]int32) (*Dataset, error) {
	data := make([]int32, 0, n*len(rows))
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has length %d, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	return &Dataset{N: n, Trials: len(rows), MasterSeed: masterSeed, data: data}, nil
}

// Trial returns a read-only view of permutation i. Callers that sort must
// copy it first.
func (d *Dataset) Trial(i int) []int32 {
	start := i * d.N
	end := start + d.N
	return d.data[start:end:end]
}

// Bytes is the payload size in bytes.
func (d *Dataset) Bytes() uint64 {
	return uint64(len(d.data)) * 4
}

// Generate builds trials permutations of size n. Each trial seeds its own
// generator from (masterSeed, n, trial), so the output does not depend on
// workers.
func Generate(ctx context.Context, masterSeed uint64, n, trials, workers int) (*Dataset, error) {
	if n <= 0 {
		return nil, fmt.Errorf("size must be > 0, got %d", n)
	}
	if trials <= 0 {
		return nil, fmt.Errorf("trials must be > 0, got %d", trials)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ds := &Dataset{N: n, Trials: trials, MasterSeed: masterSeed, data: make([]int32, n*trials)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for t := 0; t < trials; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := ds.data[t*n : (t+1)*n]
			rng.FillPermutation(row, masterSeed, uint64(t))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Corpus groups datasets by size and remembers sizes that failed to load.
type Corpus struct {
	datasets map[int]*Dataset
	failures map[int]error
}

func New(datasets ...*Dataset) *Corpus {
	c := &Corpus{datasets: map[int]*Dataset{}, failures: map[int]error{}}
	for _, ds := range datasets {
		c.datasets[ds.N] = ds
	}
	return c
}

// MarkUnavailable records why size n cannot be used.
func (c *Corpus) MarkUnavailable(n int, err error) {
	delete(c.datasets, n)
	c.failures[n] = err
}

// Dataset returns the dataset for size n, or a *DataError when the size is
// missing or failed to load.
func (c *Corpus) Dataset(n int) (*Dataset, error) {
	if ds, ok := c.datasets[n]; ok {
		return ds, nil
	}
	if err, ok := c.failures[n]; ok {
		return nil, err
	}
	return nil, &DataError{Size: n, Reason: ReasonUnavailable}
}

// Sizes returns the available sizes in ascending order.
func (c *Corpus) Sizes() []int {
	sizes := make([]int, 0, len(c.datasets))
	for n := range c.datasets {
		sizes = append(sizes, n)
	}
	sort.Ints(sizes)
	return sizes
}

// Failures returns the recorded per-size load errors.
func (c *Corpus) Failures() map[int]error {
	out := make(map[int]error, len(c.failures))
	for n, err := range c.failures {
		out[n] = err
	}
	return out
}

package dataset

import (
	"context"
	"fmt"
	"golang.org/x/sync/errgroup"
	"math/rand"
	"nilmprep/core"
	"sync/atomic"
)

// Batch stacks samples: Input is (n, Length+2*Border, 1), Target and Status
// are (n, Length, appliances).
type Batch struct {
	Indices []int
	Input   *core.Tensor
	Target  *core.Tensor
	Status  *core.Tensor
}

type LoaderConfig struct {
	BatchSize int
	Workers   int
	// Shuffle permutes the evaluation order on every pass.
	Shuffle bool
	Seed    int64
}

// Loader fetches batches of a dataset with a fixed pool of workers.
type Loader struct {
	dataset *Dataset
	config  LoaderConfig
	passes  int64
}

func NewLoader(dataset *Dataset, config LoaderConfig) (*Loader, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Loader{dataset: dataset, config: config}, nil
}

// Batches returns the number of batches in one pass.
func (loader *Loader) Batches() int {
	return (loader.dataset.Len() + loader.config.BatchSize - 1) / loader.config.BatchSize
}

// Each walks one pass over the dataset and calls fn with every batch, in
// order. It stops at the first error from the dataset, fn or ctx.
func (loader *Loader) Each(ctx context.Context, fn func(*Batch) error) error {
	n := loader.dataset.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if loader.config.Shuffle {
		pass := atomic.AddInt64(&loader.passes, 1)
		order = rand.New(rand.NewSource(loader.config.Seed + pass)).Perm(n)
	}
	for from := 0; from < n; from += loader.config.BatchSize {
		to := from + loader.config.BatchSize
		if to > n {
			to = n
		}
		batch, err := loader.Batch(ctx, order[from:to])
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// Batch fetches the samples at indices concurrently.
func (loader *Loader) Batch(ctx context.Context, indices []int) (*Batch, error) {
	samples := make([]*Sample, len(indices))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(loader.config.Workers)
	for i, index := range indices {
		i, index := i, index
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sample, err := loader.dataset.Get(index)
			if err != nil {
				return err
			}
			samples[i] = sample
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return stack(indices, samples, loader.dataset.config, loader.dataset.appliances), nil
}

func stack(indices []int, samples []*Sample, config Config, appliances int) *Batch {
	n := len(samples)
	batch := &Batch{
		Indices: append([]int(nil), indices...),
		Input:   core.NewTensor(n, config.Length+2*config.Border, 1),
		Target:  core.NewTensor(n, config.Length, appliances),
		Status:  core.NewTensor(n, config.Length, appliances),
	}
	for i, sample := range samples {
		batch.Input.SetChannel(i, 0, sample.Input)
		copy(batch.Target.Data[i*config.Length*appliances:], sample.Target.Data)
		copy(batch.Status.Data[i*config.Length*appliances:], sample.Status.Data)
	}
	return batch
}

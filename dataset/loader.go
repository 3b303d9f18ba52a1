package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// Loader iterates a dataset in batches for one epoch at a time. Batches are
// produced by a background goroutine into a bounded channel so sample loading
// overlaps with training; samples within a batch are fetched concurrently.
//
// Next returns (nil, nil) once the epoch is exhausted. Reset starts a fresh
// epoch, reshuffling when shuffling is enabled. The loader is not safe for
// concurrent use by multiple consumers.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	workers   int
	prefetch  int
	rng       *rand.Rand

	batches chan *Batch
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// LoaderConfig controls batching and prefetching.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Workers   int // concurrent sample fetches per batch; min 1
	Prefetch  int // batches buffered ahead of the consumer; min 1
	Seed      int64
}

// NewLoader validates the configuration against the dataset.
func NewLoader(ds Dataset, cfg LoaderConfig) (*Loader, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("loader requires a non-empty dataset")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	return &Loader{
		ds:        ds,
		batchSize: cfg.BatchSize,
		shuffle:   cfg.Shuffle,
		workers:   cfg.Workers,
		prefetch:  cfg.Prefetch,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next returns the next batch, or (nil, nil) at the end of the epoch. A
// failed sample load surfaces here.
func (l *Loader) Next() (*Batch, error) {
	if l.batches == nil {
		l.start()
	}
	b, ok := <-l.batches
	if !ok {
		if err := l.group.Wait(); err != nil && err != context.Canceled {
			return nil, err
		}
		return nil, nil
	}
	return b, nil
}

// Reset abandons the current epoch and prepares a new one.
func (l *Loader) Reset() {
	if l.cancel != nil {
		l.cancel()
		for range l.batches {
			// Drain so the producer can exit.
		}
		l.group.Wait()
		l.cancel = nil
	}
	l.batches = nil
}

func (l *Loader) start() {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	l.group = g

	batches := make(chan *Batch, l.prefetch)
	l.batches = batches

	g.Go(func() error {
		defer close(batches)
		for start := 0; start < len(order); start += l.batchSize {
			end := start + l.batchSize
			if end > len(order) {
				end = len(order)
			}
			batch, err := l.collate(ctx, order[start:end])
			if err != nil {
				return err
			}
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

// collate fetches the indexed samples concurrently and stacks them.
func (l *Loader) collate(ctx context.Context, indices []int) (*Batch, error) {
	samples := make([]*Sample, len(indices))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for slot, idx := range indices {
		slot, idx := slot, idx
		g.Go(func() error {
			s, err := l.ds.Get(idx)
			if err != nil {
				return fmt.Errorf("failed to load sample %d: %v", idx, err)
			}
			samples[slot] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Collate(samples)
}

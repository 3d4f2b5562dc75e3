package simulation

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// WorkerPool runs indexed jobs on a fixed number of goroutines.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool. Non-positive sizes default to the CPU count.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

type jobItem struct {
	index int
}

type resultItem struct {
	index int
	err   error
}

// Run calls fn for every index in [0, numJobs). The first failure cancels the
// remaining jobs. Errors are reported in index order, preferring the job error that
// caused the cancellation over the cancellations it triggered.
func (wp *WorkerPool) Run(ctx context.Context, numJobs int, fn func(ctx context.Context, index int) error) error {
	if numJobs == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan jobItem, numJobs)
	results := make(chan resultItem, numJobs)

	numActualWorkers := wp.numWorkers
	if numJobs < numActualWorkers {
		numActualWorkers = numJobs
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(runCtx, jobs, results, fn)
		}()
	}

	for idx := 0; idx < numJobs; idx++ {
		jobs <- jobItem{index: idx}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	errs := make([]error, numJobs)
	for result := range results {
		if result.err != nil {
			errs[result.index] = result.err
			cancel()
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

func worker(ctx context.Context, jobs <-chan jobItem, results chan<- resultItem, fn func(context.Context, int) error) {
	for job := range jobs {
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, job.index)
		}
		results <- resultItem{index: job.index, err: err}
	}
}

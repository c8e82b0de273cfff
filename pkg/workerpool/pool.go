// Package workerpool runs independent per-source work with bounded parallelism.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the pool.
type Config struct {
	MaxConcurrent int // default: 8
}

func DefaultConfig() Config {
	return Config{MaxConcurrent: 8}
}

// Pool bounds the number of items executing at once with a semaphore.
type Pool struct {
	config Config
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Item is one unit of work. ID is used for logging.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result carries the outcome of the item at the same index.
type Result[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes every item and returns results in submission order.
// A failing item does not stop the others; cancelled items report ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []Item[T],
	onProgress func(completed, total int),
) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	done := make(chan int, len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item[T]) {
			defer wg.Done()
			defer func() { done <- i }()

			if err := ctx.Err(); err != nil {
				results[i] = Result[T]{ID: item.ID, Err: err}
				return
			}
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Debug("Work item failed", zap.String("id", item.ID), zap.Error(err))
			}
			results[i] = Result[T]{ID: item.ID, Result: value, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}

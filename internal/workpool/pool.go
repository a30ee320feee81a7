// Package workpool runs batches of tasks with bounded concurrency.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task func(ctx context.Context) error

// Pool bounds how many tasks of a batch run at once.
type Pool struct {
	limit int
}

// New creates a pool running at most limit tasks concurrently.
func New(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit returns the concurrency bound.
func (p *Pool) Limit() int {
	return p.limit
}

// Run executes tasks and waits for every one of them. It returns the first
// task error; a panicking task is reported as an error. Tasks already
// started are not interrupted when another fails, but ctx passed to them is
// canceled so they can stop early.
func (p *Pool) Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, task := range tasks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			return task(gctx)
		})
	}
	return g.Wait()
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

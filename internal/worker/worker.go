// Package worker provides the bounded goroutine pool behind asynchronous
// ingest paths.
package worker

import (
	"context"
	"sync"
)

// Pool fans submitted jobs out to a fixed number of goroutines over a
// bounded buffer. Jobs accepted before Stop are drained; jobs submitted
// after Stop panic.
type Pool[T any] struct {
	workers int
	jobs    chan T
	process func(ctx context.Context, job T) error
	wg      sync.WaitGroup
}

func NewPool[T any](workers, bufferSize int, process func(ctx context.Context, job T) error) *Pool[T] {
	return &Pool[T]{
		workers: workers,
		jobs:    make(chan T, bufferSize),
		process: process,
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, job)
		}
	}
}

// Submit blocks while the buffer is full.
func (p *Pool[T]) Submit(job T) {
	p.jobs <- job
}

// TrySubmit reports false instead of blocking when the buffer is full.
func (p *Pool[T]) TrySubmit(job T) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for the workers to finish.
func (p *Pool[T]) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

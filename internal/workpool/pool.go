// Package workpool provides the one bounded worker pool used at both fan-out
// levels of the pipeline: tenant dispatch and per-page detail fetches. Keeping
// both on the same primitive makes the combined concurrency bound auditable in
// one place.
package workpool

import (
	"context"
	"sync"
)

// Run executes fn(i) for i in [0, n) on at most width concurrent workers and
// blocks until every task has returned. Tasks are responsible for their own
// error handling; the pool never aborts siblings. A cancelled ctx stops
// workers from picking up further tasks but lets in-flight ones finish.
func Run(ctx context.Context, width, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if width < 1 {
		width = 1
	}
	if width > n {
		width = n
	}

	tasks := make(chan int, n)
	for i := 0; i < n; i++ {
		tasks <- i
	}
	close(tasks)

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case i, ok := <-tasks:
					if !ok {
						return
					}
					fn(i)
				}
			}
		}()
	}
	wg.Wait()
}

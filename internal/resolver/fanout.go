package resolver

import (
	"context"
	"sync"
)

// fanOut runs fn for every index in jobs with at most workers in flight.
// Jobs that have not started when ctx ends are skipped and reported false.
// Each call writes only its own slot, so started needs no lock.
func fanOut(ctx context.Context, jobs []int, workers int, fn func(ctx context.Context, idx int)) []bool {
	if workers <= 0 {
		workers = 1
	}
	started := make([]bool, len(jobs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for n, idx := range jobs {
		wg.Add(1)
		go func(n, idx int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			started[n] = true
			fn(ctx, idx)
		}(n, idx)
	}
	wg.Wait()
	return started
}

package z

import "sync"

// BoundedEach runs fn(i) for every i in [0, n), at most max goroutines at a
// time, and reports the first error any call returns. It replaces a general
// worker-pool abstraction with exactly the shape reconcile() needs: a fixed
// amount of independent, index-addressable work with no per-item result to
// thread back other than pass/fail, so there's no separate Do/Done handshake
// or error channel to drain — a semaphore and a WaitGroup are enough.
func BoundedEach(max, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}

	sem := make(chan struct{}, max)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	return firstErr
}

package utils

import "sync"

// CompletedTask is the outcome of running the worker on inputs[Index].
type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool runs worker over inputs using at most maxWorkers goroutines.
// Results are delivered in completion order; the returned channel is closed
// once every input has been processed.
func RunInPool[In any, Out any](inputs []In, maxWorkers int, worker func(In) (Out, error)) <-chan CompletedTask[Out] {
	completed := make(chan CompletedTask[Out], len(inputs))

	workers := min(len(inputs), max(maxWorkers, 1))

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for idx := range queue {
				res, err := worker(inputs[idx])
				completed <- CompletedTask[Out]{Index: idx, Result: res, Error: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(completed)
	}()

	return completed
}

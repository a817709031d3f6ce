// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"
	"sync"
)

// Task is a named unit of work. Execute receives the pool's context.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

// Result holds the outcome of a Task, keyed by its name.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool runs a batch of tasks on a bounded number of workers.
// A Pool may be reused; each Execute call gets its own channels.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan Task, results chan<- Result) {
	defer wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			results <- run(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

func run(ctx context.Context, task Task) (result Result) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Data = nil
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute(ctx)
	return result
}

// Execute runs tasks concurrently and returns results by task name. When ctx is
// cancelled the results gathered so far are returned; missing tasks have no entry.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	var wg sync.WaitGroup
	results := make(map[string]Result, len(tasks))
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, taskCh, resultCh)
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	wg.Wait()
	return results
}

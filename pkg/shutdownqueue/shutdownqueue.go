// Package shutdownqueue collects cleanup tasks and drains them in LIFO order.
//
// Components register their own teardown (HTTP server, poster workers, audit
// dispatcher, cron sweeper, DB pool) right after they start, and main drains
// the queue once with a deadline:
//
//	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
//	defer cancel()
//	err := shutdownqueue.Shutdown(ctx)
//
// A Queue runs every task at most once. Panics are recovered and reported as
// errors; all task errors are joined with errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

// Named pairs a task with a label used in error messages.
type Named struct {
	Name string
	Task Task
}

// Queue is a LIFO list of shutdown tasks. The zero value is ready to use.
type Queue struct {
	mu     sync.Mutex
	tasks  []Named
	closed bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{tasks: make([]Named, 0, 8)}
}

// Add registers an unnamed task.
func (q *Queue) Add(t Task) {
	q.AddNamed("", t)
}

// AddNamed registers a task. Nil tasks and tasks added after Shutdown started
// are ignored.
func (q *Queue) AddNamed(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, Named{Name: name, Task: t})
}

// Len reports how many tasks are still pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown drains all registered tasks newest-first. Repeated calls are no-ops.
// If ctx ends mid-drain the remaining tasks are skipped and the context error
// is joined with the task errors collected so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.tasks) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := runTask(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, n Named) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task%s: %v", label(n.Name), r)
		}
	}()

	err = n.Task(ctx)
	if err != nil && n.Name != "" {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	return err
}

func label(name string) string {
	if name == "" {
		return ""
	}

	return " " + name
}

var std = New()

// Add registers t on the process-wide queue.
func Add(t Task) { std.Add(t) }

// AddNamed registers a labelled task on the process-wide queue.
func AddNamed(name string, t Task) { std.AddNamed(name, t) }

// Shutdown drains the process-wide queue.
func Shutdown(ctx context.Context) error { return std.Shutdown(ctx) }

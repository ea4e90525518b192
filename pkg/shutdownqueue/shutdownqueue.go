// Package shutdownqueue runs named cleanup tasks in reverse order of
// registration.
//
// One Queue is created per process (or per ledger instance) and every
// component that owns a resource registers its release on it:
//
//	sq := shutdownqueue.New()
//	defer func() {
//		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//		defer cancel()
//		_ = sq.Shutdown(ctx)
//	}()
//	sq.AddCloser("durable tier", tier)
//
// Each task runs at most once and a panicking task does not stop the rest.
// Shutdown may be called again; later calls only run tasks added since.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Task releases one resource. It should give up when ctx is done.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type Queue struct {
	mu       sync.Mutex
	tasks    []namedTask
	draining bool
}

func New() *Queue {
	return &Queue{}
}

// Add registers t under name. Nil tasks are ignored, and so is anything
// registered while a drain is in progress.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		slog.Warn("shutdown task registered during drain, ignoring", "task", name)
		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// AddCloser registers c.Close. The context is not passed to Close.
func (q *Queue) AddCloser(name string, c io.Closer) {
	if c == nil {
		return
	}

	q.Add(name, func(context.Context) error {
		return c.Close()
	})
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown runs the pending tasks newest first and joins their errors. When
// ctx ends mid-drain the remaining tasks are dropped and ctx's error is
// included in the result.
func (q *Queue) Shutdown(ctx context.Context) error {
	tasks := q.take()
	if len(tasks) == 0 {
		return nil
	}

	defer q.finish()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown canceled with %d task(s) left: %w", i+1, ctx.Err()))
			break
		}

		err := runTask(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) take() []namedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.tasks
	q.tasks = nil
	q.draining = len(tasks) > 0

	return tasks
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()
}

func runTask(ctx context.Context, t namedTask) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", t.name, r)
		}

		slog.Debug("shutdown task done", "task", t.name, "took", time.Since(start), "error", err)
	}()

	err = t.run(ctx)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", t.name, err)
	}

	return nil
}

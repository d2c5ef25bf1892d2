// Package worker bounds how many pipeline runs execute at once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is one unit of work run inside a slot.
type Task func(ctx context.Context) error

// PanicError reports a task that panicked. The slot that ran it keeps
// serving.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

type job struct {
	ctx  context.Context
	task Task
	done chan struct{}
	err  error
}

// Handle is the future returned by Submit.
type Handle struct {
	j *job
}

// Wait blocks until the task has finished and returns its error.
func (h *Handle) Wait() error {
	<-h.j.done
	return h.j.err
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.j.done }

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size      int   `json:"size"`
	Busy      int64 `json:"busy"`
	Waiting   int64 `json:"waiting"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool runs tasks on a fixed number of long-lived worker goroutines. The
// task channel is unbuffered: a submission is accepted only when a slot is
// free, and waiting submitters are served in arrival order.
//
// Shutdown refuses new submissions but keeps the workers running until every
// submitter that was already waiting has been served or has given up.
type Pool struct {
	size    int
	timeout time.Duration

	tasks chan *job
	// drained is closed once the pool is closed and no submitter is waiting.
	drained chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	waiting int64

	busy      atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool starts size workers. A positive taskTimeout puts a deadline on
// every task's context.
func NewPool(size int, taskTimeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:    size,
		timeout: taskTimeout,
		tasks:   make(chan *job),
		drained: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.processLoop(i)
	}
	slog.Info("worker pool started", "workers", size, "task_timeout", taskTimeout)
	return p
}

func (p *Pool) Size() int { return p.size }

// Submit hands task to the next free slot. It blocks while all slots are
// busy and gives up when ctx is done. A submitter already waiting when
// Shutdown starts is still served. Once accepted, the task runs to
// completion even if ctx is later cancelled; ctx values are still visible to
// the task.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.waiting++
	p.mu.Unlock()
	defer p.leave()

	j := &job{ctx: ctx, task: task, done: make(chan struct{})}
	select {
	case p.tasks <- j:
		p.submitted.Add(1)
		return &Handle{j: j}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) leave() {
	p.mu.Lock()
	p.waiting--
	if p.closed && p.waiting == 0 {
		p.once.Do(func() { close(p.drained) })
	}
	p.mu.Unlock()
}

// Do submits task and waits for its result.
func (p *Pool) Do(ctx context.Context, task Task) error {
	h, err := p.Submit(ctx, task)
	if err != nil {
		return err
	}
	return h.Wait()
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	if p.waiting == 0 {
		p.once.Do(func() { close(p.drained) })
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker pool drained", "completed", p.completed.Load(), "failed", p.failed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	waiting := p.waiting
	p.mu.Unlock()
	return Stats{
		Size:      p.size,
		Busy:      p.busy.Load(),
		Waiting:   waiting,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) processLoop(slot int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.drained:
			return
		case j := <-p.tasks:
			p.run(slot, j)
		}
	}
}

func (p *Pool) run(slot int, j *job) {
	p.busy.Add(1)
	ctx := context.WithoutCancel(j.ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	j.err = safeRun(ctx, j.task)
	if j.err != nil {
		p.failed.Add(1)
		var pe *PanicError
		if errors.As(j.err, &pe) {
			slog.Error("task panicked", "slot", slot, "panic", pe.Value, "stack", string(pe.Stack))
		}
	} else {
		p.completed.Add(1)
	}
	p.busy.Add(-1)
	close(j.done)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrTimeout is returned when a run does not complete within the timeout.
	ErrTimeout = errors.New("timeout reached")
	// ErrTaskPanic wraps a panic recovered while running a task.
	ErrTaskPanic = errors.New("task panicked")
	// ErrUnknownFailure is used when a task fails without giving a reason.
	ErrUnknownFailure = errors.New("task failed for unknown reason")
	// ErrAlreadyStarted is returned when running a runner twice.
	ErrAlreadyStarted = errors.New("runner already started")
)

// TimeoutError is the reason of a run that did not complete in time.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"Timeout reached. Protocol did not complete in %d sec.",
		int(e.Timeout.Seconds()),
	)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Interceptor is invoked right before each task is run. It may block to
// simulate delays, or return an error to make the task fail without running.
type Interceptor func(ctx context.Context, task string) error

// Handler receives the outcome of a run. Exactly one of its methods is
// called, exactly once.
type Handler struct {
	OnSuccess func()
	OnFault   func(task string, err error)
}

// Options tweak the behaviour of a Runner.
type Options struct {
	// Timeout for the whole sequence. Zero disables it.
	Timeout time.Duration
	// Interceptor is invoked before running every task.
	Interceptor Interceptor
	// OnTaskCompleted is called while holding the runner's lock, right after a
	// task is accepted as completed.
	OnTaskCompleted func(task string)
	// OnLateCallback is called when an outcome is reported for a task that is
	// no longer active.
	OnLateCallback func(task string)
}

// Runner executes an ordered list of tasks sequentially, stopping at the
// first failure.
type Runner struct {
	name    string
	tasks   []Task
	handler Handler
	opts    Options
	logger  *log.Entry

	mu      sync.Mutex
	state   State
	current *Handle
	failed  string
	err     error
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner returns a runner for the given tasks. Run must be called to start
// the sequence.
func NewRunner(
	name string, handler Handler, opts Options, tasks ...Task,
) *Runner {
	return &Runner{
		name:    name,
		tasks:   tasks,
		handler: handler,
		opts:    opts,
		logger:  log.WithField("runner", name),
		state:   StatePending,
		done:    make(chan struct{}),
	}
}

// Run starts the sequence and returns immediately.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StatePending {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.state = StateRunning
	r.ctx, r.cancel = context.WithCancel(ctx)
	if r.opts.Timeout > 0 {
		r.timer = time.AfterFunc(r.opts.Timeout, r.expire)
	}
	if len(r.tasks) <= 0 {
		r.state = StateCompleted
		r.stop()
		r.mu.Unlock()
		r.succeed()
		return nil
	}
	h := r.newHandle(0)
	r.mu.Unlock()

	go r.execute(h)
	return nil
}

// Done is closed once the runner reaches a terminal state.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the runner is terminated or the context is done, and
// returns the error that made the run fail, if any.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state of the runner.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the reason of the failure of the run, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// FailedTask returns the name of the task that failed, if any.
func (r *Runner) FailedTask() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *Runner) newHandle(index int) *Handle {
	h := &Handle{runner: r, task: r.tasks[index].Name(), index: index}
	r.current = h
	return h
}

func (r *Runner) execute(h *Handle) {
	t := r.tasks[h.index]
	defer func() {
		if rec := recover(); rec != nil {
			h.Fail(fmt.Errorf("%w: %v", ErrTaskPanic, rec))
		}
	}()

	if r.opts.Interceptor != nil {
		if err := r.opts.Interceptor(r.ctx, h.task); err != nil {
			h.Fail(err)
			return
		}
	}
	if !h.IsActive() {
		return
	}

	r.logger.WithField("task", h.task).Debug("running task")
	t.Run(r.ctx, h)
}

func (r *Runner) complete(h *Handle, apply func() error) bool {
	r.mu.Lock()
	if r.state != StateRunning || h.state != StatePending {
		r.mu.Unlock()
		r.lateCallback(h, "completion")
		return false
	}

	if apply != nil {
		if err := apply(); err != nil {
			r.failLocked(h, err)
			r.mu.Unlock()
			r.fault(h.task, err)
			return true
		}
	}

	h.state = StateCompleted
	if r.opts.OnTaskCompleted != nil {
		r.opts.OnTaskCompleted(h.task)
	}
	r.logger.WithField("task", h.task).Debug("task completed")

	next := h.index + 1
	if next >= len(r.tasks) {
		r.state = StateCompleted
		r.stop()
		r.mu.Unlock()
		r.succeed()
		return true
	}
	nh := r.newHandle(next)
	r.mu.Unlock()

	go r.execute(nh)
	return true
}

func (r *Runner) update(h *Handle, apply func() error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning || h.state != StatePending {
		return false, nil
	}
	if err := apply(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) fail(h *Handle, err error) bool {
	r.mu.Lock()
	if r.state != StateRunning || h.state != StatePending {
		r.mu.Unlock()
		r.lateCallback(h, "failure")
		return false
	}
	r.failLocked(h, err)
	r.mu.Unlock()

	r.fault(h.task, err)
	return true
}

func (r *Runner) failLocked(h *Handle, err error) {
	h.state = StateFailed
	r.state = StateFailed
	r.failed = h.task
	r.err = err
	r.stop()
}

func (r *Runner) expire() {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return
	}
	task := ""
	if r.current != nil {
		task = r.current.task
		if r.current.state == StatePending {
			r.current.state = StateSuperseded
		}
	}
	err := &TimeoutError{Timeout: r.opts.Timeout}
	r.state = StateFailed
	r.failed = task
	r.err = err
	r.stop()
	r.mu.Unlock()

	r.fault(task, err)
}

// stop must be called with the lock held.
func (r *Runner) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	close(r.done)
}

func (r *Runner) succeed() {
	r.logger.Debug("run completed")
	if r.handler.OnSuccess != nil {
		r.handler.OnSuccess()
	}
}

func (r *Runner) fault(task string, err error) {
	r.logger.WithError(err).WithField("task", task).Warn("run failed")
	if r.handler.OnFault != nil {
		r.handler.OnFault(task, err)
	}
}

func (r *Runner) lateCallback(h *Handle, kind string) {
	r.logger.WithFields(log.Fields{
		"task":  h.task,
		"state": r.State(),
	}).Warnf("ignoring late %s of task no longer active", kind)
	if r.opts.OnLateCallback != nil {
		r.opts.OnLateCallback(h.task)
	}
}

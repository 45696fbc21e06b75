package taskrunner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
)

type outcome struct {
	success bool
	task    string
	err     error
}

func newHandler() (taskrunner.Handler, chan outcome) {
	ch := make(chan outcome, 2)
	return taskrunner.Handler{
		OnSuccess: func() { ch <- outcome{success: true} },
		OnFault: func(task string, err error) {
			ch <- outcome{task: task, err: err}
		},
	}, ch
}

func waitOutcome(t *testing.T, ch chan outcome) outcome {
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not terminate")
	}
	return outcome{}
}

type recorder struct {
	lock sync.Mutex
	runs []string
}

func (r *recorder) add(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.runs = append(r.runs, name)
}

func (r *recorder) list() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.runs...)
}

func TestRunnerSequence(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	newStep := func(name string, async bool) taskrunner.Task {
		return taskrunner.NewTask(name, func(_ context.Context, h *taskrunner.Handle) {
			rec.add(name)
			if async {
				go func() {
					time.Sleep(10 * time.Millisecond)
					h.Complete()
				}()
				return
			}
			h.Complete()
		})
	}

	completed := make([]string, 0)
	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		OnTaskCompleted: func(task string) { completed = append(completed, task) },
	}, newStep("a", false), newStep("b", true), newStep("c", false))

	require.NoError(t, runner.Run(context.Background()))
	o := waitOutcome(t, ch)

	require.True(t, o.success)
	require.Equal(t, []string{"a", "b", "c"}, rec.list())
	require.Equal(t, []string{"a", "b", "c"}, completed)
	require.Equal(t, taskrunner.StateCompleted, runner.State())
	require.NoError(t, runner.Err())
	require.ErrorIs(t, runner.Run(context.Background()), taskrunner.ErrAlreadyStarted)
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name         string
		failAt       int
		expectedRuns []string
	}{
		{"first", 0, []string{"t0"}},
		{"middle", 2, []string{"t0", "t1", "t2"}},
		{"last", 4, []string{"t0", "t1", "t2", "t3", "t4"}},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			tasks := make([]taskrunner.Task, 0, 5)
			for i := 0; i < 5; i++ {
				i := i
				name := []string{"t0", "t1", "t2", "t3", "t4"}[i]
				tasks = append(tasks, taskrunner.NewTask(
					name, func(_ context.Context, h *taskrunner.Handle) {
						rec.add(name)
						if i == tt.failAt {
							h.Fail(errBoom)
							return
						}
						h.Complete()
					},
				))
			}

			handler, ch := newHandler()
			runner := taskrunner.NewRunner("test", handler, taskrunner.Options{}, tasks...)
			require.NoError(t, runner.Run(context.Background()))
			o := waitOutcome(t, ch)

			require.False(t, o.success)
			require.ErrorIs(t, o.err, errBoom)
			require.Equal(t, tt.expectedRuns[len(tt.expectedRuns)-1], o.task)
			require.Equal(t, tt.expectedRuns, rec.list())
			require.Equal(t, taskrunner.StateFailed, runner.State())
			require.Equal(t, o.task, runner.FailedTask())
		})
	}
}

func TestRunnerDoubleInvocation(t *testing.T) {
	t.Parallel()

	var second, third bool
	task := taskrunner.NewTask("double", func(_ context.Context, h *taskrunner.Handle) {
		h.Complete()
		second = h.Complete()
		third = h.Fail(errors.New("late"))
	})

	var late int32
	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		OnLateCallback: func(string) { atomic.AddInt32(&late, 1) },
	}, task)
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.True(t, o.success)
	<-runner.Done()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&late) == 2
	}, time.Second, 10*time.Millisecond)
	require.False(t, second)
	require.False(t, third)

	select {
	case o := <-ch:
		t.Fatalf("unexpected second outcome %+v", o)
	default:
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	t.Parallel()

	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{},
		taskrunner.NewTask("panic", func(context.Context, *taskrunner.Handle) {
			panic("unexpected")
		}),
	)
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.False(t, o.success)
	require.Equal(t, "panic", o.task)
	require.ErrorIs(t, o.err, taskrunner.ErrTaskPanic)
}

func TestRunnerCompleteWith(t *testing.T) {
	t.Parallel()

	errInvalid := errors.New("invalid")
	value := 0
	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{},
		taskrunner.NewTask("mutate", func(_ context.Context, h *taskrunner.Handle) {
			h.CompleteWith(func() error {
				value = 1
				return nil
			})
		}),
		taskrunner.NewTask("reject", func(_ context.Context, h *taskrunner.Handle) {
			h.CompleteWith(func() error { return errInvalid })
		}),
		taskrunner.NewTask("never", func(_ context.Context, h *taskrunner.Handle) {
			value = 2
			h.Complete()
		}),
	)
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, errInvalid)
	require.Equal(t, "reject", o.task)
	require.Equal(t, 1, value)
}

func TestRunnerUpdate(t *testing.T) {
	t.Parallel()

	var (
		lock    sync.Mutex
		records []string
	)
	record := func(v string) func() error {
		return func() error {
			lock.Lock()
			defer lock.Unlock()
			records = append(records, v)
			return nil
		}
	}
	updated := make(chan bool, 1)

	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		Timeout: 50 * time.Millisecond,
	},
		taskrunner.NewTask("record", func(_ context.Context, h *taskrunner.Handle) {
			ok, err := h.Update(record("before"))
			require.NoError(t, err)
			require.True(t, ok)
			h.CompleteWith(record("after"))
		}),
		taskrunner.NewTask("stale", func(_ context.Context, h *taskrunner.Handle) {
			go func() {
				time.Sleep(100 * time.Millisecond)
				ok, _ := h.Update(record("stale"))
				updated <- ok
			}()
		}),
	)
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, taskrunner.ErrTimeout)
	require.Equal(t, "stale", o.task)
	require.False(t, <-updated)

	lock.Lock()
	defer lock.Unlock()
	require.Equal(t, []string{"before", "after"}, records)
}

func TestRunnerInterceptor(t *testing.T) {
	t.Parallel()

	errInjected := errors.New("injected")
	rec := &recorder{}
	newStep := func(name string) taskrunner.Task {
		return taskrunner.NewTask(name, func(_ context.Context, h *taskrunner.Handle) {
			rec.add(name)
			h.Complete()
		})
	}

	intercepted := &recorder{}
	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		Interceptor: func(_ context.Context, task string) error {
			intercepted.add(task)
			if task == "b" {
				return errInjected
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}, newStep("a"), newStep("b"), newStep("c"))
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, errInjected)
	require.Equal(t, []string{"a"}, rec.list())
	require.Equal(t, []string{"a", "b"}, intercepted.list())
}

// A broadcast callback firing after the timeout already failed the run must
// not mutate anything.
func TestRunnerLateCallbackAfterTimeout(t *testing.T) {
	t.Parallel()

	var mutated int32
	var late int32
	callbackFired := make(chan bool, 1)

	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		Timeout:        50 * time.Millisecond,
		OnLateCallback: func(string) { atomic.AddInt32(&late, 1) },
	}, taskrunner.NewTask("broadcast", func(_ context.Context, h *taskrunner.Handle) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			callbackFired <- h.CompleteWith(func() error {
				atomic.StoreInt32(&mutated, 1)
				return nil
			})
		}()
	}))
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, taskrunner.ErrTimeout)
	require.Equal(t, "broadcast", o.task)

	accepted := <-callbackFired
	require.False(t, accepted)
	require.Zero(t, atomic.LoadInt32(&mutated))
	require.Equal(t, int32(1), atomic.LoadInt32(&late))
	require.Equal(t, taskrunner.StateFailed, runner.State())
}

func TestRunnerTimeoutCancelsContext(t *testing.T) {
	t.Parallel()

	ctxDone := make(chan struct{})
	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		Timeout: 20 * time.Millisecond,
	}, taskrunner.NewTask("wait", func(ctx context.Context, h *taskrunner.Handle) {
		<-ctx.Done()
		close(ctxDone)
		h.Fail(ctx.Err())
	}))
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, taskrunner.ErrTimeout)
	<-ctxDone
	require.ErrorIs(t, runner.Wait(context.Background()), taskrunner.ErrTimeout)
}

func TestRunnerTimeoutMessage(t *testing.T) {
	t.Parallel()

	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{
		Timeout: 1100 * time.Millisecond,
	}, taskrunner.NewTask("hang", func(context.Context, *taskrunner.Handle) {}))
	require.NoError(t, runner.Run(context.Background()))

	o := waitOutcome(t, ch)
	require.ErrorIs(t, o.err, taskrunner.ErrTimeout)
	require.EqualError(
		t, o.err, "Timeout reached. Protocol did not complete in 1 sec.",
	)

	var timeoutErr *taskrunner.TimeoutError
	require.ErrorAs(t, runner.Err(), &timeoutErr)
	require.Equal(t, 1100*time.Millisecond, timeoutErr.Timeout)
}

func TestRunnerEmpty(t *testing.T) {
	t.Parallel()

	handler, ch := newHandler()
	runner := taskrunner.NewRunner("test", handler, taskrunner.Options{})
	require.NoError(t, runner.Run(context.Background()))
	require.True(t, waitOutcome(t, ch).success)
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Task is a side effect that must only happen once its transaction committed.
type Task interface {
	Execute(ctx context.Context) error
	Description() string
}

// TaskEqualer is implemented by tasks that compare by value.
type TaskEqualer interface {
	Equal(other Task) bool
}

func ContainsTask(tasks []Task, target Task) bool {
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if equaler, ok := task.(TaskEqualer); ok && equaler.Equal(target) {
			return true
		}
	}
	return false
}

type TaskFailure struct {
	Description string
	Err         error
}

type TaskReport struct {
	Executed []string
	Failures []TaskFailure
	Queued   int
}

func (r TaskReport) Failed() bool {
	return len(r.Failures) > 0
}

// Err turns failures into a partial failure error. The mutation itself has
// already committed when this is non-nil.
func (r TaskReport) Err() error {
	if !r.Failed() {
		return nil
	}
	partial := &PartialFailureError{Failures: append([]TaskFailure(nil), r.Failures...)}
	return wrapEntityGraphError(partial, partial.Error(), goerrors.CategoryExternal, ErrorSideEffectFailed)
}

type PartialFailureError struct {
	Failures []TaskFailure
}

func (e *PartialFailureError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "core: post-commit tasks failed"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", failure.Description, failure.Err))
	}
	return fmt.Sprintf("core: %d post-commit task(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialFailureError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		if failure.Err != nil {
			out = append(out, failure.Err)
		}
	}
	return out
}

func IsPartialFailure(err error) bool {
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		return true
	}
	return hasTextCode(err, ErrorSideEffectFailed)
}

type executorState int

const (
	executorPending executorState = iota
	executorRan
	executorDiscarded
)

// AfterSuccessTaskExecutor collects tasks during a transaction. RunAll hands
// them to a runner once; Discard drops them. Either call closes the queue.
type AfterSuccessTaskExecutor struct {
	mu    sync.Mutex
	tasks []Task
	state executorState
}

func NewAfterSuccessTaskExecutor() *AfterSuccessTaskExecutor {
	return &AfterSuccessTaskExecutor{}
}

func (e *AfterSuccessTaskExecutor) AddTask(task Task) error {
	if task == nil {
		return BadInputError("core: task is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != executorPending {
		return BadInputError("core: task queue is closed")
	}
	e.tasks = append(e.tasks, task)
	return nil
}

func (e *AfterSuccessTaskExecutor) Pending() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != executorPending {
		return nil
	}
	return append([]Task(nil), e.tasks...)
}

func (e *AfterSuccessTaskExecutor) RunAll(ctx context.Context, runner TaskRunner) TaskReport {
	e.mu.Lock()
	if e.state != executorPending {
		e.mu.Unlock()
		return TaskReport{}
	}
	e.state = executorRan
	tasks := e.tasks
	e.tasks = nil
	e.mu.Unlock()

	if len(tasks) == 0 {
		return TaskReport{}
	}
	if runner == nil {
		runner = NewSequentialTaskRunner(nil)
	}
	return runner.Run(ctx, tasks)
}

// Discard drops every queued task and returns how many were dropped.
func (e *AfterSuccessTaskExecutor) Discard() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != executorPending {
		return 0
	}
	e.state = executorDiscarded
	dropped := len(e.tasks)
	e.tasks = nil
	return dropped
}

// SequentialTaskRunner executes tasks in order on the calling goroutine. A
// failing task is logged and does not stop the ones after it.
type SequentialTaskRunner struct {
	logger Logger
}

func NewSequentialTaskRunner(logger Logger) *SequentialTaskRunner {
	return &SequentialTaskRunner{logger: glog.Ensure(logger)}
}

func (r *SequentialTaskRunner) Run(ctx context.Context, tasks []Task) TaskReport {
	report := TaskReport{}
	for _, task := range tasks {
		if task == nil {
			continue
		}
		description := task.Description()
		startedAt := time.Now()
		if err := executeTask(ctx, task); err != nil {
			report.Failures = append(report.Failures, TaskFailure{Description: description, Err: err})
			r.log(ctx, "post-commit task failed", description, startedAt, err)
			continue
		}
		report.Executed = append(report.Executed, description)
		r.log(ctx, "post-commit task executed", description, startedAt, nil)
	}
	return report
}

func (r *SequentialTaskRunner) log(ctx context.Context, message string, description string, startedAt time.Time, err error) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{"task", description, "duration_ms", time.Since(startedAt).Milliseconds()}
	if err != nil {
		logger.Error(message, append(args, "error", err.Error())...)
		return
	}
	logger.Debug(message, args...)
}

func executeTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: task panicked: %v", recovered)
		}
	}()
	return task.Execute(ctx)
}

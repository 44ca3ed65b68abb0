package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled_back"
	default:
		return "open"
	}
}

func transactionDoneError(state txState) error {
	return wrapEntityGraphError(ErrTransactionDone, fmt.Sprintf("core: transaction already %s", state), goerrors.CategoryConflict, ErrorTransactionDone)
}

func (a *Actions) ensureOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != txOpen {
		return transactionDoneError(a.state)
	}
	return nil
}

// Success commits the storage transaction and then runs the queued tasks in
// order. A commit failure discards the tasks and is returned as is. Task
// failures come back as a partial failure error alongside the report; the
// mutation stays committed. Success or Rollback may be called once.
func (a *Actions) Success(ctx context.Context) (TaskReport, error) {
	a.mu.Lock()
	if a.state != txOpen {
		state := a.state
		a.mu.Unlock()
		return TaskReport{}, transactionDoneError(state)
	}
	a.state = txCommitted
	a.mu.Unlock()

	startedAt := time.Now()
	if err := a.store.Success(ctx); err != nil {
		a.mu.Lock()
		a.state = txRolledBack
		a.mu.Unlock()
		dropped := a.tasks.Discard()
		a.telemetry.observeOperation(ctx, startedAt, "commit", err, map[string]any{"tasks_discarded": dropped})
		return TaskReport{}, err
	}
	queued := len(a.tasks.Pending())
	a.telemetry.observeOperation(ctx, startedAt, "commit", nil, map[string]any{"tasks_queued": queued})

	report := a.tasks.RunAll(ctx, a.runner)
	if report.Queued == 0 {
		report.Queued = queued
	}
	if err := report.Err(); err != nil {
		a.telemetry.logWithLevel(ctx, "warn", "post-commit tasks failed", map[string]any{
			"failed":   len(report.Failures),
			"executed": len(report.Executed),
		})
		return report, err
	}
	return report, nil
}

// Rollback aborts the storage transaction and drops every queued task.
func (a *Actions) Rollback(ctx context.Context) error {
	a.mu.Lock()
	if a.state != txOpen {
		state := a.state
		a.mu.Unlock()
		return transactionDoneError(state)
	}
	a.state = txRolledBack
	a.mu.Unlock()

	dropped := a.tasks.Discard()
	err := a.store.Rollback(ctx)
	a.telemetry.observeOperation(ctx, time.Now(), "rollback", err, map[string]any{"tasks_discarded": dropped})
	return err
}

// Close rolls back when neither Success nor Rollback was called and releases
// the store. It is safe to call any number of times.
func (a *Actions) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var rollbackErr error
		a.mu.Lock()
		open := a.state == txOpen
		a.mu.Unlock()
		if open {
			rollbackErr = a.Rollback(ctx)
		}
		a.closeErr = errors.Join(rollbackErr, a.store.Close())
	})
	return a.closeErr
}

// Done reports whether Success or Rollback has been called.
func (a *Actions) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != txOpen
}

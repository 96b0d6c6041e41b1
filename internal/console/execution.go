package console

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/tasks"
)

// Execution is one in-flight attempt. Done closes once the task has left
// executing.
type Execution struct {
	TaskID  string
	Attempt int

	done chan struct{}
	task tasks.Task
	err  error
}

func newExecution(taskID string, attempt int) *Execution {
	return &Execution{TaskID: taskID, Attempt: attempt, done: make(chan struct{})}
}

func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the attempt settles and returns the task as it was left,
// plus the failure if the attempt failed.
func (e *Execution) Wait(ctx context.Context) (tasks.Task, error) {
	select {
	case <-ctx.Done():
		return tasks.Task{}, ctx.Err()
	case <-e.done:
		return e.task, e.err
	}
}

func (e *Execution) finish(t tasks.Task, err error) {
	e.task = t
	e.err = err
	close(e.done)
}

func (o *Orchestrator) startLocked(ctx context.Context, t *tasks.Task) *Execution {
	ex := newExecution(t.ID, t.Attempts)
	o.inflight[t.ID] = ex
	req := execution.Request{
		TaskID: t.ID,
		Kind:   string(t.Kind),
		Config: t.Config.Clone(),
	}
	go o.run(ctx, ex, req)
	return ex
}

type attemptOutcome struct {
	res execution.Result
	err error
}

// run waits for the executor or the execution timeout, whichever comes
// first. An executor that ignores ctx cannot hold the task in executing past
// the timeout; its late result is dropped.
func (o *Orchestrator) run(ctx context.Context, ex *Execution, req execution.Request) {
	runCtx, cancel := context.WithTimeout(ctx, o.opts.ExecutionTimeout)
	defer cancel()

	out := make(chan attemptOutcome, 1)
	go func() {
		res, err := o.exec.ExecuteTask(runCtx, req)
		out <- attemptOutcome{res: res, err: err}
	}()

	var (
		res execution.Result
		err error
	)
	select {
	case got := <-out:
		res, err = got.res, got.err
	case <-runCtx.Done():
		err = runCtx.Err()
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && reliability.KindOf(err) != reliability.KindTimeout {
		err = reliability.Wrap(reliability.KindTimeout, "no response within execution timeout", err)
	}
	o.complete(ctx, ex, res, err)
}

// complete applies the outcome of an attempt unless the task already left
// executing through an out-of-band completion.
func (o *Orchestrator) complete(ctx context.Context, ex *Execution, res execution.Result, err error) {
	o.mu.Lock()
	t, ok := o.tasks[ex.TaskID]
	if !ok || o.inflight[ex.TaskID] != ex {
		o.unlockAndFlush()
		return
	}
	delete(o.inflight, ex.TaskID)

	now := o.opts.Now()
	if err == nil {
		executedAt := res.ExecutedAt
		if executedAt.IsZero() {
			executedAt = now
		}
		_ = t.Succeed(tasks.Result{Message: res.Message, Data: res.Data, ExecutedAt: executedAt}, now)
		o.log.Info("task succeeded", zap.String("task_id", t.ID), zap.Int("attempt", ex.Attempt))
	} else {
		o.failLocked(ctx, t, err, now)
	}
	snapshot := t.Clone()
	o.unlockAndFlush()
	ex.finish(snapshot, err)
}

// failLocked records a failed attempt. Non-retryable kinds are also raised
// as notices; retryable ones may be retried automatically.
func (o *Orchestrator) failLocked(ctx context.Context, t *tasks.Task, err error, now time.Time) {
	f := tasks.FailureFrom(err, now)
	_ = t.Fail(f, now)
	o.log.Info("task failed",
		zap.String("task_id", t.ID),
		zap.String("error_kind", string(f.Kind)),
		zap.Int("attempts", t.Attempts),
		zap.Error(err))
	if !f.Retryable {
		o.noticeLocked(f.Kind, t.ID, f.Message)
		return
	}
	if o.opts.AutoRetry {
		o.scheduleRetryLocked(ctx, t)
	}
}

func (o *Orchestrator) scheduleRetryLocked(ctx context.Context, t *tasks.Task) {
	if o.closed {
		return
	}
	delay, ok := o.opts.RetryPolicy.Next(t.Attempts)
	if !ok {
		o.noticeLocked(reliability.KindTransient, t.ID, "automatic retries exhausted")
		return
	}
	id := t.ID
	o.stopRetryLocked(id)
	o.retries[id] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.retries, id)
		o.mu.Unlock()
		if _, err := o.Retry(ctx, id); err != nil {
			o.log.Debug("automatic retry skipped", zap.String("task_id", id), zap.Error(err))
		}
	})
	o.log.Info("automatic retry scheduled", zap.String("task_id", id), zap.Duration("delay", delay))
}

func (o *Orchestrator) stopRetryLocked(taskID string) {
	if timer, ok := o.retries[taskID]; ok {
		timer.Stop()
		delete(o.retries, taskID)
	}
}

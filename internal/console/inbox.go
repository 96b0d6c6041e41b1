package console

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/protocol"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/streamclient"
	"github.com/ent0n29/outreach/internal/tasks"
)

type inboxItem struct {
	msg streamclient.Message
}

// Deliver queues a stream frame for Run. It never blocks; frames are dropped
// when the inbox is full.
func (o *Orchestrator) Deliver(msg streamclient.Message) {
	select {
	case o.inbox <- inboxItem{msg: msg}:
	default:
		o.log.Warn("console inbox full, frame dropped", zap.String("type", string(msg.Type)))
	}
}

// Run applies queued stream frames and polls the intake channel every
// PollInterval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	o.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.poll(ctx)
		case item := <-o.inbox:
			o.handleFrame(ctx, item.msg)
		}
	}
}

func (o *Orchestrator) poll(ctx context.Context) {
	if _, err := o.Poll(ctx); err != nil && ctx.Err() == nil {
		o.log.Warn("poll failed", zap.Error(err))
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, msg streamclient.Message) {
	switch msg.Type {
	case protocol.TypeWorkflowReceived:
		o.poll(ctx)
	case protocol.TypeTaskCompleted:
		parsed, err := protocol.ParseServerMessage([]byte(msg.Raw))
		if err != nil {
			o.log.Warn("ignoring task completion frame", zap.Error(err))
			return
		}
		tc, ok := parsed.(*protocol.TaskCompleted)
		if !ok {
			o.log.Warn("ignoring task completion frame with conflicting type", zap.String("raw", msg.Raw))
			return
		}
		o.ApplyCompletion(ctx, *tc)
	}
}

// ApplyCompletion settles an executing task from an out-of-band completion.
// It reports whether the task was executing. Reported failures count as
// transient and follow the same retry rules as a failed HTTP attempt.
func (o *Orchestrator) ApplyCompletion(ctx context.Context, tc protocol.TaskCompleted) bool {
	o.mu.Lock()
	t, ok := o.tasks[strings.TrimSpace(tc.TaskID)]
	if !ok || t.State != tasks.StateExecuting {
		o.unlockAndFlush()
		return false
	}
	ex := o.inflight[t.ID]
	delete(o.inflight, t.ID)

	now := o.opts.Now()
	var err error
	if tc.Success {
		executedAt := tc.ExecutedAt
		if executedAt.IsZero() {
			executedAt = now
		}
		_ = t.Succeed(tasks.Result{Message: tc.Message, Data: tc.Data, ExecutedAt: executedAt}, now)
	} else {
		msg := strings.TrimSpace(tc.Error)
		if msg == "" {
			msg = "task reported failure"
		}
		err = reliability.New(reliability.KindTransient, msg)
		o.failLocked(ctx, t, err, now)
	}
	snapshot := t.Clone()
	o.unlockAndFlush()

	o.log.Info("task settled out of band", zap.String("task_id", t.ID), zap.Bool("success", tc.Success))
	if ex != nil {
		ex.finish(snapshot, err)
	}
	return true
}

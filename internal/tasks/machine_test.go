package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/reliability"
)

func emailTask(t *testing.T) *Task {
	t.Helper()
	return New(Description{
		ID:       "t1",
		Kind:     KindEmail,
		Title:    "Intro",
		Priority: PriorityHigh,
		Config:   Config{"recipient": "a@b.com", "subject": "Hi", "message": "Hello there"},
	}, "wf-1", "p-1", time.Unix(0, 0))
}

func TestEditSaveExecuteFailRetrySucceed(t *testing.T) {
	now := time.Unix(100, 0)
	task := emailTask(t)

	require.NoError(t, task.Edit(now))
	require.NoError(t, task.SetDraftField("subject", "Hi again"))
	assert.Equal(t, "Hi", task.Config.Get("subject"), "draft must not leak into the canonical config")
	require.NoError(t, task.Save(task.Draft, now))
	assert.Equal(t, "Hi again", task.Config.Get("subject"))
	assert.Nil(t, task.Draft)

	require.NoError(t, task.BeginExecution(now))
	require.NoError(t, task.Fail(FailureFrom(reliability.New(reliability.KindTransient, "simulated failure"), now), now.Add(time.Second)))
	require.NotNil(t, task.LastError)
	assert.True(t, task.LastError.Retryable)

	require.NoError(t, task.Retry(now.Add(2*time.Second)))
	require.NoError(t, task.Succeed(Result{Message: "sent"}, now.Add(3*time.Second)))

	assert.Equal(t, []State{
		StatePendingReview, StateEditing, StatePendingReview,
		StateExecuting, StateFailed, StateExecuting, StateSucceeded,
	}, task.States())
	assert.Equal(t, 2, task.Attempts)
	assert.Nil(t, task.LastError)
	assert.Equal(t, 2*time.Second, task.ExecutingDuration(now.Add(time.Hour)))
}

func TestCancelEditDiscardsDraft(t *testing.T) {
	task := emailTask(t)
	now := time.Now()
	require.NoError(t, task.Edit(now))
	require.NoError(t, task.SetDraftField("recipient", "other@b.com"))
	require.NoError(t, task.CancelEdit(now))
	assert.Equal(t, StatePendingReview, task.State)
	assert.Equal(t, "a@b.com", task.Config.Get("recipient"))
	assert.Nil(t, task.Draft)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	task := emailTask(t)
	now := time.Now()
	require.NoError(t, task.Edit(now))
	err := task.Save(Config{"recipient": "a@b.com"}, now)
	require.Error(t, err)
	assert.Equal(t, reliability.KindBadRequest, reliability.KindOf(err))
	assert.Equal(t, StateEditing, task.State)
}

func TestInvalidTransitions(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		prep func(*Task)
		try  func(*Task) error
	}{
		{"retry from pending", func(*Task) {}, func(t *Task) error { return t.Retry(now) }},
		{"edit while executing", func(t *Task) { _ = t.BeginExecution(now) }, func(t *Task) error { return t.Edit(now) }},
		{"reject while executing", func(t *Task) { _ = t.BeginExecution(now) }, func(t *Task) error { return t.Reject(now) }},
		{"execute after success", func(t *Task) {
			_ = t.BeginExecution(now)
			_ = t.Succeed(Result{}, now)
		}, func(t *Task) error { return t.BeginExecution(now) }},
		{"retry after reject", func(t *Task) { _ = t.Reject(now) }, func(t *Task) error { return t.Retry(now) }},
		{"succeed from pending", func(*Task) {}, func(t *Task) error { return t.Succeed(Result{}, now) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := emailTask(t)
			tc.prep(task)
			before := task.State
			err := tc.try(task)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, before, task.State)
		})
	}
}

func TestRejectFromFailed(t *testing.T) {
	now := time.Now()
	task := emailTask(t)
	require.NoError(t, task.BeginExecution(now))
	require.NoError(t, task.Fail(Failure{Kind: reliability.KindTransient}, now))
	require.NoError(t, task.Reject(now))
	assert.True(t, task.State.Terminal())
}

func TestCloneIsDeep(t *testing.T) {
	task := emailTask(t)
	c := task.Clone()
	c.Config["subject"] = "changed"
	assert.Equal(t, "Hi", task.Config.Get("subject"))
}

// Package console is the operator side of outreach: it pulls workflows,
// keeps per-contact task queues and drives each task through review and
// execution.
package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/tasks"
)

type Intake interface {
	DrainWorkflows(ctx context.Context) ([]intake.Workflow, error)
}

type Executor interface {
	ExecuteTask(ctx context.Context, req execution.Request) (execution.Result, error)
}

// Notice is a banner for the operator. Failures that do not move a task to
// failed surface only as notices.
type Notice struct {
	Kind    reliability.Kind
	TaskID  string
	Message string
	At      time.Time
}

type Options struct {
	ActiveContact    string
	PollInterval     time.Duration
	ExecutionTimeout time.Duration
	AutoRetry        bool
	// RetryPolicy left entirely unset means DefaultRetryPolicy.
	RetryPolicy      reliability.RetryPolicy
	InboxSize        int
	Now              func() time.Time
}

func (o *Options) withDefaults() {
	if strings.TrimSpace(o.ActiveContact) == "" {
		o.ActiveContact = "default"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.ExecutionTimeout <= 0 {
		o.ExecutionTimeout = 30 * time.Second
	}
	if o.RetryPolicy == (reliability.RetryPolicy{}) {
		o.RetryPolicy = reliability.DefaultRetryPolicy()
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type PollReport struct {
	Workflows  int
	Added      int
	Duplicates int
	Routed     map[string]int
	Errors     []error
}

type ContactSummary struct {
	ID     string
	Active bool
	Open   int
	Total  int
}

// Orchestrator owns every task the console knows about. All task mutations
// happen under mu so operator actions, execution completions and stream
// events are applied one at a time.
type Orchestrator struct {
	intake Intake
	exec   Executor
	opts   Options
	log    *zap.Logger
	inbox  chan inboxItem

	pollMu sync.Mutex

	mu       sync.Mutex
	tasks    map[string]*tasks.Task
	order    []string
	active   string
	inflight map[string]*Execution
	retries  map[string]*time.Timer
	pending  []Notice
	onNotice func(Notice)
	closed   bool
}

func NewOrchestrator(in Intake, exec Executor, opts Options, log *zap.Logger) *Orchestrator {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		intake:   in,
		exec:     exec,
		opts:     opts,
		log:      log,
		inbox:    make(chan inboxItem, opts.InboxSize),
		tasks:    make(map[string]*tasks.Task),
		active:   strings.TrimSpace(opts.ActiveContact),
		inflight: make(map[string]*Execution),
		retries:  make(map[string]*time.Timer),
	}
}

// OnNotice registers the banner callback. It is never called with the
// orchestrator lock held.
func (o *Orchestrator) OnNotice(fn func(Notice)) {
	o.mu.Lock()
	o.onNotice = fn
	o.mu.Unlock()
}

// Poll drains the intake channel once and materializes every workflow into
// tasks. Tasks whose id is already known are skipped.
func (o *Orchestrator) Poll(ctx context.Context) (PollReport, error) {
	o.pollMu.Lock()
	defer o.pollMu.Unlock()

	report := PollReport{Routed: map[string]int{}}
	workflows, err := o.intake.DrainWorkflows(ctx)
	if err != nil {
		o.mu.Lock()
		o.noticeLocked(reliability.KindOf(err), "", "poll failed: "+err.Error())
		o.unlockAndFlush()
		return report, err
	}
	report.Workflows = len(workflows)

	o.mu.Lock()
	now := o.opts.Now()
	for _, wf := range workflows {
		descs, errs := tasks.Materialize(wf.ID, wf.Data)
		report.Errors = append(report.Errors, errs...)
		for _, d := range descs {
			if _, exists := o.tasks[d.ID]; exists {
				report.Duplicates++
				continue
			}
			contact := strings.TrimSpace(d.PersonID)
			if contact == "" {
				contact = o.active
			}
			o.tasks[d.ID] = tasks.New(d, wf.ID, contact, now)
			o.order = append(o.order, d.ID)
			report.Added++
			report.Routed[contact]++
		}
	}
	for _, err := range report.Errors {
		o.noticeLocked(reliability.KindOf(err), "", err.Error())
	}
	o.unlockAndFlush()

	if report.Workflows > 0 {
		o.log.Info("workflows materialized",
			zap.Int("workflows", report.Workflows),
			zap.Int("added", report.Added),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("skipped", len(report.Errors)))
	}
	return report, nil
}

func (o *Orchestrator) Edit(taskID string) error {
	return o.mutate(taskID, func(t *tasks.Task, now time.Time) error {
		return t.Edit(now)
	})
}

func (o *Orchestrator) UpdateDraft(taskID, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return reliability.New(reliability.KindBadRequest, "option name is required")
	}
	return o.mutate(taskID, func(t *tasks.Task, _ time.Time) error {
		return t.SetDraftField(key, value)
	})
}

// Save promotes the working copy. Validation failures leave the task in
// editing and are reported as a notice.
func (o *Orchestrator) Save(taskID string) error {
	return o.mutate(taskID, func(t *tasks.Task, now time.Time) error {
		return t.Save(t.Draft, now)
	})
}

func (o *Orchestrator) Cancel(taskID string) error {
	return o.mutate(taskID, func(t *tasks.Task, now time.Time) error {
		return t.CancelEdit(now)
	})
}

// Reject hides a task from its queue. Rejected tasks stay retrievable by id.
func (o *Orchestrator) Reject(taskID string) error {
	return o.mutate(taskID, func(t *tasks.Task, now time.Time) error {
		if err := t.Reject(now); err != nil {
			return err
		}
		o.stopRetryLocked(t.ID)
		return nil
	})
}

// Execute starts the first attempt of a task under review. While an attempt
// is in flight the same handle is returned.
func (o *Orchestrator) Execute(ctx context.Context, taskID string) (*Execution, error) {
	o.mu.Lock()
	t, err := o.lookupLocked(taskID)
	if err != nil {
		o.unlockAndFlush()
		return nil, err
	}
	if ex := o.inflight[t.ID]; ex != nil {
		o.unlockAndFlush()
		return ex, nil
	}
	if !t.Can(tasks.EventExecute) {
		err := fmt.Errorf("%w: %s is %s", tasks.ErrInvalidTransition, t.ID, t.State)
		o.unlockAndFlush()
		return nil, err
	}
	if err := t.Kind.Validate(t.Config); err != nil {
		o.noticeLocked(reliability.KindOf(err), t.ID, err.Error())
		o.unlockAndFlush()
		return nil, err
	}
	if err := t.BeginExecution(o.opts.Now()); err != nil {
		o.unlockAndFlush()
		return nil, err
	}
	ex := o.startLocked(ctx, t)
	o.unlockAndFlush()
	return ex, nil
}

// Retry starts another attempt of a failed task.
func (o *Orchestrator) Retry(ctx context.Context, taskID string) (*Execution, error) {
	o.mu.Lock()
	t, err := o.lookupLocked(taskID)
	if err != nil {
		o.unlockAndFlush()
		return nil, err
	}
	if ex := o.inflight[t.ID]; ex != nil {
		o.unlockAndFlush()
		return ex, nil
	}
	if err := t.Retry(o.opts.Now()); err != nil {
		o.unlockAndFlush()
		return nil, err
	}
	o.stopRetryLocked(t.ID)
	ex := o.startLocked(ctx, t)
	o.unlockAndFlush()
	return ex, nil
}

func (o *Orchestrator) SetActiveContact(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return reliability.New(reliability.KindBadRequest, "contact id is required")
	}
	o.mu.Lock()
	o.active = id
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) ActiveContact() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Queue lists the active contact's tasks in arrival order, without rejected ones.
func (o *Orchestrator) Queue() []tasks.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queueLocked(o.active)
}

func (o *Orchestrator) QueueFor(contact string) []tasks.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queueLocked(strings.TrimSpace(contact))
}

func (o *Orchestrator) queueLocked(contact string) []tasks.Task {
	out := make([]tasks.Task, 0)
	for _, id := range o.order {
		t := o.tasks[id]
		if t.ContactID != contact || t.State == tasks.StateRejected {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// History lists every task across contacts, rejected ones included.
func (o *Orchestrator) History() []tasks.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]tasks.Task, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.tasks[id].Clone())
	}
	return out
}

func (o *Orchestrator) Task(taskID string) (tasks.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[strings.TrimSpace(taskID)]
	if !ok {
		return tasks.Task{}, false
	}
	return t.Clone(), true
}

func (o *Orchestrator) Contacts() []ContactSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	byID := map[string]*ContactSummary{
		o.active: {ID: o.active, Active: true},
	}
	for _, id := range o.order {
		t := o.tasks[id]
		s, ok := byID[t.ContactID]
		if !ok {
			s = &ContactSummary{ID: t.ContactID}
			byID[t.ContactID] = s
		}
		s.Total++
		if !t.State.Terminal() {
			s.Open++
		}
	}
	out := make([]ContactSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops pending automatic retries. In-flight attempts finish on their own.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id := range o.retries {
		o.stopRetryLocked(id)
	}
}

func (o *Orchestrator) mutate(taskID string, fn func(t *tasks.Task, now time.Time) error) error {
	o.mu.Lock()
	t, err := o.lookupLocked(taskID)
	if err == nil {
		err = fn(t, o.opts.Now())
		if err != nil && !errors.Is(err, tasks.ErrInvalidTransition) {
			o.noticeLocked(reliability.KindOf(err), t.ID, err.Error())
		}
	}
	o.unlockAndFlush()
	return err
}

func (o *Orchestrator) lookupLocked(taskID string) (*tasks.Task, error) {
	t, ok := o.tasks[strings.TrimSpace(taskID)]
	if !ok {
		return nil, reliability.Newf(reliability.KindBadRequest, "unknown task %q", taskID)
	}
	return t, nil
}

func (o *Orchestrator) noticeLocked(kind reliability.Kind, taskID, message string) {
	o.pending = append(o.pending, Notice{Kind: kind, TaskID: taskID, Message: message, At: o.opts.Now()})
}

// unlockAndFlush releases mu and then delivers queued notices.
func (o *Orchestrator) unlockAndFlush() {
	notices := o.pending
	o.pending = nil
	fn := o.onNotice
	o.mu.Unlock()
	if fn == nil {
		return
	}
	for _, n := range notices {
		fn(n)
	}
}

package execution

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/observability"
	"github.com/ent0n29/outreach/internal/policy"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/tasks"
)

type Config struct {
	DelayMin    time.Duration
	DelayMax    time.Duration
	FailureRate float64
	// Rand and Sleep are replaceable for tests.
	Rand  *rand.Rand
	Sleep func(ctx context.Context, d time.Duration) error
}

type Request struct {
	TaskID string       `json:"taskId"`
	Kind   string       `json:"taskType"`
	Config tasks.Config `json:"config"`
}

type Result struct {
	TaskID     string         `json:"taskId"`
	Kind       tasks.Kind     `json:"kind"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data"`
	ExecutedAt time.Time      `json:"executedAt"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Service performs one task against one configuration. The external effect
// is simulated: a bounded random delay followed by a random outcome.
type Service struct {
	delayMin    time.Duration
	delayMax    time.Duration
	failureRate float64
	sleep       func(ctx context.Context, d time.Duration) error
	store       Store
	metrics     *observability.Metrics
	log         *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(cfg Config, store Store, metrics *observability.Metrics, log *zap.Logger) *Service {
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		delayMin:    cfg.DelayMin,
		delayMax:    cfg.DelayMax,
		failureRate: cfg.FailureRate,
		sleep:       cfg.Sleep,
		store:       store,
		metrics:     metrics,
		log:         log,
		rng:         cfg.Rand,
	}
}

// Execute validates req, waits out the simulated latency and returns either
// a result or a classified error. Transient failures are retryable;
// UnsupportedKind and BadRequest are not.
func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	req.TaskID = strings.TrimSpace(req.TaskID)
	kind, err := tasks.ParseKind(req.Kind)
	if err != nil {
		s.record(ctx, req, tasks.Kind(req.Kind), started, nil, err)
		return Result{}, err
	}
	if req.TaskID == "" {
		err := reliability.New(reliability.KindBadRequest, "taskId is required")
		s.record(ctx, req, kind, started, nil, err)
		return Result{}, err
	}
	if err := kind.Validate(req.Config); err != nil {
		s.record(ctx, req, kind, started, nil, err)
		return Result{}, err
	}

	delay, fail := s.draw()
	if err := s.sleep(ctx, delay); err != nil {
		err = reliability.Wrap(reliability.KindTimeout, "execution interrupted", err)
		s.record(ctx, req, kind, started, nil, err)
		return Result{}, err
	}

	now := time.Now().UTC()
	if fail {
		err := reliability.Newf(reliability.KindTransient, "Simulated %s failure - please retry", kind)
		s.record(ctx, req, kind, started, nil, err)
		return Result{}, err
	}

	res := Result{
		TaskID:     req.TaskID,
		Kind:       kind,
		Message:    successMessage(kind, req.Config),
		Data:       resultData(kind, req.Config, now),
		ExecutedAt: now,
	}
	s.record(ctx, req, kind, started, &res, nil)
	return res, nil
}

func (s *Service) Health() Health {
	return Health{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Message:   "Task execution service is running",
	}
}

func (s *Service) StoreMode() string {
	return s.store.Mode()
}

// History lists recorded attempts for a task, oldest first.
func (s *Service) History(ctx context.Context, taskID string, limit int) ([]Record, error) {
	return s.store.ListByTask(ctx, taskID, limit)
}

func (s *Service) draw() (time.Duration, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	delay := s.delayMin
	if span := s.delayMax - s.delayMin; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span) + 1))
	}
	return delay, s.rng.Float64() < s.failureRate
}

func (s *Service) record(ctx context.Context, req Request, kind tasks.Kind, started time.Time, res *Result, err error) {
	elapsed := time.Since(started)
	if !kind.Known() {
		kind = "unsupported"
	}
	rec := Record{
		ID:         uuid.NewString(),
		TaskID:     req.TaskID,
		Kind:       string(kind),
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
		ExecutedAt: time.Now().UTC(),
	}
	outcome := "success"
	if err != nil {
		rec.ErrorKind = string(reliability.KindOf(err))
		rec.Error = policy.MaskContacts(err.Error())
		outcome = rec.ErrorKind
		s.log.Info("task execution failed",
			zap.String("task_id", req.TaskID),
			zap.String("kind", string(kind)),
			zap.String("error_kind", rec.ErrorKind),
			zap.String("error", rec.Error))
	} else {
		rec.Message = policy.MaskContacts(res.Message)
		s.log.Debug("task executed",
			zap.String("task_id", req.TaskID),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", elapsed))
	}
	s.metrics.ObserveExecution(string(kind), outcome, elapsed)

	// The caller may have given up already; the audit write still needs a live context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if serr := s.store.Save(saveCtx, rec); serr != nil {
		s.log.Warn("execution record not saved", zap.String("task_id", req.TaskID), zap.Error(serr))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
